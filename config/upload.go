package config

type UploadConfig struct {
	AllowedExtensions     []string
	ConvertibleExtensions []string
	MaxSizeMB             int64
	PathPrefix            string
}

const (
	PartSourceContext = "part_source"
	PartModelContext  = "part_model"
)

// UploadContexts holds the built-in upload rules. pkg/config may override
// extensions and size limits from the environment.
var UploadContexts = map[string]UploadConfig{
	PartSourceContext: {
		AllowedExtensions:     []string{"step", "stp", "pdf"},
		ConvertibleExtensions: []string{"step", "stp"},
		MaxSizeMB:             10,
		PathPrefix:            "parts/source",
	},
	// Derived artifacts are written by the server, never uploaded.
	PartModelContext: {
		AllowedExtensions: []string{"glb", "gltf"},
		PathPrefix:        "parts/model",
	},
}
