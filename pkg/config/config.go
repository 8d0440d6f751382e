package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	uploads "parts-tracker/config"
)

type ServerConfig struct {
	Port        string
	BasePath    string
	CORSOrigins []string
}

type DatabaseConfig struct {
	URL string
}

type BackupConfig struct {
	Enabled       bool
	Dir           string
	RetentionDays int
	Interval      time.Duration
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	StatsTTL time.Duration
}

type AuthConfig struct {
	APIKey        string
	APIKeyHash    string
	WipeKey       string
	CheckCooldown time.Duration
}

type JWTConfig struct {
	SecretKey    string
	LinkTokenTTL time.Duration
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type StorageConfig struct {
	Driver    string
	UploadDir string
	Minio     MinioConfig
}

type UploadConfig struct {
	AllowedExtensions     []string
	ConvertibleExtensions []string
	MaxFileSizeMB         int64
	PathPrefix            string
	ModelPathPrefix       string
}

type ConversionConfig struct {
	Command string
	Mode    string
	Workers int
	Timeout time.Duration
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Backup     BackupConfig
	Redis      RedisConfig
	Auth       AuthConfig
	JWT        JWTConfig
	Storage    StorageConfig
	Upload     UploadConfig
	Conversion ConversionConfig
	Log        LogConfig
}

const (
	ConversionModeAsync = "async"
	ConversionModeSync  = "sync"

	StorageDriverLocal = "local"
	StorageDriverMinio = "minio"
)

// New loads .env and the optional config file named by CONFIG_FILE
// (config.json next to the binary by default).
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or could not be loaded.")
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.json"
	}
	cfg, err := Load(path)
	if err != nil {
		log.Printf("Warning: config file %s ignored: %v", path, err)
		cfg, _ = Load("")
	}
	return cfg
}

// Load resolves every setting with precedence env > file > default.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	src := source{file: map[string]string{}}
	if path != "" {
		values, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = values
	}

	partSource := uploads.UploadContexts[uploads.PartSourceContext]
	partModel := uploads.UploadContexts[uploads.PartModelContext]

	cfg := &Config{
		Server: ServerConfig{
			Port:        src.get("SERVER_PORT", "8080"),
			BasePath:    src.get("BASE_PATH", "/api"),
			CORSOrigins: src.getList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			URL: src.get("DATABASE_URL", "sqlite:///parts.db"),
		},
		Backup: BackupConfig{
			Enabled:       src.getBool("BACKUP_ENABLED", true),
			Dir:           src.get("BACKUP_DIR", "backups"),
			RetentionDays: src.getInt("BACKUP_RETENTION_DAYS", 10),
			Interval:      src.getDuration("BACKUP_INTERVAL", 24*time.Hour),
		},
		Redis: RedisConfig{
			Address:  src.get("REDIS_ADDRESS", ""),
			Password: src.get("REDIS_PASSWORD", ""),
			DB:       src.getInt("REDIS_DB", 0),
			StatsTTL: src.getDuration("STATS_CACHE_TTL", time.Minute),
		},
		Auth: AuthConfig{
			APIKey:        src.get("API_KEY", ""),
			APIKeyHash:    src.get("API_KEY_HASH", ""),
			WipeKey:       src.get("WIPE_KEY", ""),
			CheckCooldown: src.getDuration("AUTH_CHECK_COOLDOWN", 2*time.Second),
		},
		JWT: JWTConfig{
			SecretKey:    src.get("JWT_SECRET_KEY", ""),
			LinkTokenTTL: src.getDuration("LINK_TOKEN_TTL", 5*time.Minute),
		},
		Storage: StorageConfig{
			Driver:    src.get("STORAGE_DRIVER", StorageDriverLocal),
			UploadDir: src.get("UPLOAD_FOLDER", "uploads"),
			Minio: MinioConfig{
				Endpoint:  src.get("MINIO_ENDPOINT", ""),
				AccessKey: src.get("MINIO_ACCESS_KEY", ""),
				SecretKey: src.get("MINIO_SECRET_KEY", ""),
				Bucket:    src.get("MINIO_BUCKET", "parts"),
				UseSSL:    src.getBool("MINIO_USE_SSL", false),
			},
		},
		Upload: UploadConfig{
			AllowedExtensions:     normalizeExtensions(src.getList("ALLOWED_EXTENSIONS", partSource.AllowedExtensions)),
			ConvertibleExtensions: partSource.ConvertibleExtensions,
			MaxFileSizeMB:         int64(src.getInt("MAX_FILE_SIZE_MB", int(partSource.MaxSizeMB))),
			PathPrefix:            partSource.PathPrefix,
			ModelPathPrefix:       partModel.PathPrefix,
		},
		Conversion: ConversionConfig{
			Command: src.get("CONVERTER_COMMAND", ""),
			Mode:    strings.ToLower(src.get("CONVERSION_MODE", ConversionModeAsync)),
			Workers: src.getInt("CONVERSION_WORKERS", 2),
			Timeout: src.getDuration("CONVERSION_TIMEOUT", 2*time.Minute),
		},
		Log: LogConfig{
			Level:      src.get("LOG_LEVEL", "info"),
			File:       src.get("LOG_FILE", "./logs/app.log"),
			MaxSizeMB:  src.getInt("LOG_MAX_SIZE_MB", 2048),
			MaxBackups: src.getInt("LOG_MAX_BACKUPS", 1),
		},
	}
	if cfg.JWT.SecretKey == "" {
		// Link tokens stay valid only for this process when no secret is configured.
		cfg.JWT.SecretKey = cfg.Auth.APIKey + cfg.Auth.APIKeyHash
	}
	return cfg, nil
}

// MaxFileSizeBytes is the upload limit in bytes.
func (c UploadConfig) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// IsAllowed reports whether ext (with or without the dot) may be uploaded.
func (c UploadConfig) IsAllowed(ext string) bool {
	return containsExt(c.AllowedExtensions, ext)
}

// IsConvertible reports whether ext produces a derived 3D model.
func (c UploadConfig) IsConvertible(ext string) bool {
	return containsExt(c.ConvertibleExtensions, ext)
}

func containsExt(list []string, ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, e := range list {
		if e == ext {
			return true
		}
	}
	return false
}

func normalizeExtensions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

type source struct {
	file map[string]string
}

func (s source) get(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if value, exists := s.file[key]; exists {
		return value
	}
	return fallback
}

func (s source) getInt(key string, fallback int) int {
	v, err := strconv.Atoi(s.get(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func (s source) getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(s.get(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

// getDuration accepts Go durations ("90s") or a bare number of seconds.
func (s source) getDuration(key string, fallback time.Duration) time.Duration {
	raw := s.get(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// getList accepts a JSON/YAML array or a comma separated string.
func (s source) getList(key string, fallback []string) []string {
	raw := strings.TrimSpace(s.get(key, ""))
	if raw == "" {
		return fallback
	}
	if strings.HasPrefix(raw, "[") {
		var list []string
		if err := yaml.Unmarshal([]byte(raw), &list); err == nil {
			return list
		}
	}
	var list []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// readFile parses a flat JSON or YAML document keyed by the same names as
// the environment variables. YAML is a superset of JSON so one decoder serves both.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch typed := v.(type) {
		case nil:
			continue
		case []interface{}:
			items := make([]string, 0, len(typed))
			for _, item := range typed {
				items = append(items, fmt.Sprint(item))
			}
			values[k] = strings.Join(items, ",")
		default:
			values[k] = fmt.Sprint(typed)
		}
	}
	return values, nil
}
