package validation

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"parts-tracker/pkg/config"
	apperrors "parts-tracker/pkg/errors"
)

// SniffLen is how many leading bytes ValidateUpload inspects.
const SniffLen = 512

var signatures = map[string][][]byte{
	"pdf":  {[]byte("%PDF-")},
	"step": {[]byte("ISO-10303-21")},
	"stp":  {[]byte("ISO-10303-21")},
}

// ValidateUpload checks the extension, size and leading bytes of an upload
// against the configured rules. head holds up to SniffLen bytes of the file.
func ValidateUpload(filename string, size int64, head []byte, rules config.UploadConfig) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" || !rules.IsAllowed(ext) {
		return fmt.Errorf("%q (allowed: %s): %w", filename, strings.Join(rules.AllowedExtensions, ", "), apperrors.ErrUnsupportedFileType)
	}
	if size == 0 {
		return apperrors.NewFieldError("file", "file is empty")
	}
	if limit := rules.MaxFileSizeBytes(); limit > 0 && size > limit {
		return fmt.Errorf("%.2f MB exceeds the %d MB limit: %w", float64(size)/1024/1024, rules.MaxFileSizeMB, apperrors.ErrFileTooLarge)
	}

	sigs, known := signatures[ext]
	if !known {
		return nil
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")), " \t\r\n")
	for _, sig := range sigs {
		if bytes.HasPrefix(trimmed, sig) {
			return nil
		}
	}
	return fmt.Errorf("content of %q does not look like a .%s file: %w", filename, ext, apperrors.ErrUnsupportedFileType)
}
