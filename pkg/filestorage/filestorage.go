package filestorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("stored file not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// FileStorageInterface stores opaque blobs under slash separated keys.
// Keys returned by Save are the only handles callers keep.
type FileStorageInterface interface {
	Save(ctx context.Context, file io.Reader, originalFileName string, prefix string) (key string, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// newKey builds prefix/yyyy/mm/dd/yyyy-mm-dd-<uuid><ext>.
func newKey(prefix, originalFileName string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalFileName))
	name := fmt.Sprintf("%s-%s%s", now.Format("2006-01-02"), uuid.New().String(), ext)
	return path.Join(strings.Trim(prefix, "/"), now.Format("2006/01/02"), name)
}

// cleanKey rejects absolute keys and keys that climb out of the storage root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(filepath.ToSlash(key), "/uploads/")
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
