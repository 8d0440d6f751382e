package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	log := NewLogger("warn", File{Path: path})

	log.Info("hidden")
	log.Warn("upload rejected", zap.String("file", "bracket.exe"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "upload rejected")
	assert.Contains(t, string(data), "bracket.exe")
}

func TestNewLogger_RotatesAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	log := NewLogger("info", File{Path: path, MaxSizeMB: 1})

	line := strings.Repeat("x", 4<<10)
	for i := 0; i < 400; i++ {
		log.Info(line)
	}
	_ = log.Sync()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(1<<20))

	backups, err := filepath.Glob(filepath.Join(dir, "app-*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, backups)
}

func TestFileWriter_Defaults(t *testing.T) {
	assert.Nil(t, fileWriter(File{}))

	w := fileWriter(File{Path: filepath.Join(t.TempDir(), "app.log")})
	require.NotNil(t, w)
	assert.Equal(t, DefaultMaxSizeMB, w.MaxSize)
	assert.Equal(t, 1, w.MaxBackups)
}
