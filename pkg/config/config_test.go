package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears keys for the test and restores them afterwards.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"SERVER_PORT": "9000",
		"MAX_FILE_SIZE_MB": 25,
		"ALLOWED_EXTENSIONS": ["STEP", ".stp"],
		"WIPE_KEY": "from-file"
	}`), 0o644))

	t.Setenv("SERVER_PORT", "9100")
	unsetEnv(t, "WIPE_KEY", "MAX_FILE_SIZE_MB", "ALLOWED_EXTENSIONS", "AUTH_CHECK_COOLDOWN")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port, "env wins over file")
	assert.Equal(t, "from-file", cfg.Auth.WipeKey, "file wins over default")
	assert.Equal(t, int64(25), cfg.Upload.MaxFileSizeMB)
	assert.Equal(t, []string{"step", "stp"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, 2*time.Second, cfg.Auth.CheckCooldown, "default")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	unsetEnv(t, "ALLOWED_EXTENSIONS", "MAX_FILE_SIZE_MB")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, []string{"step", "stp", "pdf"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxFileSizeBytes())
	assert.True(t, cfg.Upload.IsAllowed(".STEP"))
	assert.False(t, cfg.Upload.IsAllowed("exe"))
	assert.True(t, cfg.Upload.IsConvertible("stp"))
	assert.False(t, cfg.Upload.IsConvertible("pdf"))
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not: [valid"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSource_ListFromEnv(t *testing.T) {
	t.Setenv("CORS_ORIGINS", `["https://a.example", "https://b.example"]`)
	s := source{file: map[string]string{}}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, s.getList("CORS_ORIGINS", nil))

	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, s.getList("CORS_ORIGINS", nil))
}

func TestSource_DurationForms(t *testing.T) {
	s := source{file: map[string]string{"A": "90s", "B": "30", "C": "junk"}}
	unsetEnv(t, "A", "B", "C")
	assert.Equal(t, 90*time.Second, s.getDuration("A", 0))
	assert.Equal(t, 30*time.Second, s.getDuration("B", 0))
	assert.Equal(t, time.Minute, s.getDuration("C", time.Minute))
}
