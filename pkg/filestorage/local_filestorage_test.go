package filestorage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileStorage_SaveOpenDelete(t *testing.T) {
	s, err := NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	key, err := s.Save(ctx, strings.NewReader("solid body"), "Bracket.STEP", "parts/source")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "parts/source/2026/04/09/2026-04-09-"), key)
	assert.True(t, strings.HasSuffix(key, ".step"), key)

	rc, err := s.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "solid body", string(data))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))

	_, err = s.Open(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "parts/source/a.step", want: "parts/source/a.step"},
		{key: "/uploads/parts/a.step", want: "parts/a.step"},
		{key: "parts/../parts/a.step", want: "parts/a.step"},
		{key: "../etc/passwd", wantErr: true},
		{key: "/etc/passwd", wantErr: true},
		{key: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := cleanKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
