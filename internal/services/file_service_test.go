package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parts-tracker/internal/entities"
	"parts-tracker/pkg/config"
	"parts-tracker/pkg/converter"
	apperrors "parts-tracker/pkg/errors"
)

const stepSource = "ISO-10303-21;\nHEADER;\nFILE_NAME('bracket.step');\nENDSEC;\nEND-ISO-10303-21;\n"

func pdfReader() io.Reader {
	return strings.NewReader("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n%%EOF\n")
}

func stepReader() io.Reader {
	return strings.NewReader(stepSource)
}

// writeModel is a converter that copies the input and tags it.
var writeModel = converter.Func(func(ctx context.Context, stepPath, outPath string) error {
	in, err := os.ReadFile(stepPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, append([]byte("glb:"), in[:12]...), 0o644)
})

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// countFiles counts stored blobs below prefix/<id>.
func (f *fixture) countFiles(t *testing.T, prefix string, id int64) int {
	t.Helper()
	root := filepath.Join(f.storeDir, filepath.FromSlash(prefix), strconv.FormatInt(id, 10))
	n := 0
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestUpload_SyncConversion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	files := f.fileService(writeModel, config.ConversionModeSync)
	part := f.create(t, "F-1", entities.PartTypeCNC)

	updated, err := files.Upload(ctx, part.ID, stepReader(), "Bracket.STEP", int64(len(stepSource)))
	require.NoError(t, err)
	assert.Equal(t, "Bracket.STEP", *updated.File)
	assert.Equal(t, entities.ConversionReady, updated.ConversionStatus)
	require.NotNil(t, updated.ModelPath)
	assert.True(t, strings.HasPrefix(*updated.ModelPath, "parts/model/"))
	assert.True(t, strings.HasPrefix(*updated.FilePath, "parts/source/"))

	model, err := files.OpenDerived(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bracket.glb", model.Name)
	assert.Equal(t, "model/gltf-binary", model.ContentType)
	assert.Equal(t, "glb:ISO-10303-21", readAll(t, model))

	original, err := files.OpenOriginal(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, stepSource, readAll(t, original))

	// Re-upload as PDF drops the model and the old source.
	updated, err = files.Upload(ctx, part.ID, pdfReader(), "drawing.pdf", -1)
	require.NoError(t, err)
	assert.Equal(t, entities.ConversionNone, updated.ConversionStatus)
	assert.Nil(t, updated.ModelPath)
	assert.Equal(t, 1, f.countFiles(t, testUploadConfig.PathPrefix, part.ID))
	assert.Equal(t, 0, f.countFiles(t, testUploadConfig.ModelPathPrefix, part.ID))

	_, err = files.OpenDerived(ctx, part.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpload_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	files := f.fileService(writeModel, config.ConversionModeSync)
	part := f.create(t, "F-2", entities.PartTypeCNC)

	_, err := files.Upload(ctx, part.ID, strings.NewReader("hello"), "notes.txt", 5)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFileType)

	_, err = files.Upload(ctx, part.ID, strings.NewReader("not a pdf at all"), "fake.pdf", 16)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFileType)

	_, err = files.Upload(ctx, part.ID, stepReader(), "big.step", testUploadConfig.MaxFileSizeBytes()+1)
	assert.ErrorIs(t, err, apperrors.ErrFileTooLarge)

	// The declared size is not trusted.
	oversized := io.MultiReader(stepReader(), bytes.NewReader(make([]byte, testUploadConfig.MaxFileSizeBytes())))
	_, err = files.Upload(ctx, part.ID, oversized, "liar.step", 100)
	assert.ErrorIs(t, err, apperrors.ErrFileTooLarge)
	assert.Equal(t, 0, f.countFiles(t, testUploadConfig.PathPrefix, part.ID))

	_, err = files.Upload(ctx, 999, pdfReader(), "x.pdf", -1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = files.OpenOriginal(ctx, part.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpload_RejectedReplacementKeepsFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	files := f.fileService(writeModel, config.ConversionModeSync)
	part := f.create(t, "F-3", entities.PartTypeCNC)

	before, err := files.Upload(ctx, part.ID, stepReader(), "bracket.step", int64(len(stepSource)))
	require.NoError(t, err)

	_, err = files.Upload(ctx, part.ID, strings.NewReader("MZ\x90\x00"), "bracket.exe", 4)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFileType)

	after, err := f.parts.GetPart(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, "bracket.step", *after.File)
	assert.Equal(t, *before.FilePath, *after.FilePath)
	assert.Equal(t, *before.ModelPath, *after.ModelPath)
	assert.Equal(t, entities.ConversionReady, after.ConversionStatus)
	assert.Equal(t, 1, f.countFiles(t, testUploadConfig.PathPrefix, part.ID))

	original, err := files.OpenOriginal(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, stepSource, readAll(t, original))
}

func TestConversionFailureAndRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var broken atomic.Bool
	broken.Store(true)
	conv := converter.Func(func(ctx context.Context, stepPath, outPath string) error {
		if broken.Load() {
			return errors.New("converter exited with status 1: bad geometry")
		}
		return writeModel(ctx, stepPath, outPath)
	})
	files := f.fileService(conv, config.ConversionModeSync)
	part := f.create(t, "F-3", entities.PartTypeHand)

	updated, err := files.Upload(ctx, part.ID, stepReader(), "gear.stp", -1)
	require.NoError(t, err)
	assert.Equal(t, entities.ConversionFailed, updated.ConversionStatus)
	require.NotNil(t, updated.ConversionError)
	assert.Contains(t, *updated.ConversionError, "bad geometry")

	_, err = files.OpenDerived(ctx, part.ID)
	assert.ErrorIs(t, err, apperrors.ErrConversionFailed)
	assert.Contains(t, err.Error(), "bad geometry")

	broken.Store(false)
	updated, err = files.RetryConversion(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ConversionReady, updated.ConversionStatus)
	assert.Nil(t, updated.ConversionError)

	_, err = files.RetryConversion(ctx, part.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestConversionWithoutConverter(t *testing.T) {
	f := newFixture(t)
	files := f.fileService(nil, config.ConversionModeSync)
	part := f.create(t, "F-4", entities.PartTypeCNC)

	updated, err := files.Upload(context.Background(), part.ID, stepReader(), "a.step", -1)
	require.NoError(t, err)
	assert.Equal(t, entities.ConversionFailed, updated.ConversionStatus)
	assert.Equal(t, converter.ErrNotConfigured.Error(), *updated.ConversionError)
}

func TestAsyncConversion_DiscardsStaleResult(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	var calls atomic.Int32
	conv := converter.Func(func(ctx context.Context, stepPath, outPath string) error {
		if calls.Add(1) == 1 {
			<-release
		}
		return writeModel(ctx, stepPath, outPath)
	})
	files := f.fileService(conv, config.ConversionModeAsync)
	done := make(chan error, 1)
	go func() { done <- files.Run(ctx) }()

	part := f.create(t, "F-5", entities.PartTypeCNC)
	first, err := files.Upload(ctx, part.ID, stepReader(), "v1.step", -1)
	require.NoError(t, err)
	assert.Equal(t, entities.ConversionPending, first.ConversionStatus)

	_, err = files.OpenDerived(ctx, part.ID)
	assert.ErrorIs(t, err, apperrors.ErrConversionPending)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	second, err := files.Upload(ctx, part.ID, stepReader(), "v2.step", -1)
	require.NoError(t, err)
	close(release)

	require.Eventually(t, func() bool {
		p, err := f.parts.GetPart(ctx, part.ID)
		return err == nil && p.ConversionStatus == entities.ConversionReady
	}, 5*time.Second, 20*time.Millisecond)

	final, err := f.parts.GetPart(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, *second.FilePath, *final.FilePath)
	assert.Equal(t, "v2.step", *final.File)
	require.Eventually(t, func() bool {
		return f.countFiles(t, testUploadConfig.ModelPathPrefix, part.ID) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestAsyncRun_RequeuesPending(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Upload with a worker that is never started, as if the process died.
	stopped := f.fileService(writeModel, config.ConversionModeAsync)
	part := f.create(t, "F-6", entities.PartTypeCNC)
	_, err := stopped.Upload(ctx, part.ID, stepReader(), "a.step", -1)
	require.NoError(t, err)

	files := f.fileService(writeModel, config.ConversionModeAsync)
	go func() { _ = files.Run(ctx) }()

	require.Eventually(t, func() bool {
		p, err := f.parts.GetPart(ctx, part.ID)
		return err == nil && p.ConversionStatus == entities.ConversionReady
	}, 5*time.Second, 20*time.Millisecond)
}
