package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"parts-tracker/internal/entities"
	"parts-tracker/internal/events"
	"parts-tracker/pkg/config"
	"parts-tracker/pkg/converter"
	apperrors "parts-tracker/pkg/errors"
	"parts-tracker/pkg/filestorage"
	"parts-tracker/pkg/validation"
)

const (
	conversionQueueSize  = 256
	persistResultTimeout = 10 * time.Second
	modelFileName        = "model.glb"
)

type PartFileServiceInterface interface {
	Upload(ctx context.Context, id int64, file io.Reader, filename string, size int64) (*entities.Part, error)
	OpenOriginal(ctx context.Context, id int64) (*StoredFile, error)
	OpenDerived(ctx context.Context, id int64) (*StoredFile, error)
	RetryConversion(ctx context.Context, id int64) (*entities.Part, error)
}

// StoredFile is an open blob plus what a handler needs to serve it.
type StoredFile struct {
	io.ReadCloser
	Name        string
	ContentType string
}

// PartFileService owns the source file of each part and its derived model.
type PartFileService struct {
	*BaseService
	storage   filestorage.FileStorageInterface
	converter converter.Converter
	upload    config.UploadConfig
	conv      config.ConversionConfig
	worker    *ConversionWorker
}

// NewPartFileService accepts a nil converter; conversions then fail with a
// recorded error instead of staying pending.
func NewPartFileService(
	base *BaseService,
	storage filestorage.FileStorageInterface,
	conv converter.Converter,
	upload config.UploadConfig,
	convCfg config.ConversionConfig,
) *PartFileService {
	s := &PartFileService{
		BaseService: base,
		storage:     storage,
		converter:   conv,
		upload:      upload,
		conv:        convCfg,
	}
	if convCfg.Mode != config.ConversionModeSync {
		s.worker = NewConversionWorker(convCfg.Workers, conversionQueueSize, s.convert, base.logger)
	}
	return s
}

// Run starts the background worker and requeues conversions left pending by
// a previous process. It returns immediately in sync mode.
func (s *PartFileService) Run(ctx context.Context) error {
	if s.worker == nil {
		return nil
	}
	pending, err := s.partRepo.ListByConversionStatus(ctx, entities.ConversionPending)
	if err != nil {
		s.logger.Error("PartFileService: pending conversions not loaded", zap.Error(err))
	}
	for _, p := range pending {
		if p.FilePath != nil {
			s.schedule(ctx, p.ID, *p.FilePath)
		}
	}
	return s.worker.Run(ctx)
}

func (s *PartFileService) Upload(ctx context.Context, id int64, file io.Reader, filename string, size int64) (*entities.Part, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	head := make([]byte, validation.SniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if size < 0 {
		size = int64(n)
	}
	if err := validation.ValidateUpload(filename, size, head, s.upload); err != nil {
		return nil, err
	}
	if _, err := s.partRepo.FindByID(ctx, nil, id, false); err != nil {
		return nil, err
	}

	// The declared size can lie; cap what is actually stored.
	limit := s.upload.MaxFileSizeBytes()
	counted := &countingReader{r: io.MultiReader(bytes.NewReader(head), file)}
	reader := io.Reader(counted)
	if limit > 0 {
		reader = io.LimitReader(counted, limit+1)
	}
	key, err := s.storage.Save(ctx, reader, filename, s.sourcePrefix(id))
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if limit > 0 && counted.n > limit {
		s.deleteBlob(ctx, key)
		return nil, fmt.Errorf("%s: %w", filename, apperrors.ErrFileTooLarge)
	}

	convertible := s.upload.IsConvertible(filepath.Ext(filename))
	var oldKeys []string
	part, err := s.mutatePart(ctx, id, events.ActionFile, func(_ *sql.Tx, p entities.Part, now time.Time) (entities.Part, bool, error) {
		oldKeys = storedKeys(p)
		next := p.Clone()
		next.File = &filename
		next.FilePath = &key
		next.ModelPath = nil
		next.ConversionError = nil
		next.ConversionStatus = entities.ConversionNone
		if convertible {
			next.ConversionStatus = entities.ConversionPending
		}
		return next, true, nil
	})
	if err != nil {
		s.deleteBlob(ctx, key)
		return nil, err
	}
	for _, old := range oldKeys {
		s.deleteBlob(ctx, old)
	}
	s.logger.Info("file uploaded", zap.Int64("id", id), zap.String("file", filename), zap.Int64("bytes", counted.n))

	if !convertible {
		return part, nil
	}
	return s.startConversion(ctx, part)
}

// RetryConversion re-runs a failed conversion of the current source file.
func (s *PartFileService) RetryConversion(ctx context.Context, id int64) (*entities.Part, error) {
	part, err := s.mutatePart(ctx, id, events.ActionConversion, func(_ *sql.Tx, p entities.Part, now time.Time) (entities.Part, bool, error) {
		if p.FilePath == nil || p.File == nil {
			return p, false, fmt.Errorf("part has no file: %w", apperrors.ErrNotFound)
		}
		if !s.upload.IsConvertible(filepath.Ext(*p.File)) {
			return p, false, fmt.Errorf("%s has no 3D model: %w", *p.File, apperrors.ErrUnsupportedFileType)
		}
		switch p.ConversionStatus {
		case entities.ConversionPending:
			return p, false, nil
		case entities.ConversionReady:
			return p, false, fmt.Errorf("model is already available: %w", apperrors.ErrInvalidState)
		}
		next := p.Clone()
		next.ConversionStatus = entities.ConversionPending
		next.ConversionError = nil
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	return s.startConversion(ctx, part)
}

func (s *PartFileService) startConversion(ctx context.Context, part *entities.Part) (*entities.Part, error) {
	if part.ConversionStatus != entities.ConversionPending || part.FilePath == nil {
		return part, nil
	}
	if s.worker != nil {
		s.schedule(ctx, part.ID, *part.FilePath)
		return part, nil
	}
	s.convert(ctx, conversionJob{PartID: part.ID, SourceKey: *part.FilePath})
	return s.partRepo.FindByID(ctx, nil, part.ID, false)
}

func (s *PartFileService) schedule(ctx context.Context, id int64, sourceKey string) {
	job := conversionJob{PartID: id, SourceKey: sourceKey}
	if err := s.worker.Enqueue(job); err != nil {
		s.recordFailure(ctx, job, err)
	}
}

// convert produces the model for job and records the outcome. Results for a
// source that was replaced meanwhile are discarded.
func (s *PartFileService) convert(ctx context.Context, job conversionJob) {
	logger := s.logger.With(zap.Int64("id", job.PartID), zap.String("source", job.SourceKey))

	if s.converter == nil {
		s.recordFailure(ctx, job, converter.ErrNotConfigured)
		return
	}

	runCtx := ctx
	if s.conv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.conv.Timeout)
		defer cancel()
	}

	modelKey, err := s.runConverter(runCtx, job)
	if err != nil {
		logger.Warn("conversion failed", zap.Error(err))
		s.recordFailure(ctx, job, err)
		return
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistResultTimeout)
	defer cancel()
	stale := false
	_, err = s.mutatePart(persistCtx, job.PartID, events.ActionConversion, func(_ *sql.Tx, p entities.Part, now time.Time) (entities.Part, bool, error) {
		if p.FilePath == nil || *p.FilePath != job.SourceKey {
			stale = true
			return p, false, nil
		}
		next := p.Clone()
		next.ModelPath = &modelKey
		next.ConversionStatus = entities.ConversionReady
		next.ConversionError = nil
		return next, true, nil
	})
	if err != nil || stale {
		s.deleteBlob(persistCtx, modelKey)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			logger.Error("conversion result not saved", zap.Error(err))
		}
		return
	}
	logger.Info("conversion finished", zap.String("model", modelKey))
}

func (s *PartFileService) runConverter(ctx context.Context, job conversionJob) (string, error) {
	dir, err := os.MkdirTemp("", "parts-convert-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "source"+strings.ToLower(path.Ext(job.SourceKey)))
	if err := s.copyBlobTo(ctx, job.SourceKey, inPath); err != nil {
		return "", err
	}
	outPath := filepath.Join(dir, modelFileName)
	if err := s.converter.ConvertStepToGLTF(ctx, inPath, outPath); err != nil {
		return "", err
	}

	out, err := os.Open(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	return s.storage.Save(ctx, out, modelFileName, s.modelPrefix(job.PartID))
}

func (s *PartFileService) copyBlobTo(ctx context.Context, key, dst string) error {
	src, err := s.storage.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *PartFileService) recordFailure(ctx context.Context, job conversionJob, cause error) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistResultTimeout)
	defer cancel()

	msg := cause.Error()
	_, err := s.mutatePart(persistCtx, job.PartID, events.ActionConversion, func(_ *sql.Tx, p entities.Part, now time.Time) (entities.Part, bool, error) {
		if p.FilePath == nil || *p.FilePath != job.SourceKey || p.ConversionStatus != entities.ConversionPending {
			return p, false, nil
		}
		next := p.Clone()
		next.ConversionStatus = entities.ConversionFailed
		next.ConversionError = &msg
		return next, true, nil
	})
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Error("conversion failure not recorded", zap.Int64("id", job.PartID), zap.Error(err))
	}
}

func (s *PartFileService) OpenOriginal(ctx context.Context, id int64) (*StoredFile, error) {
	part, err := s.partRepo.FindByID(ctx, nil, id, false)
	if err != nil {
		return nil, err
	}
	if part.FilePath == nil {
		return nil, fmt.Errorf("part %d has no file: %w", id, apperrors.ErrNotFound)
	}
	rc, err := s.openBlob(ctx, *part.FilePath)
	if err != nil {
		return nil, err
	}
	name := path.Base(*part.FilePath)
	if part.File != nil {
		name = *part.File
	}
	return &StoredFile{ReadCloser: rc, Name: name, ContentType: contentTypeFor(name)}, nil
}

func (s *PartFileService) OpenDerived(ctx context.Context, id int64) (*StoredFile, error) {
	part, err := s.partRepo.FindByID(ctx, nil, id, false)
	if err != nil {
		return nil, err
	}
	switch part.ConversionStatus {
	case entities.ConversionPending:
		return nil, apperrors.ErrConversionPending
	case entities.ConversionFailed:
		reason := "unknown error"
		if part.ConversionError != nil {
			reason = *part.ConversionError
		}
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConversionFailed, reason)
	}
	if part.ModelPath == nil {
		return nil, fmt.Errorf("part %d has no model: %w", id, apperrors.ErrNotFound)
	}
	rc, err := s.openBlob(ctx, *part.ModelPath)
	if err != nil {
		return nil, err
	}
	name := modelFileName
	if part.File != nil {
		name = strings.TrimSuffix(*part.File, filepath.Ext(*part.File)) + ".glb"
	}
	return &StoredFile{ReadCloser: rc, Name: name, ContentType: contentTypeFor(name)}, nil
}

func (s *PartFileService) openBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.storage.Open(ctx, key)
	if errors.Is(err, filestorage.ErrNotFound) {
		return nil, fmt.Errorf("stored file %s: %w", key, apperrors.ErrNotFound)
	}
	return rc, err
}

func (s *PartFileService) deleteBlob(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn("stored file not removed", zap.String("key", key), zap.Error(err))
	}
}

func (s *PartFileService) sourcePrefix(id int64) string {
	return path.Join(s.upload.PathPrefix, strconv.FormatInt(id, 10))
}

func (s *PartFileService) modelPrefix(id int64) string {
	return path.Join(s.upload.ModelPathPrefix, strconv.FormatInt(id, 10))
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".step", ".stp":
		return "model/step"
	case ".glb":
		return "model/gltf-binary"
	case ".gltf":
		return "model/gltf+json"
	}
	return "application/octet-stream"
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
