package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/entities"
	"parts-tracker/internal/events"
	"parts-tracker/internal/workflow"
	apperrors "parts-tracker/pkg/errors"
	"parts-tracker/pkg/filestorage"
	"parts-tracker/pkg/types"
	"parts-tracker/pkg/utils"
)

type PartServiceInterface interface {
	ListParts(ctx context.Context, filter types.PartFilter) ([]entities.Part, types.Pagination, error)
	GetPart(ctx context.Context, id int64) (*entities.Part, error)
	CreatePart(ctx context.Context, payload dto.CreatePartDTO) (*entities.Part, error)
	UpdatePart(ctx context.Context, id int64, payload dto.UpdatePartDTO) (*entities.Part, error)
	DeletePart(ctx context.Context, id int64) error
	WipeParts(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*entities.PartStats, error)
	Leaderboard(ctx context.Context, limit int) ([]entities.LeaderboardEntry, error)
}

const defaultLeaderboardLimit = 10

type PartService struct {
	*BaseService
	storage  filestorage.FileStorageInterface
	statsTTL time.Duration
}

func NewPartService(base *BaseService, storage filestorage.FileStorageInterface, statsTTL time.Duration) *PartService {
	return &PartService{BaseService: base, storage: storage, statsTTL: statsTTL}
}

func (s *PartService) ListParts(ctx context.Context, filter types.PartFilter) ([]entities.Part, types.Pagination, error) {
	if filter.Category != "" && !entities.Category(filter.Category).Valid() {
		return nil, types.Pagination{}, apperrors.NewFieldError("category", "unknown category %q", filter.Category)
	}
	if filter.Limit <= 0 {
		filter.Limit = types.DefaultLimit
	}
	filter.Limit = min(filter.Limit, types.MaxLimit)
	filter.Offset = max(filter.Offset, 0)

	parts, total, err := s.partRepo.List(ctx, filter)
	if err != nil {
		return nil, types.Pagination{}, err
	}
	return parts, types.Pagination{TotalCount: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (s *PartService) GetPart(ctx context.Context, id int64) (*entities.Part, error) {
	return s.partRepo.FindByID(ctx, nil, id, false)
}

func (s *PartService) CreatePart(ctx context.Context, payload dto.CreatePartDTO) (*entities.Part, error) {
	now := s.now()
	part := entities.Part{
		PartID:            strings.TrimSpace(payload.PartID),
		Type:              entities.PartType(strings.ToLower(payload.Type)),
		Name:              strings.TrimSpace(payload.Name),
		Subsystem:         strings.TrimSpace(payload.Subsystem),
		Material:          strings.TrimSpace(payload.Material),
		MaterialThickness: trimmedOrNil(payload.MaterialThickness),
		Amount:            1,
		Notes:             payload.Notes,
		OnshapeURL:        trimmedOrNil(payload.OnshapeURL),
		Category:          workflow.InitialCategory,
		Status:            workflow.InitialStatus,
		ConversionStatus:  entities.ConversionNone,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if payload.Amount != nil {
		part.Amount = *payload.Amount
	}
	if err := validateDescriptive(part); err != nil {
		return nil, err
	}
	if err := workflow.Validate(part); err != nil {
		return nil, err
	}

	id, err := s.partRepo.Create(ctx, nil, part)
	if err != nil {
		return nil, err
	}
	part.ID = id

	s.logger.Info("part created", zap.Int64("id", id), zap.String("partId", part.PartID))
	s.publish(ctx, events.PartChangedEvent{Action: events.ActionCreated, ID: id, Part: &part})
	return &part, nil
}

// UpdatePart edits descriptive fields. Category, status and assignment only
// change through workflow operations.
func (s *PartService) UpdatePart(ctx context.Context, id int64, payload dto.UpdatePartDTO) (*entities.Part, error) {
	return s.mutatePart(ctx, id, events.ActionUpdated, func(tx *sql.Tx, p entities.Part, now time.Time) (entities.Part, bool, error) {
		next := p.Clone()
		if payload.Name != nil {
			next.Name = strings.TrimSpace(*payload.Name)
		}
		if payload.Subsystem != nil {
			next.Subsystem = strings.TrimSpace(*payload.Subsystem)
		}
		if payload.Material != nil {
			next.Material = strings.TrimSpace(*payload.Material)
		}
		if payload.MaterialThickness != nil {
			next.MaterialThickness = trimmedOrNil(payload.MaterialThickness)
		}
		if payload.Amount != nil {
			next.Amount = *payload.Amount
		}
		if payload.Notes != nil {
			next.Notes = *payload.Notes
		}
		if payload.OnshapeURL != nil {
			next.OnshapeURL = trimmedOrNil(payload.OnshapeURL)
		}
		if err := validateDescriptive(next); err != nil {
			return p, false, err
		}
		if next.CompletedAmount != nil && *next.CompletedAmount > next.Amount {
			return p, false, apperrors.NewFieldError("amount", "amount cannot be below the completed amount %d", *next.CompletedAmount)
		}

		changed := next.Name != p.Name || next.Subsystem != p.Subsystem || next.Material != p.Material ||
			utils.DiffPtr(next.MaterialThickness, p.MaterialThickness) || next.Amount != p.Amount ||
			next.Notes != p.Notes || utils.DiffPtr(next.OnshapeURL, p.OnshapeURL)
		if !changed {
			return p, false, nil
		}
		return next, true, nil
	})
}

// DeletePart removes the record, then its stored files. A failed blob
// delete is logged and leaves an orphan rather than failing the request.
func (s *PartService) DeletePart(ctx context.Context, id int64) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	var keys []string
	err := s.txManager.RunInTransaction(ctx, func(tx *sql.Tx) error {
		part, err := s.partRepo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		keys = storedKeys(*part)
		return s.partRepo.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	s.removeBlobs(ctx, keys)
	s.logger.Info("part deleted", zap.Int64("id", id))
	s.publish(ctx, events.PartChangedEvent{Action: events.ActionDeleted, ID: id})
	return nil
}

// WipeParts deletes every part and every stored file. Authorization of the
// wipe key happens before this is called.
func (s *PartService) WipeParts(ctx context.Context) (int64, error) {
	var (
		keys    []string
		deleted int64
	)
	err := s.txManager.RunInTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		if keys, err = s.partRepo.StoredFiles(ctx, tx); err != nil {
			return err
		}
		deleted, err = s.partRepo.DeleteAll(ctx, tx)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.removeBlobs(ctx, keys)
	s.logger.Warn("all parts wiped", zap.Int64("deleted", deleted))
	s.publish(ctx, events.PartChangedEvent{Action: events.ActionWiped})
	return deleted, nil
}

func (s *PartService) Stats(ctx context.Context) (*entities.PartStats, error) {
	var cached entities.PartStats
	if s.CacheGet(ctx, StatsCacheKey, &cached) {
		return &cached, nil
	}
	stats, err := s.partRepo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	s.CacheSet(ctx, StatsCacheKey, stats, s.statsTTL)
	return stats, nil
}

// Leaderboard caches only the default sized board.
func (s *PartService) Leaderboard(ctx context.Context, limit int) ([]entities.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	limit = min(limit, types.MaxLimit)
	cacheable := limit == defaultLeaderboardLimit

	var cached []entities.LeaderboardEntry
	if cacheable && s.CacheGet(ctx, LeaderboardCacheKey, &cached) {
		return cached, nil
	}
	board, err := s.partRepo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.CacheSet(ctx, LeaderboardCacheKey, board, s.statsTTL)
	}
	return board, nil
}

func (s *PartService) removeBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn("stored file not removed", zap.String("key", key), zap.Error(err))
		}
	}
}

func validateDescriptive(p entities.Part) error {
	switch {
	case p.PartID == "":
		return apperrors.NewFieldError("partId", "part id is required")
	case p.Subsystem == "":
		return apperrors.NewFieldError("subsystem", "subsystem is required")
	case p.Material == "":
		return apperrors.NewFieldError("material", "material is required")
	case p.Amount < 0:
		return apperrors.NewFieldError("amount", "amount must not be negative")
	}
	return nil
}

func storedKeys(p entities.Part) []string {
	var keys []string
	if p.FilePath != nil {
		keys = append(keys, *p.FilePath)
	}
	if p.ModelPath != nil {
		keys = append(keys, *p.ModelPath)
	}
	return keys
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
