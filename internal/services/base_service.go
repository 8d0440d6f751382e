package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parts-tracker/internal/entities"
	"parts-tracker/internal/events"
	"parts-tracker/internal/repositories"
	"parts-tracker/internal/workflow"
	"parts-tracker/pkg/eventbus"
	"parts-tracker/pkg/keylock"
)

// Cache keys for derived read models. Listeners drop them on every change.
const (
	StatsCacheKey       = "parts:stats"
	LeaderboardCacheKey = "parts:leaderboard"
)

// PartMutation edits a freshly locked copy of a part inside a transaction.
// Returning changed=false skips the write and the change event.
type PartMutation func(tx *sql.Tx, p entities.Part, now time.Time) (next entities.Part, changed bool, err error)

// BaseService holds what every part service needs to read, mutate and
// announce parts.
type BaseService struct {
	partRepo  repositories.PartRepositoryInterface
	txManager repositories.TxManagerInterface
	locks     *keylock.KeyLock
	bus       *eventbus.Bus
	cache     repositories.CacheRepositoryInterface
	logger    *zap.Logger
	now       func() time.Time
}

func NewBaseService(
	partRepo repositories.PartRepositoryInterface,
	txManager repositories.TxManagerInterface,
	locks *keylock.KeyLock,
	bus *eventbus.Bus,
	cache repositories.CacheRepositoryInterface,
	logger *zap.Logger,
) *BaseService {
	if cache == nil {
		cache = repositories.NewNoopCacheRepository()
	}
	return &BaseService{
		partRepo:  partRepo,
		txManager: txManager,
		locks:     locks,
		bus:       bus,
		cache:     cache,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source; tests use it to pin timestamps.
func (s *BaseService) SetClock(now func() time.Time) {
	s.now = now
}

// mutatePart serializes writers of one part with the per-part lock, then
// reads, mutates and writes it in a single transaction. The lock is always
// taken before the transaction starts.
func (s *BaseService) mutatePart(ctx context.Context, id int64, action string, fn PartMutation) (*entities.Part, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var (
		result  entities.Part
		changed bool
	)
	err := s.txManager.RunInTransaction(ctx, func(tx *sql.Tx) error {
		current, err := s.partRepo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		now := s.now()
		next, ok, err := fn(tx, *current, now)
		if err != nil {
			return err
		}
		if !ok {
			result = *current
			return nil
		}
		if err := workflow.Validate(next); err != nil {
			return fmt.Errorf("%s produced an invalid part: %w", action, err)
		}
		next.UpdatedAt = now
		if err := s.partRepo.Update(ctx, tx, next); err != nil {
			return err
		}
		result, changed = next, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("part changed", zap.Int64("id", id), zap.String("action", action))
		s.publish(ctx, events.PartChangedEvent{Action: action, ID: id, Part: &result})
	}
	return &result, nil
}

func (s *BaseService) publish(ctx context.Context, event events.PartChangedEvent) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}

// CacheGet decodes a cached JSON value into dest. Misses and decode errors return false.
func (s *BaseService) CacheGet(ctx context.Context, key string, dest interface{}) bool {
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(cached), dest); err != nil {
		s.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *BaseService) CacheSet(ctx context.Context, key string, data interface{}, ttl time.Duration) {
	serialized, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, serialized, ttl); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
