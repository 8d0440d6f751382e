package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/entities"
	"parts-tracker/internal/events"
	"parts-tracker/internal/repositories"
	apperrors "parts-tracker/pkg/errors"
	"parts-tracker/pkg/types"
	"parts-tracker/pkg/utils"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryCache() *memoryCache { return &memoryCache{data: map[string]string{}} }

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", repositories.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestCreatePart_Defaults(t *testing.T) {
	f := newFixture(t)
	thickness := "  0.25in "
	part, err := f.parts.CreatePart(context.Background(), dto.CreatePartDTO{
		PartID:            " DT-101 ",
		Type:              "CNC",
		Subsystem:         "Drivetrain",
		Material:          "Aluminum",
		MaterialThickness: &thickness,
	})
	require.NoError(t, err)

	assert.Equal(t, "DT-101", part.PartID)
	assert.Equal(t, entities.PartTypeCNC, part.Type)
	assert.Equal(t, 1, part.Amount)
	assert.Equal(t, entities.CategoryReview, part.Category)
	assert.Equal(t, entities.StatusPending, part.Status)
	assert.Equal(t, entities.ConversionNone, part.ConversionStatus)
	assert.Equal(t, "0.25in", utils.SafeDeref(part.MaterialThickness))
	assert.Equal(t, fixedNow, part.CreatedAt)
	assert.Equal(t, "DT-101", part.DisplayName())

	stored, err := f.parts.GetPart(context.Background(), part.ID)
	require.NoError(t, err)
	assert.Equal(t, part.PartID, stored.PartID)

	_, err = f.parts.CreatePart(context.Background(), dto.CreatePartDTO{PartID: "DT-101", Type: "cnc", Subsystem: "x", Material: "y"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicatePartID)

	f.bus.Wait()
	assert.Equal(t, []string{events.ActionCreated}, f.events.actions())
}

func TestUpdatePart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	part := f.create(t, "U-1", entities.PartTypeMisc)

	name := "Part U-1"
	same, err := f.parts.UpdatePart(ctx, part.ID, dto.UpdatePartDTO{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, same.Name)

	amount := 4
	empty := ""
	updated, err := f.parts.UpdatePart(ctx, part.ID, dto.UpdatePartDTO{Amount: &amount, OnshapeURL: &empty})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Amount)
	assert.Nil(t, updated.OnshapeURL)

	_, err = f.workflow.Approve(ctx, part.ID, "misc")
	require.NoError(t, err)
	three := 3
	_, err = f.workflow.Complete(ctx, part.ID, &three)
	require.NoError(t, err)

	two := 2
	_, err = f.parts.UpdatePart(ctx, part.ID, dto.UpdatePartDTO{Amount: &two})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	blank := "  "
	_, err = f.parts.UpdatePart(ctx, part.ID, dto.UpdatePartDTO{Material: &blank})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.parts.UpdatePart(ctx, 999, dto.UpdatePartDTO{Name: &name})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	f.bus.Wait()
	assert.Equal(t, []string{events.ActionCreated, events.ActionUpdated, "approve", "complete"}, f.events.actions())
}

func TestListParts_RejectsUnknownCategory(t *testing.T) {
	f := newFixture(t)
	f.create(t, "L-1", entities.PartTypeHand)

	_, _, err := f.parts.ListParts(context.Background(), types.PartFilter{Category: "paint"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	parts, page, err := f.parts.ListParts(context.Background(), types.PartFilter{Limit: 10000})
	require.NoError(t, err)
	assert.Len(t, parts, 1)
	assert.Equal(t, types.MaxLimit, page.Limit)
	assert.EqualValues(t, 1, page.TotalCount)
}

func TestDeleteAndWipe_RemoveStoredFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	files := f.fileService(nil, "sync")

	a := f.create(t, "D-1", entities.PartTypeHand)
	b := f.create(t, "D-2", entities.PartTypeHand)
	a, err := files.Upload(ctx, a.ID, pdfReader(), "a.pdf", -1)
	require.NoError(t, err)
	b, err = files.Upload(ctx, b.ID, pdfReader(), "b.pdf", -1)
	require.NoError(t, err)

	require.NoError(t, f.parts.DeletePart(ctx, a.ID))
	_, err = f.storage.Open(ctx, *a.FilePath)
	assert.Error(t, err)
	assert.ErrorIs(t, f.parts.DeletePart(ctx, a.ID), apperrors.ErrNotFound)

	deleted, err := f.parts.WipeParts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	_, err = f.storage.Open(ctx, *b.FilePath)
	assert.Error(t, err)

	parts, _, err := f.parts.ListParts(ctx, types.PartFilter{})
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestStats_Cached(t *testing.T) {
	cache := newMemoryCache()
	f := newFixture(t, withCache(cache))
	ctx := context.Background()
	f.create(t, "S-1", entities.PartTypeCNC)

	stats, err := f.parts.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Total)
	assert.Contains(t, cache.data, StatsCacheKey)

	// Served from cache until something invalidates it.
	f.create(t, "S-2", entities.PartTypeCNC)
	stats, err = f.parts.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Total)

	require.NoError(t, cache.Del(ctx, StatsCacheKey))
	stats, err = f.parts.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 2, stats.ByCategory[entities.CategoryReview])
	assert.EqualValues(t, 0, stats.ByCategory[entities.CategoryCompleted])

	_, err = f.parts.Leaderboard(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, cache.data, LeaderboardCacheKey)
}
