package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/entities"
	"parts-tracker/internal/events"
	"parts-tracker/internal/repositories"
	"parts-tracker/pkg/config"
	"parts-tracker/pkg/converter"
	"parts-tracker/pkg/database"
	"parts-tracker/pkg/eventbus"
	"parts-tracker/pkg/filestorage"
	"parts-tracker/pkg/keylock"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

var testUploadConfig = config.UploadConfig{
	AllowedExtensions:     []string{"step", "stp", "pdf"},
	ConvertibleExtensions: []string{"step", "stp"},
	MaxFileSizeMB:         1,
	PathPrefix:            "parts/source",
	ModelPathPrefix:       "parts/model",
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.PartChangedEvent
}

func (r *recordedEvents) listen(_ context.Context, e eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.(events.PartChangedEvent))
	return nil
}

func (r *recordedEvents) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	db       *database.DB
	base     *BaseService
	parts    *PartService
	workflow *PartWorkflowService
	storage  *filestorage.LocalFileStorage
	storeDir string
	bus      *eventbus.Bus
	events   *recordedEvents
	cache    repositories.CacheRepositoryInterface
}

type fixtureOption func(*fixture)

func withCache(c repositories.CacheRepositoryInterface) fixtureOption {
	return func(f *fixture) { f.cache = c }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.OpenAndMigrate(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	storage, err := filestorage.NewLocalFileStorage(dir)
	require.NoError(t, err)

	f := &fixture{db: db, storage: storage, storeDir: dir, events: &recordedEvents{}}
	for _, opt := range opts {
		opt(f)
	}

	f.bus = eventbus.New(zap.NewNop())
	t.Cleanup(f.bus.Close)
	f.bus.Subscribe(events.PartChangedEventName, f.events.listen)

	repo := repositories.NewPartRepository(db, zap.NewNop())
	f.base = NewBaseService(repo, repositories.NewTxManager(db.DB), keylock.New(), f.bus, f.cache, zap.NewNop())
	f.base.SetClock(func() time.Time { return fixedNow })
	f.parts = NewPartService(f.base, storage, time.Minute)
	f.workflow = NewPartWorkflowService(f.base)
	return f
}

func (f *fixture) fileService(conv converter.Converter, mode string) *PartFileService {
	return NewPartFileService(f.base, f.storage, conv, testUploadConfig, config.ConversionConfig{
		Mode:    mode,
		Workers: 1,
		Timeout: 5 * time.Second,
	})
}

func (f *fixture) create(t *testing.T, partID string, partType entities.PartType) *entities.Part {
	t.Helper()
	part, err := f.parts.CreatePart(context.Background(), dto.CreatePartDTO{
		PartID:    partID,
		Type:      string(partType),
		Name:      "Part " + partID,
		Subsystem: "Drivetrain",
		Material:  "6061 Aluminum",
	})
	require.NoError(t, err)
	return part
}
