package viewstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/entities"
	"parts-tracker/pkg/blobcache"
	"parts-tracker/pkg/partquery"
	"parts-tracker/pkg/partsclient"
	"parts-tracker/pkg/types"
)

// API is the part of *partsclient.Client a Session drives.
type API interface {
	ListParts(ctx context.Context, q partquery.Query) ([]dto.PartResponseDTO, types.Pagination, error)
	DeletePart(ctx context.Context, id int64) error
	Approve(ctx context.Context, id int64, category entities.Category) (*dto.PartResponseDTO, error)
	Assign(ctx context.Context, id int64, user string, alreadyStarted bool) (*dto.PartResponseDTO, error)
	Unclaim(ctx context.Context, id int64) (*dto.PartResponseDTO, error)
	Start(ctx context.Context, id int64) (*dto.PartResponseDTO, error)
	Complete(ctx context.Context, id int64, completedAmount *int) (*dto.PartResponseDTO, error)
	Revert(ctx context.Context, id int64, category entities.Category) (*dto.PartResponseDTO, error)
	Wipe(ctx context.Context, wipeKey string) (int64, error)
	Model(ctx context.Context, id int64) (*blobcache.Handle, error)
	File(ctx context.Context, id int64) (*blobcache.Handle, error)
	Subscribe(ctx context.Context, fn func(partsclient.Change)) error
}

// Session connects an AppState to the API. Every failed call lands in the
// state as an error notification; successful workflow calls update the
// affected part and add a success notice.
type Session struct {
	api    API
	state  *AppState
	search *Debouncer
	logger *zap.Logger

	wipeMu sync.Mutex
	wipe   WipeDialog
}

func NewSession(api API, clock Clock, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{api: api, state: New(), logger: logger}
	s.search = NewDebouncer(clock, DefaultSearchDelay, func(text string) {
		s.state.Update(SetSearch{Text: text})
	})
	return s
}

func (s *Session) State() *AppState { return s.state }

// Load fetches every part of the active tab.
func (s *Session) Load(ctx context.Context) error {
	tab := s.state.Tab()
	parts, _, err := s.api.ListParts(ctx, partquery.Query{Category: string(tab), Limit: types.MaxLimit})
	if err != nil {
		return s.fail(err, "Could not load %s parts", tab)
	}
	s.state.Update(PartsLoaded{Category: tab, Parts: parts})
	return nil
}

func (s *Session) SwitchTab(ctx context.Context, tab entities.Category) error {
	s.state.Update(SwitchTab{Tab: tab})
	return s.Load(ctx)
}

// TypeSearch applies text once typing pauses.
func (s *Session) TypeSearch(text string) {
	s.search.Trigger(text)
}

func (s *Session) Approve(ctx context.Context, id int64, category entities.Category) error {
	return s.mutate(fmt.Sprintf("approved into %s", category), func() (*dto.PartResponseDTO, error) {
		return s.api.Approve(ctx, id, category)
	})
}

func (s *Session) Assign(ctx context.Context, id int64, user string, alreadyStarted bool) error {
	return s.mutate("assigned to "+user, func() (*dto.PartResponseDTO, error) {
		return s.api.Assign(ctx, id, user, alreadyStarted)
	})
}

func (s *Session) Unclaim(ctx context.Context, id int64) error {
	return s.mutate("unclaimed", func() (*dto.PartResponseDTO, error) {
		return s.api.Unclaim(ctx, id)
	})
}

func (s *Session) Start(ctx context.Context, id int64) error {
	return s.mutate("started", func() (*dto.PartResponseDTO, error) {
		return s.api.Start(ctx, id)
	})
}

func (s *Session) Complete(ctx context.Context, id int64, completedAmount *int) error {
	return s.mutate("completed", func() (*dto.PartResponseDTO, error) {
		return s.api.Complete(ctx, id, completedAmount)
	})
}

func (s *Session) Revert(ctx context.Context, id int64, category entities.Category) error {
	return s.mutate(fmt.Sprintf("moved back to %s", category), func() (*dto.PartResponseDTO, error) {
		return s.api.Revert(ctx, id, category)
	})
}

func (s *Session) Delete(ctx context.Context, id int64) error {
	if err := s.api.DeletePart(ctx, id); err != nil {
		return s.fail(err, "Could not delete part %d", id)
	}
	s.state.Update(PartRemoved{ID: id})
	s.notify(LevelSuccess, "Part deleted")
	return nil
}

func (s *Session) mutate(done string, call func() (*dto.PartResponseDTO, error)) error {
	part, err := call()
	if err != nil {
		return s.fail(err, "Action failed")
	}
	s.state.Update(PartChanged{Part: *part})
	s.notify(LevelSuccess, fmt.Sprintf("%s %s", label(part), done))
	return nil
}

// Model returns the part's 3D model from the client cache.
func (s *Session) Model(ctx context.Context, id int64) (*blobcache.Handle, error) {
	h, err := s.api.Model(ctx, id)
	if err != nil {
		return nil, s.fail(err, "Could not load 3D model for part %d", id)
	}
	return h, nil
}

// File returns the part's source file from the client cache.
func (s *Session) File(ctx context.Context, id int64) (*blobcache.Handle, error) {
	h, err := s.api.File(ctx, id)
	if err != nil {
		return nil, s.fail(err, "Could not load file for part %d", id)
	}
	return h, nil
}

// WipeDialog runs fn with the dialog locked, for the dialog's local steps.
func (s *Session) WipeDialog(fn func(d *WipeDialog)) {
	s.wipeMu.Lock()
	defer s.wipeMu.Unlock()
	fn(&s.wipe)
}

// SubmitWipe sends the dialog's key. The dialog stays locked in
// WipeSubmitting until the server answers.
func (s *Session) SubmitWipe(ctx context.Context) error {
	s.wipeMu.Lock()
	key, err := s.wipe.Submit()
	s.wipeMu.Unlock()
	if err != nil {
		return err
	}

	deleted, err := s.api.Wipe(ctx, key)

	s.wipeMu.Lock()
	s.wipe.Resolve(err)
	s.wipeMu.Unlock()
	if err != nil {
		return s.fail(err, "Wipe failed")
	}
	s.state.Update(AllRemoved{})
	s.notify(LevelSuccess, fmt.Sprintf("Deleted %d parts", deleted))
	return nil
}

// Watch applies the server's change feed until ctx is done.
func (s *Session) Watch(ctx context.Context) error {
	err := s.api.Subscribe(ctx, s.apply)
	if err != nil && !errors.Is(err, context.Canceled) {
		return s.fail(err, "Live updates stopped")
	}
	return err
}

func (s *Session) apply(change partsclient.Change) {
	switch {
	case change.Action == "wiped":
		s.state.Update(AllRemoved{})
	case change.Action == "deleted":
		s.state.Update(PartRemoved{ID: change.ID})
	case change.Part != nil:
		s.state.Update(PartChanged{Part: *change.Part})
	}
}

func (s *Session) fail(err error, format string, args ...interface{}) error {
	text := fmt.Sprintf(format, args...)
	var apiErr *partsclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		text += ": " + apiErr.Message
	}
	s.logger.Warn("viewstate: request failed", zap.String("notice", text), zap.Error(err))
	s.notify(LevelError, text)
	return err
}

func (s *Session) notify(level Level, text string) {
	s.state.Update(Notify{Level: level, Text: text})
}

func label(p *dto.PartResponseDTO) string {
	if p.PartID != "" {
		return p.PartID
	}
	return fmt.Sprintf("Part %d", p.ID)
}
