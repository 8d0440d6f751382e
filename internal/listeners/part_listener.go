package listeners

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/events"
	"parts-tracker/internal/repositories"
	"parts-tracker/internal/services"
	"parts-tracker/pkg/eventbus"
	"parts-tracker/pkg/websocket"
)

// Broadcaster is the part of the WebSocket hub the listener needs.
type Broadcaster interface {
	Broadcast(messageType string, payload interface{}) error
}

// PartChangeListener keeps derived views in step with committed part changes:
// it drops cached stats and pushes the change to WebSocket subscribers.
type PartChangeListener struct {
	cache  repositories.CacheRepositoryInterface
	hub    Broadcaster
	logger *zap.Logger
}

func NewPartChangeListener(cache repositories.CacheRepositoryInterface, hub Broadcaster, logger *zap.Logger) *PartChangeListener {
	return &PartChangeListener{cache: cache, hub: hub, logger: logger}
}

func (l *PartChangeListener) Register(bus *eventbus.Bus) {
	bus.Subscribe(events.PartChangedEventName, l.handlePartChanged)
	l.logger.Info("PartChangeListener subscribed", zap.String("event", events.PartChangedEventName))
}

func (l *PartChangeListener) handlePartChanged(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.PartChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	var firstErr error
	if l.cache != nil {
		if err := l.cache.Del(ctx, services.StatsCacheKey, services.LeaderboardCacheKey); err != nil {
			firstErr = fmt.Errorf("invalidate stats cache: %w", err)
		}
	}

	if l.hub != nil {
		payload := websocket.PartChangePayload{Action: e.Action, ID: e.ID}
		if e.Part != nil {
			payload.Category = string(e.Part.Category)
			payload.Part = dto.ToPartResponse(*e.Part)
		}
		if err := l.hub.Broadcast(events.PartChangedEventName, payload); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("broadcast part change: %w", err)
		}
	}
	return firstErr
}
