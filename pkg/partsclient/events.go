package partsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"parts-tracker/internal/dto"
)

const partChangedType = "part.changed"

// Change is one part.changed message from the event feed. Part is nil for
// deletions and wipes.
type Change struct {
	Action    string               `json:"action"`
	ID        int64                `json:"id"`
	Category  string               `json:"category"`
	Part      *dto.PartResponseDTO `json:"part"`
	Timestamp time.Time            `json:"-"`
}

type changeEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Subscribe reads the change feed until ctx is done or the connection
// fails. Cached artifacts touched by a change are dropped before fn runs.
func (c *Client) Subscribe(ctx context.Context, fn func(Change)) error {
	wsURL := "ws" + strings.TrimPrefix(c.cfg.BaseURL, "http") + "/parts/events"
	header := http.Header{}
	header.Set(apiKeyHeader, c.cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeError(resp)
		}
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var env changeEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read events: %w", err)
		}
		if env.Type != partChangedType {
			continue
		}
		var change Change
		if err := json.Unmarshal(env.Payload, &change); err != nil {
			c.logger.Warn("malformed change event", zap.Error(err))
			continue
		}
		change.Timestamp = env.Timestamp
		c.applyChange(change)
		fn(change)
	}
}

func (c *Client) applyChange(change Change) {
	switch change.Action {
	case "wiped":
		c.cache.InvalidatePrefix("")
	case "deleted", "file", "conversion":
		c.cache.InvalidatePart(change.ID)
	}
}
