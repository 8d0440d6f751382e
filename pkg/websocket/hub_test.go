package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHub_BroadcastReachesRegisteredClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zap.NewNop())
	go hub.Run(ctx)

	a := &Subscriber{hub: hub, send: make(chan []byte, 1)}
	b := &Subscriber{hub: hub, send: make(chan []byte, 1)}
	hub.register <- a
	hub.register <- b
	require.Equal(t, 2, hub.ClientCount(ctx))

	require.NoError(t, hub.Broadcast("part.changed", PartChangePayload{Action: "updated", ID: 4}))

	for _, c := range []*Subscriber{a, b} {
		select {
		case msg := <-c.send:
			var env struct {
				Type    string            `json:"type"`
				Payload PartChangePayload `json:"payload"`
			}
			require.NoError(t, json.Unmarshal(msg, &env))
			assert.Equal(t, "part.changed", env.Type)
			assert.EqualValues(t, 4, env.Payload.ID)
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}

	hub.unregister <- a
	assert.Equal(t, 1, hub.ClientCount(ctx))
	_, open := <-a.send
	assert.False(t, open)
}

func TestHub_AttachStreamsToConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(zap.NewNop())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Attach(conn)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount(ctx) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Broadcast("part.changed", PartChangePayload{Action: "deleted", ID: 9}))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var env struct {
		Type    string            `json:"type"`
		Payload PartChangePayload `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "deleted", env.Payload.Action)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount(ctx) == 0 }, time.Second, 5*time.Millisecond)
}
