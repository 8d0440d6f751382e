package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout  = 10 * time.Second
	idleTimeout   = 60 * time.Second
	pingInterval  = idleTimeout * 9 / 10
	maxInboundLen = 512
	sendQueueLen  = 256
)

// Subscriber is one connection on the change feed. The feed is one way;
// inbound frames are only read to handle pongs and the close handshake.
type Subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Attach registers conn with the hub and serves it until either side
// closes. It blocks for the lifetime of the connection.
func (h *Hub) Attach(conn *websocket.Conn) {
	s := &Subscriber{hub: h, conn: conn, send: make(chan []byte, sendQueueLen)}
	h.register <- s
	go s.writeLoop()
	s.readLoop()
}

func (s *Subscriber) readLoop() {
	defer func() {
		s.hub.unregister <- s
		s.conn.Close()
	}()
	s.conn.SetReadLimit(maxInboundLen)
	extend := func(string) error { return s.conn.SetReadDeadline(time.Now().Add(idleTimeout)) }
	_ = extend("")
	s.conn.SetPongHandler(extend)

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.hub.logger.Warn("websocket subscriber dropped", zap.Error(err))
			}
			return
		}
	}
}

// writeLoop owns every write on conn. It exits when the hub closes send.
func (s *Subscriber) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
