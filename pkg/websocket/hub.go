package websocket

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Hub fans broadcast messages out to every registered client.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*Subscriber]struct{}
	broadcast  chan []byte
	register   chan *Subscriber
	unregister chan *Subscriber
	count      chan chan int
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Subscriber]struct{}),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		count:      make(chan chan int),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for s := range h.clients {
				close(s.send)
				delete(h.clients, s)
			}
			return
		case s := <-h.register:
			h.clients[s] = struct{}{}
			h.logger.Debug("websocket client registered", zap.Int("clients", len(h.clients)))
		case s := <-h.unregister:
			if _, ok := h.clients[s]; ok {
				delete(h.clients, s)
				close(s.send)
				h.logger.Debug("websocket client unregistered", zap.Int("clients", len(h.clients)))
			}
		case message := <-h.broadcast:
			for s := range h.clients {
				select {
				case s.send <- message:
				default:
					// Slow consumer; drop it rather than stall everyone else.
					close(s.send)
					delete(h.clients, s)
				}
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Broadcast queues an envelope for every connected client. It never blocks
// the caller; messages are dropped when the hub is saturated.
func (h *Hub) Broadcast(messageType string, payload interface{}) error {
	messageBytes, err := json.Marshal(Envelope{
		Type:      messageType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- messageBytes:
	default:
		h.logger.Warn("websocket broadcast queue full, message dropped", zap.String("type", messageType))
	}
	return nil
}

// ClientCount asks the Run goroutine for the number of connected clients.
func (h *Hub) ClientCount(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-ctx.Done():
		return 0
	}
}
