package websocket

import "time"

// Envelope wraps every message so clients can switch on Type.
type Envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// PartChangePayload tells clients which part changed and how.
type PartChangePayload struct {
	Action   string      `json:"action"`
	ID       int64       `json:"id"`
	Category string      `json:"category,omitempty"`
	Part     interface{} `json:"part,omitempty"`
}
