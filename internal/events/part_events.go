package events

import "parts-tracker/internal/entities"

const PartChangedEventName = "part.changed"

// Actions carried by PartChangedEvent.
const (
	ActionCreated    = "created"
	ActionUpdated    = "updated"
	ActionDeleted    = "deleted"
	ActionFile       = "file"
	ActionConversion = "conversion"
	ActionWiped      = "wiped"
)

// PartChangedEvent is published after a part mutation has been committed.
// Part is nil for deletions and wipes.
type PartChangedEvent struct {
	Action string
	ID     int64
	Part   *entities.Part
}

func (e PartChangedEvent) Name() string {
	return PartChangedEventName
}
