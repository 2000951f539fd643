package history

import (
	"context"
	"time"

	"github.com/loykin/sessiond/internal/registry"
)

// EventType defines the kind of session lifecycle event.
type EventType string

const (
	EventRegister   EventType = "register"
	EventUnregister EventType = "unregister"
	EventReap       EventType = "reap"
)

// Event represents a session lifecycle event exported to external systems.
type Event struct {
	Type       EventType             `json:"type"`
	OccurredAt time.Time             `json:"occurred_at"`
	Session    registry.SessionEntry `json:"session"`
}

// Sink is a destination for session history events (audit/analytics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
