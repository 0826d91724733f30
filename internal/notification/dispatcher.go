// internal/notification/dispatcher.go
package notification

import (
	"context"
	"time"

	"cooin-core/internal/models"
)

// Event describes one completed connection transition. Events are
// fire-and-forget: delivery failure never rolls the transition back.
type Event struct {
	ConnectionID string                  `json:"connectionId"`
	RequesterID  string                  `json:"requesterId"`
	ReceiverID   string                  `json:"receiverId"`
	OldStatus    models.ConnectionStatus `json:"oldStatus"`
	NewStatus    models.ConnectionStatus `json:"newStatus"`
	OccurredAt   time.Time               `json:"occurredAt"`
}

// Transition renders the event's edge, e.g. "pending->accepted". New
// connections have an empty old status and render as "->pending".
func (e Event) Transition() string {
	return string(e.OldStatus) + "->" + string(e.NewStatus)
}

// Dispatcher delivers transition events to an external channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// NoopDispatcher swallows events. Used when no notification channel is
// configured, and in tests that do not care about delivery.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(context.Context, Event) error { return nil }
