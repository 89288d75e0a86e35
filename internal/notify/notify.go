// Package notify carries the engine's notification decisions to a sink.
// Delivery is best-effort: the engine never rolls back state over a failed
// notification.
package notify

import (
	"context"
	"log"
	"time"
)

// Topics emitted by the engine.
const (
	TopicCycleMissed      = "cycle.missed"
	TopicCycleReminder    = "cycle.reminder"
	TopicLockoutTriggered = "lockout.triggered"
	TopicLockoutRearmed   = "lockout.rearmed"
)

// Event is one notification decision.
type Event struct {
	OwnerID    string    `json:"owner_id"`
	Topic      string    `json:"topic"`
	Message    string    `json:"message"`
	DedupeKey  string    `json:"dedupe_key,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier is the delivery boundary for notification decisions.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes notification decisions to the process log. It is the
// default sink when no webhook is configured.
type LogNotifier struct{}

// Notify logs one notification decision.
func (LogNotifier) Notify(_ context.Context, event Event) error {
	log.Printf(
		"notify owner_id=%s topic=%s dedupe_key=%s message=%q",
		event.OwnerID,
		event.Topic,
		event.DedupeKey,
		event.Message,
	)
	return nil
}
