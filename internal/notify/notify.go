// File: internal/notify/notify.go
// Package notify fans progress events out to interested UIs. The automation
// flow publishes fire-and-forget; a slow or dead subscriber never blocks it.
package notify

import (
	"time"

	"github.com/weifanh/classsync-cli/internal/schedule"
)

// EventType labels what a published event describes.
type EventType string

const (
	EventStarted   EventType = "process_started"
	EventState     EventType = "state_changed"
	EventCompleted EventType = "process_completed"
	EventError     EventType = "process_error"
)

// Event is one progress update. Outcome is only set on completion events.
type Event struct {
	Type        EventType             `json:"type"`
	RunID       string                `json:"runId,omitempty"`
	State       string                `json:"state,omitempty"`
	Message     string                `json:"message,omitempty"`
	Suggestions []string              `json:"suggestions,omitempty"`
	Outcome     *schedule.FillOutcome `json:"outcome,omitempty"`
	At          time.Time             `json:"at"`
}

// Notifier receives progress events. Implementations must not block.
type Notifier interface {
	Publish(ev Event)
}

// Nop drops every event. Used by the one-shot command, which reads the
// outcome directly.
type Nop struct{}

func (Nop) Publish(Event) {}
