package queue

import (
	"time"

	"github.com/devtoolbox/backend/internal/models"
)

// Event types published by a Batch.
const (
	EventEntryAdded      = "entry:added"
	EventEntryConverting = "entry:converting"
	EventEntryConverted  = "entry:converted"
	EventEntryFailed     = "entry:failed"
	EventEntryRemoved    = "entry:removed"
	EventBatchSummary    = "batch:summary"
)

// Event is a change notification for one entry or a whole batch run.
type Event struct {
	Type      string             `json:"type"`
	BatchID   string             `json:"batchId"`
	EntryID   string             `json:"entryId,omitempty"`
	Name      string             `json:"name,omitempty"`
	Status    models.EntryStatus `json:"status,omitempty"`
	Progress  float64            `json:"progress"`
	Message   string             `json:"message,omitempty"`
	Summary   *Summary           `json:"summary,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// Notifier receives batch events. Notify is called outside the batch lock
// and must not block for long.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify calls f(e).
func (f NotifierFunc) Notify(e Event) { f(e) }

func entryEvent(typ, batchID string, e *models.Entry, msg string) Event {
	return Event{
		Type:      typ,
		BatchID:   batchID,
		EntryID:   e.ID,
		Name:      e.Name,
		Status:    e.Status,
		Progress:  e.Progress,
		Message:   msg,
		Timestamp: time.Now().UnixMilli(),
	}
}
