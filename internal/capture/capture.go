// Package capture turns clipboard change notifications into capture events.
//
// Every notification runs through one small state machine:
//
//	Idle → Reading → Classifying → Duplicate → Idle
//	                             → Novel → Persisting → Idle
//
// Only novel content produces an Event. Whether content is novel is decided
// by the shared dedup.State, which the write-back actor also updates, so
// our own writes come back as duplicates.
package capture

import (
	"time"

	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

// Event is one novel piece of clipboard content, ready to be persisted.
type Event struct {
	// Type says how Content should be read.
	Type storage.ContentType

	// Content is the text itself, newline-separated paths for file_path,
	// or the path of the saved full-size PNG for images.
	Content string

	// Timestamp when the change was observed
	Timestamp time.Time
}

// NewEvent creates an Event with the timestamp set to now.
func NewEvent(typ storage.ContentType, content string) Event {
	return Event{
		Type:      typ,
		Content:   content,
		Timestamp: time.Now(),
	}
}
