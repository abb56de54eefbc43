// Package reload defines reload events and the notifiers that push them to
// connected browsers.
//
// Delivery is best effort and at most once: an event reaches the clients that
// are connected when it is published, slow or broken clients are dropped, and
// nothing is replayed to clients that connect later.
package reload

import (
	"time"

	"github.com/google/uuid"
)

// Scope tells a client how to apply an event.
type Scope string

const (
	// ScopeNone disables reload notification for a task.
	ScopeNone Scope = ""
	// ScopeFullPage forces a full page reload.
	ScopeFullPage Scope = "full-page"
	// ScopeStyleOnly swaps stylesheets in place when the client supports it.
	ScopeStyleOnly Scope = "style-only"
)

// ParseScope validates a scope name from configuration.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case ScopeNone, ScopeFullPage, ScopeStyleOnly:
		return Scope(s), true
	case "none":
		return ScopeNone, true
	default:
		return ScopeNone, false
	}
}

// Event is a signal that new output is available.
type Event struct {
	ID    string    `json:"id"`
	Scope Scope     `json:"scope"`
	Task  string    `json:"task,omitempty"`
	Paths []string  `json:"paths,omitempty"`
	Time  time.Time `json:"time"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(scope Scope, task string, paths ...string) Event {
	return Event{
		ID:    uuid.NewString(),
		Scope: scope,
		Task:  task,
		Paths: paths,
		Time:  time.Now(),
	}
}

// message is the wire form of an event.
type message struct {
	Type string `json:"type"`
	Event
}

func newMessage(e Event) message {
	return message{Type: "reload", Event: e}
}
