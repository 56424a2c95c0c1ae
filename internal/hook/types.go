// Package hook discovers and runs external alert programs. Each hook lives in
// its own directory with a hook.json manifest and receives a JSON Request on
// stdin, answering with a JSON Response on stdout.
package hook

import (
	"encoding/json"
	"time"
)

// Events a hook can subscribe to.
const (
	EventFall = "fall"
	EventTest = "test"
)

// Manifest describes a hook's metadata and the events it handles.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Handles reports whether the manifest subscribes to event. A manifest
// without events handles every event.
func (m Manifest) Handles(event string) bool {
	if len(m.Events) == 0 {
		return true
	}
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Request is sent to a hook on stdin.
type Request struct {
	Event       string          `json:"event"`
	Device      string          `json:"device,omitempty"`
	Probability float32         `json:"probability"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Config      json.RawMessage `json:"config,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
}

// Response is read from a hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}
