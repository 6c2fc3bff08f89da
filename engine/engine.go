// Package engine runs the external remux engine and reports what it does as a
// stream of typed events.
//
// An Engine never touches job state. Callers receive exactly one Started event
// when the process is running, zero or more Progress events, then exactly one
// terminal event (Completed or Failed), after which the channel is closed. A
// process that cannot be launched produces a single Failed event.
package engine

import (
	"context"
)

// SourceKind tells the engine how to treat a source locator
type SourceKind string

const (
	SourceRemote    SourceKind = "remote"
	SourceLocalFile SourceKind = "local-file"
)

// EventType identifies an engine signal
type EventType int

const (
	EventStarted EventType = iota
	EventProgress
	EventCompleted
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a single signal emitted by the engine.
// Percent is nil when the engine could not estimate progress.
type Event struct {
	Type    EventType
	Percent *float64
	Message string
}

// IsTerminal reports whether no further events follow this one
func (e Event) IsTerminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed
}

// Request describes one remux invocation
type Request struct {
	Source string
	Kind   SourceKind
	Output string
}

// Engine remuxes a source into a single output file
type Engine interface {
	Remux(ctx context.Context, req Request) <-chan Event
}

// Percent is a helper for building progress events
func Percent(v float64) *float64 {
	return &v
}
