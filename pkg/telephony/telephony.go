// Package telephony defines the call-lifecycle contract between the SIP
// stack and the doorbell core.
package telephony

import (
	"context"
	"time"
)

// SIP status codes used when ending calls.
const (
	StatusNormal   = 0
	StatusBusyHere = 486
)

// EventType identifies a call-lifecycle notification.
type EventType int

const (
	EventIncoming EventType = iota
	EventStateChanged
	EventMediaActive
	EventDisconnected
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventIncoming:
		return "incoming"
	case EventStateChanged:
		return "state_changed"
	case EventMediaActive:
		return "media_active"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one call-lifecycle notification.
type Event struct {
	Type  EventType
	Call  Call
	State string // set for EventStateChanged
	Time  time.Time
}

// Call is one SIP call as seen by the core.
type Call interface {
	ID() string
	Peer() string
	Answer(ctx context.Context) error

	// Hangup ends the call. code is a SIP status; StatusNormal lets the
	// stack pick its default.
	Hangup(ctx context.Context, code int) error

	// AudioChannel names the OS audio streams carrying this call's media.
	AudioChannel() string
}

// Handler receives events in the order the stack reported them.
type Handler func(Event)

// Agent delivers call events until ctx is cancelled.
type Agent interface {
	Run(ctx context.Context, handler Handler) error
}
