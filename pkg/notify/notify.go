// Package notify sends operator notifications. Delivery is best-effort:
// callers log failures and never retry.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Message is one operator notification.
type Message struct {
	Title string
	Text  string

	// Image is an optional JPEG attachment (e.g. a doorstep snapshot).
	Image     []byte
	ImageName string
}

// Notifier delivers a Message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// ErrNotConfigured is returned by a notifier built without credentials.
var ErrNotConfigured = errors.New("notify: not configured")

// APIError is returned when a notification API rejects a request.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("notify [%s]: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("notify [%s]: status %d", e.Provider, e.StatusCode)
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every message.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Message) error { return nil }

var (
	_ Notifier = Multi(nil)
	_ Notifier = Nop{}
)
