// Package stt delivers recognized visitor speech as text.
package stt

import (
	"context"
	"errors"
)

// Recognizer streams call audio to a speech recognizer and reports each
// final utterance through onText. onText is called from the recognizer's
// own goroutine.
type Recognizer interface {
	Start(ctx context.Context, onText func(text string)) error
	Stop() error
}

// Sentinel errors.
var (
	ErrAlreadyRunning = errors.New("stt: recognizer already running")
	ErrNoURL          = errors.New("stt: server url required")
)
