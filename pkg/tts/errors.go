package tts

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoExecutable is returned when the synthesizer binary is not set.
	ErrNoExecutable = errors.New("tts: executable required")

	// ErrNoModel is returned when the voice model is not set.
	ErrNoModel = errors.New("tts: model required")

	// ErrBadSampleRate is returned for a non-positive sample rate.
	ErrBadSampleRate = errors.New("tts: sample rate must be positive")

	// ErrEmptyText is returned when asked to synthesize nothing.
	ErrEmptyText = errors.New("tts: empty text")

	// ErrNoAudio is returned when the provider produced no samples.
	ErrNoAudio = errors.New("tts: provider produced no audio")

	// ErrProviderUnavailable is returned when no provider is set.
	ErrProviderUnavailable = errors.New("tts: no provider available")
)

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
