// Package tts turns text into speech for the doorbell's playback path.
//
// Providers synthesize PCM audio; a Speaker plays it onto the PulseAudio
// sink the telephony stream captures from, so the visitor hears it.
//
// Example usage:
//
//	piper, _ := tts.NewPiper(
//	    tts.WithExecutable("/usr/local/bin/piper"),
//	    tts.WithModel("/opt/piper/pl_PL-gosia-medium.onnx"),
//	)
//	speaker := tts.NewSpeaker(ctx, piper, tts.WithDevice("PiperSink"))
//	speaker.Speak(callCtx, "Do widzenia.")
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks that the provider can run.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains raw little-endian PCM in the described format.
	Audio []byte

	Format AudioFormat

	// Duration is the playback duration of Audio.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the synthesis wall time in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the PCM encoding parameters.
type AudioFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// BytesPerSecond returns the PCM byte rate of the format.
func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// DurationOf returns how long n bytes of audio in this format play.
func (f AudioFormat) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}
