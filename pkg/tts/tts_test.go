package tts_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-doorbell/internal/proc"
	"github.com/teslashibe/go-doorbell/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "Do widzenia.")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) == 0 {
			t.Error("expected audio data")
		}
		if result.Format.SampleRate != 22050 {
			t.Errorf("expected 22050 sample rate, got %d", result.Format.SampleRate)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		mock.Health(ctx)
		if mock.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 Synthesize call, got %d", mock.CallCount("Synthesize"))
		}
		if len(mock.Calls()) != 2 {
			t.Errorf("expected 2 calls, got %d", len(mock.Calls()))
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockClosedAndDelay(t *testing.T) {
	mock := tts.NewMock()
	mock.Delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mock.Synthesize(ctx, "Witam."); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	mock.Delay = 0
	mock.Close()
	if _, err := mock.Synthesize(context.Background(), "Witam."); !errors.Is(err, tts.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable after Close, got %v", err)
	}
	if got := mock.Texts(); len(got) != 2 || got[0] != "Witam." {
		t.Errorf("unexpected texts %v", got)
	}
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := tts.WithError(testErr)

	if _, err := mock.Synthesize(context.Background(), "x"); !errors.Is(err, testErr) {
		t.Errorf("expected test error, got %v", err)
	}
	if err := mock.Health(context.Background()); !errors.Is(err, testErr) {
		t.Errorf("expected test error, got %v", err)
	}
}

func TestFunctionalOptions(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Apply(
		tts.WithExecutable("/usr/bin/piper"),
		tts.WithModel("/models/pl.onnx"),
		tts.WithSampleRate(16000),
		tts.WithTimeout(5*time.Second),
	)

	if cfg.Executable != "/usr/bin/piper" {
		t.Errorf("expected executable /usr/bin/piper, got %s", cfg.Executable)
	}
	if cfg.Model != "/models/pl.onnx" {
		t.Errorf("expected model /models/pl.onnx, got %s", cfg.Model)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("expected 16000, got %d", cfg.SampleRate)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Timeout)
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("Validate requires model", func(t *testing.T) {
		cfg := tts.DefaultConfig()
		if err := cfg.Validate(); err != tts.ErrNoModel {
			t.Errorf("expected ErrNoModel, got %v", err)
		}
	})

	t.Run("Validate requires executable", func(t *testing.T) {
		cfg := tts.DefaultConfig()
		cfg.Executable = ""
		if err := cfg.Validate(); err != tts.ErrNoExecutable {
			t.Errorf("expected ErrNoExecutable, got %v", err)
		}
	})

	t.Run("Validate passes", func(t *testing.T) {
		cfg := tts.DefaultConfig()
		cfg.Model = "/models/pl.onnx"
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestPiperSynthesize(t *testing.T) {
	pcm := make([]byte, 44100) // one second at 22050Hz PCM16
	fake := &proc.Fake{Handler: func(c proc.Call) ([]byte, error) {
		return pcm, nil
	}}

	piper, err := tts.NewPiper(tts.WithExecutable("/usr/bin/piper"), tts.WithModel("/models/pl.onnx"))
	if err != nil {
		t.Fatalf("NewPiper: %v", err)
	}
	piper.SetRunner(fake)

	result, err := piper.Synthesize(context.Background(), "  Zapraszam, zaraz ktoś podejdzie.  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Duration != time.Second {
		t.Errorf("expected 1s of audio, got %v", result.Duration)
	}

	calls := fake.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	line := calls[0].Line()
	if line != "/usr/bin/piper --model /models/pl.onnx --output-raw" {
		t.Errorf("unexpected command line %q", line)
	}
	if strings.TrimSpace(string(calls[0].Stdin)) != "Zapraszam, zaraz ktoś podejdzie." {
		t.Errorf("unexpected stdin %q", calls[0].Stdin)
	}
}

func TestPiperErrors(t *testing.T) {
	piper, _ := tts.NewPiper(tts.WithModel("/models/pl.onnx"))

	t.Run("empty text", func(t *testing.T) {
		if _, err := piper.Synthesize(context.Background(), "   "); !errors.Is(err, tts.ErrEmptyText) {
			t.Errorf("expected ErrEmptyText, got %v", err)
		}
	})

	t.Run("no audio", func(t *testing.T) {
		piper.SetRunner(&proc.Fake{})
		_, err := piper.Synthesize(context.Background(), "tak")
		if !errors.Is(err, tts.ErrNoAudio) {
			t.Errorf("expected ErrNoAudio, got %v", err)
		}
		var pe *tts.ProviderError
		if !errors.As(err, &pe) || pe.Provider != "piper" {
			t.Errorf("expected piper ProviderError, got %v", err)
		}
	})
}

func TestSpeaker(t *testing.T) {
	fake := &proc.Fake{}
	mock := tts.NewMock()
	speaker := tts.NewSpeaker(context.Background(), mock, tts.WithDevice("PiperSink"), tts.WithRunner(fake))

	speaker.Speak(context.Background(), "Witam.")
	speaker.Speak(context.Background(), "Do widzenia.")
	speaker.Wait()

	if speaker.InFlight() != 0 {
		t.Errorf("expected no utterances in flight, got %d", speaker.InFlight())
	}
	spoken, failed := speaker.Stats()
	if spoken != 2 || failed != 0 {
		t.Errorf("expected 2 spoken 0 failed, got %d/%d", spoken, failed)
	}
	if fake.Count("pacat --playback --device=PiperSink") != 2 {
		t.Errorf("expected 2 playback commands, got %v", fake.Calls())
	}
}

func TestSpeakerSynthesisFailure(t *testing.T) {
	fake := &proc.Fake{}
	speaker := tts.NewSpeaker(context.Background(), tts.WithError(errors.New("no voice")), tts.WithRunner(fake))

	speaker.Speak(context.Background(), "Witam.")
	speaker.Wait()

	if _, failed := speaker.Stats(); failed != 1 {
		t.Errorf("expected 1 failure, got %d", failed)
	}
	if len(fake.Calls()) != 0 {
		t.Error("expected no playback after synthesis failure")
	}
}

// blockingRunner plays until its context is cancelled.
type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	close(r.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *blockingRunner) Stream(ctx context.Context, stdin io.Reader, name string, args ...string) (io.ReadCloser, error) {
	return nil, errors.New("not supported")
}

func TestSpeakerStopsWithCall(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{})}
	speaker := tts.NewSpeaker(context.Background(), tts.NewMock(), tts.WithRunner(runner))

	callCtx, hangup := context.WithCancel(context.Background())
	speaker.Speak(callCtx, "Proszę czekać.")
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("playback never started")
	}

	hangup()
	done := make(chan struct{})
	go func() {
		speaker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("playback kept running after the call ended")
	}
	if _, failed := speaker.Stats(); failed != 1 {
		t.Errorf("expected the cut-off utterance counted as failed, got %d", failed)
	}
}
