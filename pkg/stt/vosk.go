package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-doorbell/internal/proc"
)

const (
	chunkSize  = 8000 // 250ms of 16kHz PCM16
	writeWait  = 5 * time.Second
	closeGrace = 2 * time.Second
)

// VoskConfig configures a Vosk recognizer.
type VoskConfig struct {
	// URL of the vosk-server websocket, e.g. ws://127.0.0.1:2700.
	URL string

	// Device is the PulseAudio source captured with parec,
	// normally the capture sink's monitor ("VoskSink.monitor").
	Device string

	SampleRate int
	Runner     proc.Runner
	Logger     *slog.Logger
}

// Vosk streams PCM captured from PulseAudio to a vosk-server websocket.
type Vosk struct {
	cfg    VoskConfig
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	audio   io.ReadCloser
	done    chan struct{}
	running bool
}

// voskResult is a vosk-server response. Final results carry Text,
// intermediate ones carry Partial.
type voskResult struct {
	Text    *string `json:"text"`
	Partial string  `json:"partial"`
}

// NewVosk creates a Vosk recognizer.
func NewVosk(cfg VoskConfig) (*Vosk, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	if cfg.Device == "" {
		cfg.Device = "VoskSink.monitor"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Runner == nil {
		cfg.Runner = proc.Exec{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Vosk{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger: cfg.Logger.With("component", "vosk"),
	}, nil
}

// Start connects to the server, starts capturing and begins delivering
// final utterances to onText.
func (v *Vosk) Start(ctx context.Context, onText func(string)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running {
		return ErrAlreadyRunning
	}

	conn, _, err := v.dialer.DialContext(ctx, v.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("stt: dial %s: %w", v.cfg.URL, err)
	}

	cfgMsg := map[string]any{"config": map[string]any{"sample_rate": v.cfg.SampleRate}}
	if err := conn.WriteJSON(cfgMsg); err != nil {
		conn.Close()
		return fmt.Errorf("stt: send config: %w", err)
	}

	audio, err := v.cfg.Runner.Stream(ctx, nil, "parec",
		"--device="+v.cfg.Device,
		"--raw",
		"--format=s16le",
		"--rate="+strconv.Itoa(v.cfg.SampleRate),
		"--channels=1",
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("stt: start capture: %w", err)
	}

	v.conn = conn
	v.audio = audio
	v.done = make(chan struct{})
	v.running = true

	go v.pump(conn, audio)
	go v.read(conn, onText, v.done)

	v.logger.Info("recognizer started", "url", v.cfg.URL, "device", v.cfg.Device)
	return nil
}

// pump forwards captured audio until the capture ends, then asks the
// server for its final result.
func (v *Vosk) pump(conn *websocket.Conn, audio io.Reader) {
	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				v.logger.Debug("audio write stopped", "error", werr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				v.logger.Debug("capture ended", "error", err)
			}
			break
		}
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`))
}

func (v *Vosk) read(conn *websocket.Conn, onText func(string), done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				v.logger.Debug("recognizer read stopped", "error", err)
			}
			return
		}

		var res voskResult
		if err := json.Unmarshal(data, &res); err != nil {
			v.logger.Warn("bad recognizer message", "error", err)
			continue
		}
		if res.Text == nil {
			continue
		}
		text := strings.TrimSpace(*res.Text)
		if text == "" {
			continue
		}
		v.logger.Info("recognized", "text", text)
		onText(text)
	}
}

// Stop ends capture, waits briefly for the final result and closes the
// connection. Stop on a stopped recognizer is a no-op.
func (v *Vosk) Stop() error {
	v.mu.Lock()
	if !v.running {
		v.mu.Unlock()
		return nil
	}
	v.running = false
	conn, audio, done := v.conn, v.audio, v.done
	v.conn, v.audio = nil, nil
	v.mu.Unlock()

	err := audio.Close()

	select {
	case <-done:
	case <-time.After(closeGrace):
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.Close()

	v.logger.Info("recognizer stopped")
	return err
}

var _ Recognizer = (*Vosk)(nil)
