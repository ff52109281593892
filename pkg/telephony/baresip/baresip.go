// Package baresip connects the doorbell to a baresip SIP agent through
// its ctrl_tcp module (netstring-framed JSON).
package baresip

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-doorbell/internal/backoff"
	"github.com/teslashibe/go-doorbell/pkg/telephony"
)

// Errors returned by commands.
var (
	ErrNotConnected = errors.New("baresip: not connected")
	ErrTimeout      = errors.New("baresip: command timed out")
)

// CommandError is a negative ctrl_tcp response.
type CommandError struct {
	Command string
	Data    string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("baresip: %s failed: %s", e.Command, e.Data)
}

// Config configures the ctrl_tcp client.
type Config struct {
	// Addr of the ctrl_tcp listener, e.g. 127.0.0.1:4444.
	Addr string

	// Stream is the PulseAudio stream selector reported as each call's
	// audio channel.
	Stream string

	// Timeout bounds each command round trip.
	Timeout time.Duration

	MinBackoff time.Duration
	MaxBackoff time.Duration

	Logger *slog.Logger
}

// message is the union of ctrl_tcp events and responses.
type message struct {
	Event     bool   `json:"event"`
	Class     string `json:"class"`
	Type      string `json:"type"`
	ID        string `json:"id"`
	PeerURI   string `json:"peeruri"`
	Param     string `json:"param"`
	Direction string `json:"direction"`

	Response bool   `json:"response"`
	OK       bool   `json:"ok"`
	Data     string `json:"data"`
	Token    string `json:"token"`
}

type command struct {
	Command string `json:"command"`
	Params  string `json:"params,omitempty"`
	Token   string `json:"token"`
}

// Client is a telephony.Agent backed by baresip.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	backoff *backoff.Backoff
	tokens  atomic.Uint64

	mu      sync.Mutex
	conn    net.Conn
	pending map[string]chan message
	calls   map[string]*call
}

// New creates a client. Run connects it.
func New(cfg Config) *Client {
	if cfg.Stream == "" {
		cfg.Stream = "baresip"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MinBackoff == 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "baresip"),
		backoff: backoff.New(cfg.MinBackoff, cfg.MaxBackoff),
		pending: make(map[string]chan message),
		calls:   make(map[string]*call),
	}
}

// Run connects to baresip and delivers call events to handler until ctx
// is cancelled, reconnecting with exponential backoff. Events are
// delivered from a single goroutine in arrival order; handler may issue
// call commands synchronously.
func (c *Client) Run(ctx context.Context, handler telephony.Handler) error {
	events := make(chan telephony.Event, 64)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		for ev := range events {
			handler(ev)
		}
	}()
	defer func() {
		close(events)
		<-dispatchDone
	}()

	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := c.backoff.Next()
			c.logger.Warn("connect failed", "addr", c.cfg.Addr, "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		c.backoff.Reset()
		c.logger.Info("connected", "addr", c.cfg.Addr)
		err = c.serve(ctx, conn, events)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("connection lost", "error", err)
	}
}

// serve reads frames from conn until it fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn net.Conn, events chan<- telephony.Event) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer c.drop(conn, events)

	r := bufio.NewReader(conn)
	for {
		frame, err := readFrame(r)
		if err != nil {
			return err
		}

		var msg message
		if err := json.Unmarshal(frame, &msg); err != nil {
			c.logger.Warn("bad message", "error", err)
			continue
		}

		switch {
		case msg.Response:
			c.resolve(msg)
		case msg.Event:
			for _, ev := range c.translate(msg) {
				events <- ev
			}
		}
	}
}

// drop forgets the connection, fails pending commands and reports every
// tracked call as disconnected.
func (c *Client) drop(conn net.Conn, events chan<- telephony.Event) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	pending := c.pending
	c.pending = make(map[string]chan message)
	calls := c.calls
	c.calls = make(map[string]*call)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	now := time.Now()
	for _, cl := range calls {
		events <- telephony.Event{Type: telephony.EventDisconnected, Call: cl, State: "CONNECTION_LOST", Time: now}
	}
}

func (c *Client) resolve(msg message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.Token]
	delete(c.pending, msg.Token)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("unsolicited response", "token", msg.Token)
		return
	}
	ch <- msg
}

// translate maps a ctrl_tcp call event to lifecycle events.
func (c *Client) translate(msg message) []telephony.Event {
	if msg.Class != "" && msg.Class != "call" {
		return nil
	}
	if msg.ID == "" {
		return nil
	}
	now := time.Now()

	c.mu.Lock()
	cl, known := c.calls[msg.ID]
	if !known && msg.Type == "CALL_INCOMING" {
		cl = &call{client: c, id: msg.ID, peer: msg.PeerURI}
		c.calls[msg.ID] = cl
		known = true
	}
	if msg.Type == "CALL_CLOSED" {
		delete(c.calls, msg.ID)
	}
	c.mu.Unlock()

	if !known {
		c.logger.Debug("event for unknown call", "type", msg.Type, "call_id", msg.ID)
		return nil
	}

	switch msg.Type {
	case "CALL_INCOMING":
		return []telephony.Event{{Type: telephony.EventIncoming, Call: cl, Time: now}}
	case "CALL_RINGING", "CALL_PROGRESS":
		return []telephony.Event{{Type: telephony.EventStateChanged, Call: cl, State: msg.Type, Time: now}}
	case "CALL_ESTABLISHED":
		return []telephony.Event{
			{Type: telephony.EventStateChanged, Call: cl, State: "CONFIRMED", Time: now},
			{Type: telephony.EventMediaActive, Call: cl, Time: now},
		}
	case "CALL_RTPESTAB":
		return []telephony.Event{{Type: telephony.EventMediaActive, Call: cl, Time: now}}
	case "CALL_CLOSED":
		return []telephony.Event{{Type: telephony.EventDisconnected, Call: cl, State: msg.Param, Time: now}}
	default:
		return nil
	}
}

// Command sends one ctrl_tcp command and waits for its response.
func (c *Client) Command(ctx context.Context, name, params string) (string, error) {
	token := strconv.FormatUint(c.tokens.Add(1), 10)
	payload, err := json.Marshal(command{Command: name, Params: params, Token: token})
	if err != nil {
		return "", err
	}

	ch := make(chan message, 1)
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return "", ErrNotConnected
	}
	c.pending[token] = ch
	err = writeFrame(conn, payload)
	c.mu.Unlock()
	if err != nil {
		c.forget(token)
		return "", fmt.Errorf("baresip: send %s: %w", name, err)
	}

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok {
			return "", ErrNotConnected
		}
		if !msg.OK {
			return "", &CommandError{Command: name, Data: msg.Data}
		}
		return msg.Data, nil
	case <-timer.C:
		c.forget(token)
		return "", fmt.Errorf("%w: %s", ErrTimeout, name)
	case <-ctx.Done():
		c.forget(token)
		return "", ctx.Err()
	}
}

func (c *Client) forget(token string) {
	c.mu.Lock()
	delete(c.pending, token)
	c.mu.Unlock()
}

// call is a baresip call handle.
type call struct {
	client *Client
	id     string
	peer   string
}

func (cl *call) ID() string           { return cl.id }
func (cl *call) Peer() string         { return cl.peer }
func (cl *call) AudioChannel() string { return cl.client.cfg.Stream }

func (cl *call) Answer(ctx context.Context) error {
	_, err := cl.client.Command(ctx, "accept", cl.id)
	return err
}

// Hangup sends "hangup <id>", or "hangup <id> <code>" for an explicit
// SIP status.
func (cl *call) Hangup(ctx context.Context, code int) error {
	params := cl.id
	if code != telephony.StatusNormal {
		params = cl.id + " " + strconv.Itoa(code)
	}
	_, err := cl.client.Command(ctx, "hangup", params)
	return err
}

var (
	_ telephony.Agent = (*Client)(nil)
	_ telephony.Call  = (*call)(nil)
)
