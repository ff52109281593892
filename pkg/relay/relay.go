// Package relay drives the intercom's relay outputs over its HTTP API.
// Relay 1 is wired to the door strike, relay 2 to the porch light.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/teslashibe/go-doorbell/internal/httpc"
)

// Relay channels on the intercom.
const (
	Door  = 1
	Light = 2
)

// ErrNoHost is returned when the intercom address is missing.
var ErrNoHost = errors.New("relay: host required")

// Pulser momentarily activates one relay channel.
type Pulser interface {
	Pulse(ctx context.Context, relay int) error
}

// StatusError is returned when the intercom answers with a non-200 status.
type StatusError struct {
	Relay      int
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("relay %d: intercom returned status %d", e.Relay, e.StatusCode)
}

// Config describes the intercom endpoint.
type Config struct {
	Scheme   string
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Client calls `/fcgi/do?action=OpenDoor` on the intercom.
type Client struct {
	cfg    Config
	base   string
	http   *http.Client
	logger *slog.Logger
}

// New creates a relay client.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, ErrNoHost
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	host := cfg.Host
	if cfg.Port > 0 {
		host = host + ":" + strconv.Itoa(cfg.Port)
	}

	return &Client{
		cfg:    cfg,
		base:   cfg.Scheme + "://" + host,
		http:   httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "relay"),
	}, nil
}

// URL returns the request URL that pulses the given relay.
func (c *Client) URL(relay int) string {
	q := url.Values{}
	q.Set("action", "OpenDoor")
	q.Set("UserName", c.cfg.User)
	q.Set("Password", c.cfg.Password)
	q.Set("DoorNum", strconv.Itoa(relay))
	return c.base + "/fcgi/do?" + q.Encode()
}

// Pulse triggers relay once. It is not retried.
func (c *Client) Pulse(ctx context.Context, relay int) error {
	start := time.Now()
	resp, err := httpc.Get(ctx, c.http, c.URL(relay))
	if err != nil {
		c.logger.Error("relay request failed", "relay", relay, "error", err)
		return fmt.Errorf("relay %d: %w", relay, err)
	}
	defer httpc.Drain(resp)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("relay rejected", "relay", relay, "status", resp.StatusCode)
		return &StatusError{Relay: relay, StatusCode: resp.StatusCode}
	}

	c.logger.Info("relay pulsed", "relay", relay, "took", time.Since(start))
	return nil
}

var _ Pulser = (*Client)(nil)
