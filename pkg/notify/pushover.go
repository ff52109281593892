package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-doorbell/internal/httpc"
)

// PushoverURL is the Pushover message endpoint.
const PushoverURL = "https://api.pushover.net/1/messages.json"

// Pushover sends messages through the Pushover API.
type Pushover struct {
	user   string
	token  string
	url    string
	client *http.Client
	logger *slog.Logger
}

// PushoverOption configures a Pushover notifier.
type PushoverOption func(*Pushover)

// WithPushoverURL overrides the endpoint, for tests.
func WithPushoverURL(u string) PushoverOption {
	return func(p *Pushover) { p.url = u }
}

// WithPushoverLogger sets the logger.
func WithPushoverLogger(l *slog.Logger) PushoverOption {
	return func(p *Pushover) { p.logger = l }
}

// NewPushover returns a Pushover notifier for the given user key and API token.
func NewPushover(user, token string, opts ...PushoverOption) *Pushover {
	p := &Pushover{
		user:   user,
		token:  token,
		url:    PushoverURL,
		client: httpc.NewClient(10 * time.Second),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pushover")
	return p
}

type pushoverResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

// Notify posts the message. Messages carrying an image are sent as
// multipart with an "attachment" part.
func (p *Pushover) Notify(ctx context.Context, msg Message) error {
	if p.user == "" || p.token == "" {
		return ErrNotConfigured
	}

	var (
		resp *http.Response
		err  error
	)
	if len(msg.Image) > 0 {
		resp, err = p.postMultipart(ctx, msg)
	} else {
		resp, err = httpc.PostForm(ctx, p.client, p.url, p.form(msg))
	}
	if err != nil {
		return fmt.Errorf("pushover: %w", err)
	}
	defer httpc.Drain(resp)

	var body pushoverResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		return &APIError{Provider: "pushover", StatusCode: resp.StatusCode, Message: strings.Join(body.Errors, "; ")}
	}
	if decodeErr != nil {
		return fmt.Errorf("pushover: decode response: %w", decodeErr)
	}
	if body.Status != 1 {
		p.logger.Warn("notification rejected", "status", body.Status, "request", body.Request, "errors", body.Errors)
		return &APIError{Provider: "pushover", StatusCode: resp.StatusCode, Message: strings.Join(body.Errors, "; ")}
	}

	p.logger.Debug("notification sent", "request", body.Request)
	return nil
}

func (p *Pushover) form(msg Message) url.Values {
	v := url.Values{}
	v.Set("token", p.token)
	v.Set("user", p.user)
	v.Set("message", msg.Text)
	if msg.Title != "" {
		v.Set("title", msg.Title)
	}
	return v
}

func (p *Pushover) postMultipart(ctx context.Context, msg Message) (*http.Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range p.form(msg) {
		for _, v := range vs {
			if err := w.WriteField(k, v); err != nil {
				return nil, err
			}
		}
	}

	name := msg.ImageName
	if name == "" {
		name = "snapshot.jpg"
	}
	part, err := w.CreateFormFile("attachment", name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(msg.Image); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return httpc.Post(ctx, p.client, p.url, w.FormDataContentType(), &buf)
}

var _ Notifier = (*Pushover)(nil)
