package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/teslashibe/go-doorbell/internal/httpc"
)

// WebhookPayload is the JSON body posted to a webhook.
type WebhookPayload struct {
	Event     string `json:"event"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
	HasImage  bool   `json:"has_image,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Webhook posts notifications as JSON.
type Webhook struct {
	url    string
	event  string
	client *http.Client
	now    func() time.Time
}

// NewWebhook returns a webhook notifier. event is copied into every payload.
func NewWebhook(url, event string) *Webhook {
	return &Webhook{
		url:    url,
		event:  event,
		client: httpc.NewClient(10 * time.Second),
		now:    time.Now,
	}
}

// Notify implements Notifier. Any non-2xx status is an error.
func (w *Webhook) Notify(ctx context.Context, msg Message) error {
	if w.url == "" {
		return ErrNotConfigured
	}

	data, err := json.Marshal(WebhookPayload{
		Event:     w.event,
		Title:     msg.Title,
		Message:   msg.Text,
		HasImage:  len(msg.Image) > 0,
		Timestamp: w.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	resp, err := httpc.Post(ctx, w.client, w.url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer httpc.Drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Provider: "webhook", StatusCode: resp.StatusCode}
	}
	return nil
}

var _ Notifier = (*Webhook)(nil)
