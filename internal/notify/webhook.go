package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/docqueue/pkg/types"
)

// Payload is the JSON body posted by Webhook.
type Payload struct {
	ID        types.TaskID     `json:"id"`
	Status    types.TaskStatus `json:"status"`
	Message   string           `json:"message"`
	Record    types.TaskRecord `json:"record"`
	Timestamp time.Time        `json:"timestamp"`
}

// Webhook posts notifications as JSON to an external endpoint.
type Webhook struct {
	url    string
	client *http.Client
	now    func() time.Time
}

var _ Notifier = (*Webhook)(nil)

// NewWebhook creates a Webhook notifier with the given request timeout.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Notify posts one Payload. A non-2xx response is an error.
func (w *Webhook) Notify(ctx context.Context, id types.TaskID, rec types.TaskRecord, message string) error {
	if w.url == "" || w.client == nil {
		return fmt.Errorf("webhook notifier misconfigured")
	}

	body, err := json.Marshal(Payload{
		ID:        id,
		Status:    rec.Status,
		Message:   message,
		Record:    rec,
		Timestamp: w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook error: %s", resp.Status)
	}
	return nil
}
