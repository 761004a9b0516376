package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wfce/gmgn-filter/internal/logging"
	"github.com/wfce/gmgn-filter/internal/model"
)

// maxErrorBody caps how much of a failed response ends up in the error.
const maxErrorBody = 4096

// Payload is the JSON body posted for each action.
type Payload struct {
	Chain     string    `json:"chain"`
	Address   string    `json:"address"`
	Key       string    `json:"key"`
	Distinct  int       `json:"distinct"`
	RecencyMs *int64    `json:"recency_ms,omitempty"`
	Position  int       `json:"position"`
	SentAt    time.Time `json:"sent_at"`
}

// Webhook posts targets to an HTTP endpoint. Any 2xx response counts as
// success.
type Webhook struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhook creates a webhook executor. The request deadline comes from
// the context passed to Execute.
func NewWebhook(url, token string) *Webhook {
	return &Webhook{
		url:    url,
		token:  token,
		client: &http.Client{},
	}
}

func (w *Webhook) Execute(ctx context.Context, t model.Target) error {
	body, err := json.Marshal(Payload{
		Chain:     t.Identity.Chain,
		Address:   t.Identity.Address,
		Key:       t.Key,
		Distinct:  t.Distinct,
		RecencyMs: t.RecencyMs,
		Position:  t.Position,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	logging.Debug("webhook request", "url", w.url, "token", t.Identity.Short())

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.Error("webhook error", "status", resp.StatusCode, "body", string(msg))
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
