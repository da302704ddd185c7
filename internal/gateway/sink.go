package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nextcampus/aula/internal/store"
)

// WebhookSink forwards escalation records to a staff-facing webhook
// (ticketing system, ops channel bridge).
type WebhookSink struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookSink creates a sink posting to url.
func NewWebhookSink(url, token string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *WebhookSink) Deliver(ctx context.Context, rec store.EscalationRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("escalation webhook: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("escalation webhook: status %d", res.StatusCode)
	}
	return nil
}
