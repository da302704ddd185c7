package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextcampus/aula/internal/bus"
)

// WebhookEmitter delivers responses to the chat platform's outbound webhook
// as JSON POSTs.
type WebhookEmitter struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookEmitter creates an emitter posting to url. timeout bounds each
// delivery attempt.
func NewWebhookEmitter(url, token string, timeout time.Duration) *WebhookEmitter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebhookEmitter{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *WebhookEmitter) Emit(ctx context.Context, resp bus.Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	res, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("emit webhook: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("emit webhook: status %d", res.StatusCode)
	}
	return nil
}

// LogEmitter writes responses to the structured log. Standalone default when
// no outbound webhook is configured.
type LogEmitter struct {
	log *slog.Logger
}

// NewLogEmitter creates a log-only emitter.
func NewLogEmitter(log *slog.Logger) *LogEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(_ context.Context, resp bus.Response) error {
	e.log.Info("response",
		"session", resp.SessionKey,
		"category", resp.Metadata.Category,
		"tier", resp.Metadata.Tier,
		"confidence", resp.Metadata.Confidence,
		"escalated", resp.Metadata.Escalated,
		"text", resp.Text,
	)
	return nil
}
