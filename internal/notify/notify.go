// Package notify delivers handover notifications to item owners.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"
)

// secretKeys are data fields that must never be logged.
var secretKeys = []string{"code"}

// Log writes notifications to the log instead of delivering them. Secret
// fields are redacted.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "notify")}
}

func (l *Log) Send(_ context.Context, recipient, templateID string, data map[string]any) bool {
	l.logger.Info("notification", "recipient", recipient, "template", templateID, "data", redact(data))
	return true
}

func redact(data map[string]any) map[string]any {
	out := maps.Clone(data)
	for k := range out {
		if slices.Contains(secretKeys, k) {
			out[k] = "[redacted]"
		}
	}
	return out
}

// Webhook posts each notification as JSON to a URL, for a mail relay or
// chat bridge to render and deliver.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "notify"),
	}
}

type webhookPayload struct {
	Recipient string         `json:"recipient"`
	Template  string         `json:"template"`
	Data      map[string]any `json:"data"`
}

func (w *Webhook) Send(ctx context.Context, recipient, templateID string, data map[string]any) bool {
	body, err := json.Marshal(webhookPayload{Recipient: recipient, Template: templateID, Data: data})
	if err != nil {
		w.logger.Error("encoding notification", "template", templateID, "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("building notification request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("notification not delivered", "template", templateID, "recipient", recipient, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.logger.Warn("notification rejected", "template", templateID, "recipient", recipient, "status", resp.StatusCode)
		return false
	}
	w.logger.Info("notification sent", "template", templateID, "recipient", recipient)
	return true
}
