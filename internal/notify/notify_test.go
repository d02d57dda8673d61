package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLogRedactsCode(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))

	data := map[string]any{"code": "482913", "item": "wallet"}
	if !n.Send(context.Background(), "alice@example.com", "handover_code", data) {
		t.Fatal("expected Send to succeed")
	}

	out := buf.String()
	if strings.Contains(out, "482913") {
		t.Errorf("code leaked into log: %s", out)
	}
	if !strings.Contains(out, "handover_code") || !strings.Contains(out, "wallet") {
		t.Errorf("unexpected log output: %s", out)
	}
	if data["code"] != "482913" {
		t.Error("redaction modified the caller's data")
	}
}

func TestWebhookSend(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewWebhook(server.URL, time.Second, nil)
	ok := n.Send(context.Background(), "bob@example.com", "handover_pending", map[string]any{"match_id": "m1"})
	if !ok {
		t.Fatal("expected Send to succeed")
	}
	if got.Recipient != "bob@example.com" || got.Template != "handover_pending" || got.Data["match_id"] != "m1" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestWebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhook(server.URL, time.Second, nil)
	if n.Send(context.Background(), "bob@example.com", "handover_pending", nil) {
		t.Error("expected Send to fail on 502")
	}

	server.Close()
	if n.Send(context.Background(), "bob@example.com", "handover_pending", nil) {
		t.Error("expected Send to fail when the server is gone")
	}
}
