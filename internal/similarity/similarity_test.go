package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/match"
	"github.com/erazemk/najdeno/internal/model"
)

var (
	wallet = model.Item{
		ID: 1, Type: model.ItemTypeLost, Name: "Brown leather wallet",
		Description: "Bifold wallet with a library card and two bank cards",
		Tags:        []string{"wallet", "leather"},
	}
	foundWallet = model.Item{
		ID: 2, Type: model.ItemTypeFound, Name: "wallet",
		Description: "Leather bifold wallet, bank cards inside",
		Tags:        []string{"wallet"},
	}
	umbrella = model.Item{
		ID: 3, Type: model.ItemTypeFound, Name: "Umbrella",
		Description: "Red folding umbrella",
		Tags:        []string{"umbrella"},
	}
)

func TestLexicalScore(t *testing.T) {
	ctx := context.Background()
	var p Lexical

	same, _ := p.Score(ctx, wallet, wallet)
	if same != 100 {
		t.Errorf("identical items = %v, want 100", same)
	}

	related, _ := p.Score(ctx, wallet, foundWallet)
	unrelated, _ := p.Score(ctx, wallet, umbrella)
	if related <= unrelated {
		t.Errorf("wallet~wallet (%v) should beat wallet~umbrella (%v)", related, unrelated)
	}
	if unrelated != 0 {
		t.Errorf("unrelated = %v, want 0", unrelated)
	}

	empty, _ := p.Score(ctx, model.Item{ID: 5}, model.Item{ID: 6})
	if empty != match.Neutral {
		t.Errorf("empty items = %v, want neutral", empty)
	}
}

func TestLexicalSymmetric(t *testing.T) {
	ctx := context.Background()
	var p Lexical
	items := []model.Item{wallet, foundWallet, umbrella}
	for _, a := range items {
		for _, b := range items {
			ab, _ := p.Score(ctx, a, b)
			ba, _ := p.Score(ctx, b, a)
			if ab != ba {
				t.Errorf("Score(%d, %d) = %v but Score(%d, %d) = %v", a.ID, b.ID, ab, b.ID, a.ID, ba)
			}
		}
	}
}

func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Temperature != 0 {
			t.Errorf("temperature = %v, want 0", req.Temperature)
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "Brown leather wallet") {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIScore(t *testing.T) {
	tests := []struct {
		name    string
		content string
		status  int
		want    float64
		wantErr bool
	}{
		{"integer", `{"score": 87}`, http.StatusOK, 87, false},
		{"rounded and clamped", `{"score": 120.4}`, http.StatusOK, 100, false},
		{"missing score", `{"verdict": "same"}`, http.StatusOK, 0, true},
		{"not json", `probably the same wallet`, http.StatusOK, 0, true},
		{"server error", "", http.StatusServiceUnavailable, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := chatServer(t, tt.content, tt.status)
			p, err := NewOpenAI(config.OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
			if err != nil {
				t.Fatalf("NewOpenAI: %v", err)
			}

			got, err := p.Score(context.Background(), wallet, foundWallet)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got score %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if got != tt.want {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(config.OpenAIConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}

func stripes(vertical bool) []byte {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			v := uint8(x * 4)
			if vertical {
				v = uint8(255 - x*4)
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestImageScore(t *testing.T) {
	photos := map[int64][]model.Image{
		1: {{ID: 10, ItemID: 1, Data: stripes(false)}},
		2: {{ID: 20, ItemID: 2, Data: []byte("corrupt")}, {ID: 21, ItemID: 2, Data: stripes(false)}},
		3: {{ID: 30, ItemID: 3, Data: stripes(true)}},
		4: {{ID: 40, ItemID: 4, Data: []byte("corrupt")}},
	}
	var loads atomic.Int32
	p := NewImage(func(_ context.Context, itemID int64) ([]model.Image, error) {
		loads.Add(1)
		return photos[itemID], nil
	})
	ctx := context.Background()

	got, err := p.Score(ctx, model.Item{ID: 1}, model.Item{ID: 2})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 100 {
		t.Errorf("best pair = %v, want 100", got)
	}

	ab, _ := p.Score(ctx, model.Item{ID: 1}, model.Item{ID: 3})
	ba, _ := p.Score(ctx, model.Item{ID: 3}, model.Item{ID: 1})
	if ab != ba {
		t.Errorf("not symmetric: %v vs %v", ab, ba)
	}
	if ab >= 50 {
		t.Errorf("opposite gradients = %v, want < 50", ab)
	}

	if _, err := p.Score(ctx, model.Item{ID: 1}, model.Item{ID: 4}); err == nil {
		t.Error("expected error when an item has no usable images")
	}
}

type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Score(_ context.Context, a, b model.Item) (float64, error) {
	p.calls.Add(1)
	return float64(a.ID + b.ID), p.err
}

func TestCachedSymmetricKey(t *testing.T) {
	next := &countingProvider{}
	c := NewCached(next, time.Minute)
	ctx := context.Background()

	a, b := model.Item{ID: 1}, model.Item{ID: 2}
	for _, pair := range [][2]model.Item{{a, b}, {b, a}, {a, b}} {
		got, err := c.Score(ctx, pair[0], pair[1])
		if err != nil || got != 3 {
			t.Fatalf("Score = %v, %v", got, err)
		}
	}
	if next.calls.Load() != 1 {
		t.Errorf("underlying calls = %d, want 1", next.calls.Load())
	}

	b.ImageCount = 1
	c.Score(ctx, a, b)
	if next.calls.Load() != 2 {
		t.Errorf("new image should bypass the cache, calls = %d", next.calls.Load())
	}
}

func TestCachedSkipsErrors(t *testing.T) {
	next := &countingProvider{err: errors.New("boom")}
	c := NewCached(next, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.Score(context.Background(), model.Item{ID: 1}, model.Item{ID: 2}); err == nil {
			t.Fatal("expected error")
		}
	}
	if next.calls.Load() != 2 {
		t.Errorf("errors must not be cached, calls = %d", next.calls.Load())
	}
}

func TestLimitedHonoursContext(t *testing.T) {
	next := &countingProvider{}
	l := NewLimited(next, 0.001, 1)
	ctx := context.Background()

	if _, err := l.Score(ctx, model.Item{ID: 1}, model.Item{ID: 2}); err != nil {
		t.Fatalf("first call within burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Score(ctx, model.Item{ID: 1}, model.Item{ID: 2}); err == nil {
		t.Error("expected rate limit wait to fail on deadline")
	}
	if next.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", next.calls.Load())
	}
}

func TestNew(t *testing.T) {
	cfg := config.Default().Similarity
	semantic, img, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if semantic.Name() != "lexical" || img.Name() != "image" {
		t.Errorf("providers = %s, %s", semantic.Name(), img.Name())
	}

	cfg.Provider = "openai"
	if _, _, err := New(cfg, nil); err == nil {
		t.Error("expected error for openai without key")
	}

	cfg.Provider = "oracle"
	if _, _, err := New(cfg, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
