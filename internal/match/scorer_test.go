package match

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/model"
)

var occurred = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

// stubProvider returns a fixed score, optionally after a delay or with an error.
type stubProvider struct {
	score float64
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Score(ctx context.Context, a, b model.Item) (float64, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return p.score, p.err
}

func testItem(id int64, typ string, lat, lon float64, at time.Time) model.Item {
	return model.Item{
		ID:          id,
		Type:        typ,
		Name:        "black backpack",
		Description: "black backpack with a laptop sleeve",
		Color:       "black",
		Location:    &model.Location{Latitude: lat, Longitude: lon},
		OccurredAt:  at,
		Status:      model.ItemStatusPending,
	}
}

func newTestScorer(semantic, image Provider) *Scorer {
	cfg := config.Default().Matching
	cfg.ProviderTimeout = 50 * time.Millisecond
	return NewScorer(cfg, semantic, image, nil)
}

func TestFindMatchesHardFilters(t *testing.T) {
	s := newTestScorer(&stubProvider{score: 100}, nil)

	query := testItem(1, model.ItemTypeLost, 12.9716, 77.5946, occurred)
	near := testItem(2, model.ItemTypeFound, 12.9720, 77.5950, occurred.Add(20*time.Minute))
	far := testItem(3, model.ItemTypeFound, 13.0166, 77.5946, occurred)
	late := testItem(4, model.ItemTypeFound, 12.9716, 77.5946, occurred.Add(3*time.Hour))

	got := s.FindMatches(context.Background(), query, []model.Item{near, far, late})
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(got), got)
	}
	if got[0].Item.ID != near.ID {
		t.Errorf("expected item %d, got %d", near.ID, got[0].Item.ID)
	}
	if got[0].Score < 95 {
		t.Errorf("expected a high score for a near-identical pair, got %v", got[0].Score)
	}
}

func TestFindMatchesExcludedDespitePerfectSignals(t *testing.T) {
	s := newTestScorer(&stubProvider{score: 100}, &stubProvider{score: 100})

	query := testItem(1, model.ItemTypeLost, 12.9716, 77.5946, occurred)
	query.ImageCount = 1
	far := testItem(2, model.ItemTypeFound, 13.0166, 77.5946, occurred)
	far.ImageCount = 1

	if _, ok := s.Evaluate(context.Background(), query, far); ok {
		t.Error("expected candidate beyond the radius to be excluded")
	}
}

func TestFindMatchesWithoutCoordinates(t *testing.T) {
	s := newTestScorer(&stubProvider{score: 100}, nil)

	query := testItem(1, model.ItemTypeLost, 0, 0, occurred)
	query.Location = nil
	cand := testItem(2, model.ItemTypeFound, 40, 40, occurred)

	c, ok := s.Evaluate(context.Background(), query, cand)
	if !ok {
		t.Fatal("expected candidate without coordinates to pass the filters")
	}
	if c.Breakdown[model.SignalLocation] != Neutral {
		t.Errorf("location = %v, want neutral", c.Breakdown[model.SignalLocation])
	}
}

func TestFindMatchesIgnoresSameTypeAndSelf(t *testing.T) {
	s := newTestScorer(&stubProvider{score: 100}, nil)

	query := testItem(1, model.ItemTypeLost, 12.9716, 77.5946, occurred)
	other := testItem(2, model.ItemTypeLost, 12.9716, 77.5946, occurred)

	if got := s.FindMatches(context.Background(), query, []model.Item{query, other}); len(got) != 0 {
		t.Errorf("expected no candidates, got %+v", got)
	}
}

func TestFindMatchesThreshold(t *testing.T) {
	s := newTestScorer(&stubProvider{score: 0}, nil)

	query := testItem(1, model.ItemTypeLost, 12.9716, 77.5946, occurred)
	cand := testItem(2, model.ItemTypeFound, 12.9716, 77.5946, occurred)
	cand.Color = "white"

	c, ok := s.Evaluate(context.Background(), query, cand)
	if !ok {
		t.Fatal("expected candidate to pass the filters")
	}
	if c.Score >= s.cfg.Threshold {
		t.Fatalf("test setup: score %v should be below threshold", c.Score)
	}
	if got := s.FindMatches(context.Background(), query, []model.Item{cand}); len(got) != 0 {
		t.Errorf("expected candidate below threshold to be dropped, got %+v", got)
	}
}

func TestFindMatchesOrdering(t *testing.T) {
	s := newTestScorer(&stubProvider{score: 90}, nil)

	query := testItem(1, model.ItemTypeLost, 12.9716, 77.5946, occurred)
	best := testItem(9, model.ItemTypeFound, 12.9716, 77.5946, occurred)
	tieB := testItem(7, model.ItemTypeFound, 12.9740, 77.5946, occurred)
	tieA := testItem(3, model.ItemTypeFound, 12.9740, 77.5946, occurred)

	for run := 0; run < 5; run++ {
		got := s.FindMatches(context.Background(), query, []model.Item{tieB, best, tieA})
		if len(got) != 3 {
			t.Fatalf("expected 3 candidates, got %d", len(got))
		}
		ids := []int64{got[0].Item.ID, got[1].Item.ID, got[2].Item.ID}
		if ids[0] != 9 || ids[1] != 3 || ids[2] != 7 {
			t.Fatalf("run %d: order = %v, want [9 3 7]", run, ids)
		}
	}
}

func TestProviderFailureIsNeutral(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubProvider
	}{
		{"error", &stubProvider{score: 100, err: errors.New("upstream 503")}},
		{"timeout", &stubProvider{score: 100, delay: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScorer(tt.provider, nil)
			query := testItem(1, model.ItemTypeLost, 12.9716, 77.5946, occurred)
			cand := testItem(2, model.ItemTypeFound, 12.9716, 77.5946, occurred)

			start := time.Now()
			c, ok := s.Evaluate(context.Background(), query, cand)
			if !ok {
				t.Fatal("expected candidate to be evaluated")
			}
			if c.Breakdown[model.SignalSemantic] != Neutral {
				t.Errorf("semantic = %v, want neutral", c.Breakdown[model.SignalSemantic])
			}
			if time.Since(start) > 500*time.Millisecond {
				t.Errorf("provider timeout not enforced, took %v", time.Since(start))
			}
		})
	}
}

func TestImageSignal(t *testing.T) {
	image := &stubProvider{score: 20}
	s := newTestScorer(&stubProvider{score: 100}, image)

	query := testItem(1, model.ItemTypeLost, 12.9716, 77.5946, occurred)
	cand := testItem(2, model.ItemTypeFound, 12.9716, 77.5946, occurred)

	// Neither side has images: the image weight is dropped and the rest rescaled.
	c, _ := s.Evaluate(context.Background(), query, cand)
	if _, ok := c.Breakdown[model.SignalImage]; ok {
		t.Error("expected no image signal without images")
	}
	if c.Score != 100 {
		t.Errorf("rescaled score = %v, want 100", c.Score)
	}

	// One side has images: neutral, provider not consulted.
	query.ImageCount = 2
	c, _ = s.Evaluate(context.Background(), query, cand)
	if c.Breakdown[model.SignalImage] != Neutral {
		t.Errorf("image = %v, want neutral", c.Breakdown[model.SignalImage])
	}
	if image.calls.Load() != 0 {
		t.Errorf("image provider called %d times, want 0", image.calls.Load())
	}

	// Both sides: the provider decides.
	cand.ImageCount = 1
	c, _ = s.Evaluate(context.Background(), query, cand)
	if c.Breakdown[model.SignalImage] != 20 {
		t.Errorf("image = %v, want 20", c.Breakdown[model.SignalImage])
	}
	if c.Score != 84 {
		t.Errorf("score = %v, want 84", c.Score)
	}
}

func TestCompositeMonotonic(t *testing.T) {
	w := config.Default().Matching.Weights
	signals := []string{model.SignalSemantic, model.SignalColor, model.SignalLocation, model.SignalTime, model.SignalImage}

	for _, signal := range signals {
		prev := -1.0
		for v := 0.0; v <= 100; v += 5 {
			breakdown := map[string]float64{
				model.SignalSemantic: 60, model.SignalColor: 60, model.SignalLocation: 60,
				model.SignalTime: 60, model.SignalImage: 60,
			}
			breakdown[signal] = v
			got := Composite(w, breakdown)
			if got < prev {
				t.Fatalf("%s: composite decreased at %v: %v < %v", signal, v, got, prev)
			}
			if got < 0 || got > 100 {
				t.Fatalf("%s: composite %v out of range", signal, got)
			}
			prev = got
		}
	}
}

func TestCompositeRescalesWithoutImage(t *testing.T) {
	w := config.Weights{Semantic: 40, Color: 10, Location: 20, Time: 10, Image: 20}
	breakdown := map[string]float64{
		model.SignalSemantic: 80, model.SignalColor: 80, model.SignalLocation: 80, model.SignalTime: 80,
	}
	if got := Composite(w, breakdown); math.Abs(got-80) > 1e-9 {
		t.Errorf("Composite = %v, want 80", got)
	}
}
