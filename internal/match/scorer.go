// Package match finds and ranks candidate pairings between lost and found
// items.
package match

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/model"
)

// Scorer applies the hard filters and the weighted composite score.
type Scorer struct {
	cfg      config.MatchingConfig
	semantic Provider
	image    Provider
	logger   *slog.Logger
}

// NewScorer returns a Scorer. Either provider may be nil, in which case its
// signal scores Neutral.
func NewScorer(cfg config.MatchingConfig, semantic, image Provider, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Scorer{
		cfg:      cfg,
		semantic: semantic,
		image:    image,
		logger:   logger.With("component", "scorer"),
	}
}

// FindMatches scores every item of the population against query and returns
// the candidates at or above the threshold, best first. Items of the same
// type as the query and the query itself are ignored.
func (s *Scorer) FindMatches(ctx context.Context, query model.Item, population []model.Item) []model.Candidate {
	slots := make([]*model.Candidate, len(population))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range population {
		item := population[i]
		if item.ID == query.ID || item.Type == query.Type {
			continue
		}
		g.Go(func() error {
			if c, ok := s.Evaluate(gctx, query, item); ok {
				slots[i] = &c
			}
			return nil
		})
	}
	g.Wait()

	var out []model.Candidate
	for _, c := range slots {
		if c != nil && c.Score >= s.cfg.Threshold {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, func(a, b model.Candidate) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(a.Item.ID, b.Item.ID)
	})
	return out
}

// Evaluate applies the hard filters to a single pair and, when it survives,
// computes its composite score. The threshold is not applied.
func (s *Scorer) Evaluate(ctx context.Context, query, cand model.Item) (model.Candidate, bool) {
	if TimeDiff(query.OccurredAt, cand.OccurredAt) > s.cfg.MaxTimeWindow {
		return model.Candidate{}, false
	}

	locScore := Neutral
	if query.Location != nil && cand.Location != nil {
		d := Distance(*query.Location, *cand.Location)
		if d > s.cfg.MaxDistanceKm {
			return model.Candidate{}, false
		}
		locScore = LocationScore(d, s.cfg)
	}

	breakdown := map[string]float64{
		model.SignalSemantic: s.call(ctx, s.semantic, query, cand),
		model.SignalColor:    ColorScore(query.Color, cand.Color),
		model.SignalLocation: locScore,
		model.SignalTime:     TimeScore(query.OccurredAt, cand.OccurredAt),
	}

	switch {
	case query.HasImages() && cand.HasImages():
		breakdown[model.SignalImage] = s.call(ctx, s.image, query, cand)
	case query.HasImages() || cand.HasImages():
		breakdown[model.SignalImage] = Neutral
	}

	return model.Candidate{
		Item:      cand,
		Score:     Composite(s.cfg.Weights, breakdown),
		Breakdown: breakdown,
	}, true
}

// call runs a provider under the configured timeout. Any failure yields
// Neutral.
func (s *Scorer) call(ctx context.Context, p Provider, a, b model.Item) float64 {
	if p == nil {
		return Neutral
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	score, err := p.Score(ctx, a, b)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		perr := &ProviderError{Provider: p.Name(), Err: err}
		s.logger.Warn("provider failed, using neutral score",
			"provider", perr.Provider, "query", a.ID, "candidate", b.ID, "error", perr.Err)
		return Neutral
	}
	return clamp(score)
}

// Composite combines per-signal scores into a 0-100 total. When the
// breakdown has no image signal its weight is dropped and the remaining
// weights are rescaled to 100.
func Composite(w config.Weights, breakdown map[string]float64) float64 {
	total := float64(w.Semantic)*breakdown[model.SignalSemantic] +
		float64(w.Color)*breakdown[model.SignalColor] +
		float64(w.Location)*breakdown[model.SignalLocation] +
		float64(w.Time)*breakdown[model.SignalTime]
	total /= 100

	if img, ok := breakdown[model.SignalImage]; ok {
		total += float64(w.Image) * img / 100
	} else if w.Image > 0 && w.Image < 100 {
		total = total * 100 / float64(100-w.Image)
	}

	return math.Round(clamp(total)*100) / 100
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
