package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	gocache "github.com/patrickmn/go-cache"

	"github.com/erazemk/najdeno/internal/imaging"
	"github.com/erazemk/najdeno/internal/model"
)

// ImageLoader returns the stored photos of an item.
type ImageLoader func(ctx context.Context, itemID int64) ([]model.Image, error)

// Image compares item photos by perceptual fingerprint. The score of a pair
// is the best similarity over every photo combination.
type Image struct {
	load         ImageLoader
	fingerprints *gocache.Cache
}

func NewImage(load ImageLoader) *Image {
	return &Image{
		load:         load,
		fingerprints: gocache.New(gocache.NoExpiration, 0),
	}
}

func (p *Image) Name() string { return "image" }

func (p *Image) Score(ctx context.Context, a, b model.Item) (float64, error) {
	fa, err := p.fingerprintsOf(ctx, a.ID)
	if err != nil {
		return 0, err
	}
	fb, err := p.fingerprintsOf(ctx, b.ID)
	if err != nil {
		return 0, err
	}

	best := 0.0
	for _, x := range fa {
		for _, y := range fb {
			best = max(best, x.Similarity(y))
		}
	}
	return best, nil
}

func (p *Image) fingerprintsOf(ctx context.Context, itemID int64) ([]imaging.Fingerprint, error) {
	images, err := p.load(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("loading images of item %d: %w", itemID, err)
	}

	var out []imaging.Fingerprint
	for _, img := range images {
		key := strconv.FormatInt(img.ID, 10)
		if fp, ok := p.fingerprints.Get(key); ok {
			out = append(out, fp.(imaging.Fingerprint))
			continue
		}
		fp, err := imaging.NewFingerprint(img.Data)
		if err != nil {
			slog.Warn("skipping undecodable image", "item", itemID, "image", img.ID, "error", err)
			continue
		}
		p.fingerprints.SetDefault(key, fp)
		out = append(out, fp)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("item %d has no usable images", itemID)
	}
	return out, nil
}
