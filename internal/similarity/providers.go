package similarity

import (
	"fmt"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/match"
)

// New builds the semantic and image providers described by cfg.
func New(cfg config.SimilarityConfig, load ImageLoader) (semantic, image match.Provider, err error) {
	switch cfg.Provider {
	case "", "lexical":
		semantic = Lexical{}
	case "openai":
		p, err := NewOpenAI(cfg.OpenAI)
		if err != nil {
			return nil, nil, err
		}
		semantic = NewCached(NewLimited(p, cfg.Rate, cfg.Burst), cfg.CacheTTL)
	default:
		return nil, nil, fmt.Errorf("unknown similarity provider %q", cfg.Provider)
	}

	image = NewCached(NewImage(load), cfg.CacheTTL)
	return semantic, image, nil
}
