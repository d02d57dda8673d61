// Package similarity provides the semantic and image scorers consumed by
// the match package, plus caching and throttling decorators.
package similarity

import (
	"context"
	"regexp"
	"strings"

	"github.com/erazemk/najdeno/internal/match"
	"github.com/erazemk/najdeno/internal/model"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "with": true,
	"in": true, "on": true, "at": true, "my": true, "is": true, "it": true,
	"for": true, "to": true, "was": true, "near": true,
}

// Lexical scores items by the overlap of their name, description and tag
// vocabularies. It needs no network access and is deterministic.
type Lexical struct{}

func (Lexical) Name() string { return "lexical" }

// Score returns the Dice coefficient of the two token sets scaled to 0-100.
// Tags and name tokens count twice. Two items without any text score neutral.
func (Lexical) Score(_ context.Context, a, b model.Item) (float64, error) {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return match.Neutral, nil
	}

	var shared, total float64
	for tok, w := range ta {
		total += w
		if wb, ok := tb[tok]; ok {
			shared += min(w, wb)
		}
	}
	for _, w := range tb {
		total += w
	}
	return 100 * 2 * shared / total, nil
}

func tokens(item model.Item) map[string]float64 {
	out := map[string]float64{}
	add := func(s string, weight float64) {
		for _, tok := range tokenPattern.FindAllString(strings.ToLower(s), -1) {
			if stopwords[tok] {
				continue
			}
			out[tok] = max(out[tok], weight)
		}
	}
	add(item.Description, 1)
	add(item.Name, 2)
	for _, tag := range item.Tags {
		add(tag, 2)
	}
	return out
}
