package ranking

import (
	"sort"

	"github.com/kalambet/propmatch/internal/matching"
	"github.com/kalambet/propmatch/internal/profile"
)

// maxConfidence caps the display confidence.
const maxConfidence = 0.95

// Candidate is one retained listing with its score detail.
type Candidate struct {
	Property   matching.Property `json:"property"`
	Match      matching.Result   `json:"match"`
	Confidence float64           `json:"confidence"`
}

// Options bound a ranking run.
type Options struct {
	MinScore   int
	MaxResults int
	// Exclude holds property ids already offered to the client.
	Exclude map[string]struct{}
}

// Scorer rates one listing for one client. *matching.Scorer satisfies it.
type Scorer interface {
	Score(prefs profile.Preferences, prop matching.Property) matching.Result
}

// Ranker scores a catalog against one client's preferences.
type Ranker struct {
	scorer Scorer
}

// NewRanker creates a Ranker backed by scorer.
func NewRanker(scorer Scorer) *Ranker {
	return &Ranker{scorer: scorer}
}

// Rank scores every available, non-excluded listing in catalog, drops those
// below opts.MinScore, and returns the rest by score descending, ties kept in
// catalog order, capped at opts.MaxResults.
func (r *Ranker) Rank(prefs profile.Preferences, catalog []matching.Property, opts Options) []Candidate {
	if opts.MaxResults <= 0 {
		return []Candidate{}
	}

	kept := make([]Candidate, 0, len(catalog))
	for _, p := range catalog {
		if !p.Available() {
			continue
		}
		if _, skip := opts.Exclude[p.ID]; skip {
			continue
		}
		res := r.scorer.Score(prefs, p)
		if res.Score < opts.MinScore {
			continue
		}
		kept = append(kept, Candidate{
			Property:   p,
			Match:      res,
			Confidence: Confidence(res.Score),
		})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Match.Score > kept[j].Match.Score
	})

	if len(kept) > opts.MaxResults {
		kept = kept[:opts.MaxResults]
	}
	return kept
}

// Confidence maps a match score to min(0.95, score/100 + 0.1). It is for
// display only and plays no part in ordering.
func Confidence(score int) float64 {
	return min(maxConfidence, float64(score)/100+0.1)
}
