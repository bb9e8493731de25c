package matching

import (
	"math"
	"strings"

	"github.com/kalambet/propmatch/internal/profile"
)

const epsilon = 1e-9

// Criterion names one of the five scoring dimensions.
type Criterion string

const (
	CriterionPrice    Criterion = "price"
	CriterionType     Criterion = "type"
	CriterionLocation Criterion = "location"
	CriterionSize     Criterion = "size"
	CriterionFeatures Criterion = "features"
)

// CriterionScore is the contribution of one criterion. Stated is false
// when the client expressed no preference and the neutral credit applied.
type CriterionScore struct {
	Criterion Criterion `json:"criterion"`
	Points    float64   `json:"points"`
	Weight    float64   `json:"weight"`
	Stated    bool      `json:"stated"`
}

// Full reports whether the criterion earned its entire weight.
func (c CriterionScore) Full() bool {
	return c.Stated && c.Weight > 0 && c.Points >= c.Weight-epsilon
}

// Result is a 0..100 relevance score with its per-criterion detail, in
// the fixed order price, type, location, size, features.
type Result struct {
	Score    int              `json:"score"`
	Criteria []CriterionScore `json:"criteria"`
}

// Criterion returns the detail for c.
func (r Result) Criterion(c Criterion) (CriterionScore, bool) {
	for _, cs := range r.Criteria {
		if cs.Criterion == c {
			return cs, true
		}
	}
	return CriterionScore{}, false
}

// Scorer computes client/property relevance. It is stateless and safe for
// concurrent use.
type Scorer struct {
	weights Weights
}

// NewScorer returns a Scorer using DefaultWeights.
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights()}
}

// NewScorerWithWeights returns a Scorer with custom weights.
func NewScorerWithWeights(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w}, nil
}

// Weights returns the weights in use.
func (s *Scorer) Weights() Weights { return s.weights }

// Score rates how well prop fits prefs.
//
// The score is normalized over the criteria the client stated, so a fully
// satisfied partial profile still reaches 100. When nothing is stated every
// criterion carries its neutral credit and the score is 50.
func (s *Scorer) Score(prefs profile.Preferences, prop Property) Result {
	w := s.weights
	criteria := []CriterionScore{
		rangeScore(CriterionPrice, w.Price, prefs.Price, prop.Price),
		typeScore(w.Type, prefs.PropertyTypes, prop.Type),
		locationScore(w.Location, prefs.PreferredAreas, prop.Location),
		rangeScore(CriterionSize, w.Size, prefs.Size, prop.Size),
		featuresScore(w.Features, prefs, prop.Features),
	}

	var stated, statedWeight, all, allWeight float64
	for _, c := range criteria {
		all += c.Points
		allWeight += c.Weight
		if c.Stated {
			stated += c.Points
			statedWeight += c.Weight
		}
	}

	points, total := all, allWeight
	if statedWeight > 0 {
		points, total = stated, statedWeight
	}
	score := 0
	if total > 0 {
		score = int(math.Round(100 * points / total))
	}
	return Result{Score: min(max(score, 0), 100), Criteria: criteria}
}

// rangeScore awards full weight inside [min, max] and partial credit
// weight * max(0, 1 - |v - mid| / (max - min)) outside it. Only a range
// with both bounds is scored. A stated range against a listing without
// the value earns the neutral credit.
func rangeScore(c Criterion, weight float64, r profile.Range, v *float64) CriterionScore {
	cs := CriterionScore{Criterion: c, Weight: weight}
	if !r.Bounded() {
		cs.Points = weight * NeutralCredit
		return cs
	}
	cs.Stated = true
	if v == nil {
		cs.Points = weight * NeutralCredit
		return cs
	}
	lo, hi := *r.Min, *r.Max
	if *v >= lo && *v <= hi {
		cs.Points = weight
		return cs
	}
	width := hi - lo
	if width <= 0 {
		return cs
	}
	mid := (lo + hi) / 2
	cs.Points = weight * math.Max(0, 1-math.Abs(*v-mid)/width)
	return cs
}

func typeScore(weight float64, desired []string, propType string) CriterionScore {
	cs := CriterionScore{Criterion: CriterionType, Weight: weight}
	if len(desired) == 0 {
		cs.Points = weight * NeutralCredit
		return cs
	}
	cs.Stated = true
	propType = strings.ToLower(strings.TrimSpace(propType))
	bucket := Bucket(propType)
	sameBucket := false
	for _, d := range desired {
		if d == propType {
			cs.Points = weight
			return cs
		}
		if bucket != "" && Bucket(d) == bucket {
			sameBucket = true
		}
	}
	if sameBucket {
		cs.Points = weight * TypeBucketCredit
	}
	return cs
}

func locationScore(weight float64, areas []string, loc Location) CriterionScore {
	cs := CriterionScore{Criterion: CriterionLocation, Weight: weight}
	if len(areas) == 0 {
		cs.Points = weight * NeutralCredit
		return cs
	}
	cs.Stated = true
	fields := []string{
		strings.ToLower(loc.Area),
		strings.ToLower(loc.District),
		strings.ToLower(loc.City),
	}
	for _, a := range areas {
		token := strings.ToLower(a)
		for _, f := range fields {
			if f != "" && strings.Contains(f, token) {
				cs.Points = weight
				return cs
			}
		}
	}
	cs.Points = weight * LocationMarketCredit
	return cs
}

// featuresScore splits the weight evenly across the minimums the client
// set; each passing check earns its share.
func featuresScore(weight float64, prefs profile.Preferences, f Features) CriterionScore {
	cs := CriterionScore{Criterion: CriterionFeatures, Weight: weight}
	if !prefs.HasFeatureMinimums() {
		cs.Points = weight * NeutralCredit
		return cs
	}
	cs.Stated = true

	var checks, passed int
	if prefs.BedroomsMin != nil {
		checks++
		if f.Bedrooms >= *prefs.BedroomsMin {
			passed++
		}
	}
	if prefs.BathroomsMin != nil {
		checks++
		if f.Bathrooms >= *prefs.BathroomsMin {
			passed++
		}
	}
	cs.Points = weight * float64(passed) / float64(checks)
	return cs
}
