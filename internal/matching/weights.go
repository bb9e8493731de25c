package matching

import (
	"fmt"
	"math"
)

// Partial-credit constants. They are heuristics carried over for
// behavioral compatibility and may be tuned.
const (
	// TypeBucketCredit is the share of the type weight awarded when the
	// listing type is not desired but shares a broad category with one
	// that is.
	TypeBucketCredit = 0.7
	// LocationMarketCredit is the share of the location weight awarded
	// when preferred areas are stated but none matches.
	LocationMarketCredit = 0.3
	// NeutralCredit is the share awarded for a criterion the client did
	// not state.
	NeutralCredit = 0.5
)

// Weights are the per-criterion maximum points. They must sum to 100.
type Weights struct {
	Price    float64 `json:"price"`
	Type     float64 `json:"type"`
	Location float64 `json:"location"`
	Size     float64 `json:"size"`
	Features float64 `json:"features"`
}

// DefaultWeights returns price 25, type 25, location 25, size 15, features 10.
func DefaultWeights() Weights {
	return Weights{Price: 25, Type: 25, Location: 25, Size: 15, Features: 10}
}

// Total returns the sum of all weights.
func (w Weights) Total() float64 {
	return w.Price + w.Type + w.Location + w.Size + w.Features
}

// Validate checks that no weight is negative and that they sum to 100.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"price": w.Price, "type": w.Type, "location": w.Location,
		"size": w.Size, "features": w.Features,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if math.Abs(w.Total()-100) > epsilon {
		return fmt.Errorf("weights must sum to 100, got %v", w.Total())
	}
	return nil
}

// categoryBuckets is the coarse partition used for type partial credit.
var categoryBuckets = map[string]string{
	"apartment": "residential",
	"villa":     "residential",
	"house":     "residential",
	"office":    "commercial",
	"warehouse": "commercial",
	"shop":      "commercial",
}

// Bucket returns the broad category of a lower-cased property type, or ""
// for types outside the partition.
func Bucket(propertyType string) string {
	return categoryBuckets[propertyType]
}
