package profile

import "time"

// Client status values. Clients are deactivated, never deleted.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Client is a buyer or tenant profile as stored by the client registry.
type Client struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	Preferences RawPreferences `json:"preferences"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RawPreferences mirrors the stated preference fields exactly as they were
// captured. Any field may be absent; nil means "not stated".
type RawPreferences struct {
	PriceMin       *float64 `json:"price_min,omitempty"`
	PriceMax       *float64 `json:"price_max,omitempty"`
	PropertyTypes  []string `json:"property_types,omitempty"`
	PreferredAreas []string `json:"preferred_areas,omitempty"`
	AreaMin        *float64 `json:"area_min,omitempty"`
	AreaMax        *float64 `json:"area_max,omitempty"`
	BedroomsMin    *int     `json:"bedrooms_min,omitempty"`
	BathroomsMin   *int     `json:"bathrooms_min,omitempty"`
}

// Range is a numeric interval where either bound may be unset.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Bounded reports whether both bounds are set.
func (r Range) Bounded() bool { return r.Min != nil && r.Max != nil }

// Specified reports whether at least one bound is set.
func (r Range) Specified() bool { return r.Min != nil || r.Max != nil }

// Preferences is the canonical preference record consumed by the scorers.
// Unset criteria stay nil/empty and are never defaulted to zero.
type Preferences struct {
	Price          Range    `json:"price"`
	PropertyTypes  []string `json:"property_types,omitempty"` // lower-cased, de-duplicated
	PreferredAreas []string `json:"preferred_areas,omitempty"`
	Size           Range    `json:"size"`
	BedroomsMin    *int     `json:"bedrooms_min,omitempty"`
	BathroomsMin   *int     `json:"bathrooms_min,omitempty"`
}

// HasFeatureMinimums reports whether a bedroom or bathroom minimum is set.
func (p Preferences) HasFeatureMinimums() bool {
	return p.BedroomsMin != nil || p.BathroomsMin != nil
}

// Completeness counts how many of the five preference dimensions are
// populated: price range, property types, preferred areas, size range and
// bedroom/bathroom minimums.
func (p Preferences) Completeness() int {
	n := 0
	if p.Price.Specified() {
		n++
	}
	if len(p.PropertyTypes) > 0 {
		n++
	}
	if len(p.PreferredAreas) > 0 {
		n++
	}
	if p.Size.Specified() {
		n++
	}
	if p.HasFeatureMinimums() {
		n++
	}
	return n
}

// TopArea returns the first preferred area, or "" when none is set.
func (p Preferences) TopArea() string {
	if len(p.PreferredAreas) == 0 {
		return ""
	}
	return p.PreferredAreas[0]
}

// TopType returns the first desired property type, or "" when none is set.
func (p Preferences) TopType() string {
	if len(p.PropertyTypes) == 0 {
		return ""
	}
	return p.PropertyTypes[0]
}
