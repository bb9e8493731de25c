package profile

import (
	"encoding/json"
	"log/slog"
	"math"
	"strings"
)

// Normalize converts raw preference fields into a canonical Preferences
// record. It is total: every input produces a result.
//
//   - numeric bounds that are NaN, infinite or negative are treated as unset
//   - a range given as min > max is swapped
//   - negative bedroom/bathroom minimums are treated as unset
//   - property types are trimmed, lower-cased and de-duplicated
//   - preferred areas are trimmed and de-duplicated case-insensitively,
//     keeping the first spelling and the stated order
func Normalize(raw RawPreferences) Preferences {
	return Preferences{
		Price:          normalizeRange(raw.PriceMin, raw.PriceMax),
		PropertyTypes:  normalizeTags(raw.PropertyTypes, true),
		PreferredAreas: normalizeTags(raw.PreferredAreas, false),
		Size:           normalizeRange(raw.AreaMin, raw.AreaMax),
		BedroomsMin:    normalizeMinimum(raw.BedroomsMin),
		BathroomsMin:   normalizeMinimum(raw.BathroomsMin),
	}
}

// DecodePreferences parses a stored preferences payload. Malformed payloads
// are logged and yield empty preferences so one bad record cannot block
// matching.
func DecodePreferences(payload string) RawPreferences {
	var raw RawPreferences
	if strings.TrimSpace(payload) == "" {
		return raw
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		slog.Warn("malformed client preferences, treating as empty", "error", err)
		return RawPreferences{}
	}
	return raw
}

func normalizeRange(lo, hi *float64) Range {
	lo, hi = validBound(lo), validBound(hi)
	if lo != nil && hi != nil && *lo > *hi {
		lo, hi = hi, lo
	}
	return Range{Min: lo, Max: hi}
}

func validBound(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return nil
	}
	c := *v
	return &c
}

func normalizeMinimum(v *int) *int {
	if v == nil || *v < 0 {
		return nil
	}
	c := *v
	return &c
}

func normalizeTags(in []string, lower bool) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if lower {
			s = key
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
