package advice

import "github.com/kalambet/propmatch/internal/matching"

// Holistic score tiers.
const (
	ExcellentScore = 90
	GoodScore      = 80
)

// Per-criterion justifications, emitted only when the criterion earned its
// full weight.
var criterionReasons = map[matching.Criterion]string{
	matching.CriterionPrice:    "price within requested budget",
	matching.CriterionType:     "type matches stated preference",
	matching.CriterionLocation: "location in a preferred area",
	matching.CriterionSize:     "size meets stated requirement",
	matching.CriterionFeatures: "bedroom/bathroom count meets minimum",
}

const (
	reasonExcellent = "excellent match across all criteria"
	reasonGood      = "good match across most criteria"
)

// Reasons lists why a match scored as it did: one entry per fully satisfied
// criterion in scoring order, then a holistic remark for high scores.
func Reasons(res matching.Result) []string {
	out := make([]string, 0, len(res.Criteria)+1)
	seen := make(map[string]struct{}, len(res.Criteria))
	for _, c := range res.Criteria {
		if !c.Full() {
			continue
		}
		text, ok := criterionReasons[c.Criterion]
		if !ok {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, text)
	}

	switch {
	case res.Score >= ExcellentScore:
		out = append(out, reasonExcellent)
	case res.Score >= GoodScore:
		out = append(out, reasonGood)
	}
	return out
}
