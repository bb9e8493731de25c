package advice

import "fmt"

// HotMatchScore is the score at which a high-intent client should be sent
// matches immediately.
const HotMatchScore = 85

const maxImmediateSends = 3

// Recommendations returns prioritized next actions for an agent given the
// client's intent score and the scores of the retained matches, best first.
func Recommendations(intentScore int, scores []int) []string {
	if len(scores) == 0 {
		return []string{
			"No listings meet the current criteria: broaden the preferred areas or property types",
			"Review the budget range with the client",
		}
	}

	var out []string
	switch {
	case intentScore >= 4:
		out = append(out, "High-intent client: reach out immediately")
		if countAtLeast(scores, HotMatchScore) > 0 {
			out = append(out,
				fmt.Sprintf("Send up to %d top matches now", min(maxImmediateSends, len(scores))),
				"Schedule a viewing within 48 hours",
			)
		}
	case intentScore == 3:
		out = append(out, "Moderate intent: keep a steady, regular follow-up")
		if len(scores) >= 3 {
			out = append(out,
				"Send the top 3 matches with detailed descriptions",
				"Follow up in 2-3 days",
			)
		}
	default:
		out = append(out,
			"Low intent: focus on building trust before pushing listings",
			"Send only the single best match with thorough information",
			"Arrange a conversation to better understand the client's needs",
		)
	}

	if n := countAtLeast(scores, ExcellentScore); n > 0 {
		out = append(out, fmt.Sprintf("%d excellent %s (score %d+)", n, plural(n), ExcellentScore))
	}
	if n := countAtLeast(scores, GoodScore) - countAtLeast(scores, ExcellentScore); n > 0 {
		out = append(out, fmt.Sprintf("%d good %s (score %d-%d)", n, plural(n), GoodScore, ExcellentScore-1))
	}
	return out
}

func countAtLeast(scores []int, threshold int) int {
	n := 0
	for _, s := range scores {
		if s >= threshold {
			n++
		}
	}
	return n
}

func plural(n int) string {
	if n == 1 {
		return "match"
	}
	return "matches"
}
