package intent

import (
	"math"
	"time"

	"github.com/kalambet/propmatch/internal/profile"
)

// Score bounds and the fallback used when inputs could not be loaded.
const (
	MinScore     = 1
	MaxScore     = 5
	DefaultScore = 3
)

// ActivityWindow is the trailing window for the recent-activity adjustment.
const ActivityWindow = 7 * 24 * time.Hour

// Client responses to an offered match.
const (
	ResponseInterested    = "interested"
	ResponseNotInterested = "not_interested"
	ResponseNoResponse    = "no_response"
)

// The running score is kept in thousandths of a point so that repeated
// evaluation never drifts with float rounding.
const (
	milli          = 1000
	baseMilli      = 3 * milli
	newAccountDays = 7
	staleDays      = 90
)

// Event is a single client interaction (view, inquiry, call, ...).
type Event struct {
	At   time.Time
	Kind string
}

// Outcome is the delivery state of one previously scored match.
// Response is "" when the client has not responded yet.
type Outcome struct {
	Sent     bool
	Response string
}

// Input is everything the scorer needs about one client.
type Input struct {
	Preferences     profile.Preferences
	Events          []Event
	History         []Outcome
	ClientCreatedAt time.Time
}

// Breakdown exposes each adjustment in points for diagnostics.
type Breakdown struct {
	Completeness   float64 `json:"completeness"`
	Activity       float64 `json:"activity"`
	Responsiveness float64 `json:"responsiveness"`
	AccountAge     float64 `json:"account_age"`
	Raw            float64 `json:"raw"`
	RecentEvents   int     `json:"recent_events"`
	ResponseRate   float64 `json:"response_rate"`
}

// Result is an intent score in [MinScore, MaxScore] with its breakdown.
type Result struct {
	Score     int       `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Scorer computes behavioral intent scores. It holds no per-client state
// and is safe for concurrent use.
type Scorer struct {
	clock Clock
}

// NewScorer creates a Scorer using the wall clock.
func NewScorer() *Scorer {
	return &Scorer{clock: realClock{}}
}

// NewScorerWithClock creates a Scorer with a custom clock (for testing).
func NewScorerWithClock(clock Clock) *Scorer {
	return &Scorer{clock: clock}
}

// Score computes the 1..5 intent score for in.
func (s *Scorer) Score(in Input) Result {
	now := s.clock.Now()

	completeness := (in.Preferences.Completeness()*2 - 5) * 200 // (count-2.5) * 0.4

	recent := CountRecent(in.Events, now)
	activity := 0
	switch {
	case recent >= 5:
		activity = milli
	case recent >= 3:
		activity = milli / 2
	case recent == 0:
		activity = -milli
	}

	rate, responsiveness := responseRate(in.History)

	age := 0
	daysOld := now.Sub(in.ClientCreatedAt).Hours() / 24
	switch {
	case daysOld < newAccountDays:
		age = 300
	case daysOld > staleDays && recent == 0:
		age = -500
	}

	raw := baseMilli + completeness + activity + responsiveness + age
	clamped := min(max(raw, MinScore*milli), MaxScore*milli)

	return Result{
		Score: (clamped + milli/2) / milli,
		Breakdown: Breakdown{
			Completeness:   points(completeness),
			Activity:       points(activity),
			Responsiveness: points(responsiveness),
			AccountAge:     points(age),
			Raw:            points(raw),
			RecentEvents:   recent,
			ResponseRate:   rate,
		},
	}
}

// CountRecent counts events inside the trailing ActivityWindow ending at
// now, both ends inclusive.
func CountRecent(events []Event, now time.Time) int {
	cutoff := now.Add(-ActivityWindow)
	n := 0
	for _, e := range events {
		if e.At.Before(cutoff) || e.At.After(now) {
			continue
		}
		n++
	}
	return n
}

// responseRate returns the share of answered, sent matches that were not
// rejected, and the matching adjustment in thousandths. An empty history is
// neutral (0.5, no adjustment).
func responseRate(history []Outcome) (float64, int) {
	var answered, positive int
	for _, o := range history {
		if !o.Sent || o.Response == "" {
			continue
		}
		answered++
		if o.Response != ResponseNotInterested {
			positive++
		}
	}
	if answered == 0 {
		return 0.5, 0
	}
	rate := float64(positive) / float64(answered)
	adj := int(math.Round(float64((2*positive-answered)*milli) / float64(answered)))
	return rate, adj
}

func points(m int) float64 { return float64(m) / milli }
