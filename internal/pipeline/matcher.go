package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/propmatch/internal/advice"
	"github.com/kalambet/propmatch/internal/intent"
	"github.com/kalambet/propmatch/internal/matching"
	"github.com/kalambet/propmatch/internal/profile"
	"github.com/kalambet/propmatch/internal/ranking"
	"github.com/kalambet/propmatch/internal/storage"
)

// OperationMatch is the operation-log name of a match invocation.
const OperationMatch = "match"

// maxInsights caps the pass-through market insights.
const maxInsights = 3

// Names of collaborator calls whose failure was absorbed.
const (
	SourceCatalog      = "catalog"
	SourceSentHistory  = "sent_history"
	SourceInteractions = "interactions"
	SourceIntentScore  = "intent_score"
	SourceInsights     = "market_insights"
	SourceOperationLog = "operation_log"
)

// Store is the set of collaborators a match invocation reads from and
// writes to. *storage.Store implements it.
type Store interface {
	GetClient(ctx context.Context, id string) (profile.Client, error)
	ListAvailableProperties(ctx context.Context, limit int) ([]matching.Property, error)
	ListSentMatchRecords(ctx context.Context, clientID string) ([]storage.MatchRecord, error)
	ListInteractionsSince(ctx context.Context, clientID string, since, until time.Time) ([]storage.Interaction, error)
	LatestIntentScore(ctx context.Context, clientID string) (storage.IntentScoreRecord, error)
	ListMarketInsights(ctx context.Context, area, propertyType string, limit int) ([]storage.MarketInsight, error)
	SaveIntentScore(ctx context.Context, r storage.IntentScoreRecord) error
	UpsertMatchRecord(ctx context.Context, r storage.MatchRecord) error
	AppendOperationLog(ctx context.Context, e storage.OperationLog) error
}

// Request is the invocation contract. Nil MaxResults/MinScore take the
// configured defaults.
type Request struct {
	ClientID     string `json:"client_id" validate:"required"`
	RefreshScore bool   `json:"refresh_score"`
	MaxResults   *int   `json:"max_results,omitempty" validate:"omitempty,min=1,max=100"`
	MinScore     *int   `json:"min_score,omitempty" validate:"omitempty,min=0,max=100"`
}

// Match is one ranked listing in a Response.
type Match struct {
	PropertyID   string            `json:"property_id"`
	Property     matching.Property `json:"property"`
	MatchScore   int               `json:"match_score"`
	MatchReasons []string          `json:"match_reasons"`
	Confidence   float64           `json:"confidence"`
}

// Response is a successful invocation result. Degraded names the reads
// that failed and were replaced by their documented defaults.
type Response struct {
	Success         bool                    `json:"success"`
	ClientID        string                  `json:"client_id"`
	Matches         []Match                 `json:"matches"`
	IntentScore     int                     `json:"intent_score"`
	Recommendations []string                `json:"recommendations"`
	MarketInsights  []storage.MarketInsight `json:"market_insights"`
	ExecutionTimeMS int64                   `json:"execution_time_ms"`
	Degraded        []string                `json:"degraded,omitempty"`
}

// Options are the defaults and caller-side bounds of an invocation.
type Options struct {
	MinScore   int
	MaxResults int
	// MaxCatalog caps the catalog snapshot; 0 means unbounded.
	MaxCatalog int
}

// DefaultOptions returns min score 70, 10 results and a 5000 listing
// catalog cap.
func DefaultOptions() Options {
	return Options{MinScore: 70, MaxResults: 10, MaxCatalog: 5000}
}

// Matcher runs match invocations: it loads a snapshot from the store,
// hands it to the pure scoring components and persists the outcome.
type Matcher struct {
	store    Store
	opts     Options
	intent   *intent.Scorer
	ranker   *ranking.Ranker
	validate *validator.Validate
	clock    intent.Clock
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// NewMatcher creates a Matcher using the wall clock.
func NewMatcher(store Store, opts Options) *Matcher {
	return NewMatcherWithClock(store, opts, wallClock{})
}

// NewMatcherWithClock creates a Matcher with a custom clock (for testing).
func NewMatcherWithClock(store Store, opts Options, clock intent.Clock) *Matcher {
	return &Matcher{
		store:    store,
		opts:     opts,
		intent:   intent.NewScorerWithClock(clock),
		ranker:   ranking.NewRanker(matching.NewScorer()),
		validate: validator.New(),
		clock:    clock,
	}
}

// snapshot is everything loaded for one invocation.
type snapshot struct {
	catalog      []matching.Property
	sent         []storage.MatchRecord
	interactions []storage.Interaction
	latest       *storage.IntentScoreRecord
	insights     []storage.MarketInsight
	degraded     map[string]bool
}

// Run executes one invocation. Errors are always *Error.
func (m *Matcher) Run(ctx context.Context, req Request) (resp Response, err error) {
	start := time.Now()

	req.ClientID = strings.TrimSpace(req.ClientID)
	minScore, maxResults := m.opts.MinScore, m.opts.MaxResults
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	if req.MaxResults != nil {
		maxResults = *req.MaxResults
	}
	if verr := m.validate.Struct(req); verr != nil {
		return Response{}, validationError("invalid request", verr)
	}

	client, err := m.store.GetClient(ctx, req.ClientID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && client.Status == profile.StatusInactive) {
		return Response{}, notFoundError(fmt.Sprintf("client %q not found", req.ClientID))
	}

	summary := fmt.Sprintf("refresh_score=%t min_score=%d max_results=%d", req.RefreshScore, minScore, maxResults)
	defer func() {
		if r := recover(); r != nil {
			err = internalError("matching failed", fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			m.logFailure(req.ClientID, summary, err)
			resp = Response{}
		}
	}()

	if err != nil {
		return Response{}, internalError("loading client", err)
	}

	prefs := profile.Normalize(client.Preferences)
	now := m.clock.Now()
	snap := m.load(ctx, client.ID, prefs, req.RefreshScore, now)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Response{}, internalError("loading match inputs", ctxErr)
	}

	score, err := m.intentScore(ctx, client, prefs, snap, now)
	if err != nil {
		return Response{}, err
	}

	exclude := make(map[string]struct{}, len(snap.sent))
	for _, r := range snap.sent {
		exclude[r.PropertyID] = struct{}{}
	}
	ranked := m.ranker.Rank(prefs, snap.catalog, ranking.Options{
		MinScore:   minScore,
		MaxResults: maxResults,
		Exclude:    exclude,
	})

	matches := make([]Match, 0, len(ranked))
	scores := make([]int, 0, len(ranked))
	for _, c := range ranked {
		matches = append(matches, Match{
			PropertyID:   c.Property.ID,
			Property:     c.Property,
			MatchScore:   c.Match.Score,
			MatchReasons: advice.Reasons(c.Match),
			Confidence:   c.Confidence,
		})
		scores = append(scores, c.Match.Score)
	}

	for _, mt := range matches {
		if err := m.store.UpsertMatchRecord(ctx, storage.MatchRecord{
			ClientID:     client.ID,
			PropertyID:   mt.PropertyID,
			MatchScore:   mt.MatchScore,
			MatchReasons: mt.MatchReasons,
			UpdatedAt:    now,
		}); err != nil {
			return Response{}, internalError("writing match ledger", err)
		}
	}

	resp = Response{
		Success:         true,
		ClientID:        client.ID,
		Matches:         matches,
		IntentScore:     score,
		Recommendations: advice.Recommendations(score, scores),
		MarketInsights:  snap.insights,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}

	if err := m.store.AppendOperationLog(ctx, storage.OperationLog{
		ID:           uuid.NewString(),
		Operation:    OperationMatch,
		ClientID:     client.ID,
		Status:       storage.OperationSuccess,
		ExecutionMS:  resp.ExecutionTimeMS,
		InputSummary: summary,
		CreatedAt:    now,
	}); err != nil {
		slog.Warn("match: appending operation log failed", "client_id", client.ID, "error", err)
		snap.degraded[SourceOperationLog] = true
	}
	resp.Degraded = degradedList(snap.degraded)

	slog.Info("match completed",
		"client_id", client.ID,
		"matches", len(matches),
		"intent_score", score,
		"duration_ms", resp.ExecutionTimeMS,
		"degraded", resp.Degraded,
	)
	return resp, nil
}

// load fans out the independent reads. A failed read is logged, marked
// degraded and left at its zero value; it never fails the invocation.
func (m *Matcher) load(ctx context.Context, clientID string, prefs profile.Preferences, refresh bool, now time.Time) snapshot {
	snap := snapshot{
		catalog:  []matching.Property{},
		insights: []storage.MarketInsight{},
		degraded: make(map[string]bool),
	}
	failed := make([]bool, 5)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		catalog, err := m.store.ListAvailableProperties(gCtx, m.opts.MaxCatalog)
		if err != nil {
			failed[0] = degrade(SourceCatalog, clientID, err)
			return nil
		}
		snap.catalog = catalog
		return nil
	})
	g.Go(func() error {
		sent, err := m.store.ListSentMatchRecords(gCtx, clientID)
		if err != nil {
			failed[1] = degrade(SourceSentHistory, clientID, err)
			return nil
		}
		snap.sent = sent
		return nil
	})
	g.Go(func() error {
		events, err := m.store.ListInteractionsSince(gCtx, clientID, now.Add(-intent.ActivityWindow), now)
		if err != nil {
			failed[2] = degrade(SourceInteractions, clientID, err)
			return nil
		}
		snap.interactions = events
		return nil
	})
	if !refresh {
		g.Go(func() error {
			latest, err := m.store.LatestIntentScore(gCtx, clientID)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			if err != nil {
				failed[3] = degrade(SourceIntentScore, clientID, err)
				return nil
			}
			snap.latest = &latest
			return nil
		})
	}
	g.Go(func() error {
		insights, err := m.store.ListMarketInsights(gCtx, prefs.TopArea(), prefs.TopType(), maxInsights)
		if err != nil {
			failed[4] = degrade(SourceInsights, clientID, err)
			return nil
		}
		if len(insights) > maxInsights {
			insights = insights[:maxInsights]
		}
		snap.insights = insights
		return nil
	})
	_ = g.Wait()

	for i, name := range []string{SourceCatalog, SourceSentHistory, SourceInteractions, SourceIntentScore, SourceInsights} {
		if failed[i] {
			snap.degraded[name] = true
		}
	}
	return snap
}

func degrade(source, clientID string, err error) bool {
	slog.Warn("match: read failed, continuing with default", "source", source, "client_id", clientID, "error", err)
	return true
}

// intentScore reuses the latest stored score when allowed, otherwise
// computes and appends a fresh one. When its inputs could not be read the
// default score is used and nothing is persisted.
func (m *Matcher) intentScore(ctx context.Context, client profile.Client, prefs profile.Preferences, snap snapshot, now time.Time) (int, error) {
	if snap.latest != nil {
		return snap.latest.OverallScore, nil
	}
	if snap.degraded[SourceInteractions] || snap.degraded[SourceSentHistory] {
		return intent.DefaultScore, nil
	}

	in := intent.Input{
		Preferences:     prefs,
		ClientCreatedAt: client.CreatedAt,
		Events:          make([]intent.Event, 0, len(snap.interactions)),
		History:         make([]intent.Outcome, 0, len(snap.sent)),
	}
	for _, i := range snap.interactions {
		in.Events = append(in.Events, intent.Event{At: i.CreatedAt, Kind: i.Kind})
	}
	for _, r := range snap.sent {
		in.History = append(in.History, intent.Outcome{Sent: r.WasSent, Response: r.ClientResponse})
	}
	res := m.intent.Score(in)

	if err := m.store.SaveIntentScore(ctx, storage.IntentScoreRecord{
		ID:           uuid.NewString(),
		ClientID:     client.ID,
		OverallScore: res.Score,
		CalculatedAt: now,
	}); err != nil {
		return 0, internalError("saving intent score", err)
	}
	return res.Score, nil
}

// logFailure appends an error entry with zero execution time. It is best
// effort: a failure here is logged and otherwise ignored.
func (m *Matcher) logFailure(clientID, summary string, cause error) {
	slog.Error("match failed", "client_id", clientID, "error", cause)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.store.AppendOperationLog(ctx, storage.OperationLog{
		ID:           uuid.NewString(),
		Operation:    OperationMatch,
		ClientID:     clientID,
		Status:       storage.OperationError,
		ExecutionMS:  0,
		InputSummary: summary,
		Error:        cause.Error(),
		CreatedAt:    m.clock.Now(),
	}); err != nil {
		slog.Warn("match: recording failed operation", "client_id", clientID, "error", err)
	}
}

func degradedList(set map[string]bool) []string {
	var out []string
	for _, name := range []string{SourceCatalog, SourceSentHistory, SourceInteractions, SourceIntentScore, SourceInsights, SourceOperationLog} {
		if set[name] {
			out = append(out, name)
		}
	}
	return out
}
