package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/kalambet/propmatch/internal/intent"
	"github.com/kalambet/propmatch/internal/matching"
	"github.com/kalambet/propmatch/internal/profile"
	"github.com/kalambet/propmatch/internal/storage"
)

// --- fixtures ---

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var now = time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }
func intp(v int) *int         { return &v }

// faultyStore wraps a real store and fails selected calls.
type faultyStore struct {
	*storage.Store
	fail  map[string]error
	calls []string
}

func (f *faultyStore) hit(name string) error {
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *faultyStore) GetClient(ctx context.Context, id string) (profile.Client, error) {
	if err := f.hit("GetClient"); err != nil {
		return profile.Client{}, err
	}
	return f.Store.GetClient(ctx, id)
}

func (f *faultyStore) ListAvailableProperties(ctx context.Context, limit int) ([]matching.Property, error) {
	if err := f.fail["ListAvailableProperties"]; err != nil {
		return nil, err
	}
	return f.Store.ListAvailableProperties(ctx, limit)
}

func (f *faultyStore) ListSentMatchRecords(ctx context.Context, clientID string) ([]storage.MatchRecord, error) {
	if err := f.fail["ListSentMatchRecords"]; err != nil {
		return nil, err
	}
	return f.Store.ListSentMatchRecords(ctx, clientID)
}

func (f *faultyStore) ListInteractionsSince(ctx context.Context, clientID string, since, until time.Time) ([]storage.Interaction, error) {
	if err := f.fail["ListInteractionsSince"]; err != nil {
		return nil, err
	}
	return f.Store.ListInteractionsSince(ctx, clientID, since, until)
}

func (f *faultyStore) ListMarketInsights(ctx context.Context, area, propertyType string, limit int) ([]storage.MarketInsight, error) {
	if err := f.fail["ListMarketInsights"]; err != nil {
		return nil, err
	}
	return f.Store.ListMarketInsights(ctx, area, propertyType, limit)
}

func (f *faultyStore) UpsertMatchRecord(ctx context.Context, r storage.MatchRecord) error {
	if err := f.fail["UpsertMatchRecord"]; err != nil {
		return err
	}
	return f.Store.UpsertMatchRecord(ctx, r)
}

func newTestStore(t *testing.T) *faultyStore {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &faultyStore{Store: s, fail: map[string]error{}}
}

// seed stores the Ajman villa buyer and a small catalog:
//
//	A  villa, Ajman Corniche, 500000  -> 100
//	B  house, Ajman, 500000           -> 90 (type bucket credit)
//	C  villa, Dubai Marina, 500000    -> 77 (location market credit)
//	D  office, Sharjah, 2000000       -> 10
//	E  villa, Ajman, 550000, sold     -> not a candidate
func seed(t *testing.T, s *faultyStore, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()

	client := profile.Client{
		ID:        "c1",
		Name:      "Buyer",
		CreatedAt: createdAt,
		Preferences: profile.RawPreferences{
			PriceMin:       f64(400000),
			PriceMax:       f64(600000),
			PropertyTypes:  []string{"villa"},
			PreferredAreas: []string{"Ajman"},
		},
	}
	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient: %v", err)
	}

	props := []matching.Property{
		{ID: "A", Type: "villa", Price: f64(500000), Location: matching.Location{Area: "Ajman Corniche"}},
		{ID: "B", Type: "house", Price: f64(500000), Location: matching.Location{City: "Ajman"}},
		{ID: "C", Type: "villa", Price: f64(500000), Location: matching.Location{Area: "Dubai Marina"}},
		{ID: "D", Type: "office", Price: f64(2000000), Location: matching.Location{City: "Sharjah"}},
		{ID: "E", Type: "villa", Price: f64(550000), Location: matching.Location{City: "Ajman"}, Status: "sold"},
	}
	for _, p := range props {
		if err := s.SaveProperty(ctx, p); err != nil {
			t.Fatalf("SaveProperty %s: %v", p.ID, err)
		}
	}
}

func newMatcher(s Store) *Matcher {
	return NewMatcherWithClock(s, DefaultOptions(), fixedClock{now})
}

func matchIDs(r Response) []string {
	var ids []string
	for _, m := range r.Matches {
		ids = append(ids, m.PropertyID)
	}
	return ids
}

// --- tests ---

func TestRun_RanksCatalogAndPersists(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, now.Add(-time.Hour))
	m := newMatcher(s)
	ctx := context.Background()

	resp, err := m.Run(ctx, Request{ClientID: "c1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !resp.Success || resp.ClientID != "c1" {
		t.Errorf("Success/ClientID = %v/%q", resp.Success, resp.ClientID)
	}
	if got := matchIDs(resp); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("matches = %v, want [A B C]", got)
	}
	if resp.Matches[0].MatchScore != 100 || resp.Matches[1].MatchScore != 90 || resp.Matches[2].MatchScore != 77 {
		t.Errorf("scores = %d/%d/%d, want 100/90/77",
			resp.Matches[0].MatchScore, resp.Matches[1].MatchScore, resp.Matches[2].MatchScore)
	}
	wantReasons := []string{
		"price within requested budget",
		"type matches stated preference",
		"location in a preferred area",
		"excellent match across all criteria",
	}
	if !slices.Equal(resp.Matches[0].MatchReasons, wantReasons) {
		t.Errorf("reasons = %q, want %q", resp.Matches[0].MatchReasons, wantReasons)
	}
	if resp.Matches[0].Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", resp.Matches[0].Confidence)
	}

	// 3 + 0.2 (3 of 5 dimensions) - 1 (no activity) + 0.3 (new account) = 2.5 -> 3
	if resp.IntentScore != 3 {
		t.Errorf("IntentScore = %d, want 3", resp.IntentScore)
	}
	if len(resp.Recommendations) == 0 {
		t.Error("expected recommendations")
	}
	if len(resp.Degraded) != 0 {
		t.Errorf("Degraded = %v, want none", resp.Degraded)
	}

	ledger, err := s.ListMatchRecords(ctx, "c1")
	if err != nil {
		t.Fatalf("ListMatchRecords: %v", err)
	}
	if len(ledger) != 3 {
		t.Errorf("ledger has %d records, want 3", len(ledger))
	}

	latest, err := s.LatestIntentScore(ctx, "c1")
	if err != nil {
		t.Fatalf("LatestIntentScore: %v", err)
	}
	if latest.OverallScore != 3 {
		t.Errorf("stored intent = %d, want 3", latest.OverallScore)
	}

	ops, err := s.ListOperationLogs(ctx, 10)
	if err != nil {
		t.Fatalf("ListOperationLogs: %v", err)
	}
	if len(ops) != 1 || ops[0].Status != storage.OperationSuccess || ops[0].Operation != OperationMatch {
		t.Errorf("operation log = %+v", ops)
	}
}

func TestRun_ExcludesSentAndRespectsBounds(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, now.AddDate(0, -1, 0))
	ctx := context.Background()

	if err := s.UpsertMatchRecord(ctx, storage.MatchRecord{ClientID: "c1", PropertyID: "A", MatchScore: 100}); err != nil {
		t.Fatalf("UpsertMatchRecord: %v", err)
	}
	if err := s.MarkMatchDelivered(ctx, "c1", "A", intent.ResponseInterested); err != nil {
		t.Fatalf("MarkMatchDelivered: %v", err)
	}

	m := newMatcher(s)
	resp, err := m.Run(ctx, Request{ClientID: "c1", MinScore: intp(80), MaxResults: intp(5)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := matchIDs(resp); !slices.Equal(got, []string{"B"}) {
		t.Errorf("matches = %v, want [B]", got)
	}

	resp, err = m.Run(ctx, Request{ClientID: "c1", MinScore: intp(0), MaxResults: intp(2)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := matchIDs(resp); !slices.Equal(got, []string{"B", "C"}) {
		t.Errorf("matches = %v, want [B C]", got)
	}

	// The delivered record keeps its delivery state after re-ranking.
	sent, _ := s.ListSentMatchRecords(ctx, "c1")
	if len(sent) != 1 || sent[0].ClientResponse != intent.ResponseInterested {
		t.Errorf("sent ledger = %+v", sent)
	}
}

func TestRun_Validation(t *testing.T) {
	s := newTestStore(t)
	m := newMatcher(s)

	tests := []struct {
		name string
		req  Request
	}{
		{"missing client", Request{}},
		{"blank client", Request{ClientID: "   "}},
		{"min score too high", Request{ClientID: "c1", MinScore: intp(101)}},
		{"negative min score", Request{ClientID: "c1", MinScore: intp(-1)}},
		{"zero results", Request{ClientID: "c1", MaxResults: intp(0)}},
	}
	for _, tt := range tests {
		_, err := m.Run(context.Background(), tt.req)
		if KindOf(err) != KindValidation {
			t.Errorf("%s: err = %v, want validation error", tt.name, err)
		}
		if StatusOf(err) != 400 {
			t.Errorf("%s: status = %d, want 400", tt.name, StatusOf(err))
		}
	}
	if len(s.calls) != 0 {
		t.Errorf("validation failures reached the store: %v", s.calls)
	}
}

func TestRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, now)
	ctx := context.Background()
	m := newMatcher(s)

	if _, err := m.Run(ctx, Request{ClientID: "ghost"}); KindOf(err) != KindNotFound {
		t.Errorf("unknown client: err = %v, want not found", err)
	}

	if err := s.DeactivateClient(ctx, "c1"); err != nil {
		t.Fatalf("DeactivateClient: %v", err)
	}
	if _, err := m.Run(ctx, Request{ClientID: "c1"}); KindOf(err) != KindNotFound {
		t.Errorf("inactive client: err = %v, want not found", err)
	}

	ops, _ := s.ListOperationLogs(ctx, 10)
	if len(ops) != 0 {
		t.Errorf("not-found should not log an operation, got %+v", ops)
	}
}

func TestRun_DegradedReadsUseDefaults(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, now.Add(-time.Hour))
	s.fail["ListInteractionsSince"] = errors.New("interactions offline")
	s.fail["ListMarketInsights"] = errors.New("insights offline")
	ctx := context.Background()

	resp, err := newMatcher(s).Run(ctx, Request{ClientID: "c1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.IntentScore != intent.DefaultScore {
		t.Errorf("IntentScore = %d, want default %d", resp.IntentScore, intent.DefaultScore)
	}
	if !slices.Equal(resp.Degraded, []string{SourceInteractions, SourceInsights}) {
		t.Errorf("Degraded = %v", resp.Degraded)
	}
	if len(resp.Matches) != 3 {
		t.Errorf("matches = %v, ranking should continue", matchIDs(resp))
	}
	if resp.MarketInsights == nil {
		t.Error("MarketInsights should be an empty list, not nil")
	}
	if _, err := s.LatestIntentScore(ctx, "c1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("default intent score must not be persisted, got err=%v", err)
	}
}

func TestRun_CatalogFailureYieldsNoMatches(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, now)
	s.fail["ListAvailableProperties"] = errors.New("catalog offline")

	resp, err := newMatcher(s).Run(context.Background(), Request{ClientID: "c1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.Matches) != 0 || resp.Matches == nil {
		t.Errorf("Matches = %#v, want empty list", resp.Matches)
	}
	if len(resp.Recommendations) != 2 {
		t.Errorf("Recommendations = %q, want the broadening pair", resp.Recommendations)
	}
	if !slices.Contains(resp.Degraded, SourceCatalog) {
		t.Errorf("Degraded = %v, want catalog", resp.Degraded)
	}
}

func TestRun_ReusesStoredIntentUnlessRefresh(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, now.Add(-time.Hour))
	ctx := context.Background()

	if err := s.SaveIntentScore(ctx, storage.IntentScoreRecord{ID: "old", ClientID: "c1", OverallScore: 5, CalculatedAt: now.Add(-24 * time.Hour)}); err != nil {
		t.Fatalf("SaveIntentScore: %v", err)
	}
	m := newMatcher(s)

	resp, err := m.Run(ctx, Request{ClientID: "c1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.IntentScore != 5 {
		t.Errorf("IntentScore = %d, want stored 5", resp.IntentScore)
	}

	resp, err = m.Run(ctx, Request{ClientID: "c1", RefreshScore: true})
	if err != nil {
		t.Fatalf("Run refresh: %v", err)
	}
	if resp.IntentScore != 3 {
		t.Errorf("refreshed IntentScore = %d, want 3", resp.IntentScore)
	}
	latest, _ := s.LatestIntentScore(ctx, "c1")
	if latest.OverallScore != 3 || latest.ID == "old" {
		t.Errorf("latest = %+v, want the fresh record", latest)
	}
}

func TestRun_LedgerWriteFailureIsInternal(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, now)
	s.fail["UpsertMatchRecord"] = errors.New("disk full")
	ctx := context.Background()

	resp, err := newMatcher(s).Run(ctx, Request{ClientID: "c1"})
	if KindOf(err) != KindInternal {
		t.Fatalf("err = %v, want internal", err)
	}
	if resp.Matches != nil {
		t.Errorf("no partial matches on failure, got %v", matchIDs(resp))
	}

	ops, err := s.ListOperationLogs(ctx, 10)
	if err != nil {
		t.Fatalf("ListOperationLogs: %v", err)
	}
	if len(ops) != 1 || ops[0].Status != storage.OperationError || ops[0].ExecutionMS != 0 {
		t.Fatalf("operation log = %+v, want one error entry with zero time", ops)
	}
	if ops[0].Error == "" {
		t.Error("error entry should carry the message")
	}
}

func TestRun_ClientLookupFailureIsInternal(t *testing.T) {
	s := newTestStore(t)
	s.fail["GetClient"] = errors.New("connection reset")

	_, err := newMatcher(s).Run(context.Background(), Request{ClientID: "c1"})
	if KindOf(err) != KindInternal || StatusOf(err) != 500 {
		t.Errorf("err = %v, want internal", err)
	}
}

func TestRun_Deterministic(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, now.AddDate(0, -3, 0))
	m := newMatcher(s)
	ctx := context.Background()

	first, err := m.Run(ctx, Request{ClientID: "c1", MinScore: intp(0)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := range 3 {
		again, err := m.Run(ctx, Request{ClientID: "c1", MinScore: intp(0)})
		if err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		if fmt.Sprint(matchIDs(again)) != fmt.Sprint(matchIDs(first)) ||
			!slices.Equal(again.Recommendations, first.Recommendations) {
			t.Fatalf("run %d differs: %v / %q vs %v / %q", i,
				matchIDs(again), again.Recommendations, matchIDs(first), first.Recommendations)
		}
	}
}

func TestRun_InsightsFilteredAndCapped(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, now)
	ctx := context.Background()

	for i := range 5 {
		if err := s.SaveMarketInsight(ctx, storage.MarketInsight{
			ID:        fmt.Sprintf("m%d", i),
			Title:     "Ajman note",
			Area:      "Ajman",
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("SaveMarketInsight: %v", err)
		}
	}
	if err := s.SaveMarketInsight(ctx, storage.MarketInsight{ID: "other", Title: "Abu Dhabi", Area: "Abu Dhabi", CreatedAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("SaveMarketInsight: %v", err)
	}

	resp, err := newMatcher(s).Run(ctx, Request{ClientID: "c1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.MarketInsights) != 3 {
		t.Fatalf("insights = %d, want 3", len(resp.MarketInsights))
	}
	for _, in := range resp.MarketInsights {
		if in.ID == "other" {
			t.Errorf("unrelated insight passed through")
		}
	}
}
