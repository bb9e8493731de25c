package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/propmatch/internal/config"
	"github.com/kalambet/propmatch/internal/matching"
	"github.com/kalambet/propmatch/internal/pipeline"
	"github.com/kalambet/propmatch/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"success":false,"error":"not found","kind":"not_found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func flagCommand(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	addMatchFlags(cmd)
	for k, v := range flags {
		if err := cmd.Flags().Set(k, v); err != nil {
			t.Fatalf("setting --%s: %v", k, err)
		}
	}
	return cmd
}

func TestMatchRequest_DefaultsOmitLimits(t *testing.T) {
	req, err := matchRequest(flagCommand(t, nil), "c-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ClientID != "c-1" || req.RefreshScore {
		t.Errorf("req = %+v", req)
	}
	if req.MinScore != nil || req.MaxResults != nil {
		t.Error("limits should be omitted when flags are not given")
	}

	data, _ := json.Marshal(req)
	if strings.Contains(string(data), "min_score") || strings.Contains(string(data), "max_results") {
		t.Errorf("body = %s, want no limit fields", data)
	}
}

func TestMatchRequest_Flags(t *testing.T) {
	req, err := matchRequest(flagCommand(t, map[string]string{
		"refresh":     "true",
		"min-score":   "60",
		"max-results": "5",
	}), "c-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.RefreshScore {
		t.Error("RefreshScore = false, want true")
	}
	if req.MinScore == nil || *req.MinScore != 60 {
		t.Errorf("MinScore = %v, want 60", req.MinScore)
	}
	if req.MaxResults == nil || *req.MaxResults != 5 {
		t.Errorf("MaxResults = %v, want 5", req.MaxResults)
	}
}

func TestMatchRequest_OutOfRange(t *testing.T) {
	for _, flags := range []map[string]string{
		{"min-score": "101"},
		{"min-score": "-1"},
		{"max-results": "0"},
		{"max-results": "500"},
	} {
		if _, err := matchRequest(flagCommand(t, flags), "c-1"); err == nil {
			t.Errorf("flags %v: expected error", flags)
		}
	}
}

func TestMatchCommand_Response(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /match": `{"success":true,"client_id":"c-1","matches":[{"property_id":"p-1","property":{"id":"p-1","title":"Sea view villa","type":"villa","location":{"area":"Ajman"},"features":{"bedrooms":3,"bathrooms":2},"status":"available"},"match_score":95,"match_reasons":["Within budget"],"confidence":0.95}],"intent_score":4,"recommendations":["Call today"],"market_insights":[],"execution_time_ms":12}`,
	})

	client := ts.client()
	minScore := 80
	resp, err := client.post(ctx, "/match", pipeline.Request{ClientID: "c-1", MinScore: &minScore})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result pipeline.Response
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(result.Matches) != 1 || result.Matches[0].MatchScore != 95 {
		t.Fatalf("matches = %+v", result.Matches)
	}
	if result.IntentScore != 4 {
		t.Errorf("intent_score = %d, want 4", result.IntentScore)
	}

	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["client_id"] != "c-1" || body["min_score"] != float64(80) {
		t.Errorf("body = %v", body)
	}
}

func TestMatchCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"match"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing client id")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want an argument count error", err.Error())
	}
}

func TestImportCommand_MissingFlags(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"import"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing flags")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestLedgerClear_RequiresConfirm(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	old := newAPIClient
	defer func() { newAPIClient = old }()
	newAPIClient = func() (*apiClient, error) {
		t.Fatal("client must not be created without --confirm")
		return nil, nil
	}

	ledgerClearCmd.Flags().Set("confirm", "false")
	rootCmd.SetArgs([]string{"ledger", "clear", "c-1"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLedgerClear_Confirmed(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	ts := newTestServer(t, map[string]string{
		"DELETE /clients/c-1/matches": `{"status":"cleared","deleted":3}`,
	})
	old := newAPIClient
	defer func() { newAPIClient = old }()
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }

	rootCmd.SetArgs([]string{"ledger", "clear", "c-1", "--confirm"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Method != "DELETE" {
		t.Fatalf("requests = %+v", ts.requests)
	}
}

func TestRefreshCommand(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	ts := newTestServer(t, map[string]string{
		"POST /clients/c-1/refresh": `{"job_id":"job-1","status":"queued"}`,
	})
	old := newAPIClient
	defer func() { newAPIClient = old }()
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }

	rootCmd.SetArgs([]string{"refresh", "c-1", "--max-results", "3"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["max_results"] != float64(3) {
		t.Errorf("max_results = %v, want 3", body["max_results"])
	}
	if _, ok := body["min_score"]; ok {
		t.Error("min_score sent although flag was not given")
	}
}

func TestImportFile_CollectsFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] == "" || body["name"] == nil {
			w.WriteHeader(400)
			w.Write([]byte(`{"success":false,"error":"name is required","kind":"validation"}`))
			return
		}
		w.WriteHeader(201)
		w.Write([]byte(`{"id":"c-x"}`))
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "clients.json")
	content := `[{"id":"c-1","name":"Amal"},{"id":"c-2"},{"id":"c-3","name":"Omar"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	client := &apiClient{baseURL: ts.URL, token: "test", httpClient: ts.Client()}
	ok, failed, err := importFile(ctx, client, path, "/clients")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok != 2 || failed != 1 {
		t.Errorf("ok, failed = %d, %d, want 2, 1", ok, failed)
	}
}

func TestImportFile_NotArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.json")
	if err := os.WriteFile(path, []byte(`{"id":"c-1"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := importFile(ctx, &apiClient{}, path, "/clients")
	if err == nil || !strings.Contains(err.Error(), "JSON array") {
		t.Errorf("err = %v, want JSON array error", err)
	}
}

func TestRenderMatches(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	price := 650000.0
	resp := pipeline.Response{
		ClientID: "c-1",
		Matches: []pipeline.Match{{
			PropertyID:   "p-1",
			Property:     matching.Property{ID: "p-1", Title: "Sea view villa", Type: "villa", Price: &price},
			MatchScore:   95,
			MatchReasons: []string{"Within budget", "Preferred area"},
		}},
		IntentScore:     4,
		Recommendations: []string{"Schedule a viewing"},
		MarketInsights:  []storage.MarketInsight{{Title: "Villa prices up 4%"}},
		Degraded:        []string{"market_insights"},
	}

	var buf bytes.Buffer
	if err := renderMatches(&buf, resp); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Sea view villa", "650000", "95", "Within budget", "Schedule a viewing", "Villa prices up 4%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("output contains ANSI codes with noColor set")
	}
}

func TestRenderMatches_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := renderMatches(&buf, pipeline.Response{ClientID: "c-1"}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "No matches") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRenderLedger(t *testing.T) {
	records := []storage.MatchRecord{
		{PropertyID: "p-1", MatchScore: 91, WasSent: true, ClientResponse: "interested", UpdatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)},
		{PropertyID: "p-2", MatchScore: 74},
	}

	var buf bytes.Buffer
	if err := renderLedger(&buf, records); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"p-1", "interested", "2026-03-01 09:30", "p-2", "74"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := renderLedger(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "empty") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestCountItems(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /properties": `[{"id":"p-1"},{"id":"p-2"}]`,
	})

	n, err := countItems(ctx, ts.client(), "/properties?status=available")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	if got := ts.requests[0].Path; got != "/properties?status=available&limit=100" {
		t.Errorf("path = %q", got)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		w.Write([]byte(`{"success":false,"error":"client c-9 not found","kind":"not_found"}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "t", httpClient: ts.Client()}
	resp, err := client.get(ctx, "/clients/c-9")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	for _, want := range []string{"404", "not_found", "client c-9 not found"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want it to contain %q", err.Error(), want)
		}
	}
}

func TestDecodeJSON_PlainErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(502)
		w.Write([]byte("bad gateway"))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "t", httpClient: ts.Client()}
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatal(err)
	}
	err = decodeJSON(resp, nil)
	if err == nil || !strings.Contains(err.Error(), "502: bad gateway") {
		t.Errorf("err = %v", err)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Matching.MinScore = 65

	keys := config.ShowAll(cfg)
	found := 0
	for _, k := range keys {
		if (k.Key == "server.port" && k.Value == "4000") || (k.Key == "matching.min_score" && k.Value == "65") {
			found++
		}
	}
	if found != 2 {
		t.Errorf("expected server.port=4000 and matching.min_score=65 in ShowAll output, got %+v", keys)
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestLogLevel(t *testing.T) {
	tests := map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "info": "INFO", "": "INFO"}
	for in, want := range tests {
		if got := logLevel(in).String(); got != want {
			t.Errorf("logLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
