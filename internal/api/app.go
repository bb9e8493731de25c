package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/propmatch/internal/pipeline"
	"github.com/kalambet/propmatch/internal/storage"
)

// MatchRunner executes one match invocation. *pipeline.Matcher implements it.
type MatchRunner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

type AppDeps struct {
	Store   *storage.Store
	Matcher MatchRunner
	Token   string
	// MatchTimeout bounds each match invocation; 0 disables the deadline.
	MatchTimeout time.Duration
}

// NewAppHandler returns the HTTP API. Everything except /health requires
// the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/match", handleMatch(deps))

		r.Post("/clients", handleSaveClient(deps))
		r.Get("/clients", handleListClients(deps))
		r.Get("/clients/{id}", handleGetClient(deps))
		r.Delete("/clients/{id}", handleDeactivateClient(deps))
		r.Post("/clients/{id}/interactions", handleRecordInteraction(deps))
		r.Get("/clients/{id}/matches", handleListMatches(deps))
		r.Delete("/clients/{id}/matches", handleClearMatches(deps))
		r.Post("/clients/{id}/matches/{propertyID}/delivery", handleMarkDelivered(deps))
		r.Post("/clients/{id}/refresh", handleRefresh(deps))

		r.Post("/properties", handleSaveProperty(deps))
		r.Get("/properties", handleListProperties(deps))
		r.Get("/properties/{id}", handleGetProperty(deps))

		r.Post("/insights", handleSaveInsight(deps))
		r.Get("/insights", handleListInsights(deps))

		r.Get("/operations", handleListOperations(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.Store.Ping(ctx); err != nil {
			httpError(w, http.StatusServiceUnavailable, kindInternal, "database unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleMatch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pipeline.Request
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()
		if err := decodeJSON(r, &req); err != nil {
			httpError(w, http.StatusBadRequest, kindValidation, "invalid request body: %v", err)
			return
		}

		resp, err := runMatch(r.Context(), deps.Matcher, deps.MatchTimeout, req)
		if err != nil {
			if pipeline.KindOf(err) == pipeline.KindInternal {
				slog.Error("match request failed", "client_id", req.ClientID, "error", err)
			}
			httpError(w, pipeline.StatusOf(err), string(pipeline.KindOf(err)), "%s", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// runMatch runs one invocation under the configured deadline. Shared by the
// HTTP and MCP transports.
func runMatch(ctx context.Context, m MatchRunner, timeout time.Duration, req pipeline.Request) (pipeline.Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return m.Run(ctx, req)
}
