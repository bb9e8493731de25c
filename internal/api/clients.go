package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/propmatch/internal/intent"
	"github.com/kalambet/propmatch/internal/profile"
	"github.com/kalambet/propmatch/internal/storage"
	"github.com/kalambet/propmatch/internal/worker"
)

type ClientRequest struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name" validate:"required"`
	Status      string                 `json:"status" validate:"omitempty,oneof=active inactive"`
	Preferences profile.RawPreferences `json:"preferences"`
}

type InteractionRequest struct {
	Kind string    `json:"kind" validate:"required"`
	At   time.Time `json:"at"`
}

type DeliveryRequest struct {
	ClientResponse string `json:"client_response" validate:"omitempty,oneof=interested not_interested no_response"`
}

type RefreshRequest struct {
	RefreshScore bool `json:"refresh_score"`
	MinScore     *int `json:"min_score,omitempty" validate:"omitempty,min=0,max=100"`
	MaxResults   *int `json:"max_results,omitempty" validate:"omitempty,min=1,max=100"`
}

func handleSaveClient(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClientRequest
		if !decodeBody(w, r, &req) {
			return
		}

		c := profile.Client{
			ID:          strings.TrimSpace(req.ID),
			Name:        req.Name,
			Status:      req.Status,
			Preferences: req.Preferences,
		}
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if err := deps.Store.SaveClient(r.Context(), c); err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to save client: %v", err)
			return
		}

		saved, err := deps.Store.GetClient(r.Context(), c.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to reload client: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

func handleListClients(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clients, err := deps.Store.ListClients(r.Context(), parseIntParam(r, "limit", 50, 500))
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to list clients: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, clients)
	}
}

// clientView adds the normalized preferences and their completeness to the
// stored record.
type clientView struct {
	profile.Client
	Normalized   profile.Preferences `json:"normalized_preferences"`
	Completeness int                 `json:"completeness"`
}

func handleGetClient(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := loadClient(w, r, deps)
		if !ok {
			return
		}
		prefs := profile.Normalize(c.Preferences)
		writeJSON(w, http.StatusOK, clientView{Client: c, Normalized: prefs, Completeness: prefs.Completeness()})
	}
}

func handleDeactivateClient(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeactivateClient(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, kindNotFound, "client not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to deactivate client: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": profile.StatusInactive})
	}
}

func handleRecordInteraction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InteractionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		c, ok := loadClient(w, r, deps)
		if !ok {
			return
		}

		in := storage.Interaction{
			ID:        uuid.New().String(),
			ClientID:  c.ID,
			Kind:      strings.TrimSpace(req.Kind),
			CreatedAt: req.At,
		}
		if in.CreatedAt.IsZero() {
			in.CreatedAt = time.Now().UTC()
		}
		if err := deps.Store.SaveInteraction(r.Context(), in); err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to save interaction: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, in)
	}
}

func handleListMatches(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := deps.Store.ListMatchRecords(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to list matches: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleClearMatches(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Store.ClearMatchLedger(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to clear matches: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "deleted": n})
	}
}

func handleMarkDelivered(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DeliveryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		clientID, propertyID := chi.URLParam(r, "id"), chi.URLParam(r, "propertyID")

		err := deps.Store.MarkMatchDelivered(r.Context(), clientID, propertyID, req.ClientResponse)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, kindNotFound, "no match record for client %s and property %s", clientID, propertyID)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to mark delivery: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
	}
}

func handleRefresh(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		if !decodeBody(w, r, &req) {
			return
		}
		c, ok := loadClient(w, r, deps)
		if !ok {
			return
		}
		if c.Status != profile.StatusActive {
			httpError(w, http.StatusNotFound, kindNotFound, "client %s is inactive", c.ID)
			return
		}

		jobID, err := worker.EnqueueRefresh(r.Context(), deps.Store, worker.RefreshPayload{
			ClientID:     c.ID,
			RefreshScore: req.RefreshScore,
			MinScore:     req.MinScore,
			MaxResults:   req.MaxResults,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "%v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "queued"})
	}
}

func loadClient(w http.ResponseWriter, r *http.Request, deps AppDeps) (profile.Client, bool) {
	id := chi.URLParam(r, "id")
	c, err := deps.Store.GetClient(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, kindNotFound, "client %s not found", id)
		return profile.Client{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, kindInternal, "failed to get client: %v", err)
		return profile.Client{}, false
	}
	return c, true
}

// validResponse reports whether s is a recognized client response value.
func validResponse(s string) bool {
	switch s {
	case intent.ResponseInterested, intent.ResponseNotInterested, intent.ResponseNoResponse:
		return true
	}
	return false
}
