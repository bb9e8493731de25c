package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/propmatch/internal/matching"
	"github.com/kalambet/propmatch/internal/storage"
)

type PropertyRequest struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Price    *float64          `json:"price" validate:"omitempty,gte=0"`
	Type     string            `json:"type" validate:"required"`
	Location matching.Location `json:"location"`
	Size     *float64          `json:"area" validate:"omitempty,gte=0"`
	Features struct {
		Bedrooms  int `json:"bedrooms" validate:"gte=0"`
		Bathrooms int `json:"bathrooms" validate:"gte=0"`
	} `json:"features"`
	Status string `json:"status"`
}

type InsightRequest struct {
	Title        string `json:"title" validate:"required"`
	Body         string `json:"body"`
	Area         string `json:"area"`
	PropertyType string `json:"property_type"`
}

func handleSaveProperty(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PropertyRequest
		if !decodeBody(w, r, &req) {
			return
		}

		p := matching.Property{
			ID:       strings.TrimSpace(req.ID),
			Title:    req.Title,
			Price:    req.Price,
			Type:     strings.TrimSpace(req.Type),
			Location: req.Location,
			Size:     req.Size,
			Features: matching.Features{Bedrooms: req.Features.Bedrooms, Bathrooms: req.Features.Bathrooms},
			Status:   strings.ToLower(strings.TrimSpace(req.Status)),
		}
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.Status == "" {
			p.Status = matching.StatusAvailable
		}
		if err := deps.Store.SaveProperty(r.Context(), p); err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to save property: %v", err)
			return
		}

		saved, err := deps.Store.GetProperty(r.Context(), p.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to reload property: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

func handleListProperties(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 100, 1000)

		var (
			props []matching.Property
			err   error
		)
		if r.URL.Query().Get("status") == matching.StatusAvailable {
			props, err = deps.Store.ListAvailableProperties(r.Context(), limit)
		} else {
			props, err = deps.Store.ListProperties(r.Context(), limit)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to list properties: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, props)
	}
}

func handleGetProperty(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := deps.Store.GetProperty(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, kindNotFound, "property %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to get property: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleSaveInsight(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InsightRequest
		if !decodeBody(w, r, &req) {
			return
		}

		m := storage.MarketInsight{
			ID:           uuid.New().String(),
			Title:        req.Title,
			Body:         req.Body,
			Area:         strings.TrimSpace(req.Area),
			PropertyType: strings.TrimSpace(req.PropertyType),
		}
		if err := deps.Store.SaveMarketInsight(r.Context(), m); err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to save insight: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": m.ID, "status": "saved"})
	}
}

func handleListInsights(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		insights, err := deps.Store.ListMarketInsights(r.Context(), q.Get("area"), q.Get("type"), parseIntParam(r, "limit", 20, 100))
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to list insights: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, insights)
	}
}

func handleListOperations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := deps.Store.ListOperationLogs(r.Context(), parseIntParam(r, "limit", 20, 200))
		if err != nil {
			httpError(w, http.StatusInternalServerError, kindInternal, "failed to list operations: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}
