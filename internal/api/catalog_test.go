package api

import (
	"net/http"
	"testing"

	"github.com/kalambet/propmatch/internal/matching"
	"github.com/kalambet/propmatch/internal/storage"
)

func TestProperties_SaveGetList(t *testing.T) {
	h, _ := setupAppHandler(t)

	rr := serve(t, h, http.MethodPost, "/properties",
		`{"title":"Marina flat","price":850000,"type":"apartment","location":{"area":"Dubai Marina","city":"Dubai"},"area":120,"features":{"bedrooms":2,"bathrooms":2}}`)
	expectStatus(t, rr, http.StatusCreated)
	p := decode[matching.Property](t, rr)
	if p.ID == "" || p.Status != matching.StatusAvailable {
		t.Errorf("created = %+v", p)
	}
	if p.Size == nil || *p.Size != 120 || p.Features.Bedrooms != 2 || p.Location.City != "Dubai" {
		t.Errorf("fields not round-tripped: %+v", p)
	}

	expectStatus(t, serve(t, h, http.MethodPost, "/properties", `{"id":"p-sold","type":"villa","status":"Sold"}`), http.StatusCreated)

	rr = serve(t, h, http.MethodGet, "/properties/"+p.ID, "")
	expectStatus(t, rr, http.StatusOK)
	if got := decode[matching.Property](t, rr); got.Title != "Marina flat" {
		t.Errorf("title = %q", got.Title)
	}

	rr = serve(t, h, http.MethodGet, "/properties", "")
	expectStatus(t, rr, http.StatusOK)
	if n := len(decode[[]matching.Property](t, rr)); n != 2 {
		t.Errorf("all properties = %d, want 2", n)
	}

	rr = serve(t, h, http.MethodGet, "/properties?status=available", "")
	expectStatus(t, rr, http.StatusOK)
	avail := decode[[]matching.Property](t, rr)
	if len(avail) != 1 || avail[0].ID != p.ID {
		t.Errorf("available = %+v, want only %s", avail, p.ID)
	}

	expectStatus(t, serve(t, h, http.MethodGet, "/properties/missing", ""), http.StatusNotFound)
}

func TestProperties_RejectsInvalidBodies(t *testing.T) {
	h, _ := setupAppHandler(t)

	for _, body := range []string{
		`{"title":"no type"}`,
		`{"type":"villa","price":-1}`,
		`{"type":"villa","area":-5}`,
		`{"type":"villa","features":{"bedrooms":-1}}`,
	} {
		expectStatus(t, serve(t, h, http.MethodPost, "/properties", body), http.StatusBadRequest)
	}
}

func TestInsights_SaveAndFilter(t *testing.T) {
	h, _ := setupAppHandler(t)

	expectStatus(t, serve(t, h, http.MethodPost, "/insights", `{"body":"no title"}`), http.StatusBadRequest)
	for _, body := range []string{
		`{"title":"Ajman villas up 4%","area":"Ajman","property_type":"villa"}`,
		`{"title":"Dubai offices flat","area":"Dubai","property_type":"office"}`,
		`{"title":"Rates steady"}`,
	} {
		expectStatus(t, serve(t, h, http.MethodPost, "/insights", body), http.StatusCreated)
	}

	rr := serve(t, h, http.MethodGet, "/insights?area=ajman", "")
	expectStatus(t, rr, http.StatusOK)
	got := decode[[]storage.MarketInsight](t, rr)
	if len(got) != 1 || got[0].Area != "Ajman" {
		t.Errorf("filtered insights = %+v", got)
	}

	rr = serve(t, h, http.MethodGet, "/insights", "")
	expectStatus(t, rr, http.StatusOK)
	if n := len(decode[[]storage.MarketInsight](t, rr)); n != 3 {
		t.Errorf("all insights = %d, want 3", n)
	}
}
