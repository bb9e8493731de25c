package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Error kinds reported in the "kind" field of error bodies. The pipeline
// kinds (validation, not_found, internal) are passed through unchanged.
const (
	kindValidation   = "validation"
	kindNotFound     = "not_found"
	kindInternal     = "internal"
	kindUnauthorized = "unauthorized"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, kind string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
		"kind":    kind,
	})
}

// decodeBody reads a JSON body into v and runs struct validation. It writes
// the 400 response itself and reports whether the handler may continue.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := decodeJSON(r, v); err != nil {
		httpError(w, http.StatusBadRequest, kindValidation, "invalid request body: %v", err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		httpError(w, http.StatusBadRequest, kindValidation, "invalid request: %v", err)
		return false
	}
	return true
}

// decodeJSON decodes the request body into v. An empty body leaves v at
// its zero value.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
