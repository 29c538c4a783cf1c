package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rzbill/eventbus/pkg/errmodel"
)

// Helper functions for common HTTP responses

// writeError writes the compact error envelope for err.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	errmodel.WriteHTTP(w, r, err)
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeCreated writes a 201 Created response carrying data.
func writeCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(data)
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": errmodel.New(errmodel.CategoryValidation, "method_not_allowed", r.Method+" not allowed", nil),
	})
}

// decodeBody reads at most maxBytes of JSON into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errmodel.Validation("payload_too_large", "request body exceeds limit", map[string]any{"maxBytes": maxBytes})
		}
		if errors.Is(err, io.EOF) {
			return errmodel.Validation("invalid_request", "request body is required", nil)
		}
		return errmodel.Validation("invalid_request", "invalid JSON body: "+err.Error(), nil)
	}
	return nil
}

// queryInt64 parses a non-negative integer query parameter; missing yields def.
func queryInt64(q url.Values, name, code string, def int64) (int64, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, errmodel.Validation(code, name+" must be a non-negative integer", map[string]any{name: v})
	}
	return n, nil
}

// clampLimit bounds a poll/search limit to max; 0 (unbounded) becomes max.
func clampLimit(limit, max int) int {
	if max > 0 && (limit == 0 || limit > max) {
		return max
	}
	return limit
}
