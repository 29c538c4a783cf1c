package errmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFromWrapsPlainErrors(t *testing.T) {
	base := errors.New("disk on fire")
	ce := From(fmt.Errorf("append: %w", base))
	if ce.Category != CategorySystem {
		t.Fatalf("want system, got %s", ce.Category)
	}
	if !errors.Is(ce, base) {
		t.Fatalf("system error should unwrap to its cause")
	}
}

func TestFromKeepsCompactErrors(t *testing.T) {
	v := Validation("invalid_offset", "offset must be >= 0", map[string]any{"offset": -1})
	wrapped := fmt.Errorf("poll: %w", v)
	if got := From(wrapped); got != v {
		t.Fatalf("expected the same *Error back")
	}
	if !IsValidation(wrapped) {
		t.Fatalf("IsValidation should see through wrapping")
	}
}

func TestStorageUnwraps(t *testing.T) {
	base := errors.New("io")
	se := Storage("corrupt_record", base)
	if !errors.Is(se, base) {
		t.Fatalf("storage error must not hide its cause")
	}
	if HTTPStatus(se) != http.StatusServiceUnavailable {
		t.Fatalf("status: %d", HTTPStatus(se))
	}
}

func TestWriteHTTP(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteHTTP(w, r, Validation("invalid_channel", "channel is required", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
	var body struct {
		Error Error `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "invalid_channel" {
		t.Fatalf("code: %q", body.Error.Code)
	}
}
