package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/npoportal/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "TEST_ERROR",
		Message:  "Something is wrong.",
		Category: "validation",
		Action:   "Fix the input.",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
	if _, ok := raw["detail"]; ok {
		t.Error("detail should be omitted when empty")
	}
	if raw["code"] != "TEST_ERROR" {
		t.Errorf("code = %v, want TEST_ERROR", raw["code"])
	}
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeValidation, http.StatusBadRequest},
		{model.ErrCodeEmailExistsWithPassword, http.StatusBadRequest},
		{model.ErrCodeEmailExistsNoPassword, http.StatusBadRequest},
		{model.ErrCodePasswordNotSet, http.StatusBadRequest},
		{model.ErrCodeInvalidToken, http.StatusBadRequest},
		{model.ErrCodeTokenAlreadyUsed, http.StatusBadRequest},
		{model.ErrCodeInvalidCredentials, http.StatusUnauthorized},
		{model.ErrCodeUnauthorized, http.StatusUnauthorized},
		{model.ErrCodeForbidden, http.StatusForbidden},
		{model.ErrCodeNotFound, http.StatusNotFound},
		{model.ErrCodeRateLimited, http.StatusTooManyRequests},
		{model.ErrCodeInternal, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusForCode(tt.code); got != tt.want {
			t.Errorf("StatusForCode(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

// TestWriteInternalServerError_Detail は本番以外でのみdetailが含まれることを検証する。
func TestWriteInternalServerError_Detail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w, "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeInternal || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
	if body.Detail != "" {
		t.Errorf("detail = %q, want empty", body.Detail)
	}

	w = httptest.NewRecorder()
	WriteInternalServerError(w, "stack trace")
	body = ErrorResponseBody{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Detail != "stack trace" {
		t.Errorf("detail = %q, want %q", body.Detail, "stack trace")
	}
}

func TestWriteError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)

	t.Run("wrapped API error", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, req, fmt.Errorf("login: %w", model.NewInvalidCredentialsError()), false)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		var body ErrorResponseBody
		json.NewDecoder(w.Body).Decode(&body)
		if body.Code != model.ErrCodeInvalidCredentials {
			t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidCredentials)
		}
	})

	t.Run("plain error hides detail in production", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, req, errors.New("connection refused"), false)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		var body ErrorResponseBody
		json.NewDecoder(w.Body).Decode(&body)
		if body.Detail != "" {
			t.Errorf("detail = %q, want empty", body.Detail)
		}
	})

	t.Run("plain error shows detail in debug", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, req, errors.New("connection refused"), true)

		var body ErrorResponseBody
		json.NewDecoder(w.Body).Decode(&body)
		if body.Detail != "connection refused" {
			t.Errorf("detail = %q, want %q", body.Detail, "connection refused")
		}
	})
}
