package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/npoportal/internal/model"
)

func withSession(req *http.Request, session *model.Session) *http.Request {
	if session == nil {
		return req
	}
	return req.WithContext(ContextWithSession(req.Context(), session))
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestRequireAuthenticated_API_Returns401(t *testing.T) {
	gate := NewGate("", false)
	handler := gate.RequireAuthenticated()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
	}
}

func TestRequireAuthenticated_Page_RedirectsToLogin(t *testing.T) {
	gate := NewGate("", false)
	handler := gate.RequireAuthenticated()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard?tab=1", nil))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "/account/start?next=") {
		t.Errorf("Location = %q, want /account/start?next=...", loc)
	}
	if !strings.Contains(loc, "%2Fdashboard%3Ftab%3D1") {
		t.Errorf("Location = %q, should carry the original URI", loc)
	}
}

func TestRequireAuthenticated_WithSession_CallsNext(t *testing.T) {
	gate := NewGate("/login", false)
	handler := gate.RequireAuthenticated()(okHandler())

	w := httptest.NewRecorder()
	req := withSession(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), testSession("s", "a", model.RoleParticipant))
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRequireRole(t *testing.T) {
	gate := NewGate("", false)
	handler := gate.RequireRole(model.RoleAdmin)(okHandler())

	tests := []struct {
		name    string
		session *model.Session
		want    int
	}{
		{"no session", nil, http.StatusUnauthorized},
		{"participant", testSession("s1", "a1", model.RoleParticipant), http.StatusForbidden},
		{"donor", testSession("s2", "a2", model.RoleDonor), http.StatusForbidden},
		{"admin", testSession("s3", "a3", model.RoleAdmin), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, withSession(httptest.NewRequest(http.MethodGet, "/api/accounts", nil), tt.session))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequireRole_Page_Forbidden(t *testing.T) {
	gate := NewGate("", false)
	handler := gate.RequireRole(model.RoleAdmin)(okHandler())

	w := httptest.NewRecorder()
	req := withSession(httptest.NewRequest(http.MethodGet, "/admin", nil), testSession("s", "a", model.RoleParticipant))
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if ct := w.Header().Get("Content-Type"); strings.Contains(ct, "application/json") {
		t.Errorf("page response should not be JSON, got %q", ct)
	}
}

func TestRequireOwnershipOrAdmin(t *testing.T) {
	gate := NewGate("", false)
	resolve := func(r *http.Request) (string, error) { return "owner-1", nil }
	handler := gate.RequireOwnershipOrAdmin(resolve)(okHandler())

	tests := []struct {
		name    string
		session *model.Session
		want    int
	}{
		{"no session", nil, http.StatusUnauthorized},
		{"owner", testSession("s1", "owner-1", model.RoleParticipant), http.StatusOK},
		{"other participant", testSession("s2", "other", model.RoleParticipant), http.StatusForbidden},
		{"admin", testSession("s3", "admin-1", model.RoleAdmin), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, withSession(httptest.NewRequest(http.MethodGet, "/api/accounts/owner-1", nil), tt.session))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequireOwnershipOrAdmin_ResolverErrors(t *testing.T) {
	gate := NewGate("", false)
	session := testSession("s", "acct", model.RoleParticipant)

	t.Run("api error keeps its status", func(t *testing.T) {
		resolve := func(r *http.Request) (string, error) { return "", model.NewNotFoundError("Account") }
		w := httptest.NewRecorder()
		gate.RequireOwnershipOrAdmin(resolve)(okHandler()).ServeHTTP(w,
			withSession(httptest.NewRequest(http.MethodGet, "/api/accounts/x", nil), session))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("unexpected error is 500", func(t *testing.T) {
		resolve := func(r *http.Request) (string, error) { return "", errors.New("boom") }
		w := httptest.NewRecorder()
		gate.RequireOwnershipOrAdmin(resolve)(okHandler()).ServeHTTP(w,
			withSession(httptest.NewRequest(http.MethodGet, "/api/accounts/x", nil), session))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if body := decodeErrorBody(t, w); body.Detail != "" {
			t.Errorf("detail should be hidden when debug is off, got %q", body.Detail)
		}
	})
}
