package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	allowedOrigins := []string{"http://localhost:3000", "https://plasmodb.org"}
	handler := CORS(allowedOrigins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name              string
		method            string
		origin            string
		expectAllowOrigin string
		expectStatusCode  int
	}{
		{
			name:              "Allowed origin",
			method:            "GET",
			origin:            "http://localhost:3000",
			expectAllowOrigin: "http://localhost:3000",
			expectStatusCode:  http.StatusOK,
		},
		{
			name:              "Another allowed origin",
			method:            "POST",
			origin:            "https://plasmodb.org",
			expectAllowOrigin: "https://plasmodb.org",
			expectStatusCode:  http.StatusOK,
		},
		{
			name:              "Disallowed origin",
			method:            "GET",
			origin:            "https://evil.com",
			expectAllowOrigin: "",
			expectStatusCode:  http.StatusOK,
		},
		{
			name:              "No origin header",
			method:            "GET",
			origin:            "",
			expectAllowOrigin: "",
			expectStatusCode:  http.StatusOK,
		},
		{
			name:              "Preflight short-circuits",
			method:            "OPTIONS",
			origin:            "http://localhost:3000",
			expectAllowOrigin: "http://localhost:3000",
			expectStatusCode:  http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/conversations", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expectStatusCode {
				t.Errorf("expected status %d, got %d", tt.expectStatusCode, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.expectAllowOrigin {
				t.Errorf("expected Allow-Origin %q, got %q", tt.expectAllowOrigin, got)
			}
		})
	}
}

func TestCORSWildcardAllowsAnyOrigin(t *testing.T) {
	handler := CORS([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.example" {
		t.Errorf("expected origin echoed back, got %q", got)
	}
}

func TestAuthWithConfig(t *testing.T) {
	tests := []struct {
		name             string
		requireAuth      bool
		userID           string
		expectStatusCode int
		expectUserID     string
	}{
		{
			name:             "Header present",
			requireAuth:      true,
			userID:           "researcher@plasmodb.org",
			expectStatusCode: http.StatusOK,
			expectUserID:     "researcher@plasmodb.org",
		},
		{
			name:             "Missing header with auth required",
			requireAuth:      true,
			userID:           "",
			expectStatusCode: http.StatusUnauthorized,
		},
		{
			name:             "Missing header without auth required",
			requireAuth:      false,
			userID:           "",
			expectStatusCode: http.StatusOK,
			expectUserID:     "default_user",
		},
		{
			name:             "Invalid characters rejected",
			requireAuth:      false,
			userID:           "user id with spaces",
			expectStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUserID string
			handler := AuthWithConfig(AuthConfig{RequireAuth: tt.requireAuth})(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					gotUserID = userIDFromContext(r.Context())
					w.WriteHeader(http.StatusOK)
				}))

			req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
			if tt.userID != "" {
				req.Header.Set("X-User-ID", tt.userID)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expectStatusCode {
				t.Errorf("expected status %d, got %d", tt.expectStatusCode, rec.Code)
			}
			if tt.expectUserID != "" && gotUserID != tt.expectUserID {
				t.Errorf("expected user ID %q, got %q", tt.expectUserID, gotUserID)
			}
		})
	}
}

func TestRecoveryConvertsPanicTo500(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}
