package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubValidator struct {
	claims *Claims
	err    error
	got    string
}

func (s *stubValidator) ValidateToken(token string) (*Claims, error) {
	s.got = token
	return s.claims, s.err
}

func TestMiddleware_RequireAuth(t *testing.T) {
	claims := &Claims{}
	claims.Subject = "operator-7"

	tests := []struct {
		name       string
		header     string
		validator  *stubValidator
		wantStatus int
		wantToken  string
	}{
		{"valid token", "Bearer abc.def.ghi", &stubValidator{claims: claims}, http.StatusOK, "abc.def.ghi"},
		{"lower-case scheme", "bearer abc", &stubValidator{claims: claims}, http.StatusOK, "abc"},
		{"missing header", "", &stubValidator{claims: claims}, http.StatusUnauthorized, ""},
		{"basic auth", "Basic dXNlcjpwYXNz", &stubValidator{claims: claims}, http.StatusUnauthorized, ""},
		{"empty token", "Bearer   ", &stubValidator{claims: claims}, http.StatusUnauthorized, ""},
		{"invalid token", "Bearer bad", &stubValidator{err: errors.New("expired")}, http.StatusUnauthorized, "bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var subject string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				subject = SubjectFromContext(r.Context())
			})
			h := NewMiddleware(tt.validator, zap.NewNop()).RequireAuth(next)

			req := httptest.NewRequest(http.MethodPost, "/ask", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantToken, tt.validator.got)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "operator-7", subject)
			} else {
				assert.Contains(t, rec.Body.String(), "unauthorized")
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestMiddleware_DisabledPassesThrough(t *testing.T) {
	called := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called++ })

	var nilMiddleware *Middleware
	for _, h := range []http.Handler{
		nilMiddleware.RequireAuth(next),
		NewMiddleware(nil, zap.NewNop()).RequireAuth(next),
	} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ask", nil))
	}
	assert.Equal(t, 2, called)
}
