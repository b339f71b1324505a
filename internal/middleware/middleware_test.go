package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/convoshare/convoshare/internal/auth"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipal_ValidToken(t *testing.T) {
	manager := auth.NewManager("test-secret")
	token, err := manager.GenerateToken("alice")
	require.NoError(t, err)

	var got string
	handler := Principal(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", got)
}

func TestPrincipal_Rejections(t *testing.T) {
	manager := auth.NewManager("test-secret")
	otherToken, err := auth.NewManager("other-secret").GenerateToken("alice")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc123"},
		{"not a jwt", "Bearer not-a-jwt"},
		{"wrong signing secret", "Bearer " + otherToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			handler := Principal(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
			}))

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, nextCalled)
		})
	}
}

func TestPrincipalFrom(t *testing.T) {
	principal, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)
	assert.Empty(t, principal)

	principal, ok = PrincipalFrom(WithPrincipal(context.Background(), "bob"))
	assert.True(t, ok)
	assert.Equal(t, "bob", principal)
}

func TestCORS_Preflight(t *testing.T) {
	nextCalled := false
	handler := CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	}))

	req := httptest.NewRequest("OPTIONS", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, nextCalled, "preflight should not reach the next handler")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCORS_PassesThrough(t *testing.T) {
	handler := CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogging_CapturesStatus(t *testing.T) {
	logrus.SetLevel(logrus.InfoLevel)
	hook := test.NewGlobal()
	defer hook.Reset()

	handler := Logging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest("GET", "/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "GET", entry.Data["method"])
	assert.Equal(t, "/missing", entry.Data["path"])
	assert.Equal(t, http.StatusNotFound, entry.Data["status"])
}

func TestLogging_DefaultsToOK(t *testing.T) {
	logrus.SetLevel(logrus.InfoLevel)
	hook := test.NewGlobal()
	defer hook.Reset()

	handler := Logging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, http.StatusOK, entry.Data["status"])
}
