package guard

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminLogin(t *testing.T, gate *AdminGate, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := mux.NewRouter()
	gate.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAdminLoginIssuesSignedCookie(t *testing.T) {
	gate := NewAdminGate("s3cret", testLogger())

	rec := adminLogin(t, gate, `{"password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == adminCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	// the issued cookie authorizes admin requests
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })
	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.AddCookie(cookie)
	gate.Middleware(next).ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, reached)
}

func TestAdminLoginRejections(t *testing.T) {
	gate := NewAdminGate("s3cret", testLogger())

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "wrong password", body: `{"password":"nope"}`, want: http.StatusUnauthorized},
		{name: "empty password", body: `{"password":""}`, want: http.StatusUnauthorized},
		{name: "malformed body", body: `{not json`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := adminLogin(t, gate, tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestAdminGateDisabledWithoutPassword(t *testing.T) {
	gate := NewAdminGate("", testLogger())
	rec := adminLogin(t, gate, `{"password":""}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminMiddlewareRejectsBadCookies(t *testing.T) {
	gate := NewAdminGate("s3cret", testLogger())

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the handler")
	})

	t.Run("no cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		gate.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		req.AddCookie(&http.Cookie{Name: adminCookieName, Value: "forged.123"})
		rec := httptest.NewRecorder()
		gate.Middleware(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired cookie", func(t *testing.T) {
		// issue a cookie in the past, verify in the present
		gate.now = func() time.Time { return time.Now().Add(-2 * adminSessionTTL) }
		rec := adminLogin(t, gate, `{"password":"s3cret"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		cookie := rec.Result().Cookies()[0]

		gate.now = time.Now
		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		req.AddCookie(cookie)
		rec = httptest.NewRecorder()
		gate.Middleware(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
