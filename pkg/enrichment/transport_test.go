package enrichment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyTransportReturnsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/me", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"codigo_bp":"1234"}`))
	}))
	defer srv.Close()

	tr := NewProxyTransport(srv.URL+"/v1", nil)
	raw, err := tr.Fetch(context.Background(), "tok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"codigo_bp":"1234"}`, string(raw))
}

func TestProxyTransportRejectsHTMLBody(t *testing.T) {
	// A reverse proxy that does not know the API path answers with the SPA
	// shell and a 200.
	tests := []struct {
		name string
		body string
	}{
		{name: "doctype", body: "<!DOCTYPE html><html><body>app</body></html>"},
		{name: "html tag", body: "<html><head><title>app</title></head></html>"},
		{name: "leading whitespace", body: "\n  <!DOCTYPE html><html></html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tr := NewProxyTransport(srv.URL, nil)
			_, err := tr.Fetch(context.Background(), "tok")
			assert.ErrorIs(t, err, ErrHTMLResponse)
		})
	}
}

func TestProxyTransportRejectsNonJSON(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "empty body", status: http.StatusOK, body: ""},
		{name: "invalid json", status: http.StatusOK, body: "not json"},
		{name: "server error", status: http.StatusBadGateway, body: `{"ok":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tr := NewProxyTransport(srv.URL, nil)
			_, err := tr.Fetch(context.Background(), "tok")
			assert.Error(t, err)
		})
	}
}

func TestFunctionTransportPostsAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tok", body["accessToken"])
		w.Write([]byte(`{"login_adfs":"ana"}`))
	}))
	defer srv.Close()

	tr := NewFunctionTransport(srv.URL, nil)
	raw, err := tr.Fetch(context.Background(), "tok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"login_adfs":"ana"}`, string(raw))
}

func TestFunctionTransportPropagatesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"API Error: 401"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := NewFunctionTransport(srv.URL, nil)
	_, err := tr.Fetch(context.Background(), "tok")
	assert.Error(t, err)
}
