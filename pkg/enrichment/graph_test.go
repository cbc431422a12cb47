package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copiloto/salesdash/pkg/blob"
)

func newGraphServer(t *testing.T, profileStatus int, profileBody string, photoStatus int, photoBody []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/me/photo/$value", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(photoStatus)
		w.Write(photoBody)
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(profileStatus)
		w.Write([]byte(profileBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDirectoryProfile(t *testing.T) {
	srv := newGraphServer(t, http.StatusOK, `{
		"displayName": "Ana Souza",
		"givenName": "Ana",
		"surname": "Souza",
		"mail": "ana@contoso.com",
		"userPrincipalName": "ana@contoso.com",
		"jobTitle": "Vendedora",
		"department": "Vendas",
		"officeLocation": "Joinville"
	}`, http.StatusNotFound, nil)

	c := NewDirectoryClient(srv.URL, nil, testLogger(), nil)
	profile, err := c.Profile(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", profile.DisplayName)
	assert.Equal(t, "Souza", profile.Surname)
	assert.Equal(t, "Vendas", profile.Department)
}

func TestDirectoryProfileErrorStatus(t *testing.T) {
	srv := newGraphServer(t, http.StatusUnauthorized, `{"error":{"code":"InvalidAuthenticationToken"}}`, http.StatusNotFound, nil)

	c := NewDirectoryClient(srv.URL, nil, testLogger(), nil)
	_, err := c.Profile(context.Background(), "tok")
	assert.Error(t, err)
}

func TestDirectoryPhotoStoredInBlobStore(t *testing.T) {
	photo := []byte{0xff, 0xd8, 0xff, 0xe0}
	srv := newGraphServer(t, http.StatusOK, `{}`, http.StatusOK, photo)

	root := t.TempDir()
	avatars, err := blob.NewFilesystemStore(root)
	require.NoError(t, err)

	c := NewDirectoryClient(srv.URL, avatars, testLogger(), nil)
	ref, err := c.Photo(context.Background(), "tok", "u-42")
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	stored, err := os.ReadFile(filepath.Join(root, "avatars", "u-42"))
	require.NoError(t, err)
	assert.Equal(t, photo, stored)
}

func TestDirectoryPhotoAbsenceIsNotAnError(t *testing.T) {
	srv := newGraphServer(t, http.StatusOK, `{}`, http.StatusNotFound, nil)

	avatars, err := blob.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	c := NewDirectoryClient(srv.URL, avatars, testLogger(), nil)
	ref, err := c.Photo(context.Background(), "tok", "u-42")
	require.NoError(t, err)
	assert.Empty(t, ref)
}

func TestDirectoryPhotoSkippedWithoutStore(t *testing.T) {
	c := NewDirectoryClient("http://unreachable.invalid", nil, testLogger(), nil)
	ref, err := c.Photo(context.Background(), "tok", "u-42")
	require.NoError(t, err)
	assert.Empty(t, ref)
}
