package github

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "app.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestNewSource(t *testing.T) {
	_, err := NewSource(Options{})
	assert.ErrorIs(t, err, ErrNoCredentials)

	src, err := NewSource(Options{Token: "ghp_x"})
	require.NoError(t, err)
	assert.IsType(t, &TokenSource{}, src)

	_, err = NewSource(Options{AppID: 42})
	assert.ErrorContains(t, err, "private_key_path")

	src, err = NewSource(Options{AppID: 42, PrivateKeyPath: writeTestKey(t)})
	require.NoError(t, err)
	assert.IsType(t, &App{}, src)
}

func TestApp_ControllerFor(t *testing.T) {
	var sawToken string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/acme/widgets/installation", func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "), "app JWT expected")
		writeJSON(t, w, http.StatusOK, map[string]any{"id": 7})
	})
	mux.HandleFunc("POST /api/v3/app/installations/7/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusCreated, map[string]any{
			"token":      "ghs_installation",
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})
	mux.HandleFunc("POST /api/v3/repos/acme/widgets/git/refs", func(w http.ResponseWriter, r *http.Request) {
		sawToken = r.Header.Get("Authorization")
		writeJSON(t, w, http.StatusCreated, apiRef("refs/heads/pr/1/head", "abc", "commit"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	app, err := NewApp(Options{AppID: 42, PrivateKeyPath: writeTestKey(t), BaseURL: server.URL})
	require.NoError(t, err)

	id, err := app.InstallationID(t.Context(), "acme", "widgets")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	c, err := app.ControllerFor(t.Context(), "acme", "widgets")
	require.NoError(t, err)
	require.NoError(t, c.CreateRef(t.Context(), "1/head", "abc"))
	assert.True(t, strings.HasSuffix(sawToken, "ghs_installation"), sawToken)
}

func TestApp_ControllerRequiresInstallation(t *testing.T) {
	app, err := NewApp(Options{AppID: 42, PrivateKeyPath: writeTestKey(t)})
	require.NoError(t, err)

	_, err = app.Controller(t.Context(), 0, "acme", "widgets")
	assert.ErrorContains(t, err, "no installation id")
}

func TestTokenSource_Controller(t *testing.T) {
	var sawToken string
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/v3/repos/acme/widgets/git/refs/heads/pr/1/head", func(w http.ResponseWriter, r *http.Request) {
		sawToken = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	src := NewTokenSource(Options{Token: "ghp_static", BaseURL: server.URL})
	c, err := src.Controller(t.Context(), 99, "acme", "widgets")
	require.NoError(t, err)
	require.NoError(t, c.DeleteRef(t.Context(), "1/head"))
	assert.Equal(t, "Bearer ghp_static", sawToken)
}

func TestAPIBaseURL(t *testing.T) {
	assert.Equal(t, "", apiBaseURL(""))
	assert.Equal(t, "https://ghe.example.com/api/v3", apiBaseURL("https://ghe.example.com/"))
	assert.Equal(t, "https://ghe.example.com/api/v3", apiBaseURL("https://ghe.example.com/api/v3/"))
}
