package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marianozunino/gatedrop/internal/clock"
	"github.com/marianozunino/gatedrop/internal/config"
	"github.com/marianozunino/gatedrop/internal/identity"
	"github.com/marianozunino/gatedrop/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig(t *testing.T, registryBackend string) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Port:    0,
		BaseURL: "http://localhost:8080/",
		Storage: config.StorageConfig{
			Backend:    config.BackendLocal,
			UploadPath: filepath.Join(dir, "uploads"),
		},
		Registry: config.RegistryConfig{
			Backend:    registryBackend,
			SQLitePath: filepath.Join(dir, "data", "test.db"),
		},
		Auth: config.AuthConfig{
			JWTSecret:           "test-secret",
			TokenTTLHours:       24 * 365,
			RevocationCacheSize: 100,
			Users: []identity.SeedUser{
				{Username: "admin", Email: "admin@example.com", Password: "admin-password", Role: "admin"},
				{Username: "alice", Email: "alice@example.com", Password: "alice-password"},
				{Username: "bob", Email: "bob@example.com", Password: "bob-password"},
				{Username: "carol", Email: "carol@example.com", Password: "carol-password"},
			},
		},
		Policy:     policy.Default(),
		Expiration: config.ExpirationConfig{Enabled: false, CheckInterval: 60},
		Pagination: config.PaginationConfig{MyFilesLimit: 20, AvailableLimit: 10, HistoryLimit: 50},
	}
}

// setupTestApp serves a fully wired app on a test server with a settable clock
func setupTestApp(t *testing.T, registryBackend string) (*httptest.Server, *clock.Fixed, func()) {
	cfg := testConfig(t, registryBackend)
	clk := clock.NewFixed(testNow)

	application, err := New(cfg, WithClock(clk))
	require.NoError(t, err)

	server := httptest.NewServer(application.Handler())
	cleanup := func() {
		server.Close()
		application.Stop()
	}
	return server, clk, cleanup
}

func TestSetup(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)

	err := setup(cfg)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.Storage.UploadPath)
	assert.NoError(t, err)
}

func TestSetupSkipsRemoteStorage(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Storage.Backend = config.BackendS3

	assert.NoError(t, setup(cfg))

	_, err := os.Stat(cfg.Storage.UploadPath)
	assert.True(t, os.IsNotExist(err))
}

func TestNewWithSQLiteRunsMigrations(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)

	application, err := New(cfg)
	require.NoError(t, err)
	defer application.Stop()

	require.NotNil(t, application.db)
	p, err := application.Files().Policy(t.Context())
	require.NoError(t, err)
	assert.Equal(t, policy.Default().MaxFileSizeMB, p.MaxFileSizeMB)

	_, err = os.Stat(cfg.Registry.SQLitePath)
	assert.NoError(t, err)
}

func TestNewWithMemoryRegistry(t *testing.T) {
	application, err := New(testConfig(t, config.BackendMemory))
	require.NoError(t, err)
	defer application.Stop()

	assert.Nil(t, application.db)
}

func TestNewRejectsDuplicateSeedUsers(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Auth.Users = append(cfg.Auth.Users, cfg.Auth.Users[0])

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	server, _, cleanup := setupTestApp(t, config.BackendMemory)
	defer cleanup()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "gatedrop_http_requests_total")
}

func TestUnknownRouteUsesErrorBody(t *testing.T) {
	server, _, cleanup := setupTestApp(t, config.BackendMemory)
	defer cleanup()

	resp, err := http.Get(server.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "NOT_FOUND", body["code"])
}
