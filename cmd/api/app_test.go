package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/gtfsdb/gtfsdbtest"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/alerts"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/appconf"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/ingest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig points the static import at the fixture feed and keeps both
// databases in memory.
func testConfig(t *testing.T) appconf.Config {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "gtfs.zip")
	require.NoError(t, os.WriteFile(zipPath, gtfsdbtest.Zip(t, gtfsdbtest.MinimalFeed()), 0o600))

	cfg := appconf.Defaults()
	cfg.Env = appconf.Test
	cfg.Port = 8080
	cfg.Static.Source = zipPath
	cfg.Static.DBPath = ":memory:"
	cfg.Alerts.DBPath = ":memory:"
	cfg.Model.Path = filepath.Join(t.TempDir(), "missing.yaml")
	return cfg
}

func TestBuildApplicationWithFixture(t *testing.T) {
	cfg := testConfig(t)

	coreApp, err := BuildApplication(cfg, quietLogger())
	require.NoError(t, err, "BuildApplication should not return an error")
	t.Cleanup(coreApp.Close)

	assert.Equal(t, cfg, coreApp.Config)
	assert.NotNil(t, coreApp.Logger)
	assert.NotNil(t, coreApp.Arrivals)
	assert.NotNil(t, coreApp.Evaluator)
	assert.False(t, coreApp.Predictor.Available(), "a missing model runs in fallback mode")

	counts, err := coreApp.GtfsDB.TableCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, counts["stop_times"])

	// no feed URLs: only the alert sweep is scheduled, and it reads the cache
	ran, err := coreApp.Scheduler.RunNow(alerts.JobName)
	require.NoError(t, err)
	assert.True(t, ran)

	_, err = coreApp.Scheduler.RunNow(ingest.TripUpdatesJobName)
	assert.Error(t, err, "ingestion is not scheduled without a URL")
}

func TestBuildApplicationRegistersIngestJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Feed.VehiclePositionsURL = "http://127.0.0.1:1/vehicle-positions.pb"
	cfg.Feed.TripUpdatesURL = "http://127.0.0.1:1/trip-updates.pb"
	cfg.Feed.Timeout = time.Second

	coreApp, err := BuildApplication(cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(coreApp.Close)

	for _, name := range []string{ingest.VehiclePositionsJobName, ingest.TripUpdatesJobName} {
		ran, err := coreApp.Scheduler.RunNow(name)
		assert.True(t, ran, name)
		assert.Error(t, err, "%s: nothing listens on the feed port", name)
	}
	assert.Empty(t, coreApp.Realtime.VehiclePositions(), "a failed fetch writes nothing")
}

func TestBuildApplicationErrorHandling(t *testing.T) {
	cfg := testConfig(t)
	cfg.Static.Source = "/nonexistent/path/to/gtfs.zip"

	_, err := BuildApplication(cfg, quietLogger())
	require.Error(t, err, "Should return error for invalid GTFS path")
	assert.Contains(t, err.Error(), "failed to initialize timetable")
}

func TestCreateServer(t *testing.T) {
	cfg := testConfig(t)
	coreApp, err := BuildApplication(cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(coreApp.Close)

	srv, api := CreateServer(coreApp, cfg)
	defer api.Shutdown()

	assert.Equal(t, ":8080", srv.Addr, "Server address should match port")
	assert.NotNil(t, srv.Handler, "Server handler should be set")
	assert.Equal(t, time.Minute, srv.IdleTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadTimeout)
	assert.Equal(t, 10*time.Second, srv.WriteTimeout)
}

func TestCreateServerHandlerResponds(t *testing.T) {
	cfg := testConfig(t)
	coreApp, err := BuildApplication(cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(coreApp.Close)

	srv, api := CreateServer(coreApp, cfg)
	defer api.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"), "request id middleware is wired")

	req = httptest.NewRequest(http.MethodGet, "/api/stops/S2/arrivals", nil)
	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t)
	coreApp, err := BuildApplication(cfg, quietLogger())
	require.NoError(t, err)

	srv, api := CreateServer(coreApp, cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, ln, coreApp, api, quietLogger()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "Server should shutdown cleanly")
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}

	assert.Error(t, coreApp.GtfsDB.DB.Ping(), "databases are closed on exit")
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("port: 5000\nrate_limit: 50\n"), 0o600))

	env := map[string]string{"PORT": "6000"}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg, err := loadConfig(configPath, filepath.Join(dir, "missing.env"), lookup)
	require.NoError(t, err, "a missing env file is ignored")
	assert.Equal(t, 6000, cfg.Port, "environment wins over the file")
	assert.Equal(t, 50, cfg.RateLimit)
	assert.Equal(t, appconf.Development, cfg.Env)
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	t.Setenv("RATE_LIMIT", "")
	require.NoError(t, os.Unsetenv("RATE_LIMIT"))

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("RATE_LIMIT=7\n"), 0o600))

	cfg, err := loadConfig("", envFile, os.LookupEnv)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RateLimit)
}

func TestLoadConfigErrors(t *testing.T) {
	noEnv := func(string) (string, bool) { return "", false }

	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), "", noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat config file")

	_, err = loadConfig("", "", func(k string) (string, bool) { return "abc", k == "PORT" })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid environment override")
}
