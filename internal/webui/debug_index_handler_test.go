package webui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/alerts"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/app"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/appconf"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/cache"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/clock"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
)

func newWebUI(t *testing.T, env appconf.Environment) *WebUI {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC))

	store, err := alerts.OpenSQLStore(":memory:", clk, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := appconf.Defaults()
	cfg.Env = env
	cfg.Feed.AuthHeaderKey = "x-api-key"
	cfg.Feed.AuthHeaderValue = "super-secret"

	return &WebUI{Application: &app.Application{
		Config:   cfg,
		Clock:    clk,
		Realtime: realtime.NewCache(cache.New(clk, 100), realtime.DefaultTTL),
		Alerts:   store,
	}}
}

func get(t *testing.T, webUI *WebUI, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	webUI.SetWebUIRoutes(mux)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestDebugIndexHandler_ProductionReturns404(t *testing.T) {
	rr := get(t, newWebUI(t, appconf.Production), "/debug/cache?dataType=vehicles")
	assert.Equal(t, http.StatusNotFound, rr.Code, "Should return 404 in Production")
}

func TestDebugIndexHandler_DumpsCache(t *testing.T) {
	webUI := newWebUI(t, appconf.Development)
	webUI.Realtime.StoreVehiclePositions([]realtime.VehiclePosition{{VehicleID: "bus-42", RouteID: "10"}})

	rr := get(t, webUI, "/debug/cache?dataType=vehicles")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "bus-42")

	rr = get(t, webUI, "/debug/cache?dataType=cache_keys")
	assert.Contains(t, rr.Body.String(), realtime.VehicleKey("bus-42"))
}

func TestDebugIndexHandler_Subscriptions(t *testing.T) {
	webUI := newWebUI(t, appconf.Development)
	_, err := webUI.Alerts.CreateSubscription(context.Background(),
		alerts.NewSubscription{UserID: "u1", StopID: "stop-77", ThresholdMinutes: 5})
	require.NoError(t, err)

	rr := get(t, webUI, "/debug/cache?dataType=subscriptions")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "stop-77")
}

func TestDebugIndexHandler_ConfigIsRedacted(t *testing.T) {
	rr := get(t, newWebUI(t, appconf.Development), "/debug/cache?dataType=config")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "super-secret")
	assert.Contains(t, rr.Body.String(), "[redacted]")
}

func TestDebugIndexHandler_UnknownType(t *testing.T) {
	rr := get(t, newWebUI(t, appconf.Test), "/debug/cache")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Choose a data type")
}
