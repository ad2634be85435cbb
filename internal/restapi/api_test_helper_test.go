package restapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/gtfsdb"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/gtfsdb/gtfsdbtest"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/alerts"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/app"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/appconf"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/arrivals"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/cache"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/clock"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/prediction"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
)

// Monday morning
var testNow = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

// createTestApplication wires the timetable fixture, an empty cache and
// in-memory alert store with no delay model.
func createTestApplication(t *testing.T) *app.Application {
	t.Helper()
	ctx := context.Background()

	cfg := appconf.Defaults()
	cfg.Env = appconf.Test

	clk := clock.NewMockClock(testNow)
	m := metrics.New()

	db, err := gtfsdb.NewClient(gtfsdb.NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	require.NoError(t, db.ImportFromBytes(ctx, gtfsdbtest.Zip(t, gtfsdbtest.MinimalFeed()), "fixture.zip"))

	store, err := alerts.OpenSQLStore(":memory:", clk, nil)
	require.NoError(t, err)

	rc := realtime.NewCache(cache.New(clk, 1000), cfg.Cache.TTL)
	svc := prediction.NewService(nil, m, nil)

	application := &app.Application{
		Config:    cfg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:     clk,
		Metrics:   m,
		Realtime:  rc,
		GtfsDB:    db,
		Alerts:    store,
		Predictor: svc,
		Arrivals:  arrivals.NewEngine(arrivals.Config{MaxResults: cfg.Arrivals.MaxResults}, db, rc, svc, clk, m, nil),
	}
	t.Cleanup(application.Close)
	return application
}

func createTestApi(t *testing.T) *RestAPI {
	t.Helper()
	api := NewRestAPI(createTestApplication(t))
	t.Cleanup(api.Shutdown)
	return api
}

// serve runs one request through the full route table.
func serve(t *testing.T, api *RestAPI, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	api.SetRoutes(mux)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// envelope decodes a response whose data is T.
type envelope[T any] struct {
	Code        int                 `json:"code"`
	CurrentTime int64               `json:"currentTime"`
	Text        string              `json:"text"`
	Data        T                   `json:"data"`
	FieldErrors map[string][]string `json:"fieldErrors"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

type list[T any] struct {
	List []T `json:"list"`
}
