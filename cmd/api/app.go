package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/gtfsdb"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/alerts"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/app"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/appconf"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/arrivals"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/cache"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/clock"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/feed"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/ingest"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/prediction"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/restapi"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/scheduler"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/webui"
)

const (
	dbStatsInterval = 15 * time.Second
	shutdownTimeout = 30 * time.Second
)

// BuildApplication opens the stores, imports the static timetable when a
// source is configured and registers the periodic jobs. Nothing is started.
func BuildApplication(cfg appconf.Config, logger *slog.Logger) (*app.Application, error) {
	if logger == nil {
		logger = logging.NewLogger(cfg.IsProduction(), cfg.Verbose)
	}
	ctx := context.Background()

	clk := clock.RealClock{}
	m := metrics.NewWithLogger(logger)

	gtfsDB, err := gtfsdb.NewClient(gtfsdb.NewConfig(cfg.Static.DBPath, cfg.Env, cfg.Verbose))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize timetable database: %w", err)
	}
	if cfg.Static.Source != "" {
		err := gtfsDB.Import(ctx, cfg.Static.Source, cfg.Static.AuthHeaderKey, cfg.Static.AuthHeaderValue)
		if err != nil {
			logging.SafeCloseWithLogging(gtfsDB, logger, "gtfs_database")
			return nil, fmt.Errorf("failed to initialize timetable from %s: %w", cfg.Static.Source, err)
		}
		logging.LogOperation(logger, "timetable_imported",
			slog.String("source", cfg.Static.Source),
			slog.Duration("duration", gtfsDB.ImportRuntime()))
	}

	store, err := alerts.OpenSQLStore(cfg.Alerts.DBPath, clk, logger)
	if err != nil {
		logging.SafeCloseWithLogging(gtfsDB, logger, "gtfs_database")
		return nil, fmt.Errorf("failed to initialize alert store: %w", err)
	}

	rc := realtime.NewCache(cache.New(clk, cfg.Cache.MaxEntries), cfg.Cache.TTL)
	feedClient := feed.NewClient(feed.Config{
		VehiclePositionsURL: cfg.Feed.VehiclePositionsURL,
		TripUpdatesURL:      cfg.Feed.TripUpdatesURL,
		Headers:             cfg.Feed.Headers(),
		Timeout:             cfg.Feed.Timeout,
	}, m, logger)

	predictor := prediction.LoadService(cfg.Model.Path, m, logger)
	engine := arrivals.NewEngine(arrivals.Config{
		MaxResults: cfg.Arrivals.MaxResults,
		Location:   cfg.Location(),
	}, gtfsDB, rc, predictor, clk, m, logger)

	evaluator := alerts.NewEvaluator(store, alertSource(cfg, feedClient, rc, logger), clk, cfg.Alerts.Cooldown, m, logger)

	sched := scheduler.New(logger, m)
	if err := registerJobs(sched, cfg, feedClient, rc, evaluator, m, logger); err != nil {
		logging.SafeCloseWithLogging(store, logger, "alerts_database")
		logging.SafeCloseWithLogging(gtfsDB, logger, "gtfs_database")
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	return &app.Application{
		Config:    cfg,
		Logger:    logger,
		Clock:     clk,
		Metrics:   m,
		Realtime:  rc,
		Feed:      feedClient,
		GtfsDB:    gtfsDB,
		Alerts:    store,
		Predictor: predictor,
		Arrivals:  engine,
		Evaluator: evaluator,
		Scheduler: sched,
	}, nil
}

// alertSource picks the trip-update source for alert sweeps. Without a
// trip-updates URL the feed can never answer, so the cache is used instead.
func alertSource(cfg appconf.Config, client *feed.Client, rc *realtime.Cache, logger *slog.Logger) alerts.TripUpdateSource {
	if cfg.Alerts.Source == appconf.AlertSourceCache {
		return alerts.CacheSource{Cache: rc}
	}
	if cfg.Feed.TripUpdatesURL == "" {
		logger.Warn("no trip updates URL configured, alert sweeps will read the cache")
		return alerts.CacheSource{Cache: rc}
	}
	return client
}

func registerJobs(sched *scheduler.Scheduler, cfg appconf.Config, client *feed.Client, rc *realtime.Cache, evaluator *alerts.Evaluator, m *metrics.Metrics, logger *slog.Logger) error {
	if cfg.Feed.VehiclePositionsURL != "" {
		job := &ingest.VehiclePositionsJob{Source: client, Cache: rc, Metrics: m}
		if err := sched.Every(cfg.Schedule.VehiclePositionsInterval, cfg.Schedule.IngestTimeout, job); err != nil {
			return err
		}
	} else {
		logger.Warn("no vehicle positions URL configured, skipping ingestion")
	}

	if cfg.Feed.TripUpdatesURL != "" {
		job := &ingest.TripUpdatesJob{Source: client, Cache: rc, Metrics: m}
		if err := sched.Every(cfg.Schedule.TripUpdatesInterval, cfg.Schedule.IngestTimeout, job); err != nil {
			return err
		}
	} else {
		logger.Warn("no trip updates URL configured, skipping ingestion")
	}

	return sched.Every(cfg.Schedule.AlertsInterval, cfg.Schedule.AlertsTimeout, evaluator)
}

// CreateServer wires the API and debug routes behind the shared middleware.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)

	mux := http.NewServeMux()
	api.SetRoutes(mux)

	webUI := &webui.WebUI{Application: coreApp}
	webUI.SetWebUIRoutes(mux)

	var handler http.Handler = mux
	handler = restapi.MetricsHandler(coreApp.Metrics)(handler)
	handler = restapi.NewRequestLoggingMiddleware(coreApp.Logger)(handler)
	handler = restapi.RequestIDMiddleware(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv, api
}

// Run starts the background jobs and serves until SIGINT or SIGTERM, then
// shuts everything down in reverse order.
func Run(srv *http.Server, coreApp *app.Application, api *restapi.RestAPI, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	return serve(ctx, srv, ln, coreApp, api, logger)
}

func serve(ctx context.Context, srv *http.Server, ln net.Listener, coreApp *app.Application, api *restapi.RestAPI, logger *slog.Logger) error {
	if coreApp.Metrics != nil {
		coreApp.Metrics.StartDBStatsCollector(map[string]*sql.DB{
			"gtfs":   coreApp.GtfsDB.DB,
			"alerts": coreApp.Alerts.DB(),
		}, dbStatsInterval)
	}
	coreApp.Scheduler.Start()

	serverErr := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "server_started",
			slog.String("addr", ln.Addr().String()),
			slog.String("env", string(coreApp.Config.Env)))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-serverErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "server forced to shutdown", err)
		runErr = errors.Join(runErr, err)
	}
	if err := coreApp.Scheduler.Stop(shutdownCtx); err != nil {
		logging.LogError(logger, "scheduler did not stop in time", err)
	}
	api.Shutdown()
	if coreApp.Metrics != nil {
		coreApp.Metrics.Shutdown()
	}
	coreApp.Close()

	logger.Info("server exited")
	return runErr
}
