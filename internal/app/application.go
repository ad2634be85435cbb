package app

import (
	"log/slog"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/gtfsdb"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/alerts"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/appconf"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/arrivals"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/clock"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/feed"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/prediction"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/scheduler"
)

// Application holds the dependencies shared by the HTTP handlers, the
// periodic jobs and the middleware. It is built once at startup.
type Application struct {
	Config  appconf.Config
	Logger  *slog.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics

	Realtime  *realtime.Cache
	Feed      *feed.Client
	GtfsDB    *gtfsdb.Client
	Alerts    *alerts.SQLStore
	Predictor *prediction.Service
	Arrivals  *arrivals.Engine
	Evaluator *alerts.Evaluator
	Scheduler *scheduler.Scheduler
}

// Close releases the databases. The scheduler must be stopped first.
func (app *Application) Close() {
	if app.GtfsDB != nil {
		logging.SafeCloseWithLogging(app.GtfsDB, app.Logger, "gtfs_database")
	}
	if app.Alerts != nil {
		logging.SafeCloseWithLogging(app.Alerts, app.Logger, "alerts_database")
	}
}
