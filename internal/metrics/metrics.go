// Package metrics provides the Prometheus instruments for the delay pipeline.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job outcomes recorded on JobRunsTotal.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
	OutcomePanic   = "panic"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Feed and ingestion metrics
	FeedFetchesTotal *prometheus.CounterVec
	FeedEntities     *prometheus.GaugeVec
	JobRunsTotal     *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	CacheEntries     prometheus.Gauge
	CacheCommits     prometheus.Counter

	// Read path metrics
	ArrivalsRequestsTotal *prometheus.CounterVec
	PredictionFallbacks   prometheus.Counter

	// Alert metrics
	AlertSweepsTotal    *prometheus.CounterVec
	NotificationsIssued prometheus.Counter

	// Database pool metrics, labelled by database name
	DBConnectionsOpen  *prometheus.GaugeVec
	DBConnectionsInUse *prometheus.GaugeVec
	DBConnectionsIdle  *prometheus.GaugeVec
	DBWaitSecondsTotal *prometheus.CounterVec

	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		FeedFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_feed_fetches_total",
			Help: "GTFS-RT fetches by endpoint and outcome (ok, unavailable, decode_error)",
		}, []string{"endpoint", "outcome"}),
		FeedEntities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transit_feed_entities",
			Help: "Entities decoded from the most recent successful fetch",
		}, []string{"endpoint"}),
		JobRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_job_runs_total",
			Help: "Periodic job runs by job and outcome",
		}, []string{"job", "outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transit_job_duration_seconds",
			Help:    "Periodic job run time",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transit_cache_entries",
			Help: "Entries held by the real-time cache, including not yet evicted expired ones",
		}),
		CacheCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_cache_batch_commits_total",
			Help: "Ingestion batches committed to the real-time cache",
		}),
		ArrivalsRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_arrivals_requests_total",
			Help: "Arrival merge requests by outcome (ok, not_found, error)",
		}, []string{"outcome"}),
		PredictionFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_prediction_fallbacks_total",
			Help: "Predictions replaced by the neutral probability",
		}),
		AlertSweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_alert_sweeps_total",
			Help: "Alert sweeps by outcome (ok, idle, feed_error, persistence_error)",
		}, []string{"outcome"}),
		NotificationsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transit_notifications_issued_total",
			Help: "Notification events committed by alert sweeps",
		}),
		DBConnectionsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transit_db_connections_open",
			Help: "Number of open database connections",
		}, []string{"db"}),
		DBConnectionsInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transit_db_connections_in_use",
			Help: "Number of database connections currently in use",
		}, []string{"db"}),
		DBConnectionsIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transit_db_connections_idle",
			Help: "Number of idle database connections",
		}, []string{"db"}),
		DBWaitSecondsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transit_db_wait_seconds_total",
			Help: "Total time blocked waiting for a database connection",
		}, []string{"db"}),
		logger: logger,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.FeedFetchesTotal,
		m.FeedEntities,
		m.JobRunsTotal,
		m.JobDuration,
		m.CacheEntries,
		m.CacheCommits,
		m.ArrivalsRequestsTotal,
		m.PredictionFallbacks,
		m.AlertSweepsTotal,
		m.NotificationsIssued,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitSecondsTotal,
	)

	return m
}

// StartDBStatsCollector periodically copies connection pool statistics of the
// named databases into the DB gauges. Only the first call starts a collector;
// call Shutdown to stop it.
func (m *Metrics) StartDBStatsCollector(databases map[string]*sql.DB, interval time.Duration) {
	dbs := make(map[string]*sql.DB, len(databases))
	for name, db := range databases {
		if db != nil {
			dbs[name] = db
		}
	}
	if len(dbs) == 0 {
		return
	}
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil && m.logger != nil {
				m.logger.Error("panic in DB stats collector", "error", r)
			}
		}()

		lastWait := make(map[string]time.Duration, len(dbs))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for name, db := range dbs {
					lastWait[name] = m.collectDBStats(name, db, lastWait[name])
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Metrics) collectDBStats(name string, db *sql.DB, lastWait time.Duration) time.Duration {
	stats := db.Stats()
	m.DBConnectionsOpen.WithLabelValues(name).Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.WithLabelValues(name).Set(float64(stats.InUse))
	m.DBConnectionsIdle.WithLabelValues(name).Set(float64(stats.Idle))

	if delta := stats.WaitDuration - lastWait; delta > 0 {
		m.DBWaitSecondsTotal.WithLabelValues(name).Add(delta.Seconds())
	}
	return stats.WaitDuration
}

// Shutdown stops the DB stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
