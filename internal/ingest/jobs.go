// Package ingest holds the two periodic jobs that copy the GTFS-RT feeds
// into the real-time cache.
package ingest

import (
	"context"
	"log/slog"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
)

const (
	VehiclePositionsJobName = "ingest_vehicle_positions"
	TripUpdatesJobName      = "ingest_trip_updates"
)

type VehicleSource interface {
	FetchVehiclePositions(ctx context.Context) ([]realtime.VehiclePosition, error)
}

type TripUpdateSource interface {
	FetchTripUpdates(ctx context.Context) ([]realtime.TripUpdate, error)
}

// VehiclePositionsJob fetches the vehicle-positions feed and commits it to
// the cache as one batch. A failed or empty fetch writes nothing.
type VehiclePositionsJob struct {
	Source  VehicleSource
	Cache   *realtime.Cache
	Metrics *metrics.Metrics
}

func (j *VehiclePositionsJob) Name() string { return VehiclePositionsJobName }

func (j *VehiclePositionsJob) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	positions, err := j.Source.FetchVehiclePositions(ctx)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		logger.Info("no vehicles found in feed")
		return nil
	}

	written := j.Cache.StoreVehiclePositions(positions)
	recordCommit(j.Metrics, j.Cache)
	logger.Debug("vehicle positions cached",
		slog.Int("decoded", len(positions)),
		slog.Int("written", written))
	return nil
}

// TripUpdatesJob fetches the trip-updates feed and commits it to the cache
// as one batch. A failed or empty fetch writes nothing.
type TripUpdatesJob struct {
	Source  TripUpdateSource
	Cache   *realtime.Cache
	Metrics *metrics.Metrics
}

func (j *TripUpdatesJob) Name() string { return TripUpdatesJobName }

func (j *TripUpdatesJob) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	updates, err := j.Source.FetchTripUpdates(ctx)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		logger.Info("no trip updates found in feed")
		return nil
	}

	written := j.Cache.StoreTripUpdates(updates)
	recordCommit(j.Metrics, j.Cache)
	logger.Debug("trip updates cached",
		slog.Int("decoded", len(updates)),
		slog.Int("written", written))
	return nil
}

func recordCommit(m *metrics.Metrics, c *realtime.Cache) {
	if m == nil {
		return
	}
	m.CacheCommits.Inc()
	m.CacheEntries.Set(float64(c.Store().Len()))
}
