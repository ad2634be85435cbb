// Package arrivals merges the static timetable with cached trip updates and
// the delay model into per-stop arrival records.
package arrivals

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/gtfsdb"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/clock"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/models"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/prediction"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
)

const DefaultMaxResults = 50

// Timetable is the static schedule lookup. *gtfsdb.Client satisfies it.
type Timetable interface {
	StopTimesForStop(ctx context.Context, stopID string, limit int) ([]gtfsdb.ScheduledStopTime, error)
}

// TripUpdates reads cached trip updates. *realtime.Cache satisfies it.
type TripUpdates interface {
	TripUpdatesFor(tripIDs []string) map[string]realtime.TripUpdate
}

// Predictor never fails; *prediction.Service satisfies it.
type Predictor interface {
	ProbabilityLate(ctx context.Context, f prediction.Features) float64
}

type Config struct {
	MaxResults int
	// Location is the timezone used for day-of-week features.
	Location *time.Location
}

type Engine struct {
	timetable  Timetable
	updates    TripUpdates
	predictor  Predictor
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
	maxResults int
	location   *time.Location
}

func NewEngine(cfg Config, timetable Timetable, updates TripUpdates, predictor Predictor, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		timetable:  timetable,
		updates:    updates,
		predictor:  predictor,
		clock:      clk,
		metrics:    m,
		logger:     logger.With(slog.String("component", "arrivals")),
		maxResults: cfg.MaxResults,
		location:   cfg.Location,
	}
}

// ArrivalsForStop returns one record per scheduled call at stopID, in timetable
// order. Only a timetable failure is returned as an error; missing real-time
// or prediction data degrades individual records instead.
func (e *Engine) ArrivalsForStop(ctx context.Context, stopID string) ([]models.ArrivalRecord, error) {
	scheduled, err := e.timetable.StopTimesForStop(ctx, stopID, e.maxResults)
	if err != nil {
		if errors.Is(err, gtfsdb.ErrStopNotFound) {
			e.record("not_found")
		} else {
			e.record(metrics.OutcomeError)
			logging.LogError(e.logger, "timetable lookup failed", err, slog.String("stop_id", stopID))
		}
		return nil, err
	}
	if len(scheduled) > e.maxResults {
		scheduled = scheduled[:e.maxResults]
	}

	tripIDs := make([]string, 0, len(scheduled))
	for _, st := range scheduled {
		tripIDs = append(tripIDs, st.TripID)
	}
	// one read so every record sees the same cache snapshot
	updates := e.updates.TripUpdatesFor(tripIDs)

	now := e.clock.Now().In(e.location)
	records := make([]models.ArrivalRecord, 0, len(scheduled))
	for _, st := range scheduled {
		record := models.ArrivalRecord{
			TripID:           st.TripID,
			RouteID:          st.RouteID,
			Headsign:         st.Headsign,
			StopSequence:     st.StopSequence,
			ScheduledArrival: st.ArrivalTime,
			Status:           models.StatusScheduled,
		}

		if tu, ok := updates[st.TripID]; ok {
			if tu.VehicleID != "" {
				vehicleID := tu.VehicleID
				record.VehicleID = &vehicleID
			}
			applyDelay(&record, tu, st)
		}

		record.ProbabilityLate5Min = e.predictor.ProbabilityLate(ctx, buildFeatures(st, now))
		records = append(records, record)
	}

	e.record(metrics.OutcomeOK)
	return records, nil
}

// applyDelay joins on stop_sequence only; a stop id can appear in many trips.
func applyDelay(record *models.ArrivalRecord, tu realtime.TripUpdate, st gtfsdb.ScheduledStopTime) {
	stu, ok := tu.UpdateForSequence(st.StopSequence)
	if !ok || stu.ArrivalDelay == nil {
		return
	}

	delaySeconds := *stu.ArrivalDelay
	record.DelayMinutes = float64(delaySeconds) / 60.0
	record.Status = models.ClassifyDelay(record.DelayMinutes)

	predicted := gtfsdb.FormatTimeOfDay(st.ArrivalSeconds + delaySeconds)
	record.PredictedArrival = &predicted
}

func buildFeatures(st gtfsdb.ScheduledStopTime, now time.Time) prediction.Features {
	// Calls after 24:00:00 fall on the following calendar day
	day := now.AddDate(0, 0, int(st.ArrivalSeconds/86400))
	weekday := day.Weekday()

	return prediction.Features{
		RouteID:      st.RouteID,
		StopSequence: st.StopSequence,
		HourOfDay:    int((st.ArrivalSeconds / 3600) % 24),
		DayOfWeek:    (int(weekday) + 6) % 7,
		IsWeekend:    weekday == time.Saturday || weekday == time.Sunday,
	}
}

func (e *Engine) record(outcome string) {
	if e.metrics != nil {
		e.metrics.ArrivalsRequestsTotal.WithLabelValues(outcome).Inc()
	}
}
