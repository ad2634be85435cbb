package alerts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/clock"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
)

const JobName = "alert_evaluation"

// Sweep outcomes recorded on AlertSweepsTotal.
const (
	OutcomeIdle             = "idle"
	OutcomeFeedError        = "feed_error"
	OutcomePersistenceError = "persistence_error"
)

// TripUpdateSource supplies the trip updates for one sweep. *feed.Client
// satisfies it directly; CacheSource reads the real-time cache instead.
type TripUpdateSource interface {
	FetchTripUpdates(ctx context.Context) ([]realtime.TripUpdate, error)
}

// CacheSource serves trip updates from the real-time cache.
type CacheSource struct {
	Cache *realtime.Cache
}

func (c CacheSource) FetchTripUpdates(context.Context) ([]realtime.TripUpdate, error) {
	return c.Cache.TripUpdates(), nil
}

// Result summarises one sweep.
type Result struct {
	Active     int
	CoolingOff int
	IndexSize  int
	Triggers   []Trigger
}

// Evaluator runs alert sweeps. It implements scheduler.Job.
type Evaluator struct {
	store    Store
	source   TripUpdateSource
	clock    clock.Clock
	cooldown time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewEvaluator(store Store, source TripUpdateSource, clk clock.Clock, cooldown time.Duration, m *metrics.Metrics, logger *slog.Logger) *Evaluator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		store:    store,
		source:   source,
		clock:    clk,
		cooldown: cooldown,
		metrics:  m,
		logger:   logger.With(slog.String("component", "alerts")),
	}
}

func (e *Evaluator) Name() string { return JobName }

func (e *Evaluator) Run(ctx context.Context) error {
	_, err := e.Sweep(ctx)
	return err
}

// Sweep evaluates every active subscription once. Trip updates are fetched
// once per sweep and shared. Each subscription fires at most once, and all
// of a sweep's writes commit together or not at all.
func (e *Evaluator) Sweep(ctx context.Context) (Result, error) {
	var result Result

	subs, err := e.store.ActiveSubscriptions(ctx)
	if err != nil {
		e.record(OutcomePersistenceError)
		return result, err
	}
	result.Active = len(subs)
	if len(subs) == 0 {
		e.record(OutcomeIdle)
		return result, nil
	}

	updates, err := e.source.FetchTripUpdates(ctx)
	if err != nil {
		e.record(OutcomeFeedError)
		return result, err
	}

	index := BuildDelayIndex(updates)
	result.IndexSize = index.Len()

	now := e.clock.Now()
	for _, sub := range subs {
		if !sub.Ready(now, e.cooldown) {
			result.CoolingOff++
			continue
		}
		if trigger, ok := e.match(sub, index, now); ok {
			result.Triggers = append(result.Triggers, trigger)
		}
	}

	applied, err := e.store.CommitSweep(ctx, result.Triggers)
	if err != nil {
		e.record(OutcomePersistenceError)
		logging.LogError(e.logger, "alert sweep rolled back", err,
			slog.Int("discarded_notifications", len(result.Triggers)))
		result.Triggers = nil
		if !errors.Is(err, ErrPersistence) {
			err = errors.Join(ErrPersistence, err)
		}
		return result, err
	}
	result.Triggers = applied

	e.record(metrics.OutcomeOK)
	if e.metrics != nil {
		e.metrics.NotificationsIssued.Add(float64(len(result.Triggers)))
	}
	logging.LogOperation(e.logger, "alert_sweep_completed",
		slog.Int("active", result.Active),
		slog.Int("cooling_off", result.CoolingOff),
		slog.Int("index_size", result.IndexSize),
		slog.Int("notifications", len(result.Triggers)))
	return result, nil
}

// match returns the first index entry at the subscription's stop that passes
// the route filter and is strictly later than the threshold.
func (e *Evaluator) match(sub Subscription, index *DelayIndex, now time.Time) (Trigger, bool) {
	for _, entry := range index.ForStop(sub.StopID) {
		if !sub.Accepts(entry.RouteID, entry.StopID) {
			continue
		}
		minutes := entry.Minutes()
		if minutes <= sub.ThresholdMinutes {
			continue
		}
		return Trigger{
			SubscriptionID: sub.ID,
			TriggeredAt:    now,
			Notification: NotificationEvent{
				ID:             uuid.NewString(),
				SubscriptionID: sub.ID,
				Message:        FormatMessage(entry.RouteID, entry.StopID, minutes),
				CreatedAt:      now,
			},
		}, true
	}
	return Trigger{}, false
}

func (e *Evaluator) record(outcome string) {
	if e.metrics != nil {
		e.metrics.AlertSweepsTotal.WithLabelValues(outcome).Inc()
	}
}
