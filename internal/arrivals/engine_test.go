package arrivals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/gtfsdb"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/gtfsdb/gtfsdbtest"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/appconf"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/cache"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/clock"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/models"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/prediction"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
)

// Monday
var now = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func seq(n uint32) *uint32 { return &n }
func secs(n int64) *int64  { return &n }

type fakeTimetable struct {
	rows map[string][]gtfsdb.ScheduledStopTime
	err  error
}

func (f fakeTimetable) StopTimesForStop(_ context.Context, stopID string, limit int) ([]gtfsdb.ScheduledStopTime, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows, ok := f.rows[stopID]
	if !ok {
		return nil, gtfsdb.ErrStopNotFound
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

type recordingPredictor struct {
	p        float64
	features []prediction.Features
}

func (r *recordingPredictor) ProbabilityLate(_ context.Context, f prediction.Features) float64 {
	r.features = append(r.features, f)
	return r.p
}

func row(tripID, routeID string, sequence uint32, arrival int64) gtfsdb.ScheduledStopTime {
	return gtfsdb.ScheduledStopTime{
		TripID:         tripID,
		StopID:         "S2",
		StopSequence:   sequence,
		RouteID:        routeID,
		Headsign:       "Downtown",
		ArrivalSeconds: arrival,
		ArrivalTime:    gtfsdb.FormatTimeOfDay(arrival),
		DepartureTime:  gtfsdb.FormatTimeOfDay(arrival),
	}
}

type fixture struct {
	engine    *Engine
	cache     *realtime.Cache
	predictor *recordingPredictor
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, tt Timetable, maxResults int) *fixture {
	t.Helper()
	clk := clock.NewMockClock(now)
	rc := realtime.NewCache(cache.New(clk, 1000), realtime.DefaultTTL)
	p := &recordingPredictor{p: 0.25}
	m := metrics.New()
	engine := NewEngine(Config{MaxResults: maxResults}, tt, rc, p, clk, m, nil)
	return &fixture{engine: engine, cache: rc, predictor: p, metrics: m}
}

func TestDelayClassification(t *testing.T) {
	tests := []struct {
		name     string
		delay    *int64
		status   models.ArrivalStatus
		minutes  float64
		expected string
	}{
		{"late", secs(360), models.StatusLate, 6.0, "08:16:00"},
		{"early", secs(-90), models.StatusEarly, -1.5, "08:08:30"},
		{"on time", secs(0), models.StatusOnTime, 0, "08:10:00"},
		{"exactly five minutes", secs(300), models.StatusOnTime, 5.0, "08:15:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fakeTimetable{rows: map[string][]gtfsdb.ScheduledStopTime{
				"S2": {row("T1", "10", 2, 8*3600+600)},
			}}, 50)
			f.cache.StoreTripUpdates([]realtime.TripUpdate{{
				TripID: "T1", RouteID: "10", VehicleID: "V9",
				StopTimeUpdates: []realtime.StopTimeUpdate{{StopSequence: seq(2), StopID: "S2", ArrivalDelay: tt.delay}},
			}})

			records, err := f.engine.ArrivalsForStop(context.Background(), "S2")
			require.NoError(t, err)
			require.Len(t, records, 1)

			r := records[0]
			assert.Equal(t, tt.status, r.Status)
			assert.InDelta(t, tt.minutes, r.DelayMinutes, 1e-9)
			require.NotNil(t, r.PredictedArrival)
			assert.Equal(t, tt.expected, *r.PredictedArrival)
			require.NotNil(t, r.VehicleID)
			assert.Equal(t, "V9", *r.VehicleID)
			assert.Equal(t, 0.25, r.ProbabilityLate5Min)
		})
	}
}

func TestMatchIsByStopSequenceNotStopID(t *testing.T) {
	f := newFixture(t, fakeTimetable{rows: map[string][]gtfsdb.ScheduledStopTime{
		"S2": {
			row("T1", "10", 2, 8*3600+600),
			row("T2", "20", 4, 8*3600+900),
		},
	}}, 50)

	// Both trips visit S2; only T2 reports a delay, and T1's update for S2
	// carries the wrong sequence so it must not match.
	f.cache.StoreTripUpdates([]realtime.TripUpdate{
		{TripID: "T1", StopTimeUpdates: []realtime.StopTimeUpdate{
			{StopSequence: seq(3), StopID: "S2", ArrivalDelay: secs(600)},
		}},
		{TripID: "T2", StopTimeUpdates: []realtime.StopTimeUpdate{
			{StopSequence: seq(4), StopID: "S2", ArrivalDelay: secs(420)},
		}},
	})

	records, err := f.engine.ArrivalsForStop(context.Background(), "S2")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "T1", records[0].TripID)
	assert.Equal(t, models.StatusScheduled, records[0].Status)
	assert.Equal(t, 0.0, records[0].DelayMinutes)
	assert.Nil(t, records[0].PredictedArrival)

	assert.Equal(t, "T2", records[1].TripID)
	assert.Equal(t, models.StatusLate, records[1].Status)
	assert.InDelta(t, 7.0, records[1].DelayMinutes, 1e-9)
}

func TestMissingDelayStaysScheduled(t *testing.T) {
	f := newFixture(t, fakeTimetable{rows: map[string][]gtfsdb.ScheduledStopTime{
		"S2": {row("T1", "10", 2, 8*3600)},
	}}, 50)
	f.cache.StoreTripUpdates([]realtime.TripUpdate{{
		TripID:          "T1",
		StopTimeUpdates: []realtime.StopTimeUpdate{{StopSequence: seq(2), StopID: "S2"}},
	}})

	records, err := f.engine.ArrivalsForStop(context.Background(), "S2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, records[0].Status)
	assert.Nil(t, records[0].VehicleID)
}

func TestResultsBoundedAndOrdered(t *testing.T) {
	var rows []gtfsdb.ScheduledStopTime
	for i := uint32(1); i <= 8; i++ {
		rows = append(rows, row("T"+string(rune('0'+i)), "10", i, int64(8*3600+int(i)*60)))
	}
	f := newFixture(t, fakeTimetable{rows: map[string][]gtfsdb.ScheduledStopTime{"S2": rows}}, 5)

	records, err := f.engine.ArrivalsForStop(context.Background(), "S2")
	require.NoError(t, err)
	assert.Len(t, records, 5)
	for i := 1; i < len(records); i++ {
		assert.Less(t, records[i-1].StopSequence, records[i].StopSequence)
	}
}

func TestEmptyCacheYieldsScheduledRecords(t *testing.T) {
	f := newFixture(t, fakeTimetable{rows: map[string][]gtfsdb.ScheduledStopTime{
		"S2": {row("T1", "10", 2, 8*3600), row("T2", "20", 3, 9*3600)},
	}}, 50)

	records, err := f.engine.ArrivalsForStop(context.Background(), "S2")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, models.StatusScheduled, r.Status)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ArrivalsRequestsTotal.WithLabelValues("ok")))
}

func TestUnknownStopIsNotFound(t *testing.T) {
	f := newFixture(t, fakeTimetable{rows: map[string][]gtfsdb.ScheduledStopTime{}}, 50)

	_, err := f.engine.ArrivalsForStop(context.Background(), "missing")
	assert.True(t, errors.Is(err, gtfsdb.ErrStopNotFound))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ArrivalsRequestsTotal.WithLabelValues("not_found")))
}

func TestTimetableFailureIsReturned(t *testing.T) {
	f := newFixture(t, fakeTimetable{err: errors.New("database is locked")}, 50)

	_, err := f.engine.ArrivalsForStop(context.Background(), "S2")
	assert.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ArrivalsRequestsTotal.WithLabelValues("error")))
}

func TestFeaturesFromScheduleAndClock(t *testing.T) {
	f := newFixture(t, fakeTimetable{rows: map[string][]gtfsdb.ScheduledStopTime{
		"S2": {
			row("T1", "10", 2, 17*3600+1800),
			row("T3", "10", 5, 24*3600+2400),
		},
	}}, 50)

	_, err := f.engine.ArrivalsForStop(context.Background(), "S2")
	require.NoError(t, err)
	require.Len(t, f.predictor.features, 2)

	first := f.predictor.features[0]
	assert.Equal(t, prediction.Features{RouteID: "10", StopSequence: 2, HourOfDay: 17, DayOfWeek: 0, IsWeekend: false}, first)

	afterMidnight := f.predictor.features[1]
	assert.Equal(t, 0, afterMidnight.HourOfDay)
	assert.Equal(t, 1, afterMidnight.DayOfWeek, "a 24:40 call falls on Tuesday")
}

func TestWeekendFeature(t *testing.T) {
	f := newFixture(t, fakeTimetable{rows: map[string][]gtfsdb.ScheduledStopTime{
		"S2": {row("T1", "10", 2, 10*3600)},
	}}, 50)
	f.engine.clock = clock.NewMockClock(time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC))

	_, err := f.engine.ArrivalsForStop(context.Background(), "S2")
	require.NoError(t, err)
	assert.True(t, f.predictor.features[0].IsWeekend)
	assert.Equal(t, 5, f.predictor.features[0].DayOfWeek)
}

func TestWithStaticStoreAndFallbackModel(t *testing.T) {
	db, err := gtfsdb.NewClient(gtfsdb.NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, db.ImportFromBytes(context.Background(), gtfsdbtest.Zip(t, gtfsdbtest.MinimalFeed()), "fixture.zip"))

	clk := clock.NewMockClock(now)
	rc := realtime.NewCache(cache.New(clk, 100), realtime.DefaultTTL)
	m := metrics.New()
	svc := prediction.NewService(nil, m, nil)
	engine := NewEngine(Config{}, db, rc, svc, clk, m, nil)

	rc.StoreTripUpdates([]realtime.TripUpdate{{
		TripID: "T2", RouteID: "20",
		StopTimeUpdates: []realtime.StopTimeUpdate{{StopSequence: seq(4), StopID: "S2", ArrivalDelay: secs(360)}},
	}})

	records, err := engine.ArrivalsForStop(context.Background(), "S2")
	require.NoError(t, err)
	require.Len(t, records, 3)

	byTrip := map[string]models.ArrivalRecord{}
	for _, r := range records {
		byTrip[r.TripID] = r
		assert.Equal(t, 0.0, r.ProbabilityLate5Min, "no model means neutral probability")
	}
	assert.Equal(t, models.StatusLate, byTrip["T2"].Status)
	assert.InDelta(t, 6.0, byTrip["T2"].DelayMinutes, 1e-9)
	assert.Equal(t, models.StatusScheduled, byTrip["T1"].Status)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PredictionFallbacks))

	_, err = engine.ArrivalsForStop(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, gtfsdb.ErrStopNotFound))
}
