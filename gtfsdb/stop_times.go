package gtfsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrStopNotFound is returned when a stop id is not in the timetable.
var ErrStopNotFound = errors.New("stop not found")

// ScheduledStopTime is one timetabled call of a trip at a stop.
// Arrival and departure are GTFS time-of-day strings and may exceed 24:00:00.
type ScheduledStopTime struct {
	TripID        string
	StopID        string
	StopSequence  uint32
	ArrivalTime   string
	DepartureTime string
	RouteID       string
	Headsign      string

	// ArrivalSeconds is seconds past service-day midnight.
	ArrivalSeconds int64
}

type stopTimesKey struct {
	stopID string
	limit  int
}

const stopTimesForStopQuery = `
SELECT st.trip_id, st.stop_id, st.stop_sequence, st.arrival_time, st.departure_time,
       t.route_id, COALESCE(t.trip_headsign, '')
FROM stop_times st
JOIN trips t ON t.id = st.trip_id
WHERE st.stop_id = ?
ORDER BY st.stop_sequence, st.arrival_time, st.trip_id
LIMIT ?`

// StopTimesForStop returns at most limit scheduled rows for stopID, ordered by
// stop_sequence then scheduled arrival. Unknown stops yield ErrStopNotFound; a
// known stop with no service yields an empty slice.
func (c *Client) StopTimesForStop(ctx context.Context, stopID string, limit int) ([]ScheduledStopTime, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	key := stopTimesKey{stopID: stopID, limit: limit}
	if cached, ok := c.stopTimes.Get(key); ok {
		return cached, nil
	}

	rows, err := c.DB.QueryContext(ctx, stopTimesForStopQuery, stopID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stop times for %s: %w", stopID, err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]ScheduledStopTime, 0, limit)
	for rows.Next() {
		var (
			st                 ScheduledStopTime
			arrival, departure int64
		)
		if err := rows.Scan(&st.TripID, &st.StopID, &st.StopSequence, &arrival, &departure, &st.RouteID, &st.Headsign); err != nil {
			return nil, fmt.Errorf("failed to scan stop time: %w", err)
		}
		st.ArrivalSeconds = arrival
		st.ArrivalTime = FormatTimeOfDay(arrival)
		st.DepartureTime = FormatTimeOfDay(departure)
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(result) == 0 {
		exists, err := c.stopExists(ctx, stopID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrStopNotFound, stopID)
		}
	}

	c.stopTimes.Add(key, result)
	return result, nil
}

func (c *Client) stopExists(ctx context.Context, stopID string) (bool, error) {
	var one int
	err := c.DB.QueryRowContext(ctx, "SELECT 1 FROM stops WHERE id = ?", stopID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up stop %s: %w", stopID, err)
	}
	return true, nil
}

// FormatTimeOfDay renders seconds past midnight as HH:MM:SS without wrapping at 24h.
func FormatTimeOfDay(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
