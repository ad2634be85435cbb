package gtfsdb

import (
	"context"
	"fmt"

	"github.com/OneBusAway/go-gtfs"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
)

func (c *Client) staticDataCounts(staticData *gtfs.Static) map[string]int {
	stopTimes := 0
	for _, t := range staticData.Trips {
		stopTimes += len(t.StopTimes)
	}
	return map[string]int{
		"agencies":   len(staticData.Agencies),
		"routes":     len(staticData.Routes),
		"stops":      len(staticData.Stops),
		"trips":      len(staticData.Trips),
		"stop_times": stopTimes,
	}
}

// TableCounts returns row counts for the known timetable tables that exist.
func (c *Client) TableCounts(ctx context.Context) (map[string]int, error) {
	rows, err := c.DB.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("failed to query table names: %w", err)
	}
	defer logging.SafeCloseWithLogging(rows, c.logger, "database_rows")

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tableCountQueries := map[string]string{
		"agencies":        "SELECT COUNT(*) FROM agencies",
		"routes":          "SELECT COUNT(*) FROM routes",
		"stops":           "SELECT COUNT(*) FROM stops",
		"trips":           "SELECT COUNT(*) FROM trips",
		"stop_times":      "SELECT COUNT(*) FROM stop_times",
		"import_metadata": "SELECT COUNT(*) FROM import_metadata",
	}

	counts := make(map[string]int)
	for _, table := range tables {
		query, ok := tableCountQueries[table]
		if !ok {
			continue
		}

		var count int
		if err := c.DB.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return nil, err
		}
		counts[table] = count
	}

	return counts, nil
}
