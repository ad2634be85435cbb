package gtfsdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/OneBusAway/go-gtfs"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/appconf"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
)

//go:embed schema.sql
var ddl string

// createDB creates a new SQLite database with tables for static GTFS data
func createDB(config Config) (*sql.DB, error) {
	if config.Env == appconf.Test && config.DBPath != ":memory:" {
		return nil, fmt.Errorf("test database must use in-memory storage, got path: %s", config.DBPath)
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, err
	}

	// Pool settings first: a :memory: database exists per connection
	configureConnectionPool(db, config)

	ctx := context.Background()
	if err := configureSQLitePerformance(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error configuring SQLite performance: %w", err)
	}

	if err := performDatabaseMigration(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}

	return db, nil
}

func performDatabaseMigration(ctx context.Context, db *sql.DB) error {
	statements := strings.Split(ddl, "-- migrate")
	for _, stmt := range statements {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, trimmedStmt); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", trimmedStmt, err)
		}
	}
	return nil
}

type importMetadata struct {
	FileHash   string
	ImportTime int64
	FileSource string
}

func (c *Client) getImportMetadata(ctx context.Context) (importMetadata, error) {
	var m importMetadata
	err := c.DB.QueryRowContext(ctx,
		"SELECT file_hash, import_time, file_source FROM import_metadata WHERE id = 1",
	).Scan(&m.FileHash, &m.ImportTime, &m.FileSource)
	return m, err
}

func (c *Client) processAndStoreGTFSDataWithSource(ctx context.Context, b []byte, source string) error {
	logger := c.logger.With(slog.String("component", "gtfs_importer"))

	startTime := time.Now()
	defer func() {
		c.importRuntime = time.Since(startTime)
		logging.LogOperation(logger, "gtfs_data_import_completed",
			slog.Duration("duration", c.importRuntime),
			slog.String("source", source))
	}()

	hash := sha256.Sum256(b)
	hashStr := hex.EncodeToString(hash[:])

	existingMetadata, err := c.getImportMetadata(ctx)
	switch {
	case err == nil:
		if existingMetadata.FileHash == hashStr && existingMetadata.FileSource == source {
			logging.LogOperation(logger, "gtfs_data_unchanged_skipping_import",
				slog.String("hash", hashStr[:8]))
			return nil
		}
		logging.LogOperation(logger, "gtfs_data_changed_reimporting",
			slog.String("old_hash", existingMetadata.FileHash[:8]),
			slog.String("new_hash", hashStr[:8]))
	case errors.Is(err, sql.ErrNoRows):
		// first import
	default:
		return fmt.Errorf("error checking import metadata: %w", err)
	}

	staticData, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return fmt.Errorf("failed to parse static GTFS: %w", err)
	}

	staticCounts := c.staticDataCounts(staticData)
	logging.LogOperation(logger, "static_gtfs_parsed",
		slog.Int("warnings", len(staticData.Warnings)),
		slog.Int("routes", staticCounts["routes"]),
		slog.Int("stops", staticCounts["stops"]),
		slog.Int("trips", staticCounts["trips"]))

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "gtfs_import")

	if err := clearAllGTFSData(ctx, tx); err != nil {
		return fmt.Errorf("error clearing existing GTFS data: %w", err)
	}
	if err := c.insertStaticData(ctx, tx, logger, staticData); err != nil {
		return err
	}

	logging.LogOperation(logger, "updating_import_metadata",
		slog.String("hash", hashStr[:8]),
		slog.String("source", source))

	_, err = tx.ExecContext(ctx, `
		INSERT INTO import_metadata (id, file_hash, import_time, file_source) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET file_hash = excluded.file_hash,
			import_time = excluded.import_time, file_source = excluded.file_source`,
		hashStr, time.Now().Unix(), source)
	if err != nil {
		return fmt.Errorf("error updating import metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit GTFS import: %w", err)
	}

	c.stopTimes.Purge()
	return nil
}

func (c *Client) insertStaticData(ctx context.Context, tx *sql.Tx, logger *slog.Logger, staticData *gtfs.Static) error {
	logging.LogOperation(logger, "inserting_agencies_and_routes",
		slog.Int("agencies", len(staticData.Agencies)),
		slog.Int("routes", len(staticData.Routes)))

	for _, a := range staticData.Agencies {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO agencies (id, name, url, timezone) VALUES (?, ?, ?, ?)",
			a.Id, a.Name, a.Url, a.Timezone)
		if err != nil {
			return fmt.Errorf("unable to create agency: %w", err)
		}
	}

	singleAgencyID := ""
	if len(staticData.Agencies) == 1 {
		singleAgencyID = staticData.Agencies[0].Id
	}

	for _, r := range staticData.Routes {
		var agencyID string
		if r.Agency != nil {
			agencyID = r.Agency.Id
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO routes (id, agency_id, short_name, long_name, type, color) VALUES (?, ?, ?, ?, ?, ?)",
			r.Id, pickFirstAvailable(agencyID, singleAgencyID),
			toNullString(r.ShortName), toNullString(r.LongName),
			int64(r.Type), toNullString(r.Color))
		if err != nil {
			return fmt.Errorf("unable to create route: %w", err)
		}
	}

	stopRows := make([][]any, 0, len(staticData.Stops))
	for _, s := range staticData.Stops {
		// Generic nodes and boarding areas may have no coordinates
		if s.Latitude == nil || s.Longitude == nil {
			continue
		}
		stopRows = append(stopRows, []any{s.Id, toNullString(s.Code), toNullString(s.Name), *s.Latitude, *s.Longitude})
	}
	if err := c.bulkInsert(ctx, tx, logger, "stops", []string{"id", "code", "name", "lat", "lon"}, stopRows); err != nil {
		return fmt.Errorf("unable to create stops: %w", err)
	}

	tripRows := make([][]any, 0, len(staticData.Trips))
	var stopTimeRows [][]any
	for _, t := range staticData.Trips {
		var routeID, serviceID string
		if t.Route != nil {
			routeID = t.Route.Id
		}
		if t.Service != nil {
			serviceID = t.Service.Id
		}
		tripRows = append(tripRows, []any{t.ID, routeID, serviceID, toNullString(t.Headsign), int64(t.DirectionId)})

		for _, st := range t.StopTimes {
			if st.Stop == nil {
				continue
			}
			stopTimeRows = append(stopTimeRows, []any{
				t.ID,
				st.Stop.Id,
				int64(st.StopSequence),
				int64(st.ArrivalTime / time.Second),
				int64(st.DepartureTime / time.Second),
			})
		}
	}
	if err := c.bulkInsert(ctx, tx, logger, "trips",
		[]string{"id", "route_id", "service_id", "trip_headsign", "direction_id"}, tripRows); err != nil {
		return fmt.Errorf("unable to create trips: %w", err)
	}
	if err := c.bulkInsert(ctx, tx, logger, "stop_times",
		[]string{"trip_id", "stop_id", "stop_sequence", "arrival_time", "departure_time"}, stopTimeRows); err != nil {
		return fmt.Errorf("unable to create stop times: %w", err)
	}

	return nil
}

// bulkInsert writes rows with multi-row INSERT statements of the configured
// batch size. Table and column names are constants from this package; values
// always go through placeholders.
func (c *Client) bulkInsert(ctx context.Context, tx *sql.Tx, logger *slog.Logger, table string, columns []string, rows [][]any) error {
	logging.LogOperation(logger, "inserting_"+table, slog.Int("count", len(rows)))

	batchSize := c.config.GetBulkInsertBatchSize()
	baseQuery := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	for start := 0; start < len(rows); start += batchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		end := min(start+batchSize, len(rows))
		batch := rows[start:end]

		var query strings.Builder
		query.WriteString(baseQuery)
		args := make([]any, 0, len(batch)*len(columns))
		for j, row := range batch {
			if j > 0 {
				query.WriteString(", ")
			}
			query.WriteString(placeholder)
			args = append(args, row...)
		}

		if _, err := tx.ExecContext(ctx, query.String(), args...); err != nil {
			return fmt.Errorf("failed to insert %s batch: %w", table, err)
		}

		if end%100000 == 0 || end == len(rows) {
			logging.LogOperation(logger, table+"_progress",
				slog.Int("inserted", end),
				slog.Int("total", len(rows)))
		}
	}
	return nil
}

// clearAllGTFSData clears all GTFS data in reverse dependency order
func clearAllGTFSData(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"stop_times", "trips", "stops", "routes", "agencies"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("error clearing %s: %w", table, err)
		}
	}
	return nil
}

// toNullString converts a string to sql.NullString, empty strings becoming NULL
func toNullString(s string) sql.NullString {
	return sql.NullString{
		String: s,
		Valid:  s != "",
	}
}

func pickFirstAvailable(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// configureSQLitePerformance applies PRAGMA settings for bulk imports and reads.
func configureSQLitePerformance(ctx context.Context, db *sql.DB) error {
	pragmas := []struct {
		name        string
		description string
	}{
		// Increase cache size to 64MB (negative value means KB)
		{"PRAGMA cache_size=-64000", "Set cache size to 64MB"},
		{"PRAGMA temp_store=MEMORY", "Store temporary data in memory"},
	}

	logger := slog.Default().With(slog.String("component", "sqlite_performance"))

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma.name); err != nil {
			logging.LogError(logger, fmt.Sprintf("Failed to set %s", pragma.description), err)
			return fmt.Errorf("failed to execute %s: %w", pragma.name, err)
		}
	}

	logging.LogOperation(logger, "sqlite_performance_settings_applied",
		slog.Int("pragma_count", len(pragmas)))

	return nil
}

// configureConnectionPool sets up connection pool settings for SQLite.
//
// Each connection to a :memory: database is a separate database, so those are
// limited to one connection, which serializes all access.
func configureConnectionPool(db *sql.DB, config Config) {
	if config.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}
