package gtfsdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
)

// Client is the main entry point for the static timetable store
type Client struct {
	config        Config
	DB            *sql.DB
	logger        *slog.Logger
	stopTimes     *lru.Cache[stopTimesKey, []ScheduledStopTime]
	importRuntime time.Duration
}

// NewClient opens the database, applies the schema and sets up the query cache
func NewClient(config Config) (*Client, error) {
	logger := slog.Default().With(slog.String("component", "gtfsdb"))

	db, err := createDB(config)
	if err != nil {
		return nil, fmt.Errorf("unable to create DB: %w", err)
	} else if config.verbose {
		logger.Info("successfully created tables", slog.String("path", config.DBPath))
	}

	cache, err := lru.New[stopTimesKey, []ScheduledStopTime](config.getQueryCacheSize())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to create query cache: %w", err)
	}

	return &Client{
		config:    config,
		DB:        db,
		logger:    logger,
		stopTimes: cache,
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) GetDBPath() string {
	return c.config.DBPath
}

// ImportRuntime is the duration of the most recent import.
func (c *Client) ImportRuntime() time.Duration {
	return c.importRuntime
}

// Import loads a GTFS zip from a URL or a local path, skipping the import when
// the feed is byte-identical to the one already stored.
func (c *Client) Import(ctx context.Context, source, authHeaderKey, authHeaderValue string) error {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return c.DownloadAndStore(ctx, source, authHeaderKey, authHeaderValue)
	}
	return c.ImportFromFile(ctx, source)
}

// DownloadAndStore downloads GTFS data from the given URL and stores it in the database
func (c *Client) DownloadAndStore(ctx context.Context, url, authHeaderKey, authHeaderValue string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	if authHeaderKey != "" && authHeaderValue != "" {
		req.Header.Set(authHeaderKey, authHeaderValue)
	}

	client := &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		}}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "static_gtfs_response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("static GTFS download failed: %s returned %s", url, resp.Status)
	}

	const maxBodySize = 200 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(body)) > maxBodySize {
		return fmt.Errorf("static GTFS response exceeds size limit of %d bytes", maxBodySize)
	}

	return c.processAndStoreGTFSDataWithSource(ctx, body, url)
}

// ImportFromFile imports GTFS data from a local zip file into the database
func (c *Client) ImportFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return c.processAndStoreGTFSDataWithSource(ctx, data, path)
}

// ImportFromBytes imports an in-memory GTFS zip, labelled with source.
func (c *Client) ImportFromBytes(ctx context.Context, data []byte, source string) error {
	return c.processAndStoreGTFSDataWithSource(ctx, data, source)
}
