package gtfsdb

import "github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/appconf"

const (
	defaultBulkInsertBatchSize = 500
	defaultQueryCacheSize      = 1024
)

type Config struct {
	// DBPath is a file path or ":memory:".
	DBPath  string
	Env     appconf.Environment
	verbose bool

	// BulkInsertBatchSize is the number of rows per multi-row INSERT.
	BulkInsertBatchSize int
	// QueryCacheSize bounds the stop-times LRU. Zero uses the default.
	QueryCacheSize int
}

func NewConfig(dbPath string, env appconf.Environment, verbose bool) Config {
	return Config{
		DBPath:  dbPath,
		Env:     env,
		verbose: verbose,
	}
}

func (c Config) GetBulkInsertBatchSize() int {
	if c.BulkInsertBatchSize <= 0 {
		return defaultBulkInsertBatchSize
	}
	return c.BulkInsertBatchSize
}

func (c Config) getQueryCacheSize() int {
	if c.QueryCacheSize <= 0 {
		return defaultQueryCacheSize
	}
	return c.QueryCacheSize
}
