package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/appconf"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
)

func main() {
	var (
		configPath string
		envFile    string
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file (optional)")
	flag.StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before reading the environment")
	flag.Parse()

	cfg, err := loadConfig(configPath, envFile, os.LookupEnv)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.IsProduction(), cfg.Verbose)
	slog.SetDefault(logger)

	coreApp, err := BuildApplication(cfg, logger)
	if err != nil {
		logging.LogError(logger, "failed to build application", err)
		os.Exit(1)
	}

	srv, api := CreateServer(coreApp, cfg)
	if err := Run(srv, coreApp, api, logger); err != nil {
		logging.LogError(logger, "server stopped with error", err)
		os.Exit(1)
	}
}

// loadConfig layers the config sources: defaults, then the YAML file when
// given, then environment variables. A missing dotenv file is not an error.
func loadConfig(configPath, envFile string, lookup func(string) (string, bool)) (appconf.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return appconf.Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	cfg := appconf.Defaults()
	if configPath != "" {
		var err error
		if cfg, err = appconf.LoadFromFile(configPath); err != nil {
			return appconf.Config{}, err
		}
	}
	return appconf.ApplyEnv(cfg, lookup)
}
