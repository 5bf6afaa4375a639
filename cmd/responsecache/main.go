// Command responsecache is a caching reverse proxy built on the
// responsecache middleware.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sandrolain/responsecache"
	"github.com/sandrolain/responsecache/internal/config"
	"github.com/sandrolain/responsecache/internal/logging"
	"github.com/sandrolain/responsecache/internal/server"
)

var (
	configFlag   string
	originFlag   string
	listenFlag   string
	backendFlag  string
	lifetimeFlag time.Duration
	logLevelFlag string
	logFileFlag  string

	// set at build time
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", getenvDefault("RESPONSECACHE_CONFIG", ""), "Path to YAML config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.StringVar(&listenFlag, "listen", "", "Address to listen on (overrides config)")
	flag.StringVar(&backendFlag, "backend", "", "Store backend (overrides config)")
	flag.DurationVar(&lifetimeFlag, "lifetime", 0, "Cache lifetime (overrides config)")
	flag.StringVar(&logLevelFlag, "log-level", "", "Log level: trace, debug, info, warn, error")
	flag.StringVar(&logFileFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load configuration")
	}

	logger, closer, err := logging.Setup(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot set up logging")
	}
	defer closer.Close()
	logger = logger.With().Str("version", version).Logger()
	responsecache.SetLogger(logging.Slog(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Cannot start server")
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Server error")
		closer.Close()
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, applies flag overrides and
// validates the result.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configFlag != "" {
		var err error
		if cfg, err = config.Read(configFlag); err != nil {
			return cfg, err
		}
	}

	if originFlag != "" {
		cfg.Server.Origin = originFlag
	}
	if listenFlag != "" {
		cfg.Server.Listen = listenFlag
	}
	if backendFlag != "" {
		cfg.Store.Backend = backendFlag
	}
	if lifetimeFlag > 0 {
		cfg.Cache.Lifetime = lifetimeFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if logFileFlag != "" {
		cfg.Log.File = logFileFlag
	}
	return cfg, cfg.Validate()
}

func getenvDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
