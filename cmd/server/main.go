// Package main is the entry point for the statscard server.
//
// Its only job is to read configuration from the environment, create the
// logger, and hand off to internal/server. All real logic lives in the
// internal packages.
package main

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/statscard/internal/server"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		logger.Warn("GITHUB_TOKEN not set — card requests will fail with a credentials error")
	}

	var ttl time.Duration
	if ttlStr := os.Getenv("CACHE_TTL"); ttlStr != "" {
		var err error
		ttl, err = time.ParseDuration(ttlStr)
		if err != nil {
			logger.Error("invalid CACHE_TTL value", slog.String("value", ttlStr))
			os.Exit(1)
		}
	}

	cfg := server.Config{
		Port:          port,
		GitHubToken:   token,
		MemcachedAddr: os.Getenv("MEMCACHED_ADDR"),
		CacheTTL:      ttl,
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
