// Package server parses server command flags and starts the tracker HTTP
// service.
package server

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/quarryforge/quarry/internal/platform/config"
	platformotel "github.com/quarryforge/quarry/internal/platform/otel"
	"github.com/quarryforge/quarry/internal/tracker/api"
	"github.com/quarryforge/quarry/internal/tracker/engine"
	"github.com/quarryforge/quarry/internal/tracker/projection"
	"github.com/quarryforge/quarry/internal/tracker/storage/sqlite"
)

const serviceName = "quarry-tracker"

// Config holds server command configuration.
type Config struct {
	Port   int    `env:"QUARRY_PORT" envDefault:"8080"`
	Addr   string `env:"QUARRY_ADDR"`
	DBPath string `env:"QUARRY_DB_PATH" envDefault:"quarry.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The tracker server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The tracker server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the tracker SQLite database")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the tracker API service and blocks until ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	log := zerolog.New(os.Stderr).With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	shutdownTracing, err := platformotel.Setup(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	eng := engine.New(store, projection.NewApplier(store), log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.New(eng, store, log).Register(e)

	addr := cfg.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Port)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	log.Info().Str("addr", addr).Str("db", cfg.DBPath).Msg("tracker listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
