// Package main is the entrypoint for the sharemeal server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sharemeal/sharemeal-go/internal/cache"
	"github.com/sharemeal/sharemeal-go/internal/config"
	"github.com/sharemeal/sharemeal-go/internal/events"
	"github.com/sharemeal/sharemeal-go/internal/identity"
	"github.com/sharemeal/sharemeal-go/internal/server"
	"github.com/sharemeal/sharemeal-go/internal/store"

	// Register cache drivers
	_ "github.com/sharemeal/sharemeal-go/internal/cache/loader"

	// Register store drivers
	_ "github.com/sharemeal/sharemeal-go/internal/store/memory"
	_ "github.com/sharemeal/sharemeal-go/internal/store/sqlite"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: sqlite or memory (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory for the sqlite store (overrides config)")
	jwtSecret := flag.String("jwt-secret", "", "Token signing secret (overrides config and SHAREMEAL_JWT_SECRET)")
	loggingLevel := flag.String("logging-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load config with precedence: defaults -> TOML file -> env -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   listenAddr,
			LoggingLevel: loggingLevel,
			StoreDriver:  storeDriver,
			DataDir:      dataDir,
			JWTSecret:    jwtSecret,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Auth.JWTSecret == "" {
		bootstrapLogger.Error("no token signing secret configured; set auth.jwt_secret, SHAREMEAL_JWT_SECRET or --jwt-secret")
		os.Exit(1)
	}

	// Create logger with configured level
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	// Create the persistence driver
	st, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
	})
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if err := st.Init(context.Background()); err != nil {
		logger.Error("failed to initialize store", "driver", st.Name(), "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("store initialized", "driver", st.Name())

	// Create cache (defaults to in-memory if not configured)
	// Passes driver-specific config from [cache.drivers.<driver>] section
	cacheDriver := cfg.Cache.Driver
	if cacheDriver == "" {
		cacheDriver = "memory"
	}
	cacheInstance, err := cache.NewFromConfig(cacheDriver, cfg.Cache.Drivers)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer cacheInstance.Close()

	// Create auth primitives
	userAuth := identity.NewUserAuth(cfg.Auth.BcryptCost)
	tokens := identity.NewTokenManager(
		[]byte(cfg.Auth.JWTSecret),
		time.Duration(cfg.Auth.TokenTTLHours)*time.Hour,
	)

	// Create the event emitter; delivery goes to the log until an external
	// dispatcher is configured.
	emitter := events.NewChannelEmitter(
		&events.LogDispatcher{Logger: logger},
		cfg.Events.BufferSize,
		logger,
	)
	defer emitter.Close()

	// Create server dependencies
	deps := &server.Deps{
		Store:    st,
		UserAuth: userAuth,
		Tokens:   tokens,
		Emitter:  emitter,
		Cache:    cacheInstance,
	}

	// Create and start server
	srv, err := server.New(cfg, logger, deps)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
