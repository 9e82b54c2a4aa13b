package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/openbrokerage/sharetrading/internal/auth"
	"github.com/openbrokerage/sharetrading/internal/config"
	"github.com/openbrokerage/sharetrading/internal/engine"
	"github.com/openbrokerage/sharetrading/internal/handler"
	"github.com/openbrokerage/sharetrading/internal/service"
	"github.com/openbrokerage/sharetrading/internal/store"
	"github.com/openbrokerage/sharetrading/internal/store/memory"
	"github.com/openbrokerage/sharetrading/internal/store/postgres"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Select the store driver.
	var st store.Store
	switch cfg.StoreDriver {
	case "postgres":
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to apply schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		st = pg
	default:
		st = memory.New()
	}
	logger.Info("store initialized", slog.String("driver", cfg.StoreDriver))

	// Engine.
	books := engine.NewBookManager()
	matcher := engine.NewMatcher(books, st)
	expiryMgr := engine.NewExpiryManager(cfg.ExpiryInterval, matcher, logger)

	// Rebuild the books from persisted open orders and re-register day
	// orders with the expiry manager before accepting traffic.
	open, err := matcher.RebuildBooks(ctx)
	if err != nil {
		logger.Error("failed to rebuild order books", slog.String("error", err.Error()))
		os.Exit(1)
	}
	for _, o := range open {
		expiryMgr.Add(o)
	}
	logger.Info("order books rebuilt",
		slog.Int("open_orders", len(open)),
		slog.Int("pending_expiries", expiryMgr.PendingCount()),
	)

	// Services.
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	authSvc := service.NewAuthService(st, tokens)
	accountSvc := service.NewAccountService(st)
	positionSvc := service.NewPositionService(st)
	orderSvc := service.NewOrderService(matcher, expiryMgr, st)
	shareSvc := service.NewShareService(st, matcher, expiryMgr)

	// Router.
	router := handler.NewRouter(authSvc, accountSvc, positionSvc, orderSvc, shareSvc, tokens, logger)

	// Start the expiry sweep goroutine.
	expiryMgr.Start(ctx)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, cancel context (stops the expiry goroutine).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}
