package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/ubupresent/internal/auth"
	"github.com/mmynk/ubupresent/internal/config"
	"github.com/mmynk/ubupresent/internal/metrics"
	"github.com/mmynk/ubupresent/internal/middleware"
	"github.com/mmynk/ubupresent/internal/registry"
	"github.com/mmynk/ubupresent/internal/server"
	"github.com/mmynk/ubupresent/internal/service"
	"github.com/mmynk/ubupresent/internal/storage"
	"github.com/mmynk/ubupresent/internal/storage/mongodb"
	"github.com/mmynk/ubupresent/internal/storage/sqlite"
	"github.com/mmynk/ubupresent/pkg/api/apiconnect"
	"github.com/mmynk/ubupresent/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("Failed to initialize storage", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "driver", cfg.Store.Driver)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg := registry.New(store,
		registry.WithLogger(logger),
		registry.WithMetrics(metrics.New(promRegistry)),
		registry.WithRetention(cfg.Payments.Retention),
		registry.WithMaxAttempts(cfg.Payments.MaxAttempts),
	)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	// Register Connect services
	eventPath, eventHandler := apiconnect.NewEventServiceHandler(
		service.NewEventService(reg),
		connect.WithInterceptors(
			middleware.RequireAuth(jwtManager,
				apiconnect.EventServiceCreateEventProcedure,
				apiconnect.EventServiceListHostEventsProcedure,
				apiconnect.EventServiceWhoAmIProcedure,
			),
			middleware.LoggingInterceptor(),
		),
	)
	paymentPath, paymentHandler := apiconnect.NewPaymentServiceHandler(
		service.NewPaymentService(reg),
		connect.WithInterceptors(
			middleware.CallbackAuth(cfg.Payments.CallbackSecret),
			middleware.OptionalAuth(jwtManager),
			middleware.LoggingInterceptor(),
		),
	)

	deps := server.RouterDependencies{
		Health:         server.StoreHealth{Store: store},
		Registry:       reg,
		Verifier:       jwtManager,
		Connect:        []server.ConnectRoute{{Path: eventPath, Handler: eventHandler}, {Path: paymentPath, Handler: paymentHandler}},
		AllowedOrigins: cfg.HTTP.AllowedOrigins(),
		CallbackSecret: cfg.Payments.CallbackSecret,
	}
	if cfg.HTTP.MetricsEnabled {
		deps.Metrics = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
	}
	if cfg.Payments.CallbackSecret == "" {
		slog.Warn("PAYMENT_CALLBACK_SECRET is not set; payment callbacks are accepted unsigned")
	}

	srv := server.New(logger, cfg.HTTP, server.NewRouter(logger, deps))

	go registry.NewSweeper(reg, cfg.Payments.SweepInterval).Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
	slog.Info("Server stopped")
}

func openStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.New(cfg.DBPath)
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return mongodb.New(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, errors.New("unknown store driver " + cfg.Driver)
	}
}
