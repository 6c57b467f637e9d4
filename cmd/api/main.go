package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamestore/internal/config"
	"gamestore/internal/events"
	"gamestore/internal/handler"
	"gamestore/internal/metrics"
	"gamestore/internal/service"
	"gamestore/internal/session"
	"gamestore/internal/store"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const rateLimiterMaxClients = 10000

type application struct {
	config      *config.Config
	logger      zerolog.Logger
	maintenance *service.MaintenanceService
	rateLimiter *handler.RateLimiter
	scheduler   *cron.Cron
	server      *http.Server
}

func main() {
	execute()
}

func runServe() error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	log.Logger = logger

	if cfg.AutoMigrate {
		if err := store.RunMigrations(cfg.DBDataSourceName()); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db, err := store.ConnectDB("postgres", cfg.DBDataSourceName())
	if err != nil {
		return err
	}
	dbStore := store.NewDBStore(db)
	defer func() {
		if err := dbStore.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing database")
		}
	}()

	redisClient, err := store.NewRedisClient(cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	redisStore := store.NewRedisStore(redisClient)
	defer func() {
		if err := redisStore.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis client")
		}
	}()

	var publisher events.Publisher = events.NopPublisher{}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(brokers, cfg.KafkaPurchaseTopic))
		logger.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaPurchaseTopic).Msg("publishing purchase events")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing event publisher")
		}
	}()

	m := metrics.New()
	hasher := service.NewPasswordHasher(0)
	sessions := session.NewManager(redisStore, cfg.SessionSecret, cfg.SessionTTL, cfg.SessionCookieSecure, logger)
	rateLimiter := handler.NewRateLimiter(cfg.LoginRatePerSec, cfg.LoginBurst, logger)

	router, err := handler.NewRouter(handler.Deps{
		Logger:      logger,
		Auth:        service.NewAuthService(logger, dbStore, hasher, m),
		Catalog:     service.NewCatalogService(logger, dbStore),
		Cart:        service.NewCartService(logger, dbStore, publisher, m),
		Profiles:    service.NewProfileService(logger, dbStore, hasher),
		Sessions:    sessions,
		Metrics:     m,
		RateLimiter: rateLimiter,
		Health: map[string]handler.Pinger{
			"postgres": dbStore,
			"redis":    redisStore,
		},
	})
	if err != nil {
		return err
	}

	app := &application{
		config:      cfg,
		logger:      logger,
		maintenance: service.NewMaintenanceService(logger, dbStore, m),
		rateLimiter: rateLimiter,
	}
	if err := app.startScheduler(); err != nil {
		return err
	}

	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return app.serve()
}

func (app *application) serve() error {
	app.logger.Info().Str("addr", app.server.Addr).Msg("starting server")

	errChan := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case err := <-errChan:
		serveErr = fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		app.logger.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app.logger.Info().Msg("stopping scheduler")
	select {
	case <-app.scheduler.Stop().Done():
		app.logger.Info().Msg("scheduler stopped")
	case <-time.After(10 * time.Second):
		app.logger.Warn().Msg("scheduler did not stop in time")
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error().Err(err).Msg("graceful server shutdown failed")
	} else {
		app.logger.Info().Msg("server gracefully stopped")
	}

	app.logger.Info().Msg("application shut down complete")
	return serveErr
}

// startScheduler registers the periodic cart sweep and the rate limiter
// table reset.
func (app *application) startScheduler() error {
	app.scheduler = cron.New()

	if app.config.CartSweepEnabled() {
		if _, err := app.scheduler.AddFunc(app.config.CartSweepSchedule, app.sweepCarts); err != nil {
			return fmt.Errorf("invalid CART_SWEEP_SCHEDULE %q: %w", app.config.CartSweepSchedule, err)
		}
		app.sweepCarts()
	}
	if _, err := app.scheduler.AddFunc("@every 10m", func() {
		app.rateLimiter.Cleanup(rateLimiterMaxClients)
	}); err != nil {
		return fmt.Errorf("failed to schedule rate limiter cleanup: %w", err)
	}

	app.scheduler.Start()
	app.logger.Info().Str("schedule", app.config.CartSweepSchedule).Msg("scheduler started")
	return nil
}

func (app *application) sweepCarts() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := app.maintenance.SweepOrphanedCartEntries(ctx); err != nil {
		app.logger.Error().Err(err).Msg("scheduler: cart sweep failed")
	}
}
