package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"rapidride/internal/app"
	"rapidride/internal/auth"
	"rapidride/internal/config"
	"rapidride/internal/handler"
	"rapidride/internal/jobs"
	"rapidride/internal/metrics"
	"rapidride/internal/middleware"
	internalRedis "rapidride/internal/redis"
	"rapidride/internal/relay"
	"rapidride/internal/repository"
	"rapidride/internal/repository/memory"
	"rapidride/internal/repository/postgres"
	"rapidride/internal/service"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, logOut io.Writer) error {
	// Load configuration.
	cfg := config.Load()
	if err := cfg.ParseFlags("rapidride", args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := app.NewLogger(logOut, cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize New Relic first so the stores can be instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("new relic disabled", "error", err)
		} else {
			logger.Info("new relic enabled", "app", cfg.NewRelic.AppName)
			defer nrApp.Shutdown(5 * time.Second)
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := openStores(connectCtx, cfg, nrApp, logger)
	if err != nil {
		return err
	}
	defer st.close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = app.NewRedisClient(connectCtx, cfg.Redis, nrApp)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	srv := wireServer(ctx, cfg, st, redisClient, nrApp, logger)

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	srv.hub.Close()
	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}

// stores holds the selected user and ride repositories.
type stores struct {
	users repository.UserRepository
	rides repository.RideRepository
	close func()
}

func openStores(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application, logger *slog.Logger) (*stores, error) {
	if cfg.Store.Driver == config.StoreMemory {
		users := memory.NewUserRepository()
		logger.Warn("using in-memory store; data is lost on restart")
		return &stores{
			users: users,
			rides: memory.NewRideRepository(users),
			close: func() {},
		}, nil
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp, cfg.Store.Migrate)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres", "migrated", cfg.Store.Migrate)
	return &stores{
		users: postgres.NewUserRepository(db),
		rides: postgres.NewRideRepository(db),
		close: func() { _ = db.Close() },
	}, nil
}

type server struct {
	http *http.Server
	hub  *relay.Hub
}

// wireServer wires all dependencies, starts the background workers and
// returns the HTTP server.
func wireServer(ctx context.Context, cfg *config.Config, st *stores, redisClient *redis.Client, nrApp *newrelic.Application, logger *slog.Logger) *server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	// Redis-backed collaborators stay nil interfaces without Redis.
	var (
		locations   service.LocationStore
		cache       service.RideCache
		locker      jobs.Locker
		idempotency middleware.IdempotencyStore
		bus         *internalRedis.EventBus
	)
	if redisClient != nil {
		locations = internalRedis.NewLocationStore(redisClient)
		cache = internalRedis.NewCacheStore(redisClient)
		locker = internalRedis.NewLockStore(redisClient, instanceID())
		idempotency = internalRedis.NewIdempotencyStore(redisClient)
		bus = internalRedis.NewEventBus(redisClient, logger)
	}

	// Initialize services.
	notifications := service.NewNotificationService(logger)
	positions := service.NewPositionRecorder(st.users, locations, logger, cfg.Store.Timeout)

	hubDeps := relay.HubDeps{
		Tokens:       tokens,
		Rides:        st.rides,
		Positions:    positions,
		Metrics:      m,
		Logger:       logger,
		StoreTimeout: cfg.Store.Timeout,
		CheckOrigin:  originChecker(cfg.Server.CORSOrigins),
	}
	if bus != nil {
		hubDeps.Bus = bus
	}
	hub := relay.NewHub(hubDeps)
	if bus != nil {
		go func() {
			if err := bus.Run(ctx, hub); err != nil {
				logger.Error("relay event bus stopped", "error", err)
			}
		}()
	}

	lifecycle := service.NewLifecycle(service.LifecycleDeps{
		Rides:        st.rides,
		Publisher:    hub,
		Cache:        cache,
		Notifier:     notifications,
		Metrics:      m,
		Logger:       logger,
		StoreTimeout: cfg.Store.Timeout,
	})
	rideService := service.NewRideService(service.RideServiceDeps{
		Rides:        st.rides,
		Users:        st.users,
		Cache:        cache,
		Publisher:    hub,
		Notifier:     notifications,
		Coupons:      service.NoCoupons{},
		Logger:       logger,
		StoreTimeout: cfg.Store.Timeout,
	})
	driverService := service.NewDriverService(service.DriverServiceDeps{
		Users:        st.users,
		Rides:        st.rides,
		Positions:    positions,
		Publisher:    hub,
		Logger:       logger,
		StoreTimeout: cfg.Store.Timeout,
	})
	authService := service.NewAuthService(st.users, tokens, logger, cfg.Store.Timeout)
	profileService := service.NewProfileService(st.users, cfg.Store.Timeout)
	receiptService := service.NewReceiptService(st.rides, st.users, cfg.Store.Timeout)

	// Background jobs.
	jobs.NewReleaseJob(st.rides, lifecycle, locker, m, logger, jobs.ReleaseConfig{
		Interval: cfg.Jobs.ReleaseInterval,
		Lead:     cfg.Jobs.ReleaseLead,
	}).Start(ctx)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		UserHandler:      handler.NewUserHandler(authService, profileService),
		RideHandler:      handler.NewRideHandler(lifecycle, rideService, receiptService),
		DriverHandler:    handler.NewDriverHandler(lifecycle, driverService),
		SupportHandler:   handler.NewSupportHandler(rideService, notifications),
		Hub:              hub,
		Tokens:           tokens,
		IdempotencyStore: idempotency,
		NewRelicApp:      nrApp,
		Gatherer:         reg,
		Logger:           logger,
		CORSOrigins:      cfg.Server.CORSOrigins,
	})

	return &server{
		hub: hub,
		http: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// instanceID names this process as a lock owner.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "rapidride"
	}
	return host + "-" + uuid.NewString()[:8]
}

// originChecker allows websocket upgrades from the configured CORS origins.
func originChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
