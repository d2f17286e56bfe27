package main // Entry point of the flight seat reservation API

import (
	"context"   // context controls shutdown
	"errors"    // errors distinguishes a clean server stop
	"log"       // log reports failures before the structured logger exists
	"log/slog"  // slog is the structured logger
	"net/http"  // net/http exposes ErrServerClosed
	"os"        // os exits with a status code
	"os/signal" // signal handles SIGINT and SIGTERM
	"syscall"   // syscall names SIGTERM
	"time"      // time bounds shutdown

	"github.com/joho/godotenv" // godotenv loads .env during development

	"github.com/iliyamo/flight-seat-reservation/internal/config"      // environment configuration
	"github.com/iliyamo/flight-seat-reservation/internal/database"    // MySQL connection and schema
	"github.com/iliyamo/flight-seat-reservation/internal/handler"     // HTTP handlers
	"github.com/iliyamo/flight-seat-reservation/internal/logger"      // slog setup
	"github.com/iliyamo/flight-seat-reservation/internal/metrics"     // Prometheus recorder
	"github.com/iliyamo/flight-seat-reservation/internal/queue"       // audit consumer
	"github.com/iliyamo/flight-seat-reservation/internal/repository"  // storage backends
	"github.com/iliyamo/flight-seat-reservation/internal/reservation" // booking engine
	"github.com/iliyamo/flight-seat-reservation/internal/router"      // route registration
	"github.com/iliyamo/flight-seat-reservation/internal/schedule"    // YAML schedule loading
	"github.com/iliyamo/flight-seat-reservation/internal/service"     // idempotency and events
	"github.com/iliyamo/flight-seat-reservation/internal/tracing"     // OpenTelemetry setup
)

func main() {
	_ = godotenv.Load() // a missing .env is fine outside development

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg, closeLog, err := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog.Close()

	if err := run(cfg, logg); err != nil {
		logg.Error("server stopped", "error", err)
		_ = closeLog.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logg *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	var (
		store  reservation.Store
		checks []handler.Check
	)
	switch cfg.Store {
	case config.StoreMemory:
		logg.Warn("using in-memory store; data is lost on restart")
		store = repository.NewMemoryStore()
	default:
		db, err := database.Open(database.Options{
			User:            cfg.DBUser,
			Pass:            cfg.DBPass,
			Host:            cfg.DBHost,
			Port:            cfg.DBPort,
			Name:            cfg.DBName,
			LockWaitTimeout: cfg.Policy.LockTimeout,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		store = repository.NewMySQLStore(db)
		checks = append(checks, handler.Check{Name: "database", Probe: db.PingContext})
	}

	engine := reservation.NewEngine(store, cfg.Policy,
		reservation.WithLogger(logg),
		reservation.WithRecorder(metrics.Recorder{}),
	)

	if cfg.ScheduleFile != "" {
		entries, err := schedule.Load(cfg.ScheduleFile)
		if err != nil {
			return err
		}
		res, err := schedule.Apply(ctx, engine, entries, logg)
		if err != nil {
			return err
		}
		logg.Info("schedule applied", "file", cfg.ScheduleFile, "created", len(res.Created), "skipped", len(res.Skipped))
	}

	rdb := config.NewRedisClient(logg)
	var idem service.Idempotency = service.NewMemoryIdempotency()
	if rdb != nil {
		defer rdb.Close()
		idem = service.NewRedisIdempotency(rdb)
	}

	var events service.Publisher = service.NoopPublisher{}
	var consumerDone <-chan struct{}
	if cfg.EventsEnabled {
		pub := service.NewAMQPPublisher(cfg.AMQPURL, logg)
		defer pub.Close()
		events = pub
		consumerDone = queue.StartAuditConsumer(ctx, cfg.AMQPURL, cfg.AuditLogPath, logg)
	}

	clock := handler.Clock(time.Now)
	e := router.New(router.Deps{
		JWTSecret:    cfg.JWTSecret,
		Redis:        rdb,
		Cache:        cfg.Cache,
		RateLimit:    cfg.RateLimit,
		HealthChecks: checks,
		Flights:      handler.NewFlightHandler(engine, clock),
		Reservations: handler.NewReservationHandler(engine, idem, events, logg, clock),
		Operator:     handler.NewOperatorHandler(engine),
	})

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		logg.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.Store)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logg.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		return err
	}
	stop()
	if consumerDone != nil {
		<-consumerDone
	}
	return nil
}
