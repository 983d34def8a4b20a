// Package main - точка входа HTTP API сервиса прогресса обучения.
//
// Процесс собирает хранилища (PostgreSQL или память), блокировки
// (память или Redis), шину событий с метриками и опциональной
// пересылкой в Kafka, и обслуживает REST API до получения сигнала.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/learning-progress/config"
	"github.com/alem-hub/learning-progress/internal/application/command"
	"github.com/alem-hub/learning-progress/internal/application/query"
	"github.com/alem-hub/learning-progress/internal/application/saga"
	"github.com/alem-hub/learning-progress/internal/domain/achievement"
	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/user"
	"github.com/alem-hub/learning-progress/internal/infrastructure/messaging"
	"github.com/alem-hub/learning-progress/internal/infrastructure/observability"
	"github.com/alem-hub/learning-progress/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/learning-progress/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/learning-progress/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/learning-progress/internal/infrastructure/resilience"
	httpserver "github.com/alem-hub/learning-progress/internal/interface/http"
	"github.com/alem-hub/learning-progress/internal/interface/http/handlers"
	"github.com/alem-hub/learning-progress/pkg/logger"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// stores группирует реализации коллабораторов выбранного бэкенда.
type stores struct {
	users    user.Repository
	progress progress.Store
	unlocked achievement.UnlockedStore
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting learning progress service",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("store_backend", cfg.Progress.StoreBackend),
		logger.String("lock_backend", cfg.Progress.LockBackend),
		logger.String("timezone", cfg.App.Timezone),
	)

	catalog := achievement.DefaultCatalog()
	clock := timeutil.NewSystemClock(cfg.Location())
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩА
	// ─────────────────────────────────────────────────────────────────────────
	var st stores
	switch cfg.Progress.StoreBackend {
	case config.BackendPostgres:
		conn, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer conn.Close()
		health.AddCheck("postgres", handlers.NewPingCheck(conn))

		if cfg.Database.RunMigrations {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		achievements := postgres.NewAchievementRepository(conn)
		if err := achievements.SeedCatalog(ctx, catalog); err != nil {
			return fmt.Errorf("failed to seed achievement catalog: %w", err)
		}

		breaker := resilience.NewStoreBreaker("postgres", log)
		st = stores{
			users:    resilience.NewUserRepository(postgres.NewUserRepository(conn), breaker),
			progress: resilience.NewProgressStore(postgres.NewProgressRepository(conn), breaker),
			unlocked: resilience.NewUnlockedStore(achievements, breaker),
		}
		log.Info("connected to postgres")

	default:
		arena := memory.NewArena()
		st = stores{
			users:    arena.Users(),
			progress: arena.Progress(),
			unlocked: arena.Unlocked(),
		}
		log.Warn("using in-memory store, data is lost on restart")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS: БЛОКИРОВКИ И КЕШ ПРОГРЕССА
	// ─────────────────────────────────────────────────────────────────────────
	var locker progress.Locker = memory.NewKeyedLocker()
	var evictor command.ProgressEvictor
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(redisConfig(cfg.Redis))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		cache := redis.NewCache(client)
		defer func() { _ = cache.Close() }()
		health.AddCheck("redis", handlers.NewPingCheck(cache))

		if cfg.Progress.LockBackend == config.BackendRedis {
			locker = redis.NewLocker(client, cfg.Progress.LockTTL, log)
		}
		if cfg.Progress.CacheTTL > 0 {
			progressCache := redis.NewProgressCache(st.progress, cache, cfg.Progress.CacheTTL, log)
			st.progress = progressCache
			evictor = progressCache
		}
		log.Info("connected to redis", logger.String("addr", redisConfig(cfg.Redis).Addr()))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)

	if err := observability.Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe metrics: %w", err)
	}

	var forwarder *messaging.KafkaForwarder
	if cfg.Kafka.Enabled {
		writer := messaging.NewKafkaWriter(messaging.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		forwarder = messaging.NewKafkaForwarder(writer, cfg.Kafka.WriteTimeout, log)
		if err := forwarder.Attach(bus); err != nil {
			return fmt.Errorf("failed to attach kafka forwarder: %w", err)
		}
		log.Info("forwarding events to kafka", logger.String("topic", cfg.Kafka.Topic))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	tracker := command.NewProgressTracker(command.ProgressTrackerDeps{
		Users:     st.users,
		Store:     st.progress,
		Locker:    locker,
		Clock:     clock,
		Publisher: bus,
		Logger:    log,
	}, command.ProgressTrackerConfig{
		StoreTimeout: cfg.Progress.StoreTimeout,
		LockTimeout:  cfg.Progress.LockTimeout,
	})

	engine, err := saga.NewAchievementEngineBuilder().
		WithCatalog(catalog).
		WithProgress(tracker).
		WithUsers(st.users).
		WithUnlockedStore(st.unlocked).
		WithLocker(locker).
		WithClock(clock).
		WithEventBus(bus).
		WithLogger(log).
		WithConfig(saga.AchievementEngineConfig{
			StoreTimeout: cfg.Progress.StoreTimeout,
			LockTimeout:  cfg.Progress.LockTimeout,
		}).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build achievement engine: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.EnableMetrics = cfg.HTTP.EnableMetrics
	httpCfg.Version = cfg.App.Version
	if cfg.App.Debug {
		httpCfg.Mode = "debug"
	}

	deleteUser := command.NewDeleteUserHandler(command.DeleteUserDeps{
		Users:       st.users,
		Locker:      locker,
		Evictor:     evictor,
		Clock:       clock,
		Publisher:   bus,
		Logger:      log,
		LockTimeout: cfg.Progress.LockTimeout,
	})

	server, err := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		Tracker:       tracker,
		Engine:        engine,
		CreateUser:    command.NewCreateUserHandler(st.users, clock, bus, log),
		UpdateUser:    command.NewUpdateUserHandler(st.users, clock, bus, log),
		DeleteUser:    deleteUser,
		GetUser:       query.NewGetUserHandler(st.users),
		HealthChecker: health,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		// the bus drains in-flight handlers, so it closes before the forwarder
		if err := bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event bus: %w", err))
		}
		if forwarder != nil {
			if err := forwarder.Close(); err != nil {
				errs = append(errs, fmt.Errorf("kafka forwarder: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	log.Info("learning progress service is running", logger.String("http_address", server.Address()))

	if err := g.Wait(); err != nil {
		log.Error("shutdown completed with errors", logger.Err(err))
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.App.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	if cfg.App.LogFormat == string(logger.FormatConsole) {
		opts.Format = logger.FormatConsole
	}
	return logger.New(opts).With(logger.String("service", cfg.App.Name))
}

func postgresConfig(db config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = db.URL
	pc.Host = db.Host
	pc.Port = db.Port
	pc.User = db.User
	pc.Password = db.Password
	pc.Database = db.Name
	pc.SSLMode = db.SSLMode
	pc.MaxConns = int32(db.MaxConns)
	pc.MinConns = int32(db.MinConns)
	pc.MaxConnLifetime = db.ConnMaxLifetime
	pc.MaxConnIdleTime = db.ConnMaxIdleTime
	return pc
}

func redisConfig(r config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = r.Host
	rc.Port = r.Port
	rc.Password = r.Password
	rc.DB = r.DB
	rc.PoolSize = r.PoolSize
	rc.MinIdleConns = r.MinIdleConns
	rc.DialTimeout = r.DialTimeout
	rc.ReadTimeout = r.ReadTimeout
	rc.WriteTimeout = r.WriteTimeout
	return rc
}
