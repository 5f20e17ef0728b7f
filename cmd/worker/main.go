// Package main - точка входа движка прогресса.
//
// Процесс поднимает хранилища статистики, шину событий, сагу завершения урока,
// фоновые задачи (пересборка недельных таблиц, перезагрузка каталога) и
// служебный HTTP API: пробы, метрики, чтение прогресса и админ-ручки задач.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/beanwise/learning-engine/config"
	"github.com/beanwise/learning-engine/internal/application/command"
	"github.com/beanwise/learning-engine/internal/application/eventhandler"
	"github.com/beanwise/learning-engine/internal/application/learner"
	"github.com/beanwise/learning-engine/internal/application/query"
	"github.com/beanwise/learning-engine/internal/application/saga"
	"github.com/beanwise/learning-engine/internal/domain/achievement"
	"github.com/beanwise/learning-engine/internal/domain/anonymous"
	"github.com/beanwise/learning-engine/internal/domain/hearts"
	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/internal/domain/lesson"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/domain/streak"
	"github.com/beanwise/learning-engine/internal/infrastructure/catalog"
	"github.com/beanwise/learning-engine/internal/infrastructure/messaging"
	"github.com/beanwise/learning-engine/internal/infrastructure/metrics"
	"github.com/beanwise/learning-engine/internal/infrastructure/persistence/local"
	"github.com/beanwise/learning-engine/internal/infrastructure/persistence/memory"
	"github.com/beanwise/learning-engine/internal/infrastructure/persistence/postgres"
	"github.com/beanwise/learning-engine/internal/infrastructure/persistence/redis"
	"github.com/beanwise/learning-engine/internal/infrastructure/scheduler"
	"github.com/beanwise/learning-engine/internal/infrastructure/scheduler/jobs"
	"github.com/beanwise/learning-engine/internal/infrastructure/service"
	httpapi "github.com/beanwise/learning-engine/internal/interface/http"
	"github.com/beanwise/learning-engine/internal/interface/http/handlers"
	"github.com/beanwise/learning-engine/pkg/circuitbreaker"
	"github.com/beanwise/learning-engine/pkg/logger"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// stores - хранилища статистики, выбранные драйвером.
type stores struct {
	streaks interface {
		streak.Repository
		hearts.Repository
	}
	leagues interface {
		league.Repository
		league.CatalogWriter
	}
	achievements interface {
		achievement.Repository
		achievement.CatalogWriter
	}
	lessons interface {
		lesson.ContentProvider
		lesson.ProgressRepository
		lesson.CatalogWriter
	}
	ping  func(ctx context.Context) error
	close func()
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

	timeutil.SetZone(cfg.App.Location)
	clock := timeutil.SystemClock{}

	log.Info("starting learning engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("db_driver", cfg.Database.Driver),
	)

	collector := metrics.New()
	flags := cfg.Features

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ СТАТИСТИКИ
	// ─────────────────────────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg, clock, log)
	if err != nil {
		return err
	}
	defer st.close()

	writers := catalog.Writers{
		Achievements: st.achievements,
		Leagues:      st.leagues,
		Lessons:      st.lessons,
	}
	f, err := catalog.Load(cfg.Progression.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	seeded, err := catalog.Seed(ctx, f, writers)
	if err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	log.Info("catalog seeded",
		logger.Int("achievements", seeded.Achievements),
		logger.Int("leagues", seeded.Leagues),
		logger.Int("lessons", seeded.Lessons),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально: недельные таблицы и анонимный прогресс)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache         *redis.Cache
		standingCache league.StandingsCache
	)
	if !cfg.Redis.Disabled {
		cache, err = redis.NewCache(ctx, redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   redis.DefaultConfig().MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, standings cache disabled", logger.Err(err))
			cache = nil
		} else {
			defer func() { _ = cache.Close() }()
			standingCache = redis.NewLeagueCache(cache)
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultConfig()
	busCfg.Logger = log
	busCfg.Observer = collector
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	if standingCache != nil {
		onXP := eventhandler.NewOnLeagueXPAddedHandler(standingCache, circuitbreaker.CacheBreaker(collector.OnBreakerStateChange), log)
		if err := bus.Subscribe(shared.EventLeagueXPAdded, onXP.Handle); err != nil {
			return fmt.Errorf("failed to subscribe league cache handler: %w", err)
		}
	}

	toasts := service.NewGatedNotifier(service.NewLogNotifier(log), func(userID string) bool {
		return flags.Enabled(config.FeatureNotifyToasts, userID)
	})
	onNotify := eventhandler.NewOnProgressNotifyHandler(toasts, log)
	for _, et := range onNotify.EventTypes() {
		if err := bus.Subscribe(et, onNotify.Handle); err != nil {
			return fmt.Errorf("failed to subscribe notify handler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПРИКЛАДНЫЕ СЕРВИСЫ
	// ─────────────────────────────────────────────────────────────────────────
	completion := saga.NewLessonCompletionSaga(saga.LessonCompletionDeps{
		StreakRepo:   st.streaks,
		LeagueRepo:   st.leagues,
		ProgressRepo: st.lessons,
		Evaluator:    achievement.NewEvaluator(st.achievements, clock),
		EventBus:     bus,
		Breaker:      circuitbreaker.LeagueStoreBreaker(collector.OnBreakerStateChange),
		IDGenerator:  saga.UUIDGenerator{},
		Metrics:      collector,
		Logger:       log,
	}, saga.CompletionConfig{
		DailyGoalXP:         cfg.Progression.DailyGoalXP,
		LeaguesEnabled:      flags.Enabled(config.FeatureLeagues, ""),
		AchievementsEnabled: flags.Enabled(config.FeatureAchievements, ""),
	})

	heartsCfg := command.DefaultHeartsConfig()
	heartsCfg.RefillInterval = cfg.Progression.HeartRefillInterval
	loseHeart := command.NewLoseHeartHandler(st.streaks, bus, clock, heartsCfg, log).WithMetrics(collector)
	gainHeart := command.NewGainHeartHandler(st.streaks, clock, heartsCfg, log)

	heartsQ := query.NewGetHeartsHandler(st.streaks, clock, cfg.Progression.HeartRefillInterval)
	dailyQ := query.NewGetDailyProgressHandler(st.streaks, clock, cfg.Progression.DailyGoalXP)
	leagueQ := query.NewGetLeagueStandingHandler(st.leagues, standingCache, clock, log)

	learners := learner.NewService(learner.Deps{
		Content:   st.lessons,
		Saga:      completion,
		Streaks:   st.streaks,
		LoseHeart: loseHeart,
		Hearts:    heartsQ,
		Local:     localStores(cache, cfg.Progression.LocalProgressDir),
		Toggles:   featureToggles{flags: flags},
		Clock:     clock,
		Logger:    log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Location:       cfg.App.Location,
		MaxHistorySize: cfg.Scheduler.HistorySize,
		Logger:         log,
	})
	if standingCache != nil {
		job := jobs.NewSyncLeagueStandingsJob(st.leagues, standingCache, clock, log)
		if err := sched.Register(job, scheduler.Every(cfg.Scheduler.LeagueSyncInterval)); err != nil {
			return fmt.Errorf("failed to register %s: %w", job.Name(), err)
		}
	}
	if cfg.Scheduler.CatalogReloadCron != "" {
		job := jobs.NewReloadCatalogJob(cfg.Progression.CatalogPath, writers, log)
		if err := sched.Register(job, scheduler.Cron(cfg.Scheduler.CatalogReloadCron)); err != nil {
			return fmt.Errorf("failed to register %s: %w", job.Name(), err)
		}
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler")
			_ = sched.Stop()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. СЛУЖЕБНЫЙ HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("stat_store", st.ping)
	if cache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
	}

	srvCfg := httpapi.DefaultConfig()
	srvCfg.Port = cfg.Observability.MetricsPort
	srvCfg.AdminAPIKeys = cfg.Observability.AdminAPIKeys

	deps := httpapi.Dependencies{
		Hearts:         heartsQ,
		GainHearts:     gainHeart,
		DailyProgress:  dailyQ,
		LeagueStanding: leagueQ,
		Learner:        learners,
		Jobs:           sched,
		Features:       flags,
		HealthChecker:  health,
		Version:        cfg.App.Version,
		Logger:         log,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = collector.Handler()
	}
	server := httpapi.NewServer(srvCfg, deps)
	serverErr := server.StartAsync()

	log.Info("learning engine is running",
		logger.String("http_addr", srvCfg.Address()),
		logger.Bool("scheduler", cfg.Scheduler.Enabled),
		logger.Bool("redis", cache != nil),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", logger.Err(err))
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown failed", logger.Err(err))
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	opts.Format = cfg.Observability.LogFormat
	return logger.New(opts).With(logger.String("service", cfg.App.Name))
}

func openStores(ctx context.Context, cfg *config.Config, clock timeutil.Clock, log *logger.Logger) (*stores, error) {
	maxHearts := cfg.Progression.MaxHearts

	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("using in-memory stat store, progress is lost on restart")
		return &stores{
			streaks:      memory.NewStreakStore(clock, maxHearts),
			leagues:      memory.NewLeagueStore(),
			achievements: memory.NewAchievementStore(),
			lessons:      memory.NewLessonStore(),
			ping:         func(context.Context) error { return nil },
			close:        func() {},
		}, nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout
	pgCfg.Logger = log

	log.Info("connecting to database")
	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", logger.Int("applied", applied))
	}

	return &stores{
		streaks:      postgres.NewStreakRepository(conn, clock, maxHearts),
		leagues:      postgres.NewLeagueRepository(conn),
		achievements: postgres.NewAchievementRepository(conn),
		lessons:      postgres.NewLessonRepository(conn),
		ping:         conn.Ping,
		close: func() {
			log.Info("closing database connection")
			conn.Close()
		},
	}, nil
}

// localStores keeps anonymous progress in Redis when it is available and in
// per-device files otherwise.
func localStores(cache *redis.Cache, dir string) learner.LocalStores {
	return func(deviceID string) anonymous.Store {
		if cache != nil {
			return redis.NewAnonymousStore(cache, deviceID)
		}
		name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(deviceID)
		return local.NewFileStore(filepath.Join(dir, "anon-"+name+".json"))
	}
}

// featureToggles adapts feature flags to learner.Toggles.
type featureToggles struct {
	flags *config.FeatureFlags
}

func (t featureToggles) HeartsEnabled(userID string) bool {
	return t.flags.Enabled(config.FeatureHearts, userID)
}

func (t featureToggles) SoftGateEnabled() bool {
	return t.flags.Enabled(config.FeatureSoftGate, "")
}
