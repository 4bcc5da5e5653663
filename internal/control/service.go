package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/tuanvle/txscope/internal/core/config"
	"github.com/tuanvle/txscope/internal/core/domain"
	appworker "github.com/tuanvle/txscope/internal/core/worker"
	"github.com/tuanvle/txscope/internal/indexing/emitter"
	"github.com/tuanvle/txscope/internal/indexing/health"
	"github.com/tuanvle/txscope/internal/indexing/pipeline"
	"github.com/tuanvle/txscope/internal/indexing/recovery"
	"github.com/tuanvle/txscope/internal/indexing/throttle"
	"github.com/tuanvle/txscope/internal/infra/api"
	redisclient "github.com/tuanvle/txscope/internal/infra/redis"
	"github.com/tuanvle/txscope/internal/infra/storage"
	"github.com/tuanvle/txscope/internal/infra/storage/memory"
	"github.com/tuanvle/txscope/internal/infra/storage/postgres"
)

// Service is the main application struct that manages the indexer lifecycle.
type Service struct {
	cfg          *config.AppConfig
	controller   *recovery.Controller
	bus          *emitter.Bus
	cache        *redisclient.Cache
	statsRepo    storage.StatsRepository
	transferRepo storage.TransferRepository
	db           *postgres.DB
	redisClient  *redisclient.Client
	apiServer    *http.Server
	healthServer *health.Server
	log          *slog.Logger

	// runCtx outlives individual HTTP requests so background sessions are
	// only cancelled on shutdown.
	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewService creates a Service with all dependencies initialized.
func NewService(cfg *config.AppConfig) (*Service, error) {
	log := slog.Default()

	// 1. Initialize Storage
	var transferRepo storage.TransferRepository
	var statsRepo storage.StatsRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		// Note: Goose needs the raw *sql.DB which sqlx wraps
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		transferRepo = postgres.NewTransferRepo(db)
		statsRepo = postgres.NewStatsRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		transferRepo = memory.NewTransferRepo(store)
		statsRepo = memory.NewStatsRepo(store)
		log.Info("Using Memory storage")
	}

	// 2. Initialize Redis cache (optional)
	var redisClient *redisclient.Client
	var cache *redisclient.Cache
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, caching disabled", "error", err)
		} else {
			cache = redisclient.NewCache(redisClient)
		}
	}

	// 3. Initialize Pipeline
	bus := emitter.NewBus()
	historyAPI := api.NewClient(cfg.API)
	worker := pipeline.NewWorker(historyAPI, bus, transferRepo, statsRepo, log, pipeline.Config{
		PageLimit:        cfg.Pipeline.PageLimit,
		FetchConcurrency: cfg.Pipeline.FetchConcurrency,
		MaxPages:         cfg.Pipeline.MaxPages,
	})
	worker.SetThrottle(throttle.NewAdaptiveController(cfg.Pipeline.FetchConcurrency, throttle.DefaultConfig()))

	strategy := &recovery.ExponentialBackoff{
		Base:       cfg.Pipeline.BackoffBase,
		MaxRetries: cfg.Pipeline.MaxRetries,
	}
	controller := recovery.NewController(bus, worker, log,
		recovery.WithStrategy(strategy),
		recovery.WithStepTimeout(cfg.Pipeline.StepTimeout),
	)

	// 4. Initialize Health Monitor
	healthMon := health.NewMonitor()
	if db != nil {
		healthMon.Register("database", true, db)
	}
	if redisClient != nil {
		healthMon.Register("redis", false, redisClient)
	}
	healthServer := health.NewServer(healthMon, cfg.Server.HealthPort)

	s := &Service{
		cfg:          cfg,
		controller:   controller,
		bus:          bus,
		cache:        cache,
		statsRepo:    statsRepo,
		transferRepo: transferRepo,
		db:           db,
		redisClient:  redisClient,
		healthServer: healthServer,
		log:          log,
	}
	s.apiServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: s.routes(),
	}
	return s, nil
}

// Start starts the HTTP servers and background collectors.
func (s *Service) Start(ctx context.Context) error {
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	go func() {
		if err := s.healthServer.Start(); err != nil && err != http.ErrServerClosed {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	if s.cfg.Pipeline.StatsRetention > 0 {
		pruner := appworker.NewPruner(s.cfg.Pipeline.StatsRetention, s.statsRepo, s.log)
		go pruner.Start(ctx)
	}

	go func() {
		s.log.Info("API server listening", "port", s.cfg.Server.Port)
		if err := s.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("API server failed", "error", err)
		}
	}()

	return nil
}

// Stop shuts the service down.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")

	if s.runCancel != nil {
		s.runCancel()
	}

	if err := s.apiServer.Shutdown(ctx); err != nil {
		s.log.Warn("API server shutdown failed", "error", err)
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}

	return s.healthServer.Stop(ctx)
}

// Controller exposes the session controller for the CLI.
func (s *Service) Controller() SessionController {
	return s.controller
}

// runSession executes one controller operation in the background and handles
// the aftermath: caching the result on success, snapshotting the halted
// state otherwise.
func (s *Service) runSession(op func(ctx context.Context) *domain.AccountStats) {
	go func() {
		result := op(s.runCtx)
		snap := s.controller.Snapshot()

		if result != nil {
			s.cacheResult(snap, result)
			return
		}
		if snap.Halted() {
			s.persistSnapshot(snap)
		}
	}()
}

func (s *Service) cacheResult(snap domain.RecoveryState, result *domain.AccountStats) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.cache.SetStats(ctx, snap.Query, result, 0); err != nil {
		s.log.Warn("Failed to cache stats", "error", err)
	}
	if err := s.cache.DropSnapshot(ctx, snap.SessionID); err != nil {
		s.log.Warn("Failed to drop session snapshot", "error", err)
	}
}

func (s *Service) persistSnapshot(snap domain.RecoveryState) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.cache.SaveSnapshot(ctx, &snap); err != nil {
		s.log.Warn("Failed to persist session snapshot", "error", err)
	}
}
