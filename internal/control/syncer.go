// Package control assembles and runs the syncer: one ingestion lane per
// configured source, shared storage, the health surface, and the
// reconcile worker.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/todosync/internal/core/config"
	"github.com/vietddude/todosync/internal/core/cursor"
	"github.com/vietddude/todosync/internal/core/domain"
	redisclient "github.com/vietddude/todosync/internal/infra/redis"
	"github.com/vietddude/todosync/internal/infra/rpc"
	"github.com/vietddude/todosync/internal/infra/storage"
	"github.com/vietddude/todosync/internal/infra/storage/memory"
	"github.com/vietddude/todosync/internal/infra/storage/postgres"
	"github.com/vietddude/todosync/internal/sync/confirm"
	"github.com/vietddude/todosync/internal/sync/dispatch"
	"github.com/vietddude/todosync/internal/sync/health"
	"github.com/vietddude/todosync/internal/sync/pipeline"
	"github.com/vietddude/todosync/internal/sync/project"
	"github.com/vietddude/todosync/internal/sync/recover"
	"github.com/vietddude/todosync/internal/sync/source"
)

// lane bundles everything one source needs.
type lane struct {
	cfg       config.SourceConfig
	adapter   *source.EVMAdapter
	tracker   *confirm.Tracker
	projector *project.Projector
	pipeline  *pipeline.Pipeline
}

// Syncer is the top-level application object.
type Syncer struct {
	cfg   *config.AppConfig
	lanes map[domain.SourceID]*lane

	cursors      *cursor.Manager
	monitor      *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	reconciler   *ReconcileWorker
	log          *slog.Logger
}

// NewSyncer builds the full object graph from configuration.
func NewSyncer(ctx context.Context, cfg *config.AppConfig) (*Syncer, error) {
	s := &Syncer{
		cfg:   cfg,
		lanes: make(map[domain.SourceID]*lane),
		log:   slog.Default(),
	}

	// 1. Storage
	var (
		todoRepo   storage.TodoRepository
		cursorRepo storage.CursorRepository
	)
	if cfg.Storage == "postgres" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		s.db = db
		todoRepo = postgres.NewTodoRepo(db)
		cursorRepo = postgres.NewCursorRepo(db)
		s.log.Info("using postgres storage")
	} else {
		todoRepo = memory.NewTodoRepo()
		cursorRepo = memory.NewCursorRepo()
		s.log.Info("using in-memory storage")
	}

	s.cursors = cursor.NewManager(cursorRepo)
	s.monitor = health.NewMonitor(30 * time.Second)
	schema := source.DefaultSchema()

	// 2. One lane per source
	for _, srcCfg := range cfg.Sources {
		id := domain.SourceID(srcCfg.ID)

		endpoints := make([]*rpc.Endpoint, 0, len(srcCfg.Endpoints))
		for _, ep := range srcCfg.Endpoints {
			client := rpc.NewClient(ep.URL, srcCfg.RequestTimeout)
			endpoints = append(endpoints,
				rpc.NewEndpoint(ep.Name, ep.Rank, client, srcCfg.FailThreshold, srcCfg.Cooldown))
		}
		pool := rpc.NewPool(id, endpoints)

		adapter := source.NewEVMAdapter(source.Config{
			SourceID:     id,
			Contract:     srcCfg.Contract,
			MaxLogRange:  srcCfg.MaxLogRange,
			PollInterval: srcCfg.PollInterval,
		}, pool, schema)

		tracker := confirm.NewTracker(srcCfg.Confirmations)
		dispatcher := dispatch.NewDispatcher(id, tracker)

		projector := project.NewProjector(id, todoRepo, tracker)
		projector.Register(dispatcher)

		scanner := recover.NewScanner(id, adapter, s.cursors, dispatcher, tracker,
			srcCfg.StartBlock, srcCfg.RecoveryWindow, srcCfg.MaxLogRange)

		pipe := pipeline.New(id, adapter, scanner, dispatcher, projector, tracker, s.cursors)

		s.lanes[id] = &lane{
			cfg:       srcCfg,
			adapter:   adapter,
			tracker:   tracker,
			projector: projector,
			pipeline:  pipe,
		}

		s.monitor.Watch(&health.Target{
			Source:         id,
			Dispatcher:     dispatcher,
			Tracker:        tracker,
			Adapter:        adapter,
			Reconnector:    pipe,
			StallThreshold: srcCfg.StallThreshold,
		})
	}

	// 3. Redis reconcile queue (optional)
	var queue health.ReconcileEnqueuer
	if cfg.Redis.Enabled {
		client, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		s.redisClient = client

		q := redisclient.NewReconcileQueue(client)
		queue = q
		s.reconciler = NewReconcileWorker(q, s.lanes, 2)
	}

	// 4. Health surface
	s.healthServer = health.NewServer(cfg.Server.Addr, s.monitor, queue)

	return s, nil
}

// Start launches every component. Non-blocking.
func (s *Syncer) Start(ctx context.Context) error {
	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("health server failed", "error", err)
		}
	}()

	go s.monitor.Run(ctx)

	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	for id, l := range s.lanes {
		s.log.Info("starting pipeline", "source", id,
			"contract", l.cfg.Contract, "confirmations", l.cfg.Confirmations)
		go func(id domain.SourceID, l *lane) {
			if err := l.pipeline.Run(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("pipeline exited", "source", id, "error", err)
				s.monitor.SetDegraded(id, true)
			}
		}(id, l)
	}

	if s.reconciler != nil {
		go func() {
			if err := s.reconciler.Run(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("reconcile worker exited", "error", err)
			}
		}()
	}

	return nil
}

// Stop shuts everything down in dependency order.
func (s *Syncer) Stop(ctx context.Context) error {
	s.log.Info("stopping syncer")

	for _, l := range s.lanes {
		l.pipeline.Stop()
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("redis close failed", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("database close failed", "error", err)
		}
	}

	return s.healthServer.Shutdown(ctx)
}
