// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"frontdesk-service/internal/config"
	"frontdesk-service/internal/db"
	wstypes "frontdesk-service/internal/domain/websocket"
	queueHandler "frontdesk-service/internal/handlers/queue"
	syncHandler "frontdesk-service/internal/handlers/sync"
	visitHandler "frontdesk-service/internal/handlers/visit"
	wsHandler "frontdesk-service/internal/handlers/websocket"
	"frontdesk-service/internal/middleware"
	"frontdesk-service/internal/pendinglog"
	"frontdesk-service/internal/pkg/jwt"
	"frontdesk-service/internal/repository/memory"
	"frontdesk-service/internal/repository/postgres"
	"frontdesk-service/internal/service/assignment"
	"frontdesk-service/internal/service/connectivity"
	customersvc "frontdesk-service/internal/service/customer"
	"frontdesk-service/internal/service/intake"
	"frontdesk-service/internal/service/queue"
	scoringsvc "frontdesk-service/internal/service/scoring"
	syncsvc "frontdesk-service/internal/service/sync"
	visitsvc "frontdesk-service/internal/service/visit"
	"frontdesk-service/internal/store"
	"frontdesk-service/internal/telemetry"
	"frontdesk-service/internal/websocket"
	wsHandlers "frontdesk-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "frontdesk-service"

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	http   *http.Server

	mu      sync.Mutex
	cancel  context.CancelFunc
	closers []func(context.Context) error
}

func (s *Server) addCloser(fn func(context.Context) error) {
	s.mu.Lock()
	s.closers = append(s.closers, fn)
	s.mu.Unlock()
}

func NewServer() *Server {
	cfg := config.Load()

	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger, _ = zap.NewProduction()
	}

	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	logger := s.logger

	// ----- Tracing -----
	s.addCloser(telemetry.Setup(serviceName, logger))

	// ----- Backing store -----
	backing, err := s.openStore(ctx)
	if err != nil {
		return err
	}

	// ----- Pending-write log -----
	if s.cfg.PendingLogPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.cfg.PendingLogPath), 0o755); err != nil {
			return fmt.Errorf("failed to create pending log directory: %w", err)
		}
	}
	plog, err := pendinglog.Open(s.cfg.PendingLogPath)
	if err != nil {
		return fmt.Errorf("failed to open pending log: %w", err)
	}
	s.addCloser(func(context.Context) error { return plog.Close() })

	// ----- JWT -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Core services -----
	monitor := connectivity.NewMonitor(backing, connectivity.Options{
		ProbeInterval: s.cfg.ProbeInterval,
		ProbeTimeout:  s.cfg.ProbeTimeout,
		StableProbes:  s.cfg.StableProbes,
	}, logger)
	if n, ok := backing.(store.NetworkNotifier); ok {
		n.OnNetworkChange(monitor.NotifyNetworkChange)
	}
	queueStore := queue.NewStore(backing, logger)
	queueStore.SetTimeout(s.cfg.StoreTimeout)

	loads := assignment.NewLoadTracker(queueStore, backing, s.cfg.MaxConcurrentVisits)
	assigner := assignment.NewEngine(backing, backing, queueStore, loads, s.buildClaims(), s.cfg.StoreTimeout, logger)

	resolver := customersvc.NewIdentityResolver(backing, s.cfg.PhoneCountryCode, logger)
	intakeService := intake.NewIntakeService(resolver, backing, plog, monitor, s.cfg.StoreTimeout, logger)
	syncEngine := syncsvc.NewEngine(intakeService, backing, plog, syncsvc.Options{
		BaseDelay:   s.cfg.SyncBaseDelay,
		MaxDelay:    s.cfg.SyncMaxDelay,
		MaxAttempts: s.cfg.SyncMaxAttempts,
		Interval:    s.cfg.SyncInterval,
		Timeout:     s.cfg.StoreTimeout,
	}, logger)
	statusService := visitsvc.NewStatusService(backing, queueStore, s.cfg.StoreTimeout, logger)

	var scorer scoringsvc.Scorer
	if s.cfg.ScoringURL != "" {
		scorer = scoringsvc.NewClient(s.cfg.ScoringURL, s.cfg.ScoringTimeout)
	} else {
		logger.Warn("SCORING_URL not set, visit scoring disabled")
	}
	scoringService := scoringsvc.NewScoringService(backing, scorer, s.cfg.StoreTimeout, logger)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(verifier, logger)
	if err := hub.RegisterHandler(wsHandlers.NewQueueHandler(queueStore)); err != nil {
		return err
	}
	bridgeEvents(hub, queueStore, syncEngine, monitor)

	if s.cfg.AutoAssign {
		auto := assignment.NewAutoAssigner(assigner, queueStore, logger)
		queueStore.Subscribe(func(c queue.Change) { auto.Observe(ctx, c) })
		logger.Info("auto-assign enabled")
	}

	// ----- Background loops -----
	go hub.Run(ctx)
	go monitor.Run(ctx)
	go func() {
		if err := queueStore.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("queue store stopped", zap.Error(err))
		}
	}()
	go syncEngine.Run(ctx, monitor, monitor.Subscribe())

	// ----- Handlers -----
	handlers := &Handlers{
		VisitHandler:   visitHandler.NewVisitHandler(intakeService, statusService, assigner, scoringService),
		QueueHandler:   queueHandler.NewQueueHandler(queueStore, loads),
		SyncHandler:    syncHandler.NewSyncHandler(intakeService, syncEngine, monitor),
		WSHandler:      wsHandler.NewWebSocketHandler(hub, s.cfg.AllowedOrigins, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(verifier),
		Health:         monitor,
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(s.cfg.AllowedOrigins...),
	)
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(s.engine, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()
	logger.Info("server running",
		zap.String("addr", s.cfg.HTTPAddr),
		zap.String("store_driver", s.cfg.StoreDriver),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, ends the background loops and releases
// the store, log and exporter in reverse order of acquisition.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel, closers := s.http, s.cancel, s.closers
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if cancel != nil {
		cancel()
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	_ = s.logger.Sync()
	return errors.Join(errs...)
}

func (s *Server) openStore(ctx context.Context) (store.BackingStore, error) {
	switch s.cfg.StoreDriver {
	case config.DriverMemory:
		st := memory.NewStore()
		for _, c := range s.cfg.SeedConsultants {
			st.AddConsultant(c)
		}
		s.logger.Warn("using in-memory backing store; data is lost on restart")
		return st, nil

	case config.DriverPostgres:
		pool, err := db.ConnectDB(db.PostgresConfig{URL: s.cfg.DatabaseURL, MaxConns: s.cfg.DBMaxConns})
		if err != nil {
			return nil, fmt.Errorf("failed to set up PostgreSQL: %w", err)
		}
		s.addCloser(func(context.Context) error { pool.Close(); return nil })

		wrapper := postgres.NewDB(pool)
		st := postgres.NewStore(wrapper, s.cfg.DatabaseURL, s.cfg.StoreTimeout, s.logger)
		go s.prepareSchema(ctx, wrapper, st)
		return st, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", s.cfg.StoreDriver)
	}
}

// prepareSchema migrates and seeds once the database is reachable. Intake
// keeps working offline in the meantime.
func (s *Server) prepareSchema(ctx context.Context, wrapper *postgres.DB, st *postgres.Store) {
	wait := s.cfg.ProbeInterval
	for {
		migrateCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
		err := wrapper.Migrate(migrateCtx)
		cancel()
		if err == nil {
			break
		}
		s.logger.Warn("migration pending, database unreachable", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	for _, c := range s.cfg.SeedConsultants {
		seedCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
		err := st.UpsertConsultant(seedCtx, c)
		cancel()
		if err != nil {
			s.logger.Error("failed to seed consultant", zap.String("consultant_id", c.ID), zap.Error(err))
		}
	}
	s.logger.Info("schema ready")
}

// buildClaims layers Redis claims over the in-process table when Redis is
// configured and reachable.
func (s *Server) buildClaims() assignment.Claims {
	local := assignment.NewLocalClaims()
	if len(s.cfg.RedisAddrs) == 0 {
		return local
	}

	client, err := db.NewRedisClient(db.RedisConfig{
		ClusterMode: s.cfg.RedisCluster,
		Addresses:   s.cfg.RedisAddrs,
		Password:    s.cfg.RedisPass,
		PoolSize:    10,
	})
	if err != nil {
		s.logger.Warn("redis unavailable, assignment claims are local to this instance", zap.Error(err))
		return local
	}
	s.addCloser(func(context.Context) error { return client.Close() })
	s.logger.Info("redis connected, cross-instance assignment claims enabled")
	return assignment.NewRedisClaims(local, client, s.cfg.ClaimTTL, s.logger)
}

// bridgeEvents forwards queue, sync and connectivity changes to dashboards.
func bridgeEvents(hub *websocket.Hub, q *queue.Store, drains *syncsvc.Engine, monitor *connectivity.Monitor) {
	q.Subscribe(func(c queue.Change) {
		pending, active := q.Counts()
		data := &wstypes.QueueChangeData{
			EventType: string(c.Type),
			Pending:   pending,
			Active:    active,
		}
		if c.Entry != nil {
			data.VisitID = c.Entry.ID
			if !c.Removed {
				data.Record = c.Entry
			}
		}
		hub.BroadcastQueueChange(data)
	})

	drains.OnDrain(func(r syncsvc.Result) {
		hub.BroadcastSyncDrained(&wstypes.SyncDrainData{
			Succeeded:      r.Succeeded,
			Failed:         r.Failed,
			Outstanding:    r.Outstanding,
			NeedsAttention: r.NeedsAttention,
		})
	})

	events := monitor.Subscribe()
	go func() {
		for ev := range events {
			hub.BroadcastConnectivity(ev.Transition == connectivity.WentOnline)
		}
	}()
}
