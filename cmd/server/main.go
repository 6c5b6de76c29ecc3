package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/liamcoop/wisepay/internal/config"
	"github.com/liamcoop/wisepay/internal/logger"
	"github.com/liamcoop/wisepay/payments"
	"github.com/liamcoop/wisepay/registry"
	"github.com/liamcoop/wisepay/rules"
	"github.com/liamcoop/wisepay/wise"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"
)

// RecipientCreator registers recipient accounts with the provider.
type RecipientCreator interface {
	CreateRecipient(ctx context.Context, req wise.RecipientRequest) (*wise.Recipient, error)
}

type Server struct {
	db         *sql.DB
	redis      redis.UniversalClient
	registry   *registry.Manager
	rules      *rules.Engine
	payments   *payments.Service
	recipients RecipientCreator
	slow       time.Duration
	router     *chi.Mux
}

// Deps are the components a Server routes to. DB and Redis are optional and
// only used for health checks.
type Deps struct {
	DB          *sql.DB
	Redis       redis.UniversalClient
	Registry    *registry.Manager
	Rules       *rules.Engine
	Payments    *payments.Service
	Recipients  RecipientCreator
	SlowRequest time.Duration
}

func NewServer(d Deps) *Server {
	s := &Server{
		db:         d.DB,
		redis:      d.Redis,
		registry:   d.Registry,
		rules:      d.Rules,
		payments:   d.Payments,
		recipients: d.Recipients,
		slow:       d.SlowRequest,
	}
	s.setupRoutes()
	return s
}

// Build wires the stores and clients selected by cfg. Without a database URL
// every store is in memory, without a Redis address documents are cached
// in process.
func Build(ctx context.Context, cfg *config.Config) (*Server, error) {
	client := wise.NewClient(cfg.Wise.BaseURL, cfg.Wise.Token, cfg.Wise.ProfileID,
		wise.WithHTTPClient(&http.Client{Timeout: cfg.Wise.Timeout}))

	var (
		db           *sql.DB
		ruleStore    rules.RuleStore        = rules.NewInMemoryRuleStore()
		snapshots    registry.SnapshotStore = registry.NewInMemorySnapshotStore()
		paymentStore payments.Store         = payments.NewInMemoryStore()
		documents    registry.DocumentCache = registry.NewInMemoryDocumentCache(cfg.Cache.DocumentTTL)
		rc           redis.UniversalClient
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		ruleStore = rules.NewPostgresRuleStore(db)
		snapshots = registry.NewPostgresSnapshotStore(db)
		paymentStore = payments.NewPostgresStore(db)
	} else {
		logger.Warn("no database configured, rules, snapshots and payments are kept in memory")
	}

	if cfg.Redis.Address != "" {
		rc = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rc.Ping(ctx).Err(); err != nil {
			closeAll(db, rc)
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		documents = registry.NewRedisDocumentCache(rc, cfg.Cache.DocumentTTL)
	}

	engine, err := rules.NewEngineWithCache(ruleStore, rules.NewInMemoryRulesCache(rules.CacheConfig{TTL: cfg.Cache.RulesTTL}))
	if err != nil {
		closeAll(db, rc)
		return nil, fmt.Errorf("failed to create rule engine: %w", err)
	}
	if err := engine.Seed(rules.DefaultRules()); err != nil {
		closeAll(db, rc)
		return nil, err
	}

	manager := registry.NewManager(client, registry.Options{
		Documents:     documents,
		Schemas:       registry.NewInMemorySchemaCache(cfg.Cache.SchemaTTL, cfg.Cache.MaxSchemas),
		Snapshots:     snapshots,
		Rules:         engine,
		FetchAttempts: cfg.Wise.Retries,
	})
	if n, err := manager.LoadSnapshots(ctx); err != nil {
		logger.Error("failed to load requirements snapshots", "error", err.Error())
	} else {
		logger.Info("requirements snapshots ready", "corridors", n)
	}

	return NewServer(Deps{
		DB:          db,
		Redis:       rc,
		Registry:    manager,
		Rules:       engine,
		Payments:    payments.NewService(client, paymentStore),
		Recipients:  client,
		SlowRequest: cfg.HTTP.SlowRequest,
	}), nil
}

func closeAll(db *sql.DB, rc redis.UniversalClient) {
	if db != nil {
		db.Close()
	}
	if rc != nil {
		rc.Close()
	}
}

// Close releases the database and Redis connections.
func (s *Server) Close() {
	closeAll(s.db, s.redis)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(countResponses(s.slow))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/metrics", s.handleMetrics)

	// Requirements
	r.Get("/api/v1/requirements", s.handleGetRequirements)
	r.Post("/api/v1/requirements/refresh", s.handleRefreshRequirements)

	// Recipients
	r.Route("/api/v1/recipients", func(r chi.Router) {
		r.Post("/", s.handleCreateRecipient)
		r.Post("/validate", s.handleValidateRecipient)
		r.Get("/example", s.handleExampleRecipient)
	})

	// Payments
	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Get("/", s.handleListPayments)
		r.Post("/", s.handleCreatePayment)
		r.Get("/{paymentId}", s.handleGetPayment)
	})

	// Rule management
	r.Route("/api/v1/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Get("/{ruleId}", s.handleGetRule)
		r.Put("/{ruleId}", s.handleUpdateRule)
		r.Delete("/{ruleId}", s.handleDeleteRule)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func main() {
	flags := config.FlagSet()
	if err := flags.Parse(os.Args[1:]); err != nil {
		logger.Fatal("invalid arguments", "error", err.Error())
	}
	cfg, err := config.Load(flags)
	if err != nil {
		logger.Fatal("failed to load config", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := Build(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err.Error())
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "address", cfg.HTTP.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err.Error())
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err.Error())
	}
	logger.Info("server stopped")
	_ = logger.Shutdown(shutdownCtx)
}
