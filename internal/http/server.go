package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"wealthywise/internal/amqp"
	"wealthywise/internal/cache"
	"wealthywise/internal/config"
	"wealthywise/internal/core"
	"wealthywise/internal/log"
	"wealthywise/internal/middleware/ratelimit"
	"wealthywise/internal/middleware/security"
	"wealthywise/internal/middleware/trace"
	"wealthywise/internal/services"
	"wealthywise/internal/storage"
)

// ReconcilePublisher queues reconciliation for the worker.
type ReconcilePublisher interface {
	PublishReconcileRequested(ctx context.Context, req amqp.ReconcileRequested) error
}

// Config holds the HTTP layer settings.
type Config struct {
	Addr                 string
	ReconcileConcurrency int
	SummaryCacheTTL      time.Duration
	SummaryCacheSize     int
	RateLimitPerMinute   int // 0 disables rate limiting
	AdminToken           string
}

// ConfigFrom maps the application configuration onto Config.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Addr:                 ":" + c.Port,
		ReconcileConcurrency: c.ReconcileConcurrency,
		SummaryCacheTTL:      c.SummaryCacheTTL,
		SummaryCacheSize:     c.SummaryCacheSize,
		RateLimitPerMinute:   c.RateLimitPerMinute,
		AdminToken:           c.AdminToken,
	}
}

type Server struct {
	http.Server
	engine *gin.Engine
	logger *log.Logger
	store  storage.Store
	events ReconcilePublisher

	schemas     *Schemas
	registry    *services.Registry
	ledger      *services.Ledger
	reconciler  *services.Reconciler
	budgets     *services.Budgets
	summaries   *services.Summaries
	provisioner *services.Provisioner
	settings    *services.SettingsStore

	rateLimiter  *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	summaryCache *cache.LRUCache[core.Summary]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires the services over store and configures the routes. events
// may be nil, in which case asynchronous reconciliation is unavailable.
func NewServer(cfg Config, store storage.Store, opts services.Options, events ReconcilePublisher) (*Server, error) {
	schemas, err := LoadSchemas()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	opts.Logger = logger

	registry := services.NewRegistry(store, opts)
	s := &Server{
		logger:       logger,
		store:        store,
		events:       events,
		schemas:      schemas,
		registry:     registry,
		ledger:       services.NewLedger(store, opts),
		reconciler:   services.NewReconciler(store, opts, cfg.ReconcileConcurrency),
		budgets:      services.NewBudgets(store, opts),
		summaries:    services.NewSummaries(store, opts),
		provisioner:  services.NewProvisioner(store, registry, opts),
		settings:     services.NewSettingsStore(store, opts),
		detector:     security.NewDetector(logger),
		tracer:       trace.NewMiddleware(),
		summaryCache: cache.NewLRUCache[core.Summary](cfg.SummaryCacheSize, cfg.SummaryCacheTTL),
		cacheManager: cache.NewManager(logger),
	}
	if cfg.RateLimitPerMinute > 0 {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	s.engine = s.routes(cfg)
	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(cfg Config) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(security.TrustedProxies); err != nil {
		s.logger.Warn("Invalid trusted proxies", log.FieldError, err)
	}
	r.Use(gin.Recovery())
	r.Use(s.tracer.Gin())
	r.Use(log.GinMiddleware(s.logger, trace.FromGin))
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.detector.Gin())
	if s.rateLimiter != nil {
		rlLog := s.logger.WithComponent(log.ComponentRateLimit)
		r.Use(s.rateLimiter.GinMiddleware(func(c *gin.Context) {
			rlLog.WarnContext(c.Request.Context(), "Rate limit exceeded",
				log.FieldClientIP, c.ClientIP(),
				log.FieldMethod, c.Request.Method,
				log.FieldPath, c.Request.URL.Path)
		}))
	}

	r.GET("/healthz", handleHealth)
	r.GET("/readyz", s.handleReady)

	v1 := r.Group("/v1", requireUser(), s.maintenanceGate(), s.invalidateOnWrite())
	{
		v1.POST("/accounts", s.handleCreateAccount)
		v1.GET("/accounts", s.handleListAccounts)
		v1.GET("/accounts/:id", s.handleGetAccount)
		v1.PATCH("/accounts/:id", s.handleUpdateAccount)
		v1.PUT("/accounts/:id/balance", s.handleSetBalance)
		v1.POST("/accounts/:id/activate", s.handleActivateAccount)
		v1.POST("/accounts/:id/deactivate", s.handleDeactivateAccount)
		v1.DELETE("/accounts/:id", s.handleDeleteAccount)

		v1.POST("/transactions", s.handleCommitTransaction)
		v1.GET("/transactions", s.handleListTransactions)
		v1.GET("/transactions/:id", s.handleGetTransaction)
		v1.DELETE("/transactions/:id", s.handleDeleteTransaction)

		v1.PUT("/budgets", s.handleUpsertBudget)
		v1.GET("/budgets", s.handleListBudgets)
		v1.GET("/budgets/:id", s.handleGetBudget)
		v1.DELETE("/budgets/:id", s.handleDeleteBudget)
		v1.GET("/reports/budgets", s.handleBudgetReport)
		v1.GET("/reports/budget-history", s.handleBudgetHistory)

		v1.GET("/summary", s.handleSummary)
		v1.GET("/insights", s.handleInsights)
		v1.GET("/charts", s.handleChart)
		v1.POST("/provision", s.handleProvision)
	}

	admin := r.Group("/admin", requireAdmin(cfg.AdminToken))
	{
		admin.POST("/reconcile", s.handleReconcile)
		admin.GET("/accounts/:id/drift", s.handleDrift)
		admin.GET("/settings", s.handleGetSettings)
		admin.PUT("/settings", s.handleSaveSettings)
	}

	r.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, codeNotFound, "route not found")
	})
	return r
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReady reports whether the store answers. The event bus is optional
// and only reported.
func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.store.LoadSettings(ctx); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "store": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "events": s.events != nil})
}
