// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/relayguard/internal/audit"
	"github.com/mbd888/relayguard/internal/blacklist"
	"github.com/mbd888/relayguard/internal/circuitbreaker"
	"github.com/mbd888/relayguard/internal/config"
	"github.com/mbd888/relayguard/internal/logging"
	"github.com/mbd888/relayguard/internal/metrics"
	"github.com/mbd888/relayguard/internal/pattern"
	"github.com/mbd888/relayguard/internal/pipeline"
	"github.com/mbd888/relayguard/internal/ratelimit"
	"github.com/mbd888/relayguard/internal/realtime"
	"github.com/mbd888/relayguard/internal/risk"
	"github.com/mbd888/relayguard/internal/security"
	"github.com/mbd888/relayguard/internal/signing"
	"github.com/mbd888/relayguard/internal/store"
	"github.com/mbd888/relayguard/internal/traces"
	"github.com/mbd888/relayguard/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and the decision engine behind it
type Server struct {
	cfg          *config.Config
	store        store.Store
	redis        *store.RedisStore // nil if using in-memory
	db           *sql.DB           // nil if no audit archive
	auth         *signing.Authenticator
	limiter      *ratelimit.Limiter
	lists        *blacklist.Service
	patterns     *pattern.Tracker
	auditor      *audit.Recorder
	scorer       *risk.Scorer
	pipe         *pipeline.Pipeline
	hub          *realtime.Hub
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore sets a custom backing store (for testing)
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set store/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Shared store (Redis if REDIS_URL set, otherwise in-memory). Every
	// store-backed component goes through the guarded wrapper so a backend
	// outage trips one breaker instead of hammering timeouts per request.
	if s.store == nil {
		if cfg.RedisURL != "" {
			rs, err := store.NewRedisStore(cfg.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
			s.redis = rs
			s.store = rs
			s.logger.Info("using Redis storage", "url", maskDSN(cfg.RedisURL))
		} else {
			s.store = store.NewMemoryStore()
			s.logger.Info("using in-memory storage (data will not persist)")
		}
		breaker := circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerOpenFor)
		s.store = store.NewGuarded(s.store, breaker, cfg.StoreTimeout)
	}

	// Audit archive (Postgres if DATABASE_URL set, otherwise hot lists only)
	var archive audit.ArchiveStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		archive = audit.NewPostgresStore(db)
		s.logger.Info("audit archive enabled", "url", maskDSN(cfg.DatabaseURL))
	}
	s.auditor = audit.NewRecorder(s.store, archive)

	// Request authentication (nil authenticator passes everything through)
	if cfg.EnableRequestSigning {
		s.auth = signing.New(cfg.SigningSecret, cfg.MaxTimestampSkew, s.store)
		s.logger.Info("request signing enforced", "max_skew", cfg.MaxTimestampSkew)
	} else {
		s.logger.Warn("request signing disabled")
	}

	// Decision engine
	s.lists = blacklist.NewService(s.store, blacklist.NewEmergency(nil))
	s.patterns = pattern.New(s.store, cfg.PatternReceiverCap, cfg.RateLimitWindow)
	s.scorer = risk.NewScorer(s.lists, s.patterns, s.auditor, risk.Config{
		BlockThreshold:     cfg.BlockThreshold,
		BlacklistThreshold: cfg.BlacklistThreshold,
		LargeAmountCeiling: cfg.LargeAmountCeiling,
		DustFloor:          cfg.DustFloor,
		HighFrequencyCount: cfg.HighFrequencyCount,
		ManyReceiversCount: cfg.ManyReceiversCount,
	})
	s.limiter = ratelimit.New(s.store, cfg.RateLimitWindow, cfg.RateLimitMax, cfg.PenaltyTiers, cfg.PenaltyReset)

	// Realtime hub for the threat feed
	s.hub = realtime.NewHub(s.logger)

	s.pipe = pipeline.New(s.limiter, s.scorer, s.auditor, s.hub)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Per-IP rate limiting in front of everything. The pipeline applies
	// the same limiter again keyed by sender identity.
	s.router.Use(s.limiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// operatorAuthMiddleware guards the admin surface with the operator secret.
func (s *Server) operatorAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.OperatorSecret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "OPERATOR_SECRET is not configured",
			})
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.OperatorSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid_operator_token",
			})
			return
		}

		c.Next()
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return "req-" + hex.EncodeToString(b)
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket threat feed
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/v1")

	// Relay intake. Signature verification runs in front of the handler;
	// with signing disabled the middleware is a pass-through.
	v1.POST("/relay", signing.Middleware(s.auth), s.relayHandler)

	// OPERATOR ROUTES (require operator secret)
	admin := v1.Group("/admin")
	admin.Use(s.operatorAuthMiddleware())
	admin.Use(validation.AddressParamMiddleware())
	{
		admin.GET("/blacklist", s.listBlacklistHandler)
		admin.POST("/blacklist", s.addBlacklistHandler)
		admin.GET("/blacklist/:address", s.checkBlacklistHandler)
		admin.DELETE("/blacklist/:address", s.removeBlacklistHandler)

		admin.GET("/greylist", s.listGreylistHandler)
		admin.POST("/greylist", s.addGreylistHandler)
		admin.DELETE("/greylist/:address", s.removeGreylistHandler)

		admin.GET("/patterns/:address", s.patternHandler)
		admin.DELETE("/patterns/:address", s.resetPatternHandler)

		admin.GET("/audit/:kind", s.auditHandler)
		admin.GET("/stats", s.statsHandler)
	}
}

// -----------------------------------------------------------------------------
// Relay intake
// -----------------------------------------------------------------------------

type relayRequest struct {
	Sender   string  `json:"sender"`
	Receiver string  `json:"receiver"`
	Amount   float64 `json:"amount"`
}

func (s *Server) relayHandler(c *gin.Context) {
	var req relayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "body must be valid JSON",
		})
		return
	}

	req.Sender = validation.SanitizeAddress(req.Sender)
	req.Receiver = validation.SanitizeAddress(req.Receiver)

	if errs := validation.Validate(
		validation.Required("sender", req.Sender),
		validation.ValidAddress("sender", req.Sender),
		validation.Required("receiver", req.Receiver),
		validation.ValidAddress("receiver", req.Receiver),
		validation.PositiveAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	ctx, span := traces.StartSpan(c.Request.Context(), "relayguard.process",
		traces.Sender(req.Sender),
		traces.Receiver(req.Receiver),
		traces.Amount(req.Amount),
	)
	defer span.End()

	out := s.pipe.Process(ctx, risk.Transaction{
		Identity:  req.Sender,
		Receiver:  req.Receiver,
		Amount:    req.Amount,
		Timestamp: time.Now().UTC(),
	})

	if out.Assessment != nil {
		span.SetAttributes(
			traces.Score(out.Assessment.Score),
			traces.Verdict(string(out.Assessment.Verdict)),
		)
	}

	switch {
	case out.Allowed:
		resp := gin.H{"status": "accepted"}
		if out.Assessment != nil {
			resp["assessment_id"] = out.Assessment.ID
		}
		c.JSON(http.StatusOK, resp)
	case out.Reason == pipeline.ReasonRateLimited:
		c.Header("Retry-After", fmt.Sprintf("%d", int(out.RetryAfter.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":          pipeline.ReasonRateLimited,
			"retry_after_ms": out.RetryAfter.Milliseconds(),
		})
	default:
		// The score stays internal: blocked callers learn only the category.
		c.JSON(http.StatusForbidden, gin.H{"error": pipeline.ReasonBlocked})
	}
}

// -----------------------------------------------------------------------------
// Operator handlers
// -----------------------------------------------------------------------------

type listMutation struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

func (s *Server) bindListMutation(c *gin.Context) (listMutation, bool) {
	var req listMutation
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return req, false
	}
	req.Address = validation.SanitizeAddress(req.Address)
	if !validation.IsValidEthAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "address must be a valid Ethereum address (0x + 40 hex chars)",
		})
		return req, false
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}
	req.Reason = validation.SanitizeString(req.Reason, 256)
	return req, true
}

func (s *Server) addBlacklistHandler(c *gin.Context) {
	req, ok := s.bindListMutation(c)
	if !ok {
		return
	}
	if err := s.lists.Add(c.Request.Context(), req.Address, req.Reason); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	logging.L(c.Request.Context()).Info("address blacklisted",
		"address", req.Address, "reason", req.Reason)
	c.JSON(http.StatusCreated, gin.H{"address": req.Address, "reason": req.Reason})
}

func (s *Server) removeBlacklistHandler(c *gin.Context) {
	addr := validation.SanitizeAddress(c.Param("address"))
	if err := s.lists.Remove(c.Request.Context(), addr); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr, "removed": true})
}

func (s *Server) checkBlacklistHandler(c *gin.Context) {
	addr := validation.SanitizeAddress(c.Param("address"))
	status := s.lists.Check(c.Request.Context(), addr)
	c.JSON(http.StatusOK, status)
}

func (s *Server) listBlacklistHandler(c *gin.Context) {
	entries, err := s.lists.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) addGreylistHandler(c *gin.Context) {
	req, ok := s.bindListMutation(c)
	if !ok {
		return
	}
	if err := s.lists.Greylist(c.Request.Context(), req.Address, req.Reason); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"address": req.Address, "reason": req.Reason})
}

func (s *Server) removeGreylistHandler(c *gin.Context) {
	addr := validation.SanitizeAddress(c.Param("address"))
	if err := s.lists.Ungreylist(c.Request.Context(), addr); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr, "removed": true})
}

func (s *Server) listGreylistHandler(c *gin.Context) {
	entries, err := s.lists.ListGreylist(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) patternHandler(c *gin.Context) {
	addr := validation.SanitizeAddress(c.Param("address"))
	rec, err := s.patterns.Snapshot(c.Request.Context(), addr)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":             addr,
		"total_transactions":  rec.TotalTransactions,
		"total_volume":        rec.TotalVolume,
		"average_amount":      rec.AverageAmount,
		"unique_receivers":    rec.UniqueReceivers,
		"receivers_capped":    rec.ReceiversCapped,
		"recent_count":        rec.RecentCount,
		"last_transaction_at": rec.LastTransactionTime,
	})
}

func (s *Server) resetPatternHandler(c *gin.Context) {
	addr := validation.SanitizeAddress(c.Param("address"))
	if err := s.patterns.Reset(c.Request.Context(), addr); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	logging.L(c.Request.Context()).Info("sender pattern reset", "address", addr)
	c.JSON(http.StatusOK, gin.H{"address": addr, "reset": true})
}

func (s *Server) auditHandler(c *gin.Context) {
	kind := audit.Kind(c.Param("kind"))
	switch kind {
	case audit.KindSuspicious, audit.KindBlocked, audit.KindAutoBlacklist, audit.KindDegraded:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_kind",
			"message": "kind must be one of suspicious, blocked, auto_blacklist, degraded",
		})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
			limit = 100
		}
	}

	records, err := s.auditor.Recent(c.Request.Context(), kind, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (s *Server) statsHandler(c *gin.Context) {
	stats, err := s.lists.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"lists":    stats,
		"realtime": s.hub.Stats(),
	})
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse is the /health payload
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = "unhealthy"
	} else {
		checks["store"] = "healthy"
	}

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["archive"] = "unhealthy"
		} else {
			checks["archive"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			// Requests still flow when the store is down; the engine fails
			// open with the emergency list enforced. Degraded, not dead.
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"signing", s.cfg.EnableRequestSigning,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// DB pool stats for Prometheus
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Close Redis connection
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		} else {
			s.logger.Info("redis connection closed")
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
