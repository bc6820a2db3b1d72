// Package api exposes the coordinator's admin HTTP endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"autotrade-coordinator/internal/autotrade"
	"autotrade-coordinator/internal/domain"
	"autotrade-coordinator/internal/guard"
	"autotrade-coordinator/internal/logging"
	"autotrade-coordinator/internal/observability"
	"autotrade-coordinator/internal/poscache"
	"autotrade-coordinator/internal/storage"
)

// Options wires the server to the coordinator components.
// Decisions and Cache are optional; their routes answer 404 without them.
type Options struct {
	Agents     storage.AgentStore
	Guard      autotrade.MarketCapGuard
	Immediate  *autotrade.ImmediateTrigger
	Reconciler *autotrade.Reconciler
	Decisions  storage.DecisionLog
	Cache      *poscache.Cache
	Positions  PositionCloser
	Logger     logrus.FieldLogger
}

// PositionCloser closes a position and announces it. *poscache.WriteThroughStore satisfies it.
type PositionCloser interface {
	CloseWithSource(ctx context.Context, id string, closedAt int64, source domain.CloseSource) (*domain.PositionRecord, error)
}

// Server is the admin HTTP API.
type Server struct {
	router     *gin.Engine
	opts       Options
	log        logrus.FieldLogger
	startedAt  time.Time
	httpServer *http.Server
}

// NewServer creates the server and its routes.
func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		opts:      opts,
		log:       logging.OrDefault(opts.Logger).WithField("component", "api"),
		startedAt: time.Now(),
	}
	router.Use(s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(observability.Handler()))
	s.router.GET("/status", s.handleStatus)

	s.router.PUT("/agents/:id/autotrade", s.handleSaveAutoTrade)
	s.router.GET("/agents/:id/decisions", s.handleDecisions)
	s.router.DELETE("/agents/:id/positions", s.handlePurgeAgent)
	s.router.DELETE("/agents/:id/wallets/:address/positions", s.handlePurgeWallet)

	s.router.POST("/positions/:id/close", s.handleClosePosition)
	s.router.POST("/guard/evaluate", s.handleGuardEvaluate)
	s.router.POST("/reconcile/run", s.handleReconcileRun)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", addr).Info("admin API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status            string                 `json:"status"`
	Uptime            string                 `json:"uptime"`
	StartedAt         time.Time              `json:"startedAt"`
	ReconcileInterval string                 `json:"reconcileInterval,omitempty"`
	LastCycle         *autotrade.CycleReport `json:"lastCycle,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		StartedAt: s.startedAt,
	}
	if s.opts.Reconciler != nil {
		resp.ReconcileInterval = s.opts.Reconciler.Interval().String()
		resp.LastCycle = s.opts.Reconciler.LastReport()
	}
	c.JSON(http.StatusOK, resp)
}

// SaveAutoTradeRequest is the body of PUT /agents/:id/autotrade.
type SaveAutoTradeRequest struct {
	TradingMode domain.TradingMode     `json:"tradingMode"`
	AutoTrade   domain.AutoTradeConfig `json:"autoTrade"`
}

// SaveAutoTradeResponse reports the saved config and any immediate purchases.
type SaveAutoTradeResponse struct {
	Config   *domain.AgentTradingConfig `json:"config"`
	Outcomes []autotrade.TokenOutcome   `json:"outcomes"`
}

func (s *Server) handleSaveAutoTrade(c *gin.Context) {
	agentID := c.Param("id")
	ctx := c.Request.Context()

	var req SaveAutoTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	for _, tok := range req.AutoTrade.Tokens {
		if err := domain.ValidateTokenAddress(tok.Address); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token " + tok.Address + ": " + err.Error()})
			return
		}
		if tok.MarketCapMin != nil && tok.MarketCapMax != nil && *tok.MarketCapMin > *tok.MarketCapMax {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token " + tok.Address + ": marketCapMin exceeds marketCapMax"})
			return
		}
	}

	previous, err := s.opts.Agents.LoadAgentConfig(ctx, agentID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load config: " + err.Error()})
		return
	}

	saved := &domain.AgentTradingConfig{
		AgentID:     agentID,
		TradingMode: req.TradingMode,
		AutoTrade:   req.AutoTrade,
	}
	if saved.TradingMode == "" && previous != nil {
		saved.TradingMode = previous.TradingMode
	}
	if !saved.TradingMode.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tradingMode must be paper or live"})
		return
	}

	if err := s.opts.Agents.SaveAgentConfig(ctx, saved); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save config: " + err.Error()})
		return
	}

	resp := SaveAutoTradeResponse{Config: saved, Outcomes: []autotrade.TokenOutcome{}}
	if s.opts.Immediate != nil {
		if outs := s.opts.Immediate.OnConfigSaved(ctx, agentID, previous, saved); outs != nil {
			resp.Outcomes = outs
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GuardRequest is the body of POST /guard/evaluate.
type GuardRequest struct {
	TokenAddress string   `json:"tokenAddress" binding:"required"`
	MarketCapMin *float64 `json:"marketCapMin"`
	MarketCapMax *float64 `json:"marketCapMax"`
}

// GuardResponse is a guard verdict.
type GuardResponse struct {
	domain.GuardResult
	HasBounds bool `json:"hasBounds"`
}

func (s *Server) handleGuardEvaluate(c *gin.Context) {
	var req GuardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	bounds := domain.TokenMarketCapBounds{MarketCapMin: req.MarketCapMin, MarketCapMax: req.MarketCapMax}
	var result domain.GuardResult
	if s.opts.Guard != nil {
		result = s.opts.Guard.Evaluate(c.Request.Context(), req.TokenAddress, bounds)
	} else {
		result = guard.EvaluateAutoTradeMarketCapGuard(c.Request.Context(), req.TokenAddress, bounds)
	}

	c.JSON(http.StatusOK, GuardResponse{GuardResult: result, HasBounds: guard.HasBounds(bounds)})
}

func (s *Server) handleReconcileRun(c *gin.Context) {
	if s.opts.Reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciliation is not configured"})
		return
	}
	report := s.opts.Reconciler.RunCycle(c.Request.Context())
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleDecisions(c *gin.Context) {
	if s.opts.Decisions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "decision log is not configured"})
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	decisions, err := s.opts.Decisions.GetByAgent(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read decisions: " + err.Error()})
		return
	}
	if decisions == nil {
		decisions = []*domain.TriggerDecision{}
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

func (s *Server) handlePurgeAgent(c *gin.Context) {
	if s.opts.Cache == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "position cache is not configured"})
		return
	}

	deleted, err := s.opts.Cache.DeleteAllForAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purge agent: " + err.Error(), "deleted": deleted})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (s *Server) handlePurgeWallet(c *gin.Context) {
	if s.opts.Cache == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "position cache is not configured"})
		return
	}

	wallet := strings.TrimSpace(c.Param("address"))
	deleted, err := s.opts.Cache.DeleteAllForWallet(c.Request.Context(), c.Param("id"), wallet)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purge wallet: " + err.Error(), "deleted": deleted})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ClosePositionRequest is the optional body of POST /positions/:id/close.
type ClosePositionRequest struct {
	Source domain.CloseSource `json:"source"`
}

func (s *Server) handleClosePosition(c *gin.Context) {
	if s.opts.Positions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "position store is not configured"})
		return
	}

	var req ClosePositionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	switch req.Source {
	case "":
		req.Source = domain.CloseSourceManual
	case domain.CloseSourceStopLoss, domain.CloseSourceTakeProfit, domain.CloseSourceManual,
		domain.CloseSourceStrategyExit, domain.CloseSourceWalletReset:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown close source " + string(req.Source)})
		return
	}

	rec, err := s.opts.Positions.CloseWithSource(c.Request.Context(), c.Param("id"), time.Now().UnixMilli(), req.Source)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
		return
	case err != nil && rec == nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "close position: " + err.Error()})
		return
	case err != nil:
		// Closed, but listeners were not notified.
		s.log.WithField(logging.FieldPosition, rec.ID).WithError(err).Warn("position closed without event")
	}
	c.JSON(http.StatusOK, rec)
}
