package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quantforge/internal/bar"
	"quantforge/internal/engine"
	"quantforge/internal/logging"
	"quantforge/internal/strategy"
)

// Server wraps a gin.Engine around an Orchestrator, the way
// api/tactics.go's Server wraps a store and exposes handle*
// methods bound to its routes.
type Server struct {
	router *gin.Engine
	orch   *engine.Orchestrator
	issuer *TokenIssuer
}

// Config bundles what the control API needs beyond the orchestrator
// itself: the HMAC secret backing issued tokens and the TOTP secret
// gating admin actions.
type Config struct {
	JWTSecret  []byte
	TOTPSecret string
	Issuer     string
}

// NewServer builds a Server with every route registered, ready for
// (*Server).Run.
func NewServer(orch *engine.Orchestrator, cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	issuer := NewTokenIssuer(cfg.JWTSecret, cfg.Issuer, 0)
	s := &Server{router: router, orch: orch, issuer: issuer}

	v1 := router.Group("/v1", authMiddleware(issuer))
	v1.GET("/status", s.handleStatus)
	v1.GET("/accounts/:id", s.handleQueryAccount)
	v1.POST("/strategies", s.handleRunStrategy)
	v1.DELETE("/strategies/:name", s.handleStopStrategy)

	admin := v1.Group("/", adminTOTPMiddleware(cfg.TOTPSecret))
	admin.POST("/engine/start", s.handleEngineStart)
	admin.POST("/engine/stop", s.handleEngineStop)

	return s
}

// Run starts the HTTP server, blocking until it exits or its listener
// fails.
func (s *Server) Run(addr string) error {
	logging.Infof("api: listening on %s", addr)
	return s.router.Run(addr)
}

// handleEngineStart handles engine.start().
func (s *Server) handleEngineStart(c *gin.Context) {
	if err := s.orch.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "engine started"})
}

// handleEngineStop handles engine.stop().
func (s *Server) handleEngineStop(c *gin.Context) {
	if err := s.orch.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "engine stopped"})
}

// runStrategyRequest is the JSON body for engine.run_strategy(name, cfg).
type runStrategyRequest struct {
	Name      string             `json:"name" binding:"required"`
	Type      string             `json:"type" binding:"required"`
	Symbol    string             `json:"symbol" binding:"required"`
	Timeframe string             `json:"timeframe" binding:"required"`
	Mode      string             `json:"mode"`
	Params    map[string]float64 `json:"params"`
}

// handleRunStrategy handles engine.run_strategy(name, cfg).
func (s *Server) handleRunStrategy(c *gin.Context) {
	var req runStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	cfg := strategy.Config{
		Name:      req.Name,
		Symbol:    req.Symbol,
		Timeframe: bar.Timeframe(req.Timeframe),
		Mode:      strategy.Mode(req.Mode),
		Params:    req.Params,
	}
	if err := s.orch.RunStrategy(req.Name, req.Type, cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "strategy running", "name": req.Name})
}

// handleStopStrategy handles engine.stop_strategy(name).
func (s *Server) handleStopStrategy(c *gin.Context) {
	name := c.Param("name")
	if err := s.orch.StopStrategy(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "strategy stopped", "name": name})
}

// handleStatus handles engine.status().
func (s *Server) handleStatus(c *gin.Context) {
	status := s.orch.Status()
	c.JSON(http.StatusOK, gin.H{
		"state":      status.State,
		"uptime_ms":  status.UptimeMs,
		"strategies": status.Strategies,
	})
}

// handleQueryAccount handles engine.query_account().
func (s *Server) handleQueryAccount(c *gin.Context) {
	account := c.Param("id")
	positions, err := s.orch.QueryAccount(account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "positions": positions})
}
