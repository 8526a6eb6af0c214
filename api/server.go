// Package api is the thin REST operations surface over the agent: book and
// history reads, runtime settings, the interactive scan flow, and manual
// open/close.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradepulse/logger"
	"tradepulse/manager"
	"tradepulse/scanner"
	"tradepulse/scheduler"
	"tradepulse/settings"
	"tradepulse/store"
	"tradepulse/trader"
	"tradepulse/types"
)

type Server struct {
	router     *gin.Engine
	store      *store.Store
	settings   *settings.Service
	trader     *trader.Trader
	manager    *manager.Manager
	scanner    *scanner.Scanner
	scheduler  *scheduler.Scheduler
	httpServer *http.Server
	port       int
	startedAt  time.Time
}

func NewServer(st *store.Store, svc *settings.Service, tr *trader.Trader,
	mgr *manager.Manager, sc *scanner.Scanner, sch *scheduler.Scheduler, port int) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router:    router,
		store:     st,
		settings:  svc,
		trader:    tr,
		manager:   mgr,
		scanner:   sc,
		scheduler: sch,
		port:      port,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/positions", s.handlePositions)
		api.POST("/positions/reconcile", s.handleReconcile)
		api.POST("/positions/reanalyze", s.handleReanalyze)
		api.GET("/history", s.handleHistory)
		api.GET("/events", s.handleEvents)

		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handleUpdateSettings)

		api.GET("/scanner/candidates", s.handleCandidates)
		api.POST("/scanner/scan", s.handleScan)
		api.POST("/scanner/analyze", s.handleAnalyze)
		api.POST("/scanner/confirm", s.handleConfirm)

		api.POST("/trade/open", s.handleOpen)
		api.POST("/trade/close", s.handleClose)

		api.GET("/presets", s.handleListPresets)
		api.POST("/presets", s.handleSavePreset)
		api.POST("/presets/apply", s.handleApplyPreset)
	}
}

// ok wraps a success payload in the response envelope.
func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": data})
}

// fail maps the error taxonomy onto HTTP status codes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrBadSymbol), errors.Is(err, types.ErrBadStopDistance),
		errors.Is(err, types.ErrInsufficientData):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotSupported), errors.Is(err, types.ErrInsufficientMargin):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"status": "error", "message": err.Error()})
}

func badRequest(c *gin.Context, format string, args ...any) {
	c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": fmt.Sprintf(format, args...)})
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	logger.Infof("🌐 API server starting at http://localhost%s", addr)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
