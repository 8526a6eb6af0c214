package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradepulse/exchange"
	"tradepulse/logger"
	"tradepulse/settings"
	"tradepulse/types"
)

func (s *Server) handleHealth(c *gin.Context) {
	ok(c, gin.H{
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"live_trading":   s.settings.Bool(settings.KeyLiveTrading),
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.store.Position().All()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, positions)
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	records, err := s.store.History().Recent(limit)
	if err != nil {
		fail(c, err)
		return
	}
	total, err := s.store.History().TotalPnL()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"trades": records, "total_pnl": total})
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	events, err := s.store.Event().Recent(limit, c.Query("type"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, events)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	ok(c, s.settings.All())
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var changes map[string]string
	if err := c.ShouldBindJSON(&changes); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	if len(changes) == 0 {
		badRequest(c, "empty settings update")
		return
	}

	applied, err := s.settings.Update(changes)
	if err != nil {
		badRequest(c, "%v", err)
		return
	}
	s.scheduler.Reschedule(applied)
	ok(c, gin.H{"applied": applied})
}

func (s *Server) handleReconcile(c *gin.Context) {
	if err := s.manager.Reconcile(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	positions, err := s.store.Position().All()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, positions)
}

func (s *Server) handleReanalyze(c *gin.Context) {
	req, valid := bindSymbol(c)
	if !valid {
		return
	}
	rec, err := s.manager.Reanalyze(c.Request.Context(), req.Symbol)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"symbol": req.Symbol, "recommendation": rec})
}

func (s *Server) handleCandidates(c *gin.Context) {
	candidates, err := s.store.Candidate().All()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, candidates)
}

func (s *Server) handleScan(c *gin.Context) {
	candidates, err := s.scanner.ScanMarket(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, candidates)
}

type symbolRequest struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

func bindSymbol(c *gin.Context) (symbolRequest, bool) {
	var req symbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return req, false
	}
	if strings.TrimSpace(req.Symbol) == "" {
		badRequest(c, "symbol is required")
		return req, false
	}
	req.Symbol = exchange.Canon(req.Symbol)
	return req, true
}

func (s *Server) handleAnalyze(c *gin.Context) {
	req, valid := bindSymbol(c)
	if !valid {
		return
	}
	rec, analysis, err := s.scanner.AnalyzeCandidate(c.Request.Context(), req.Symbol)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{
		"symbol":         req.Symbol,
		"recommendation": rec,
		"analysis":       analysis,
	})
}

func (s *Server) handleConfirm(c *gin.Context) {
	req, valid := bindSymbol(c)
	if !valid {
		return
	}
	pos, err := s.scanner.ConfirmCandidate(c.Request.Context(), req.Symbol)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, pos)
}

func (s *Server) handleOpen(c *gin.Context) {
	req, valid := bindSymbol(c)
	if !valid {
		return
	}
	pos, err := s.scanner.OpenManual(c.Request.Context(), req.Symbol)
	if err != nil {
		fail(c, err)
		return
	}
	logger.Infof("🌐 Manual open via API: %s", req.Symbol)
	ok(c, pos)
}

func (s *Server) handleClose(c *gin.Context) {
	req, valid := bindSymbol(c)
	if !valid {
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "MANUAL_CLOSE"
	}
	pnl, err := s.trader.Close(c.Request.Context(), req.Symbol, reason, 0)
	if err != nil {
		fail(c, err)
		return
	}
	logger.Infof("🌐 Manual close via API: %s (%s)", req.Symbol, reason)
	ok(c, gin.H{"symbol": req.Symbol, "pnl": pnl})
}

func (s *Server) handleListPresets(c *gin.Context) {
	presets, err := s.store.Preset().List()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, presets)
}

type presetRequest struct {
	Name     string            `json:"name"`
	Settings map[string]string `json:"settings"`
}

// handleSavePreset snapshots either the supplied settings map or, when the
// map is empty, the current live settings under the given name.
func (s *Server) handleSavePreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(c, "name is required")
		return
	}

	body := req.Settings
	if len(body) == 0 {
		body = s.settings.All()
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.store.Preset().Save(req.Name, string(encoded)); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"name": req.Name, "keys": len(body)})
}

func (s *Server) handleApplyPreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(c, "name is required")
		return
	}

	body, err := s.store.Preset().Get(req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	if body == "" {
		fail(c, fmt.Errorf("unknown preset %s: %w", req.Name, types.ErrNotFound))
		return
	}

	var changes map[string]string
	if err := json.Unmarshal([]byte(body), &changes); err != nil {
		fail(c, err)
		return
	}
	applied, err := s.settings.Update(changes)
	if err != nil {
		badRequest(c, "%v", err)
		return
	}
	s.scheduler.Reschedule(applied)
	logger.Infof("⚙️ Preset %s applied (%d changes)", req.Name, len(applied))
	ok(c, gin.H{"name": req.Name, "applied": applied})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
