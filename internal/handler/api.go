package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"honeypot-agent/internal/models"
	"honeypot-agent/internal/repository"
	"honeypot-agent/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const slowConnectionReply = "Connection is a bit slow, hold on..."

// defaultSessionID is used when the payload carries no session identifier.
const defaultSessionID = "portal-session"

// ModelInfo reports the configured model backend for diagnostics.
type ModelInfo interface {
	GetModelInfo() map[string]interface{}
}

// Handler handles HTTP requests.
type Handler struct {
	engine *service.Engine
	repo   *repository.ReportRepository
	llm    ModelInfo
	apiKey string
	logger *zap.Logger
}

// NewHandler creates a new API handler. repo and llm may be nil when
// archiving or model diagnostics are disabled.
func NewHandler(engine *service.Engine, repo *repository.ReportRepository, llm ModelInfo, apiKey string, logger *zap.Logger) *Handler {
	return &Handler{
		engine: engine,
		repo:   repo,
		llm:    llm,
		apiKey: apiKey,
		logger: logger,
	}
}

// RegisterRoutes registers all API routes. The webhook is reachable on both
// "/" and "/webhook" so a portal misconfiguration still lands on the agent.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	for _, path := range []string{"/", "/webhook"} {
		r.GET(path, h.Alive)
		r.HEAD(path, h.Alive)
		r.POST(path, h.RequireAPIKey, h.HandleTurn)
	}

	r.GET("/final/:sessionId", h.RequireAPIKey, h.GetFinalReport)

	api := r.Group("/api/v1", h.RequireAPIKey)
	{
		api.GET("/reports/:sessionId", h.GetArchivedReports)
		api.GET("/reports/stats", h.GetReportStats)
	}

	r.GET("/health", h.HealthCheck)
}

// RequireAPIKey checks the shared secret. An empty configured key disables
// the check.
func (h *Handler) RequireAPIKey(c *gin.Context) {
	if h.apiKey == "" {
		return
	}
	if c.GetHeader("x-api-key") != h.apiKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
	}
}

// HandleTurn processes one inbound message. Malformed payloads are defaulted
// rather than rejected, and every path returns a reply.
func (h *Handler) HandleTurn(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic while processing turn", zap.Any("panic", r))
			c.JSON(http.StatusOK, models.AgentReply{Status: "success", Reply: slowConnectionReply})
		}
	}()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warn("Failed to read request body", zap.Error(err))
		c.JSON(http.StatusOK, models.AgentReply{Status: "success", Reply: slowConnectionReply})
		return
	}

	req := normalizePayload(body)
	reply := h.engine.ProcessTurn(c.Request.Context(), req)
	c.JSON(http.StatusOK, reply)
}

// GetFinalReport returns the most recent final report for a session.
func (h *Handler) GetFinalReport(c *gin.Context) {
	sessionID := c.Param("sessionId")

	report, ok := h.engine.FinalReport(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "final output not available"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetArchivedReports returns every archived report for a session.
func (h *Handler) GetArchivedReports(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "archive disabled"})
		return
	}

	reports, err := h.repo.GetReportsBySession(c.Param("sessionId"))
	if err != nil {
		h.logger.Error("Failed to get archived reports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get reports"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reports": reports,
		"total":   len(reports),
	})
}

// GetReportStats returns archive statistics.
func (h *Handler) GetReportStats(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "archive disabled"})
		return
	}

	stats, err := h.repo.GetStats()
	if err != nil {
		h.logger.Error("Failed to get report stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Alive answers portal health probes.
func (h *Handler) Alive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "alive",
		"service": "honeypot-agent",
	})
}

// HealthCheck returns service health and the configured model backend.
func (h *Handler) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": "honeypot-agent",
		"version": "1.0.0",
	}
	if h.llm != nil {
		resp["model"] = h.llm.GetModelInfo()
	}
	c.JSON(http.StatusOK, resp)
}

// normalizePayload turns whatever the portal sent into a well-formed request.
// Every top-level field is decoded on its own, so a malformed message or
// history element cannot abort the sibling fields. Missing sessionId,
// message, timestamp and history are defaulted, never rejected. Some testers
// send a bare {"text": "..."} body.
func normalizePayload(body []byte) *models.IncomingRequest {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(body, &fields)

	req := &models.IncomingRequest{
		SessionID:           defaultSessionID,
		ConversationHistory: []models.Message{},
	}

	if raw, ok := fields["sessionId"]; ok {
		var id string
		if json.Unmarshal(raw, &id) == nil && id != "" {
			req.SessionID = id
		}
	}

	if raw, ok := fields["conversationHistory"]; ok {
		var elems []json.RawMessage
		_ = json.Unmarshal(raw, &elems)
		for _, elem := range elems {
			var msg models.Message
			if json.Unmarshal(elem, &msg) == nil {
				req.ConversationHistory = append(req.ConversationHistory, msg)
			}
		}
	}

	if raw, ok := fields["message"]; ok {
		_ = json.Unmarshal(raw, &req.Message)
	}
	if req.Message.Text == "" {
		if raw, ok := fields["text"]; ok {
			_ = json.Unmarshal(raw, &req.Message.Text)
		}
	}
	if req.Message.Text == "" {
		req.Message.Text = "Hello"
	}
	if req.Message.Sender == "" {
		req.Message.Sender = models.SenderScammer
	}
	if req.Message.Timestamp.IsZero() {
		req.Message.Timestamp = time.Now().UTC()
	}

	return req
}
