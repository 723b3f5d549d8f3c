// Package handler exposes the moderator's HTTP surface: transcript intake,
// status and state queries, plus an internal generation-free action bypass.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moderator-server/internal/action"
	"moderator-server/internal/orchestrator"
	"moderator-server/internal/state"
	sharedMiddleware "moderator-server/shared/middleware"
	"moderator-server/shared/models"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// TranscriptRequest is the speech-to-text intake payload.
type TranscriptRequest struct {
	Transcript string `json:"transcript" binding:"required"`
}

// StatusResponse reports what the moderator is doing right now.
type StatusResponse struct {
	Status           string `json:"status"` // idle | processing
	ProcessingEffect bool   `json:"processingEffect"`
	CurrentTurn      string `json:"currentTurn"`
	Phase            string `json:"phase"`
}

// ActionsRequest is the internal test bypass payload: a raw action batch that
// skips generation and goes straight to validation.
type ActionsRequest struct {
	Actions []action.Action `json:"actions" binding:"required"`
}

// ModeratorHandler обрабатывает HTTP запросы модератора.
type ModeratorHandler struct {
	orch          *orchestrator.Orchestrator
	store         *state.Store
	internalToken string
	logger        *zap.Logger
}

// NewModeratorHandler создает новый ModeratorHandler.
func NewModeratorHandler(orch *orchestrator.Orchestrator, store *state.Store, internalToken string, logger *zap.Logger) *ModeratorHandler {
	return &ModeratorHandler{
		orch:          orch,
		store:         store,
		internalToken: internalToken,
		logger:        logger.Named("ModeratorHandler"),
	}
}

// RegisterRoutes регистрирует маршруты модератора.
func (h *ModeratorHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/transcript", h.handleTranscript)
		api.GET("/status", h.getStatus)
		api.GET("/state", h.getState)
	}

	internal := r.Group("/internal", sharedMiddleware.InternalAuthMiddleware(h.internalToken, h.logger))
	{
		internal.POST("/actions", h.executeActions)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// handleTranscript accepts one recognized utterance. Processing is
// fire-and-forget: the caller gets 202 once the transcript is admitted, or 409
// if another one is still in flight.
func (h *ModeratorHandler) handleTranscript(c *gin.Context) {
	var req TranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid transcript request", zap.Error(err))
		c.JSON(http.StatusBadRequest, APIError{Message: "transcript is required"})
		return
	}

	// Advisory pre-check so the caller gets a clean 409; the atomic gate inside
	// HandleTranscript still decides admission for races.
	if h.orch.Busy() {
		c.JSON(http.StatusConflict, APIError{Message: "another transcript is already in flight"})
		return
	}

	// Detached context: the pipeline must outlive the HTTP request.
	go func(transcript string) {
		if err := h.orch.HandleTranscript(context.Background(), transcript); err != nil && !errors.Is(err, models.ErrBusy) {
			h.logger.Error("Transcript processing failed", zap.Error(err))
		}
	}(req.Transcript)

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *ModeratorHandler) getStatus(c *gin.Context) {
	doc := h.store.Snapshot()
	resp := StatusResponse{
		Status:           "idle",
		ProcessingEffect: h.orch.IsProcessingEffect(),
		CurrentTurn:      state.CurrentTurn(doc),
		Phase:            state.Phase(doc),
	}
	if h.orch.Busy() {
		resp.Status = "processing"
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ModeratorHandler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

// executeActions runs a raw action batch through validation and commit,
// bypassing generation. Internal use only (test harnesses).
func (h *ModeratorHandler) executeActions(c *gin.Context) {
	var req ActionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "actions array is required"})
		return
	}
	if len(req.Actions) == 0 {
		c.JSON(http.StatusBadRequest, APIError{Message: "actions array must not be empty"})
		return
	}

	if !h.orch.TestExecuteActions(req.Actions) {
		c.JSON(http.StatusUnprocessableEntity, APIError{Message: "action batch rejected by validation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}
