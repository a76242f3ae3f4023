package http

import (
	"errors"
	"net/http"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"
	"livesession/internal/core/services"
	"livesession/internal/infrastructure/middleware"
	"livesession/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHandler exposes the collaborator-service surface: session
// metadata, authoritative status, join tokens, and the completion
// trigger that the relay reacts to.
type SessionHandler struct {
	sessionService ports.SessionService
	authService    services.AuthService
	publisher      ports.RelayPublisher
	logger         *zap.SugaredLogger
}

func NewSessionHandler(
	sessionService ports.SessionService,
	authService services.AuthService,
	publisher ports.RelayPublisher,
	logger *zap.SugaredLogger,
) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		authService:    authService,
		publisher:      publisher,
		logger:         logger,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions/:id", h.GetSession)
		api.GET("/sessions/:id/status", h.GetStatus)
		api.POST("/sessions/:id/token", h.IssueJoinToken)
	}

	// Lifecycle mutations require a valid join token.
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(h.authService))
	{
		protected.POST("/sessions/:id/complete", h.CompleteSession)
		protected.POST("/sessions/:id/cancel", h.CancelSession)
	}
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req struct {
		Initiator string `json:"initiator" binding:"required"`
		Responder string `json:"responder" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateUserID(req.Initiator); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateUserID(req.Responder); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessionService.CreateSession(
		c.Request.Context(),
		domain.ParticipantID(req.Initiator),
		domain.ParticipantID(req.Responder),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := domain.SessionID(c.Param("id"))

	session, err := h.sessionService.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) GetStatus(c *gin.Context) {
	sessionID := domain.SessionID(c.Param("id"))

	status, err := h.sessionService.GetStatus(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": status})
}

// IssueJoinToken mints a relay join token for one of the session's two
// slots. Identity verification happens upstream; this only binds a
// known slot to a token.
func (h *SessionHandler) IssueJoinToken(c *gin.Context) {
	sessionID := domain.SessionID(c.Param("id"))

	var req struct {
		UserID      string `json:"user_id" binding:"required"`
		DisplayName string `json:"display_name" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessionService.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	role, ok := session.RoleOf(domain.ParticipantID(req.UserID))
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "user is not assigned to this session"})
		return
	}

	token, err := h.authService.GenerateJoinToken(sessionID, domain.ParticipantID(req.UserID), req.DisplayName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "role": role})
}

// CompleteSession marks the session completed and injects the
// session-completed event into the relay room, which is what the
// responder's lifecycle controller waits on.
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	sessionID := domain.SessionID(c.Param("id"))

	session, err := h.sessionService.CompleteSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.publisher != nil {
		ev, _ := domain.NewEvent(domain.EventSessionCompleted, domain.SessionCompletedPayload{
			Status: session.Status,
		})
		if err := h.publisher.Publish(c.Request.Context(), sessionID, ev); err != nil {
			h.logger.Warnw("failed to publish session-completed",
				"session_id", sessionID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *SessionHandler) CancelSession(c *gin.Context) {
	sessionID := domain.SessionID(c.Param("id"))

	if err := h.sessionService.CancelSession(c.Request.Context(), sessionID); err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, domain.ErrSessionEnded):
			c.JSON(http.StatusConflict, gin.H{"error": "session already completed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}
