package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"localchat/internal/service"
	"localchat/internal/stream"
)

const conversationHeader = "X-Conversation-ID"

// ChatHandler expone los turnos de chat y el historial de cada conversación.
type ChatHandler struct {
	logger   *zap.Logger
	chatServ *service.ChatService
}

func NewChatHandler(logger *zap.Logger, chatServ *service.ChatService) *ChatHandler {
	return &ChatHandler{
		logger:   logger,
		chatServ: chatServ,
	}
}

// PostMessage maneja POST /api/chat.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "access token required"})
		return
	}

	var req struct {
		ConversationID string `json:"conversation_id"`
		Message        string `json:"message"`
		Mode           string `json:"mode"`
		Stream         *bool  `json:"stream"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request"})
		return
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	streaming := req.Stream == nil || *req.Stream
	in := service.TurnInput{
		ConversationID: conversationID,
		UserID:         claims.UserID,
		Content:        req.Message,
		Mode:           req.Mode,
		Stream:         streaming,
	}
	c.Header(conversationHeader, conversationID)

	if !streaming {
		h.respondJSON(c, in)
		return
	}
	h.respondStream(c, in)
}

func (h *ChatHandler) respondJSON(c *gin.Context, in service.TurnInput) {
	res, err := h.chatServ.StartTurn(c.Request.Context(), in, nil)
	if err != nil {
		if status, msg, ok := turnRejection(err); ok {
			c.JSON(status, gin.H{"success": false, "message": msg})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"success":         false,
			"conversation_id": res.ConversationID,
			"message":         res.Message,
			"error":           publicTurnError(err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"conversation_id": res.ConversationID,
		"message":         res.Message,
	})
}

// respondStream envía cada fragmento como evento SSE. La desconexión del
// cliente cancela el contexto del request y con él el turno.
func (h *ChatHandler) respondStream(c *gin.Context, in service.TurnInput) {
	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	res, err := h.chatServ.StartTurn(c.Request.Context(), in, func(d stream.Delta) {
		begin()
		c.SSEvent("", stream.DeltaEvent(in.ConversationID, d))
		c.Writer.Flush()
	})
	if err != nil && !started {
		if status, msg, ok := turnRejection(err); ok {
			c.JSON(status, gin.H{"success": false, "message": msg})
			return
		}
	}

	begin()
	msg := res.Message
	final := stream.Event{Type: stream.EventDone, ConversationID: res.ConversationID, Message: &msg}
	if err != nil {
		final.Type = stream.EventError
		final.Error = publicTurnError(err)
	}
	c.SSEvent("", final)
	c.Writer.Flush()
}

// Cancel maneja POST /api/chat/:id/cancel.
func (h *ChatHandler) Cancel(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "access token required"})
		return
	}
	cancelled := h.chatServ.Cancel(claims.UserID, c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true, "cancelled": cancelled})
}

// History maneja GET /api/chat/:id/history.
func (h *ChatHandler) History(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "access token required"})
		return
	}
	msgs, err := h.chatServ.History(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrConversationNeeded) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			return
		}
		h.logger.Error("load history failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": msgs})
}

// ClearHistory maneja DELETE /api/chat/:id/history.
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "access token required"})
		return
	}
	if err := h.chatServ.ClearHistory(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		switch {
		case errors.Is(err, service.ErrConversationNeeded):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		case errors.Is(err, service.ErrTurnInProgress):
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": err.Error()})
		default:
			h.logger.Error("clear history failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not clear history"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "history cleared"})
}

// turnRejection traduce los errores previos al turno (nada se ejecutó).
func turnRejection(err error) (int, string, bool) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage), errors.Is(err, service.ErrInvalidMode):
		return http.StatusBadRequest, err.Error(), true
	case errors.Is(err, service.ErrTurnInProgress):
		return http.StatusConflict, err.Error(), true
	case errors.Is(err, service.ErrChatNotConfigured):
		return http.StatusServiceUnavailable, err.Error(), true
	case !errors.Is(err, service.ErrTurnFailed):
		return http.StatusInternalServerError, "could not start chat turn", true
	}
	return 0, "", false
}

func publicTurnError(err error) string {
	if errors.Is(err, service.ErrRetrievalDisabled) {
		return service.ErrRetrievalDisabled.Error()
	}
	return "the answer could not be generated"
}
