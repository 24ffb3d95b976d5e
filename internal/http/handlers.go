package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cpg-mentor/internal/apperr"
	"cpg-mentor/internal/logger"
	"cpg-mentor/pkg"
)

// TurnHandler runs one mentoring turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req pkg.TurnRequest) (*pkg.TurnResponse, error)
}

// ConversationManager reads and abandons stored conversations on behalf of
// their owner.
type ConversationManager interface {
	Get(ctx context.Context, userID, conversationID string) (*pkg.Conversation, error)
	Abandon(ctx context.Context, userID, conversationID string) (*pkg.Conversation, error)
}

// Server bundles together the dependencies required by HTTP handlers.
type Server struct {
	chat          TurnHandler
	conversations ConversationManager
	log           *logger.Logger
}

func NewServer(chat TurnHandler, conversations ConversationManager, log *logger.Logger) *Server {
	return &Server{
		chat:          chat,
		conversations: conversations,
		log:           log.With("handler", "Server"),
	}
}

// POST /api/chat
func (s *Server) Chat(c *gin.Context) {
	var req pkg.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apperr.Validation("invalid request body"))
		return
	}
	if err := requireUUID("caseId", req.CaseID); err != nil {
		RespondError(c, err)
		return
	}
	if err := requireUUID("userId", req.UserID); err != nil {
		RespondError(c, err)
		return
	}
	if req.ConversationID != "" {
		if err := requireUUID("conversationId", req.ConversationID); err != nil {
			RespondError(c, err)
			return
		}
	}

	resp, err := s.chat.HandleTurn(c.Request.Context(), req)
	if err != nil {
		if apperr.Status(err) >= http.StatusInternalServerError {
			s.log.Error("turn failed", "case_id", req.CaseID, "user_id", req.UserID, "error", err)
		}
		RespondError(c, err)
		return
	}
	RespondOK(c, resp)
}

// GET /api/conversations/:id?userId=
func (s *Server) GetConversation(c *gin.Context) {
	userID, id, err := conversationParams(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	conv, err := s.conversations.Get(c.Request.Context(), userID, id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, conv)
}

// DELETE /api/conversations/:id?userId=
// The record is kept and marked abandoned so it stays resumable.
func (s *Server) AbandonConversation(c *gin.Context) {
	userID, id, err := conversationParams(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	conv, err := s.conversations.Abandon(c.Request.Context(), userID, id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, conv)
}

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// RequestLogger logs one line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

func conversationParams(c *gin.Context) (string, string, error) {
	userID := c.Query("userId")
	id := c.Param("id")
	if err := requireUUID("userId", userID); err != nil {
		return "", "", err
	}
	if err := requireUUID("conversation id", id); err != nil {
		return "", "", err
	}
	return userID, id, nil
}

func requireUUID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.Validation(field + " is required")
	}
	if _, err := uuid.Parse(value); err != nil {
		return apperr.Validation(field + " must be a UUID")
	}
	return nil
}
