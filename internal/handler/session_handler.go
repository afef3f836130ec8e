package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/railsense/railsense/internal/pkg/errcode"
	"github.com/railsense/railsense/internal/pkg/jwt"
	"github.com/railsense/railsense/internal/pkg/response"
	"github.com/railsense/railsense/internal/service"
)

type SessionHandler struct {
	chat   *service.ChatService
	secret []byte
	ttl    time.Duration
}

func NewSessionHandler(chat *service.ChatService, secret []byte, ttl time.Duration) *SessionHandler {
	return &SessionHandler{chat: chat, secret: secret, ttl: ttl}
}

// Create opens an anonymous chat session and returns its bearer token.
func (h *SessionHandler) Create(c *gin.Context) {
	sessionID := h.chat.CreateSession(c.Request.Context())
	token, err := jwt.GenerateToken(sessionID, h.secret, h.ttl)
	if err != nil {
		response.Error(c, errcode.ErrInternal, "issue token")
		return
	}
	response.Success(c, gin.H{"token": token, "session_id": sessionID})
}
