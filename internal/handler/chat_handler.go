package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/railsense/railsense/internal/pkg/errcode"
	"github.com/railsense/railsense/internal/pkg/response"
	"github.com/railsense/railsense/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Message == "" {
		response.Error(c, errcode.ErrInvalid, "message is required")
		return
	}
	reply, err := h.chat.Respond(c.Request.Context(), getSessionID(c), req.Message)
	if err != nil {
		handleError(c, err)
		return
	}
	data := gin.H{"reply": reply.Text}
	if reply.ImageKey != "" {
		data["image_url"] = "/api/v1/files/" + reply.ImageKey
	}
	response.Success(c, data)
}

func (h *ChatHandler) History(c *gin.Context) {
	turns, err := h.chat.History(c.Request.Context(), getSessionID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"turns": turns})
}
