package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/railsense/railsense/internal/web"
)

type WebHandler struct{}

func NewWebHandler() *WebHandler {
	return &WebHandler{}
}

// Index serves the embedded single-page chat UI.
func (h *WebHandler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}
