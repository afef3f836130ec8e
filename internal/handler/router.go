package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/railsense/railsense/internal/middleware"
	"github.com/railsense/railsense/internal/pkg/response"
)

type RouterDeps struct {
	Session       *SessionHandler
	Chat          *ChatHandler
	Files         *FileHandler
	Web           *WebHandler
	SessionSecret []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	api.GET("/ui", deps.Web.Index)
	api.POST("/session", deps.Session.Create)
	api.GET("/files/:key", deps.Files.Get)

	authGroup := api.Group("")
	authGroup.Use(middleware.SessionAuth(deps.SessionSecret))
	authGroup.POST("/chat", deps.Chat.Send)
	authGroup.GET("/chat/history", deps.Chat.History)
}
