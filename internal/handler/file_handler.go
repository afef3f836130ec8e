package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/railsense/railsense/internal/filestore"
	"github.com/railsense/railsense/internal/pkg/errcode"
	"github.com/railsense/railsense/internal/pkg/response"
)

type FileHandler struct {
	store filestore.Store
}

func NewFileHandler(store filestore.Store) *FileHandler {
	return &FileHandler{store: store}
}

// Get streams a stored plot image.
func (h *FileHandler) Get(c *gin.Context) {
	key := c.Param("key")
	if key == "" || strings.Contains(key, "/") {
		response.Error(c, errcode.ErrInvalid, "invalid file key")
		return
	}
	reader, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		response.Error(c, errcode.ErrNotFound, "file not found")
		return
	}
	defer reader.Close()
	contentType := "application/octet-stream"
	if strings.HasSuffix(key, ".png") {
		contentType = "image/png"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}
