package api

import (
	"errors"
	"net/http"

	"storylab-server/service"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) GenerateImage(c *gin.Context) {
	var req service.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	url, err := h.Media.GenerateImage(c.Request.Context(), me.ID, req)
	if err != nil {
		if errors.Is(err, service.ErrNotConfigured) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
			return
		}
		abortGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
