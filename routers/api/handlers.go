package api

import (
	"errors"
	"net/http"

	"storylab-server/auth"
	"storylab-server/models"
	"storylab-server/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handlers carries the collaborators every endpoint needs. Built once in
// main and handed to the router.
type Handlers struct {
	DB     *gorm.DB
	Tokens *auth.TokenIssuer
	Orch   *service.Orchestrator
	Ollama *service.OllamaClient
	Media  *service.MediaService
}

func New(db *gorm.DB, tokens *auth.TokenIssuer, orch *service.Orchestrator, ollama *service.OllamaClient, media *service.MediaService) *Handlers {
	return &Handlers{DB: db, Tokens: tokens, Orch: orch, Ollama: ollama, Media: media}
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// abortDomainError maps store errors to their status codes.
func abortDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, models.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// abortGenerationError additionally maps the generation-client taxonomy:
// shape failures return 502 together with the IALog for diagnosis, upstream
// terminal and exhausted-retry failures return 502.
func abortGenerationError(c *gin.Context, err error) {
	var shapeErr *service.ShapeError
	if errors.As(err, &shapeErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": shapeErr.Error(),
			"iaLog": shapeErr.Log,
		})
		return
	}
	var statusErr *service.StatusError
	if errors.As(err, &statusErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": statusErr.Error()})
		return
	}
	var genErr *service.GenerateError
	if errors.As(err, &genErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": genErr.Error()})
		return
	}
	abortDomainError(c, err)
}
