package api

import (
	"net/http"

	"storylab-server/service"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) GenerateSynopsis(c *gin.Context) {
	var req service.SynopsisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	synopsis, ia, err := h.Orch.GenerateSynopsis(c.Request.Context(), me.ID, req)
	if err != nil {
		abortGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synopsis": synopsis, "iaLog": ia})
}

func (h *Handlers) GenerateTreatment(c *gin.Context) {
	var req service.TreatmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	treatment, ia, err := h.Orch.GenerateTreatment(c.Request.Context(), me.ID, req)
	if err != nil {
		abortGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"treatment": treatment, "iaLog": ia})
}

func (h *Handlers) GenerateTurningPoints(c *gin.Context) {
	var req service.TurningPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	points, ia, err := h.Orch.GenerateTurningPoints(c.Request.Context(), me.ID, req)
	if err != nil {
		abortGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": points, "iaLog": ia})
}

func (h *Handlers) GenerateCharacter(c *gin.Context) {
	var req service.CharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	ch, ia, err := h.Orch.GenerateCharacter(c.Request.Context(), me.ID, req)
	if err != nil {
		abortGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       ch.ID,
		"name":     ch.Name,
		"bio":      ch.Bio,
		"goal":     ch.Goal,
		"conflict": ch.Conflict,
		"arc":      ch.Arc,
		"iaLog":    ia,
	})
}

func (h *Handlers) GenerateLocation(c *gin.Context) {
	var req service.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	loc, ia, err := h.Orch.GenerateLocation(c.Request.Context(), me.ID, req)
	if err != nil {
		abortGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      loc.ID,
		"name":    loc.Name,
		"details": loc.Details,
		"iaLog":   ia,
	})
}

func (h *Handlers) GenerateScene(c *gin.Context) {
	var req service.SceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	content, ia, err := h.Orch.GenerateScene(c.Request.Context(), me.ID, req)
	if err != nil {
		abortGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content, "iaLog": ia})
}

func (h *Handlers) PolishDialogue(c *gin.Context) {
	var req service.DialogueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	content, ia, err := h.Orch.PolishDialogue(c.Request.Context(), me.ID, req)
	if err != nil {
		abortGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content, "iaLog": ia})
}

func (h *Handlers) ReviewScript(c *gin.Context) {
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	report, ia, err := h.Orch.ReviewScript(c.Request.Context(), me.ID, req)
	if err != nil {
		abortGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "iaLog": ia})
}

// ListModels relays the generation service's model catalog.
func (h *Handlers) ListModels(c *gin.Context) {
	catalog, err := h.Ollama.ListModels(c.Request.Context())
	if err != nil {
		abortGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": catalog})
}
