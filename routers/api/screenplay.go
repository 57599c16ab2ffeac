package api

import (
	"errors"
	"net/http"

	"storylab-server/models"

	"github.com/gin-gonic/gin"
)

type screenplayCreateRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	Title     string `json:"title" binding:"required"`
	Logline   string `json:"logline"`
}

func (h *Handlers) CreateScreenplay(c *gin.Context) {
	var req screenplayCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	// The project must exist and belong to the caller; a foreign project is
	// reported the same as a missing one.
	if _, err := models.GetProjectOwned(h.DB, req.ProjectID, me.ID); err != nil {
		if errors.Is(err, models.ErrForbidden) {
			err = models.ErrNotFound
		}
		abortDomainError(c, err)
		return
	}
	sp, err := models.CreateScreenplay(h.DB, req.ProjectID, me.ID, req.Title, req.Logline)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sp)
}

func (h *Handlers) ListScreenplays(c *gin.Context) {
	me := currentUser(c)
	rows, err := models.ListScreenplays(h.DB, me.ID, c.Query("project_id"))
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handlers) GetScreenplay(c *gin.Context) {
	me := currentUser(c)
	sp, err := models.GetScreenplayOwned(h.DB, c.Param("screenplay_id"), me.ID)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, sp)
}

func (h *Handlers) UpdateScreenplay(c *gin.Context) {
	var upd models.ScreenplayUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if upd.State != nil && !models.ValidState(*upd.State) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown workflow state: " + *upd.State})
		return
	}
	if upd.Title != nil && *upd.Title == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "title must not be empty"})
		return
	}
	me := currentUser(c)
	sp, err := models.GetScreenplayOwned(h.DB, c.Param("screenplay_id"), me.ID)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	if err := models.UpdateScreenplay(h.DB, sp, upd); err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, sp)
}

func (h *Handlers) DeleteScreenplay(c *gin.Context) {
	me := currentUser(c)
	sp, err := models.GetScreenplayOwned(h.DB, c.Param("screenplay_id"), me.ID)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	if err := models.DeleteScreenplay(h.DB, sp.ID); err != nil {
		abortDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
