package api

import (
	"net/http"

	"storylab-server/models"

	"github.com/gin-gonic/gin"
)

type projectCreateRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=128"`
	Description string `json:"description"`
}

func (h *Handlers) CreateProject(c *gin.Context) {
	var req projectCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := currentUser(c)
	p, err := models.CreateProject(h.DB, me.ID, req.Name, req.Description)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handlers) ListProjects(c *gin.Context) {
	me := currentUser(c)
	rows, err := models.ListProjects(h.DB, me.ID, c.Query("q"))
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handlers) GetProject(c *gin.Context) {
	me := currentUser(c)
	p, err := models.GetProjectOwned(h.DB, c.Param("project_id"), me.ID)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) UpdateProject(c *gin.Context) {
	var upd models.ProjectUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if upd.Name != nil && (len(*upd.Name) < 2 || len(*upd.Name) > 128) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "name must be 2-128 characters"})
		return
	}
	me := currentUser(c)
	p, err := models.GetProjectOwned(h.DB, c.Param("project_id"), me.ID)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	if err := models.UpdateProject(h.DB, p, upd); err != nil {
		abortDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) DeleteProject(c *gin.Context) {
	me := currentUser(c)
	p, err := models.GetProjectOwned(h.DB, c.Param("project_id"), me.ID)
	if err != nil {
		abortDomainError(c, err)
		return
	}
	if err := models.DeleteProject(h.DB, p.ID); err != nil {
		abortDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
