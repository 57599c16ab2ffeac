package routers

import (
	"storylab-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter(h *api.Handlers) *gin.Engine {
	r := gin.Default()

	r.GET("/health", api.Health)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
	}

	secured := r.Group("/", h.RequireAuth())
	{
		secured.GET("/projects", h.ListProjects)
		secured.POST("/projects", h.CreateProject)
		secured.GET("/projects/:project_id", h.GetProject)
		secured.PATCH("/projects/:project_id", h.UpdateProject)
		secured.DELETE("/projects/:project_id", h.DeleteProject)

		secured.GET("/screenplays", h.ListScreenplays)
		secured.POST("/screenplays", h.CreateScreenplay)
		secured.GET("/screenplays/:screenplay_id", h.GetScreenplay)
		secured.PATCH("/screenplays/:screenplay_id", h.UpdateScreenplay)
		secured.DELETE("/screenplays/:screenplay_id", h.DeleteScreenplay)

		ai := secured.Group("/ai")
		{
			ai.POST("/synopsis", h.GenerateSynopsis)
			ai.POST("/treatment", h.GenerateTreatment)
			ai.POST("/turning-points", h.GenerateTurningPoints)
			ai.POST("/character", h.GenerateCharacter)
			ai.POST("/location", h.GenerateLocation)
			ai.POST("/scene", h.GenerateScene)
			ai.POST("/dialogue/polish", h.PolishDialogue)
			ai.POST("/review", h.ReviewScript)
			ai.GET("/models", h.ListModels)
			ai.GET("/scene/stream", h.StreamScene)
		}

		secured.POST("/media/image", h.GenerateImage)
	}

	return r
}
