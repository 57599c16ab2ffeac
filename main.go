package main

import (
	"log"

	"storylab-server/auth"
	"storylab-server/config"
	"storylab-server/models"
	"storylab-server/routers"
	"storylab-server/routers/api"
	"storylab-server/service"
)

func main() {
	config.InitConfig()
	cfg := config.AppConfig
	log.Println("server starting on port", cfg.Server.Port)

	models.InitDB()

	tokens := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Expiry())

	ollama := service.NewOllamaClient(cfg.AI)
	defer ollama.Close()

	orch := service.NewOrchestrator(models.GormDB, ollama, cfg.AI)

	// The object store is optional: without it the image endpoint answers 501.
	var store *service.ObjectStore
	if cfg.AI.ImagesBaseURL != "" {
		var err error
		store, err = service.NewObjectStore(cfg)
		if err != nil {
			log.Fatalf("object store init failed: %v", err)
		}
	}
	media := service.NewMediaService(models.GormDB, store, cfg.AI)

	h := api.New(models.GormDB, tokens, orch, ollama, media)
	r := routers.InitRouter(h)
	if err := r.Run(cfg.Server.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
