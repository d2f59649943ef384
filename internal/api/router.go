package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/api/handlers"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/api/middleware"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/config"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/services"
	"go.uber.org/zap"
)

func NewRouter(services *services.Services, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	// CORS
	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CorsOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.CorsOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		system := api.Group("/system")
		{
			systemHandler := handlers.NewSystemHandler(cfg, services, logger)
			system.GET("/info", systemHandler.Info)
			system.POST("/stop", systemHandler.Stop)
			api.GET("/videos/info", systemHandler.VideoInfo)
		}

		// Background jobs, one at a time
		jobs := api.Group("/jobs")
		{
			jobHandler := handlers.NewJobHandler(services, logger)
			jobs.POST("/process", jobHandler.Process)
			jobs.POST("/visualize", jobHandler.Visualize)
			jobs.POST("/publish", jobHandler.Publish)
			jobs.POST("/download", jobHandler.Download)
			jobs.POST("/join", jobHandler.Join)
			jobs.POST("/burn", jobHandler.Burn)
			jobs.GET("", jobHandler.List)
			jobs.GET("/:id", jobHandler.Get)
			jobs.DELETE("/:id", jobHandler.Delete)
			jobs.GET("/:id/ws", jobHandler.Stream)
		}

		subs := api.Group("/subtitles")
		{
			subtitleHandler := handlers.NewSubtitleHandler(services, logger)
			subs.POST("/merge", subtitleHandler.Merge)
			subs.POST("/style", subtitleHandler.Style)
		}

		captionHandler := handlers.NewCaptionHandler(services, logger)
		api.POST("/captions", captionHandler.Generate)

		outputs := api.Group("/outputs")
		{
			outputHandler := handlers.NewOutputHandler(services, logger)
			outputs.GET("/:name", outputHandler.Get)
			outputs.GET("/:name/*file", outputHandler.File)
		}
	}

	return router
}
