package controller

import (
	"net/http"

	"github/itish2003/agriqa/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	AppName   string
	UploadDir string
	Auth      *AuthMiddleware
	AskLimit  *UserRateLimiter
	Knowledge *KnowledgeController
	QA        *QAController
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(log *logger.Logger, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:   []string{HeaderNewToken},
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.AppName,
		})
	})
	if cfg.UploadDir != "" {
		router.Static("/uploads", cfg.UploadDir)
	}

	apiV1 := router.Group("/api/v1", cfg.Auth.RequireAuth())
	knowledge := apiV1.Group("/knowledge")
	{
		knowledge.POST("/documents/upload", cfg.Knowledge.Upload)
		knowledge.GET("/documents/search", cfg.Knowledge.Search)
		knowledge.GET("/documents", cfg.Knowledge.List)
		knowledge.PUT("/documents/:id", cfg.Knowledge.Update)
		knowledge.DELETE("/documents/:id", cfg.Knowledge.Delete)
		knowledge.POST("/documents/:id/reprocess", cfg.Knowledge.Reprocess)
		knowledge.GET("/documents/:id/vectors", cfg.Knowledge.Vectors)
		knowledge.POST("/categories", cfg.Knowledge.CreateCategory)
		knowledge.GET("/categories", cfg.Knowledge.Categories)
	}

	qa := apiV1.Group("/qa")
	{
		qa.POST("/ask", cfg.AskLimit.Middleware(), cfg.QA.Ask)
		qa.GET("/history", cfg.QA.History)
		qa.POST("/clear-context", cfg.QA.ClearContext)
	}
	return router
}
