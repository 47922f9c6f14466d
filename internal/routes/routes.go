package route

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidesantangelo/yll/internal/handler"
	"github.com/davidesantangelo/yll/internal/middleware"
)

func SetupRouter(linkHandler *handler.LinkHandler, limiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ZapGinLogger(zap.L()))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.NoStoreMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api/v1")
	{
		// Rate limit only creation, before validation runs
		api.POST("/links", limiter.Middleware(), linkHandler.CreateLink)
		api.GET("/links/:code", linkHandler.GetLink)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/:code", linkHandler.Redirect)

	return r
}
