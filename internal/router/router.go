package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gradelab/scriptgrade-backend/internal/config"
	"github.com/gradelab/scriptgrade-backend/internal/handler"
	"github.com/gradelab/scriptgrade-backend/internal/middleware"
	"github.com/gradelab/scriptgrade-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Job        *handler.JobHandler
	Assessment *handler.AssessmentHandler
	Reference  *handler.ReferenceHandler
	System     *handler.SystemHandler
	WS         *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Serve uploaded pages statically with aggressive caching (1 year).
	// Scripts are immutable once stored under a UUID filename.
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for submission routes (30 uploads per minute per IP).
	uploadLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── Jobs ──────────────────────────────────────────────────────────
	jobs := router.Group("/api/v1/jobs")
	{
		jobs.POST("", uploadLimiter.Middleware(), handlers.Job.Submit)
		jobs.GET("", handlers.Job.List)
		jobs.GET("/:id", handlers.Job.Get)
		jobs.DELETE("/:id", handlers.Job.Delete)
		jobs.GET("/:id/report", handlers.Job.DownloadReport)

		// Recomputation entry points.
		jobs.POST("/:id/regrade", handlers.Assessment.Regrade)
		jobs.POST("/:id/review", handlers.Assessment.Review)
		jobs.POST("/:id/render", handlers.Assessment.Render)
	}

	// ─── References ────────────────────────────────────────────────────
	refs := router.Group("/api/v1/references")
	{
		refs.POST("", uploadLimiter.Middleware(), handlers.Reference.Create)
		refs.GET("", handlers.Reference.List)
		refs.GET("/:id", handlers.Reference.Get)
		refs.DELETE("/:id", handlers.Reference.Delete)
		refs.POST("/:id/process", handlers.Reference.Process)
		refs.POST("/:id/activate", handlers.Reference.Activate)
		refs.POST("/:id/deactivate", handlers.Reference.Deactivate)
	}

	// ─── System ────────────────────────────────────────────────────────
	router.GET("/api/v1/system/metrics", handlers.System.SystemMetricsSSE)

	// ─── WebSocket ─────────────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/jobs/:id/progress", handlers.WS.JobProgressStream)
	}

	return router
}
