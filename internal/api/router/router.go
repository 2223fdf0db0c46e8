package router

import (
	"github.com/cuongbtq/paper-processor/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)

	jobHandler := handler.NewJobHandler(deps)

	// POST /webhook/process-pdf - Queue a PDF for extraction
	r.POST("/webhook/process-pdf", jobHandler.ProcessPDF)

	// GET /status/:processing_id - Poll a job
	r.GET("/status/:processing_id", jobHandler.GetStatus)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// GET /api/v1/jobs - List jobs with filtering and pagination
		v1.GET("/jobs", jobHandler.ListJobs)
	}

	return r
}
