package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/andresvega/loaderd/internal/api/handler"
	"github.com/andresvega/loaderd/internal/api/middleware"
	"github.com/andresvega/loaderd/internal/logger"
	"github.com/andresvega/loaderd/internal/pipeline"
	"github.com/andresvega/loaderd/internal/repository"
	"github.com/andresvega/loaderd/internal/scheduler"
	"github.com/andresvega/loaderd/internal/schema"
	"github.com/andresvega/loaderd/internal/session"
	"github.com/andresvega/loaderd/internal/storage"
	"github.com/andresvega/loaderd/internal/transform"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	DB       *gorm.DB
	Store    storage.ObjectStore
	Sessions *session.Store
	Schemas  *schema.Provider
	Registry *transform.Registry
	Records  *repository.LoadRecordRepository
	Sched    *scheduler.Scheduler
	Pipe     *pipeline.Pipeline
	Log      *logger.Logger
	Mode     string // debug, release, test
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps) *gin.Engine {
	switch deps.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Log))
	r.Use(middleware.CORS())

	healthHandler := handler.NewHealthHandler(deps.DB)
	uploadHandler := handler.NewUploadHandler(deps.Store, deps.Sessions)
	tableHandler := handler.NewTableHandler(deps.Schemas)
	loadHandler := handler.NewLoadHandler(deps.Sched, deps.Sessions)
	historyHandler := handler.NewHistoryHandler(deps.Records, deps.Pipe)
	transformationHandler := handler.NewTransformationHandler(deps.Registry)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Uploads
		v1.POST("/uploads", uploadHandler.Upload)

		// Target tables
		v1.GET("/tables/:table/columns", tableHandler.Columns)

		// Loads and jobs
		v1.POST("/loads", loadHandler.Submit)
		v1.GET("/jobs/:id", loadHandler.Status)
		v1.DELETE("/jobs/:id", loadHandler.Cancel)
		v1.GET("/queue", loadHandler.Queue)

		// Ledger
		v1.GET("/history", historyHandler.List)
		v1.GET("/history/stats", historyHandler.Stats)
		v1.GET("/history/:id", historyHandler.Get)
		v1.POST("/history/:id/rollback", historyHandler.Rollback)

		// Custom transformations
		v1.POST("/transformations", transformationHandler.Register)
		v1.GET("/transformations", transformationHandler.List)
		v1.POST("/transformations/validate", transformationHandler.Validate)
	}

	return r
}
