package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/docprov-backend/internal/http/handlers"
	httpMW "github.com/yungbote/docprov-backend/internal/http/middleware"
	"github.com/yungbote/docprov-backend/internal/observability"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	// ServiceName names the server spans; empty disables otelgin.
	ServiceName string

	DocumentHandler   *httpH.DocumentHandler
	ProcessingHandler *httpH.ProcessingHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Documents and versions
		if h := cfg.DocumentHandler; h != nil {
			api.POST("/documents", h.CreateDocument)
			api.GET("/documents/:id", h.GetDocument)
			api.GET("/documents/:id/family", h.ListFamily)
			api.DELETE("/documents/:id/family", h.PurgeFamily)
			api.GET("/documents/:id/latest", h.LatestVersion)
			api.GET("/documents/:id/history", h.VersionHistory)
			api.POST("/documents/:id/versions", h.CreateVersion)
			api.POST("/documents/:id/experiment-version", h.ExperimentVersion)
			api.GET("/documents/:id/groups", h.ListGroups)
			api.GET("/documents/:id/processing", h.AvailableProcessing)
			api.GET("/documents/:id/recommendations", h.Recommendations)
			api.GET("/documents/:id/provenance", h.ExportProvenance)
			api.GET("/groups/:id/artifacts", h.ListArtifacts)

			api.POST("/composites", h.CreateComposite)
			api.POST("/composites/:id/refresh", h.RefreshComposite)

			api.POST("/experiments", h.CreateExperiment)
			api.DELETE("/experiments/:id/documents/:document_id", h.UnlinkExperiment)
		}

		// Processing
		if h := cfg.ProcessingHandler; h != nil {
			api.POST("/processing/run", h.Run)
			api.POST("/processing/start", h.Start)
			api.POST("/groups/:id/running", h.MarkRunning)
			api.POST("/groups/:id/complete", h.Complete)
			api.POST("/groups/:id/fail", h.Fail)
		}
	}

	return r
}
