package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/sma-admission-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-admission-api/internal/middleware"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/pkg/config"
	"github.com/noah-isme/sma-admission-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-admission-api/pkg/middleware/requestid"
)

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	cfg := a.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(a.Metrics, "/metrics"))
	r.Use(internalmiddleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(a.Metrics, a.DB)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	maxUpload := cfg.Blob.MaxUploadBytes
	admissionHandler := handler.NewAdmissionHandler(a.Admissions, maxUpload)
	studentHandler := handler.NewStudentHandler(a.Students)
	contentHandler := handler.NewContentHandler(a.Content, maxUpload)
	fileHandler := handler.NewFileHandler(a.Blobs)
	paymentHandler := handler.NewPaymentHandler(a.Admissions)
	assetHandler := handler.NewAssetHandler(a.Scheduler, a.Assets, a.Exports, cfg.Blob.OrphanGraceDelay)

	api := r.Group(cfg.APIPrefix)

	// Public surface.
	api.POST("/admission", admissionHandler.Submit)
	api.POST("/payments/notifications",
		internalmiddleware.NotificationToken(cfg.Payment.NotificationToken),
		paymentHandler.Notify)
	api.GET("/files/:id", fileHandler.Inline)
	api.GET("/files/download/:id", fileHandler.Download)

	reader := api.Group("/content")
	reader.Use(internalmiddleware.OptionalIdentity(a.Verifier))
	reader.GET("/type/:type", contentHandler.ListByType)
	reader.GET("/:id", contentHandler.Get)

	secured := api.Group("")
	secured.Use(internalmiddleware.Identity(a.Verifier))

	admins := secured.Group("")
	admins.Use(internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
	{
		admissions := admins.Group("/admission")
		admissions.GET("", admissionHandler.List)
		admissions.GET("/:id", admissionHandler.Get)
		admissions.POST("/:id/approve", admissionHandler.Approve)
		admissions.POST("/:id/reject", admissionHandler.Reject)

		students := admins.Group("/students")
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", studentHandler.Create)
		students.PUT("/:id", studentHandler.Update)
		students.DELETE("/:id", studentHandler.Delete)

		assets := admins.Group("/assets")
		assets.POST("/reconcile",
			internalmiddleware.Audit(a.Audit, models.AuditActionAssetReconcile, "assets"),
			assetHandler.Reconcile)
		assets.GET("/reconcile/latest", assetHandler.Latest)
	}

	editors := secured.Group("/content")
	editors.Use(internalmiddleware.RequireRoles(models.RoleEditor, models.RoleAdmin, models.RoleSuperAdmin))
	{
		editors.POST("", contentHandler.Create)
		editors.PUT("/:id", contentHandler.Update)
		editors.DELETE("/:id", contentHandler.Delete)
	}

	superAdmins := secured.Group("/assets")
	superAdmins.Use(internalmiddleware.RequireRoles(models.RoleSuperAdmin))
	superAdmins.POST("/orphans/cleanup", assetHandler.CleanupOrphans)

	return r
}
