package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/handler"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/middleware"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/config"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/logger"
	corsmiddleware "github.com/s22001503-hash/ouslpms-monorepo/pkg/middleware/cors"
	reqidmiddleware "github.com/s22001503-hash/ouslpms-monorepo/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, a *app, logr *zap.Logger) *gin.Engine {
	authHandler := handler.NewAuthHandler(a.auth)
	userHandler := handler.NewUserHandler(a.users)
	proposalHandler := handler.NewProposalHandler(a.proposals, a.policies)
	approvalHandler := handler.NewApprovalHandler(a.approvals)
	printHandler := handler.NewPrintHandler(a.prints)
	dashboardHandler := handler.NewDashboardHandler(a.dashboard, a.exports)
	metricsHandler := handler.NewMetricsHandler(a.metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics))
	r.MaxMultipartMemory = cfg.Upload.MaxFileSizeBytes

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/verify", authHandler.Verify)
	// signed token is the credential
	api.GET("/print/documents/:token", printHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(a.auth))

	secured.POST("/auth/change-password", authHandler.ChangePassword)
	secured.GET("/system-settings", proposalHandler.SystemSettings)

	printJobs := secured.Group("/print/jobs")
	printJobs.POST("", printHandler.Upload)
	printJobs.GET("", printHandler.List)
	printJobs.GET("/:id", printHandler.Get)
	printJobs.POST("/:id/cancel", printHandler.Cancel)
	printJobs.POST("/:id/execute", printHandler.Execute)
	printJobs.POST("/:id/share", printHandler.Share)
	printJobs.POST("/:id/escalate", approvalHandler.Escalate)

	approvalRequests := secured.Group("/approval-requests")
	approvalRequests.GET("", approvalHandler.ListMine)
	approvalRequests.GET("/:id", approvalHandler.Get)
	approvalRequests.PUT("/:id/justification", approvalHandler.Justify)
	approvalRequests.POST("/:id/submit", approvalHandler.Submit)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	adminOrSenior := middleware.RequireRoles(append([]models.UserRole{models.RoleAdmin}, models.SeniorApproverRoles...)...)
	senior := middleware.RequireSeniorApprover()

	users := secured.Group("/auth", adminOnly)
	users.GET("/users", userHandler.List)
	users.GET("/users/:epf", userHandler.Get)
	users.POST("/create-user", userHandler.Create)
	users.POST("/delete-user", userHandler.Delete)

	admin := secured.Group("/admin")
	admin.GET("/overview", adminOnly, dashboardHandler.AdminOverview)
	admin.GET("/system/metrics", adminOnly, metricsHandler.System)
	admin.GET("/current-policies", adminOrSenior, proposalHandler.CurrentPolicies)
	admin.POST("/propose-settings", adminOnly, proposalHandler.ProposeSettings)
	admin.POST("/propose-policy", adminOnly, proposalHandler.ProposePolicy)
	admin.POST("/request-removal-proposal", adminOnly, proposalHandler.RequestRemoval)
	admin.POST("/remove-special-policy", senior, proposalHandler.RemoveSpecialPolicy)
	admin.GET("/policy-proposals", adminOrSenior, proposalHandler.List)
	admin.GET("/policy-proposals/:id", adminOrSenior, proposalHandler.Get)
	secured.GET("/settings-requests", adminOrSenior, proposalHandler.SettingsRequests)

	vc := secured.Group("/vc", senior)
	vc.GET("/policy-proposals", proposalHandler.List)
	vc.POST("/policy-proposals/approve", proposalHandler.Approve)
	vc.POST("/policy-proposals/reject", proposalHandler.Reject)
	vc.GET("/approval-requests", approvalHandler.ListForDecider)
	vc.POST("/approval-requests/approve", approvalHandler.Approve)
	vc.POST("/approval-requests/reject", approvalHandler.Reject)

	dean := secured.Group("/dean", senior)
	dean.GET("/overview", dashboardHandler.DeanOverview)
	dean.GET("/reports", middleware.Audit(a.auditRepo, models.AuditActionReportExport, models.AuditResourceReport), dashboardHandler.Report)
	dean.GET("/notifications", dashboardHandler.Notifications)
	dean.POST("/settings/approve", proposalHandler.Approve)
	dean.POST("/settings/reject", proposalHandler.Reject)

	return r
}
