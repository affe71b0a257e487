package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/school-results-api/internal/middleware"
	"github.com/noah-isme/school-results-api/internal/models"
)

// Handlers groups every HTTP handler mounted by the router. Exports may be nil when disabled.
type Handlers struct {
	Periods        *PeriodHandler
	Assessments    *AssessmentHandler
	Grades         *GradeHandler
	GradingSystems *GradingSystemHandler
	Results        *ResultHandler
	Exports        *ExportHandler
	Metrics        *MetricsHandler
}

// RouterConfig controls route mounting.
type RouterConfig struct {
	APIPrefix  string
	Auth       gin.HandlerFunc
	EnableDocs bool
}

var (
	admins = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}
	staff  = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher}
)

// RegisterRoutes mounts the API on r.
func RegisterRoutes(r *gin.Engine, h Handlers, cfg RouterConfig) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if h.Exports != nil {
		// Signed links carry their own authorisation.
		api.GET("/export/:token", h.Exports.Download)
	}

	secured := api.Group("")
	secured.Use(cfg.Auth)

	years := secured.Group("/academic-years")
	{
		years.GET("", h.Periods.ListYears)
		years.GET("/active", h.Periods.ActiveYear)
		years.GET("/:id", h.Periods.GetYear)
		years.POST("", middleware.RequireRoles(admins...), h.Periods.CreateYear)
		years.PUT("/:id", middleware.RequireRoles(admins...), h.Periods.UpdateYear)
		years.POST("/:id/end", middleware.RequireRoles(admins...), h.Periods.EndYear)
		years.DELETE("/:id", middleware.RequireRoles(admins...), h.Periods.DeleteYear)
	}

	terms := secured.Group("/academic-terms")
	{
		terms.GET("", h.Periods.ListTerms)
		terms.GET("/active", h.Periods.ActiveTerm)
		terms.GET("/:id", h.Periods.GetTerm)
		terms.POST("", middleware.RequireRoles(admins...), h.Periods.CreateTerm)
		terms.PUT("/:id", middleware.RequireRoles(admins...), h.Periods.UpdateTerm)
		terms.POST("/:id/end", middleware.RequireRoles(admins...), h.Periods.EndTerm)
		terms.DELETE("/:id", middleware.RequireRoles(admins...), h.Periods.DeleteTerm)
	}

	assessments := secured.Group("/assessments", middleware.RequireRoles(staff...))
	{
		assessments.GET("", h.Assessments.List)
		assessments.GET("/weights", h.Assessments.Weights)
		assessments.GET("/:id", h.Assessments.Get)
		assessments.POST("", h.Assessments.Create)
		assessments.PUT("/:id", h.Assessments.Update)
		assessments.DELETE("/:id", h.Assessments.Delete)
	}

	grades := secured.Group("/grades", middleware.RequireRoles(staff...))
	{
		grades.GET("", h.Grades.List)
		grades.POST("", h.Grades.Grade)
		grades.POST("/bulk", h.Grades.BulkGrade)
		grades.DELETE("/:id", h.Grades.Delete)
	}

	bands := secured.Group("/grading-systems")
	{
		bands.GET("", h.GradingSystems.List)
		bands.GET("/resolve", h.GradingSystems.Resolve)
		bands.GET("/:id", h.GradingSystems.Get)
		bands.POST("", middleware.RequireRoles(admins...), h.GradingSystems.Create)
		bands.PUT("/:id", middleware.RequireRoles(admins...), h.GradingSystems.Update)
		bands.DELETE("/:id", middleware.RequireRoles(admins...), h.GradingSystems.Delete)
	}

	results := secured.Group("/results")
	{
		results.GET("/sections/:id", middleware.RequireRoles(staff...), h.Results.Class)
		results.GET("/sections/:id/subjects/:subjectId", middleware.RequireRoles(staff...), h.Results.Subject)
		results.GET("/students/:id", middleware.RBAC(
			string(models.RoleSuperAdmin), string(models.RoleAdmin), string(models.RoleTeacher), middleware.Self,
		), h.Results.Student)
	}

	if h.Exports != nil {
		exports := secured.Group("/exports", middleware.RequireRoles(staff...))
		exports.POST("", h.Exports.Create)
		exports.GET("/:id", h.Exports.Status)
	}
}
