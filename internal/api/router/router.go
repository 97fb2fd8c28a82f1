package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"timetable/backend/config"
	"timetable/backend/internal/api/handler"
	"timetable/backend/internal/api/middleware"
	"timetable/backend/internal/dto"
	"timetable/backend/pkg/redis"
)

const icsImportPath = "/api/v1/import/ics"

// Setup 初始化并返回 Gin 路由引擎
// rdb 可为 nil，此时导入接口不限流
func Setup(cfg *config.Config, h *handler.Handler, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if err := dto.RegisterValidations(); err != nil {
		logger.Fatal("注册请求校验规则失败", zap.Error(err))
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes, map[string]int64{
		icsImportPath: cfg.Server.ImportBodyBytes,
	}))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 学期
		v1.GET("/term", h.Schedule.GetTerm)
		v1.PUT("/term", h.Schedule.UpdateTerm)
		v1.POST("/save", h.Schedule.Save)

		// 课程
		courses := v1.Group("/courses")
		{
			courses.GET("", h.Schedule.ListCourses)
			courses.POST("", h.Schedule.CreateCourse)
			courses.GET("/:id", h.Schedule.GetCourse)
			courses.PUT("/:id", h.Schedule.UpdateCourse)
			courses.PATCH("/:id", h.Schedule.EditCourse)
			courses.DELETE("/:id", h.Schedule.DeleteCourse)
		}

		// 时间模板
		templates := v1.Group("/templates")
		{
			templates.GET("", h.Schedule.ListTemplates)
			templates.POST("", h.Schedule.AddTemplate)
			templates.DELETE("/:id", h.Schedule.DeleteTemplate)
		}

		// 查询
		v1.GET("/cells", h.Schedule.GetCell)
		v1.GET("/weeks/:week", h.Schedule.GetWeekView)

		// DDL
		deadlines := v1.Group("/deadlines")
		{
			deadlines.GET("", h.Schedule.ListDeadlines)
			deadlines.POST("", h.Schedule.CreateDeadline)
			deadlines.DELETE("", h.Schedule.DeleteDeadline)
		}

		// 导入导出
		v1.POST("/import/ics",
			middleware.RateLimit(rdb, cfg.Server.ImportRateLimit, time.Minute, logger),
			h.Calendar.ImportICS)
		v1.GET("/export/ics", h.Calendar.ExportICS)
		v1.GET("/export/xlsx", h.Export.ExportSchedule)
	}

	return r
}
