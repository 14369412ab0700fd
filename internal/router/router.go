package router

import (
	"log/slog"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/granito/portfolio/internal/handler"
)

const sessionName = "portfolio_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(logger))

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 3600,
		HttpOnly: true,
	})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/healthz", api.HealthCheck)

	// 公开页面，命中的路由会被记录访问
	public := r.Group("")
	public.Use(api.TrackVisits())
	{
		public.GET("/", api.ShowHome)
		public.GET("/about", api.ShowAbout)
		public.GET("/projects", api.ShowProjects)
		public.GET("/blog", api.ShowBlog)
		public.GET("/blog/:id", api.ShowPost)
		public.GET("/contact", api.ShowContact)
		public.GET("/api/skills", api.GetSkills)
		public.POST("/contact", api.SubmitContact)
	}

	stats := r.Group("/api/stats")
	{
		stats.GET("", api.GetStats)
		stats.GET("/daily", api.GetDailyStats)
		stats.GET("/hourly", api.GetHourlyStats)
		stats.GET("/pages", api.GetPageStats)
	}

	// 后台管理路由
	admin := r.Group("/admin")
	{
		admin.POST("/login", api.Login)
		admin.GET("/logout", api.Logout)

		// 需要认证的后台路由
		auth := admin.Group("/api")
		auth.Use(handler.AuthRequired())
		{
			auth.GET("/dashboard", api.ShowDashboard)
			auth.GET("/contacts", api.ListContacts)
			auth.DELETE("/contacts/:index", api.DeleteContact)
			auth.PUT("/contacts/:index/status", api.UpdateContactStatus)
			auth.POST("/visitors/cleanup", api.CleanupVisitors)
			auth.GET("/visitors/export", api.ExportVisitors)
		}
	}

	return r
}
