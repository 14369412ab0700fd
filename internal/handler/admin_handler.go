package handler

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/granito/portfolio/internal/db"
	"github.com/granito/portfolio/internal/service"
)

const (
	sessionAdminKey    = "admin_user"
	dashboardTopPages  = 10
	dashboardDailyDays = 30
)

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login 校验管理员凭据并写入会话。
func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误")
		return
	}

	if err := a.auth.Verify(req.Username, req.Password); err != nil {
		if errors.Is(err, service.ErrAdminDisabled) {
			respondError(c, http.StatusServiceUnavailable, "管理后台未启用")
			return
		}
		respondError(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	session := sessions.Default(c)
	session.Set(sessionAdminKey, req.Username)
	if err := session.Save(); err != nil {
		a.logger.Error("[Admin] save session failed", "error", err)
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "username": req.Username})
}

// Logout 清除管理员会话。
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		a.logger.Warn("[Admin] clear session failed", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AuthRequired 拦截未登录的管理请求。
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if user, ok := session.Get(sessionAdminKey).(string); !ok || user == "" {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ShowDashboard 汇总访问统计与留言概况。
func (a *API) ShowDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	session := sessions.Default(c)

	stats, err := a.visitors.Stats(ctx)
	if err != nil {
		a.logger.Error("[Admin] dashboard stats failed", "error", err)
	}
	daily, err := a.visitors.DailySeries(ctx, dashboardDailyDays)
	if err != nil {
		daily = map[string]int{}
	}
	hourly, _ := a.visitors.HourlyDistribution(ctx)
	topPages, err := a.visitors.TopPages(ctx, dashboardTopPages)
	if err != nil {
		topPages = []service.PageCount{}
	}
	weeklyUnique, _ := a.visitors.UniqueVisitors(ctx, 7)

	contacts, err := a.contacts.List(ctx)
	if err != nil {
		a.logger.Error("[Admin] dashboard contacts failed", "error", err)
	}
	unread := 0
	for _, msg := range contacts {
		if msg.Status == "" || msg.Status == db.ContactStatusNew {
			unread++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"username":      session.Get(sessionAdminKey),
		"stats":         stats,
		"daily":         daily,
		"hourly":        hourly,
		"top_pages":     topPages,
		"unique_week":   weeklyUnique,
		"contact_count": len(contacts),
		"unread_count":  unread,
	})
}
