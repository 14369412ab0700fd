package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck 提供部署平台与监控系统使用的健康检查端点。
func (a *API) HealthCheck(c *gin.Context) {
	if a.opts.Ping != nil {
		if err := a.opts.Ping(); err != nil {
			a.logger.Warn("[Health] storage unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "error",
				"message": "storage unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"storage": "up",
	})
}
