package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/granito/portfolio/internal/service"
)

const (
	defaultDailyWindow = 30
	maxDailyWindow     = 365
	defaultTopPages    = 10
)

// TrackVisits 记录命中跟踪路由的成功 GET 请求，记录失败只写日志，不影响响应。
func (a *API) TrackVisits() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		if !a.isTracked(c) {
			return
		}

		rc := a.requestContext(c)
		ctx := context.WithoutCancel(c.Request.Context())
		if err := a.visitors.Track(ctx, service.VisitInput{
			IP:        rc.IP,
			UserAgent: rc.UserAgent,
			Page:      rc.Path,
			Referrer:  rc.Referrer,
		}); err != nil {
			a.logger.Warn("[Visitors] track failed", "path", rc.Path, "error", err)
		}
	}
}

func (a *API) isTracked(c *gin.Context) bool {
	if _, ok := a.tracked[c.FullPath()]; ok {
		return true
	}
	_, ok := a.tracked[c.Request.URL.Path]
	return ok
}

// GetStats 返回访问统计快照；存储不可读时返回空快照。
func (a *API) GetStats(c *gin.Context) {
	stats, err := a.visitors.Stats(c.Request.Context())
	if err != nil {
		a.logger.Error("[Visitors] stats failed", "error", err)
	}
	c.JSON(http.StatusOK, stats)
}

// GetDailyStats 返回最近 N 天的稀疏按日计数。
func (a *API) GetDailyStats(c *gin.Context) {
	days := parsePositiveInt(c.Query("days"), defaultDailyWindow)
	if days > maxDailyWindow {
		days = maxDailyWindow
	}

	series, err := a.visitors.DailySeries(c.Request.Context(), days)
	if err != nil {
		a.logger.Error("[Visitors] daily series failed", "error", err)
		series = map[string]int{}
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "series": series})
}

func (a *API) GetHourlyStats(c *gin.Context) {
	hours, err := a.visitors.HourlyDistribution(c.Request.Context())
	if err != nil {
		a.logger.Error("[Visitors] hourly distribution failed", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"hours": hours})
}

func (a *API) GetPageStats(c *gin.Context) {
	limit := parsePositiveInt(c.Query("limit"), defaultTopPages)
	pages, err := a.visitors.TopPages(c.Request.Context(), limit)
	if err != nil {
		a.logger.Error("[Visitors] top pages failed", "error", err)
		pages = []service.PageCount{}
	}
	c.JSON(http.StatusOK, gin.H{"pages": pages})
}

type cleanupRequest struct {
	// Days 为空表示使用查询参数或默认保留期，0 表示只保留今天。
	Days *int `json:"days" form:"days"`
}

// CleanupVisitors 删除超出保留期的访问记录。
func (a *API) CleanupVisitors(c *gin.Context) {
	var req cleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBind(&req); err != nil {
			respondError(c, http.StatusBadRequest, "请求参数错误")
			return
		}
	}

	days := a.opts.RetentionDays
	switch {
	case req.Days != nil:
		days = *req.Days
	case c.Query("days") != "":
		num, err := strconv.Atoi(strings.TrimSpace(c.Query("days")))
		if err != nil {
			respondError(c, http.StatusBadRequest, "保留天数必须为整数")
			return
		}
		days = num
	}
	if days < 0 {
		respondError(c, http.StatusBadRequest, "保留天数不能为负数")
		return
	}

	removed, err := a.visitors.Cleanup(c.Request.Context(), days)
	if err != nil {
		a.logger.Error("[Visitors] cleanup failed", "error", err)
		respondError(c, http.StatusInternalServerError, "清理访问记录失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed, "retention_days": days})
}

// ExportVisitors 以 CSV 附件形式下载完整访问日志。
func (a *API) ExportVisitors(c *gin.Context) {
	var buf bytes.Buffer
	count, err := a.visitors.WriteCSV(c.Request.Context(), &buf)
	if err != nil {
		if errors.Is(err, service.ErrNoVisitorEvents) {
			respondError(c, http.StatusNotFound, "暂无访问记录")
			return
		}
		a.logger.Error("[Visitors] export failed", "error", err)
		respondError(c, http.StatusInternalServerError, "导出访问记录失败")
		return
	}

	filename := fmt.Sprintf("visitors-%s.csv", a.now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("X-Record-Count", fmt.Sprint(count))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
