package handler

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/granito/portfolio/internal/content"
)

// ShowHome 返回首页数据，附带访问计数。
func (a *API) ShowHome(c *gin.Context) {
	stats, err := a.visitors.Stats(c.Request.Context())
	if err != nil {
		a.logger.Warn("[Visitors] stats for home failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"name":          a.site.Name,
		"author":        a.site.Author,
		"tagline":       a.site.Tagline,
		"featured":      a.site.FeaturedProjects(),
		"visitor_count": stats.Total,
		"today_count":   stats.Today,
	})
}

func (a *API) ShowAbout(c *gin.Context) {
	about, err := content.RenderMarkdown(a.site.About)
	if err != nil {
		a.logger.Warn("[Content] render about failed", "error", err)
		about = template.HTML(template.HTMLEscapeString(a.site.About))
	}

	c.JSON(http.StatusOK, gin.H{
		"name":      a.site.Name,
		"author":    a.site.Author,
		"aboutHtml": string(about),
		"skills":    a.site.Skills,
	})
}

func (a *API) ShowProjects(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"projects": a.site.Projects})
}

func (a *API) ShowBlog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"posts": a.site.Posts})
}

// ShowPost 返回单篇文章并渲染 Markdown 正文。
func (a *API) ShowPost(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid id")
		return
	}

	post, ok := a.site.FindPost(id)
	if !ok {
		respondError(c, http.StatusNotFound, "文章不存在")
		return
	}

	body, err := content.RenderMarkdown(post.Content)
	if err != nil {
		a.logger.Error("[Content] render post failed", "id", id, "error", err)
		respondError(c, http.StatusInternalServerError, "文章渲染失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"post": post, "contentHtml": string(body)})
}

func (a *API) GetSkills(c *gin.Context) {
	c.JSON(http.StatusOK, a.site.Skills)
}

func (a *API) ShowContact(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"author":  a.site.Author,
		"tagline": a.site.Tagline,
	})
}
