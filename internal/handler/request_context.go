package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// UnknownValue 是请求上下文缺失字段时使用的占位值。
const UnknownValue = "unknown"

// RequestContext 汇总一次请求中与访问记录相关的字段。
type RequestContext struct {
	IP        string
	UserAgent string
	Path      string
	Referrer  string
}

func (a *API) requestContext(c *gin.Context) RequestContext {
	return RequestContext{
		IP:        a.currentIP(c),
		UserAgent: currentUserAgent(c),
		Path:      currentPath(c),
		Referrer:  strings.TrimSpace(c.Request.Referer()),
	}
}

func (a *API) currentIP(c *gin.Context) string {
	if a.opts.TrustProxyHeaders {
		if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	if ip := strings.TrimSpace(c.RemoteIP()); ip != "" {
		return ip
	}
	return UnknownValue
}

func currentUserAgent(c *gin.Context) string {
	if ua := strings.TrimSpace(c.Request.UserAgent()); ua != "" {
		return ua
	}
	return UnknownValue
}

func currentPath(c *gin.Context) string {
	if path := c.Request.URL.Path; path != "" {
		return path
	}
	return "/"
}
