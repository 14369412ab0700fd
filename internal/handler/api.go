package handler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/granito/portfolio/internal/content"
	"github.com/granito/portfolio/internal/db"
	"github.com/granito/portfolio/internal/service"
)

type visitorProvider interface {
	Track(ctx context.Context, input service.VisitInput) error
	Stats(ctx context.Context) (service.VisitorStats, error)
	DailySeries(ctx context.Context, days int) (map[string]int, error)
	HourlyDistribution(ctx context.Context) ([]service.HourlyCount, error)
	TopPages(ctx context.Context, limit int) ([]service.PageCount, error)
	UniqueVisitors(ctx context.Context, days int) (int, error)
	Cleanup(ctx context.Context, retentionDays int) (int, error)
	WriteCSV(ctx context.Context, w io.Writer) (int, error)
}

type contactProvider interface {
	Submit(ctx context.Context, input service.ContactInput) (*db.ContactMessage, error)
	List(ctx context.Context) ([]db.ContactMessage, error)
	Delete(ctx context.Context, index int) error
	UpdateStatus(ctx context.Context, index int, status string) error
}

type adminAuthenticator interface {
	Verify(username, password string) error
}

// Options 是 handler 层的可调参数。
type Options struct {
	// TrackedPaths 是需要记录访问的路由（gin 路由模式或实际路径）。
	TrackedPaths []string
	// TrustProxyHeaders 为 true 时从 X-Forwarded-For / X-Real-IP 读取客户端 IP。
	TrustProxyHeaders bool
	// RetentionDays 是手动清理未指定天数时的默认保留期。
	RetentionDays int
	// Ping 用于健康检查，为空时视为存储可用。
	Ping func() error
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	visitors visitorProvider
	contacts contactProvider
	auth     adminAuthenticator
	site     *content.Site
	logger   *slog.Logger
	tracked  map[string]struct{}
	opts     Options
	now      func() time.Time
}

// NewAPI constructs a handler set with shared services.
func NewAPI(visitors visitorProvider, contacts contactProvider, auth adminAuthenticator, site *content.Site, logger *slog.Logger, opts Options) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if site == nil {
		site = &content.Site{Name: "Portfolio"}
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 90
	}

	tracked := make(map[string]struct{}, len(opts.TrackedPaths))
	for _, path := range opts.TrackedPaths {
		tracked[path] = struct{}{}
	}

	return &API{
		visitors: visitors,
		contacts: contacts,
		auth:     auth,
		site:     site,
		logger:   logger,
		tracked:  tracked,
		opts:     opts,
		now:      time.Now,
	}
}
