package service

import (
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/granito/portfolio/internal/db"
	"github.com/granito/portfolio/internal/storage"
	"github.com/granito/portfolio/internal/storage/jsonfile"
)

const (
	// DefaultMaxVisitorEvents 是访问日志的默认容量上限。
	DefaultMaxVisitorEvents = 10000
	// RecentVisitorLimit 是统计快照中最近访问的条数。
	RecentVisitorLimit = 10
	maxUserAgentLength = 512
	maxPageLength      = 512
	maxReferrerLength  = 512
)

// ErrNoVisitorEvents 在导出空日志时返回。
var ErrNoVisitorEvents = errors.New("no visitor events to export")

// VisitInput 是调用方提供的访问上下文，时间戳由 VisitorTracker 生成。
type VisitInput struct {
	IP        string
	UserAgent string
	Page      string
	Referrer  string
}

// VisitorStats 是一次性从完整日志计算出的统计快照。
type VisitorStats struct {
	Total       int               `json:"total"`
	Today       int               `json:"today"`
	ThisWeek    int               `json:"this_week"`
	ThisMonth   int               `json:"this_month"`
	UniqueIPs   int               `json:"unique_ips"`
	UniqueToday int               `json:"unique_today"`
	Pages       map[string]int    `json:"pages"`
	Recent      []db.VisitorEvent `json:"recent"`
}

// PageCount 描述单个页面的访问次数。
type PageCount struct {
	Page  string `json:"page"`
	Count int    `json:"count"`
}

// HourlyCount 描述某个 UTC 小时内的访问次数。
type HourlyCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// VisitorTracker 维护有上限的访问日志。
// 所有写操作在同一把锁内完成读-改-写；读操作依赖后端提供完整快照，不加锁。
type VisitorTracker struct {
	mu        sync.Mutex
	log       storage.Log[db.VisitorEvent]
	maxEvents int
	now       func() time.Time
	logger    *slog.Logger
}

// NewVisitorTracker 创建 VisitorTracker，maxEvents<=0 时使用默认上限。
func NewVisitorTracker(log storage.Log[db.VisitorEvent], maxEvents int, logger *slog.Logger) *VisitorTracker {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxVisitorEvents
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VisitorTracker{
		log:       log,
		maxEvents: maxEvents,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock 替换时钟，便于测试固定"今天"。
func (t *VisitorTracker) WithClock(now func() time.Time) *VisitorTracker {
	if now == nil {
		return t
	}
	t.now = now
	return t
}

// MaxEvents 返回容量上限。
func (t *VisitorTracker) MaxEvents() int {
	return t.maxEvents
}

// load 读取日志；内容损坏时记录告警并按空日志处理。
func (t *VisitorTracker) load() ([]db.VisitorEvent, error) {
	events, err := t.log.Load()
	if err != nil {
		if errors.Is(err, storage.ErrCorrupt) {
			t.logger.Warn("[VisitorTracker] Corrupt visitor log, treating as empty", "error", err)
			return []db.VisitorEvent{}, nil
		}
		return nil, err
	}
	for i := range events {
		events[i] = events[i].Normalize()
	}
	return events, nil
}

// Track 追加一条访问记录，超出上限时从最旧的记录开始丢弃。
func (t *VisitorTracker) Track(ctx context.Context, input VisitInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := db.VisitorEvent{
		Timestamp: t.now().UTC(),
		IP:        strings.TrimSpace(input.IP),
		UserAgent: truncateRunes(strings.TrimSpace(input.UserAgent), maxUserAgentLength),
		Page:      truncateRunes(strings.TrimSpace(input.Page), maxPageLength),
		Referrer:  truncateRunes(strings.TrimSpace(input.Referrer), maxReferrerLength),
	}.Normalize()

	t.mu.Lock()
	defer t.mu.Unlock()

	events, err := t.load()
	if err != nil {
		return fmt.Errorf("track visitor: %w", err)
	}

	events = append(events, event)
	if overflow := len(events) - t.maxEvents; overflow > 0 {
		events = events[overflow:]
	}

	if err := t.log.Replace(events); err != nil {
		return fmt.Errorf("track visitor: %w", err)
	}
	return nil
}

// Events 返回当前日志的副本，按插入顺序排列。
func (t *VisitorTracker) Events(ctx context.Context) ([]db.VisitorEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.load()
}

// Stats 汇总访问统计。空日志返回全零快照。
func (t *VisitorTracker) Stats(ctx context.Context) (VisitorStats, error) {
	stats := VisitorStats{Pages: map[string]int{}, Recent: []db.VisitorEvent{}}

	events, err := t.Events(ctx)
	if err != nil {
		return stats, fmt.Errorf("visitor stats: %w", err)
	}

	today := t.today()
	weekAgo := dayOffset(today, -7)
	monthAgo := dayOffset(today, -30)

	ips := make(map[string]struct{})
	todayIPs := make(map[string]struct{})

	for _, event := range events {
		ips[event.IP] = struct{}{}
		stats.Pages[event.Page]++

		if event.Day == today {
			stats.Today++
			todayIPs[event.IP] = struct{}{}
		}
		if event.Day >= weekAgo {
			stats.ThisWeek++
		}
		if event.Day >= monthAgo {
			stats.ThisMonth++
		}
	}

	stats.Total = len(events)
	stats.UniqueIPs = len(ips)
	stats.UniqueToday = len(todayIPs)

	start := max(len(events)-RecentVisitorLimit, 0)
	for i := len(events) - 1; i >= start; i-- {
		stats.Recent = append(stats.Recent, events[i])
	}

	return stats, nil
}

// DailySeries 返回 [today-days, today] 内每天的访问量，没有访问的日期不出现在结果中。
func (t *VisitorTracker) DailySeries(ctx context.Context, days int) (map[string]int, error) {
	series := make(map[string]int)
	if days < 0 {
		days = 0
	}

	events, err := t.Events(ctx)
	if err != nil {
		return series, fmt.Errorf("daily series: %w", err)
	}

	today := t.today()
	start := dayOffset(today, -days)
	for _, event := range events {
		if event.Day >= start && event.Day <= today {
			series[event.Day]++
		}
	}
	return series, nil
}

// HourlyDistribution 按 UTC 小时统计全部访问，始终返回 0..23 共 24 个桶。
func (t *VisitorTracker) HourlyDistribution(ctx context.Context) ([]HourlyCount, error) {
	buckets := make([]HourlyCount, 24)
	for hour := range buckets {
		buckets[hour].Hour = hour
	}

	events, err := t.Events(ctx)
	if err != nil {
		return buckets, fmt.Errorf("hourly distribution: %w", err)
	}

	for _, event := range events {
		buckets[event.Timestamp.UTC().Hour()].Count++
	}
	return buckets, nil
}

// PageStats 返回各页面访问量，按次数降序、路径升序排列。
func (t *VisitorTracker) PageStats(ctx context.Context) ([]PageCount, error) {
	events, err := t.Events(ctx)
	if err != nil {
		return []PageCount{}, fmt.Errorf("page stats: %w", err)
	}

	counts := make(map[string]int)
	for _, event := range events {
		counts[event.Page]++
	}

	pages := make([]PageCount, 0, len(counts))
	for page, count := range counts {
		pages = append(pages, PageCount{Page: page, Count: count})
	}
	slices.SortFunc(pages, func(a, b PageCount) int {
		if diff := cmp.Compare(b.Count, a.Count); diff != 0 {
			return diff
		}
		return cmp.Compare(a.Page, b.Page)
	})
	return pages, nil
}

// TopPages 返回访问量最高的 limit 个页面，limit<=0 时默认为 10。
func (t *VisitorTracker) TopPages(ctx context.Context, limit int) ([]PageCount, error) {
	if limit <= 0 {
		limit = 10
	}
	pages, err := t.PageStats(ctx)
	if err != nil {
		return pages, err
	}
	if len(pages) > limit {
		pages = pages[:limit]
	}
	return pages, nil
}

// UniqueVisitors 统计最近 days 天内（按 day 过滤后）的不同 IP 数。
func (t *VisitorTracker) UniqueVisitors(ctx context.Context, days int) (int, error) {
	if days < 0 {
		days = 0
	}
	events, err := t.Events(ctx)
	if err != nil {
		return 0, fmt.Errorf("unique visitors: %w", err)
	}

	cutoff := dayOffset(t.today(), -days)
	ips := make(map[string]struct{})
	for _, event := range events {
		if event.Day >= cutoff {
			ips[event.IP] = struct{}{}
		}
	}
	return len(ips), nil
}

// Cleanup 删除 day 早于 today-retentionDays 的记录，返回删除条数。
func (t *VisitorTracker) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if retentionDays < 0 {
		retentionDays = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	events, err := t.load()
	if err != nil {
		return 0, fmt.Errorf("cleanup visitors: %w", err)
	}

	cutoff := dayOffset(t.today(), -retentionDays)
	kept := make([]db.VisitorEvent, 0, len(events))
	for _, event := range events {
		if event.Day >= cutoff {
			kept = append(kept, event)
		}
	}

	removed := len(events) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if err := t.log.Replace(kept); err != nil {
		return 0, fmt.Errorf("cleanup visitors: %w", err)
	}
	t.logger.Info("[VisitorTracker] Cleaned up old visitor records", "removed", removed, "retention_days", retentionDays)
	return removed, nil
}

var csvHeader = []string{"ip", "user_agent", "page", "timestamp", "day"}

// WriteCSV 以固定列顺序写出全部记录，日志为空时返回 ErrNoVisitorEvents。
func (t *VisitorTracker) WriteCSV(ctx context.Context, w io.Writer) (int, error) {
	events, err := t.Events(ctx)
	if err != nil {
		return 0, fmt.Errorf("export visitors: %w", err)
	}
	if len(events) == 0 {
		return 0, ErrNoVisitorEvents
	}
	if err := writeVisitorCSV(w, events); err != nil {
		return 0, fmt.Errorf("export visitors: %w", err)
	}
	return len(events), nil
}

// ExportCSV 把全部记录写入 path，写入失败时不会留下部分文件。
func (t *VisitorTracker) ExportCSV(ctx context.Context, path string) (int, error) {
	var buf strings.Builder
	count, err := t.WriteCSV(ctx, &buf)
	if err != nil {
		return 0, err
	}
	if err := jsonfile.WriteFileAtomic(path, []byte(buf.String())); err != nil {
		return 0, fmt.Errorf("export visitors: %w", err)
	}
	t.logger.Info("[VisitorTracker] Exported visitor records", "count", count, "path", path)
	return count, nil
}

func writeVisitorCSV(w io.Writer, events []db.VisitorEvent) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, event := range events {
		row := []string{
			event.IP,
			event.UserAgent,
			event.Page,
			event.Timestamp.UTC().Format(time.RFC3339Nano),
			event.Day,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (t *VisitorTracker) today() string {
	return db.DayOf(t.now())
}

// dayOffset 对 YYYY-MM-DD 做日期加减；日期字符串可直接按字典序比较。
func dayOffset(day string, delta int) string {
	parsed, err := time.Parse(db.DayLayout, day)
	if err != nil {
		return day
	}
	return parsed.AddDate(0, 0, delta).Format(db.DayLayout)
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}
