package db

import (
	"encoding/json"
	"time"
)

const (
	// DayLayout 是按天聚合使用的日期格式。
	DayLayout = "2006-01-02"
	// DefaultPage 是缺省的访问路径。
	DefaultPage = "/"
)

// VisitorEvent 记录一次页面访问。
// Day 总是由 Timestamp 推导，读取时会重新计算，不信任磁盘上的值。
type VisitorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Page      string    `json:"page"`
	Referrer  string    `json:"referrer,omitempty"`
	Day       string    `json:"day"`
}

// DayOf 返回时间点对应的 UTC 日期字符串。
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// Normalize 统一时区并修正派生字段。
func (e VisitorEvent) Normalize() VisitorEvent {
	e.Timestamp = e.Timestamp.UTC()
	e.Day = DayOf(e.Timestamp)
	if e.Page == "" {
		e.Page = DefaultPage
	}
	return e
}

// UnmarshalJSON 兼容旧版日志：无时区的时间戳与 date 字段。
func (e *VisitorEvent) UnmarshalJSON(data []byte) error {
	type plain VisitorEvent
	var raw struct {
		plain
		Timestamp string `json:"timestamp"`
		Date      string `json:"date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	day := raw.Day
	if day == "" {
		day = raw.Date
	}
	ts, err := decodeTimestamp(raw.Timestamp, day)
	if err != nil {
		return err
	}

	*e = VisitorEvent(raw.plain)
	e.Timestamp = ts
	e.Day = day
	return nil
}
