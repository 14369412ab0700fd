package db

import (
	"fmt"
	"strings"
	"time"
)

// 旧版站点写入的时间戳没有时区（Python isoformat），按 UTC 解读。
var naiveTimestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp 解析 RFC 3339 时间戳，也接受不带时区的 ISO-8601 时间戳。
func ParseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveTimestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

// decodeTimestamp 优先使用 timestamp，缺失时退回到只有日期的 day 字段。
func decodeTimestamp(timestamp, day string) (time.Time, error) {
	if strings.TrimSpace(timestamp) != "" {
		return ParseTimestamp(timestamp)
	}
	if strings.TrimSpace(day) != "" {
		t, err := time.ParseInLocation(DayLayout, strings.TrimSpace(day), time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day %q", day)
		}
		return t, nil
	}
	return time.Time{}, nil
}
