// Package storage 定义有序记录日志的持久化抽象。
//
// 所有后端都以整体快照的方式读写：Load 返回完整的有序集合，Replace 以一个原子单元
// 覆盖全部内容。失败的 Replace 不会留下半写入的状态。
package storage

import "errors"

// ErrCorrupt 表示持久化内容无法解析。调用方应当把它视为空日志。
var ErrCorrupt = errors.New("storage: corrupt log data")

// Log 是一个按插入顺序保存记录的集合。
type Log[T any] interface {
	// Load 返回全部记录；底层数据不存在时返回空集合和 nil。
	Load() ([]T, error)
	// Replace 原子地覆盖全部记录。
	Replace(items []T) error
}

// Names of the logs kept by the application.
const (
	VisitorsLog = "visitors"
	ContactsLog = "contacts"
)
