// Package sqlstore 把有序日志保存在 SQLite 的 log_records 表中。
package sqlstore

import (
	"encoding/json"
	"fmt"

	"github.com/granito/portfolio/internal/db"
	"github.com/granito/portfolio/internal/storage"
	"gorm.io/gorm"
)

const insertBatchSize = 500

// Log 是基于 gorm 的 storage.Log 实现，同一张表内以 name 区分不同日志。
type Log[T any] struct {
	db   *gorm.DB
	name string
}

// New 创建名为 name 的日志。
func New[T any](gdb *gorm.DB, name string) *Log[T] {
	return &Log[T]{db: gdb, name: name}
}

// Load 按 seq 升序读取全部记录。
func (l *Log[T]) Load() ([]T, error) {
	var rows []db.LogRecord
	if err := l.db.Where("log = ?", l.name).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load %s records: %w", l.name, err)
	}

	items := make([]T, 0, len(rows))
	for _, row := range rows {
		var item T
		if err := json.Unmarshal(row.Payload, &item); err != nil {
			return nil, fmt.Errorf("%w: %s seq %d: %v", storage.ErrCorrupt, l.name, row.Seq, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Replace 在一个事务中删除旧记录并写入新集合。
func (l *Log[T]) Replace(items []T) error {
	rows := make([]db.LogRecord, 0, len(items))
	for i, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode %s record %d: %w", l.name, i, err)
		}
		rows = append(rows, db.LogRecord{Log: l.name, Seq: uint64(i + 1), Payload: payload})
	}

	return l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("log = ?", l.name).Delete(&db.LogRecord{}).Error; err != nil {
			return fmt.Errorf("clear %s records: %w", l.name, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("insert %s records: %w", l.name, err)
		}
		return nil
	})
}
