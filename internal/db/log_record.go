package db

import "time"

// LogRecord 是有序日志在 SQLite 中的一行，Payload 保存序列化后的记录。
type LogRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Log       string `gorm:"size:64;not null;uniqueIndex:idx_log_seq"`
	Seq       uint64 `gorm:"not null;uniqueIndex:idx_log_seq"`
	Payload   []byte `gorm:"not null"`
	CreatedAt time.Time
}

// TableName 指定自定义表名。
func (LogRecord) TableName() string {
	return "log_records"
}
