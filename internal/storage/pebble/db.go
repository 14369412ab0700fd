// Package pebblestore 在 Pebble 之上提供有序日志存储。
//
// 键布局（按字节序可排序）：
//
//	log/{name}/{seq_be8}
//
// Replace 用一个 batch 完成范围删除与重写，提交是原子的。
package pebblestore

import (
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode 决定写入的持久化策略。
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways 每次提交都同步 WAL。
	FsyncModeAlways
	// FsyncModeInterval 允许 Pebble 在间隔内合并 WAL 同步。
	FsyncModeInterval
)

// Options 配置 Pebble 存储。
type Options struct {
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
	// PebbleOptions 为空时使用默认值。
	PebbleOptions *pebble.Options
}

// DB 封装 Pebble 实例及其同步策略。
type DB struct {
	inner     *pebble.DB
	writeSync bool
}

// Open 打开或创建 Pebble 数据库。
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	switch opts.Fsync {
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		interval := opts.FsyncInterval
		po.WALMinSyncInterval = func() time.Duration { return interval }
	default:
		opts.Fsync = FsyncModeAlways
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}

	return &DB{inner: inner, writeSync: opts.Fsync == FsyncModeAlways}, nil
}

// Close 关闭数据库。
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// NewBatch 创建用于原子多键更新的 batch。
func (db *DB) NewBatch() *pebble.Batch {
	return db.inner.NewBatch()
}

// CommitBatch 按配置的同步策略提交 batch。
func (db *DB) CommitBatch(b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	opts := pebble.NoSync
	if db.writeSync {
		opts = pebble.Sync
	}
	return b.Commit(opts)
}

// NewIter 创建原始迭代器。
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return db.inner.NewIter(opts)
}
