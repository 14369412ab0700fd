package pebblestore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/granito/portfolio/internal/storage"
)

var logPrefix = []byte("log/")

// Log 是基于 Pebble 的 storage.Log 实现。
type Log[T any] struct {
	db   *DB
	name string
}

// NewLog 在 db 中创建名为 name 的日志。
func NewLog[T any](db *DB, name string) *Log[T] {
	return &Log[T]{db: db, name: name}
}

// keyPrefix 返回 log/{name}/
func keyPrefix(name string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(name)+1)
	k = append(k, logPrefix...)
	k = append(k, name...)
	k = append(k, '/')
	return k
}

// KeyEntry 构造带大端序号的记录键。
func KeyEntry(name string, seq uint64) []byte {
	k := keyPrefix(name)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(k, b[:]...)
}

func bounds(name string) ([]byte, []byte) {
	low := keyPrefix(name)
	hi := append([]byte(nil), low...)
	hi[len(hi)-1]++
	return low, hi
}

// Load 按序号顺序读取全部记录。
func (l *Log[T]) Load() ([]T, error) {
	low, hi := bounds(l.name)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return nil, fmt.Errorf("open %s iterator: %w", l.name, err)
	}
	defer iter.Close()

	items := make([]T, 0)
	for ok := iter.First(); ok; ok = iter.Next() {
		var item T
		if err := json.Unmarshal(iter.Value(), &item); err != nil {
			return nil, fmt.Errorf("%w: %s key %x: %v", storage.ErrCorrupt, l.name, iter.Key(), err)
		}
		items = append(items, item)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", l.name, err)
	}
	return items, nil
}

// Replace 删除旧范围并写入新记录，整个 batch 一次提交。
func (l *Log[T]) Replace(items []T) error {
	low, hi := bounds(l.name)

	b := l.db.NewBatch()
	defer b.Close()

	if err := b.DeleteRange(low, hi, nil); err != nil {
		return fmt.Errorf("clear %s: %w", l.name, err)
	}
	for i, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode %s record %d: %w", l.name, i, err)
		}
		if err := b.Set(KeyEntry(l.name, uint64(i+1)), payload, nil); err != nil {
			return fmt.Errorf("stage %s record %d: %w", l.name, i, err)
		}
	}

	if err := l.db.CommitBatch(b); err != nil {
		return fmt.Errorf("commit %s: %w", l.name, err)
	}
	return nil
}
