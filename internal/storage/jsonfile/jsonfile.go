// Package jsonfile 把有序日志保存为单个 JSON 数组文件。
// 写入先落到同目录临时文件，fsync 后 rename 覆盖，读者只会看到完整的旧文件或新文件。
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/granito/portfolio/internal/db"
	"github.com/granito/portfolio/internal/storage"
)

// Log 是基于 JSON 文件的 storage.Log 实现。
type Log[T any] struct {
	path string
}

// New 创建指向 path 的日志，文件无需预先存在。
func New[T any](path string) *Log[T] {
	return &Log[T]{path: path}
}

// Path 返回底层文件路径。
func (l *Log[T]) Path() string {
	return l.path
}

// Load 读取文件内容。文件不存在或为空时返回空集合。
func (l *Log[T]) Load() ([]T, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}
	if len(raw) == 0 {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, l.path, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Replace 以原子方式覆盖文件。
func (l *Log[T]) Replace(items []T) error {
	if items == nil {
		items = []T{}
	}
	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", l.path, err)
	}
	return WriteFileAtomic(l.path, payload)
}

// WriteFileAtomic 通过临时文件加 rename 的方式写入 path。
func WriteFileAtomic(path string, data []byte) error {
	if err := db.EnsureParentDir(path); err != nil {
		return fmt.Errorf("prepare dir for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	committed = true
	return nil
}
