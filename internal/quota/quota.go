// Package quota tracks how many cloud completions have been spent.
package quota

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"docqa/internal/util"
)

const CloudLimit = 5

// Counter is the usage store the orchestrator reads before and bumps after a
// successful cloud turn.
type Counter interface {
	Used(ctx context.Context) (int, error)
	Increment(ctx context.Context) (int, error)
}

// Remaining reports limit minus used, never below zero.
func Remaining(ctx context.Context, c Counter, limit int) (int, error) {
	used, err := c.Used(ctx)
	if err != nil {
		return 0, err
	}
	if used >= limit {
		return 0, nil
	}
	return limit - used, nil
}

func Exhausted(ctx context.Context, c Counter, limit int) (bool, error) {
	n, err := Remaining(ctx, c, limit)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

type MemoryCounter struct {
	mu   sync.Mutex
	used int
}

func NewMemoryCounter(used int) *MemoryCounter {
	return &MemoryCounter{used: used}
}

func (m *MemoryCounter) Used(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used, nil
}

func (m *MemoryCounter) Increment(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used++
	return m.used, nil
}

// FileCounter persists usage as a small JSON document.
type FileCounter struct {
	mu   sync.Mutex
	path string
}

type fileState struct {
	Used      int       `json:"used"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewFileCounter(dir string) (*FileCounter, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("quota dir: %w", err)
	}
	return &FileCounter{path: filepath.Join(dir, "cloud_usage.json")}, nil
}

func (f *FileCounter) Used(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.load()
	return st.Used, err
}

func (f *FileCounter) Increment(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.load()
	if err != nil {
		return 0, err
	}
	st.Used++
	st.UpdatedAt = time.Now().UTC()
	if err := util.WriteJSONAtomic(f.path, st); err != nil {
		return 0, fmt.Errorf("save quota: %w", err)
	}
	return st.Used, nil
}

func (f *FileCounter) load() (fileState, error) {
	var st fileState
	if _, err := util.ReadJSON(f.path, &st); err != nil {
		return fileState{}, fmt.Errorf("load quota: %w", err)
	}
	return st, nil
}
