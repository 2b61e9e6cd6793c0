package repository

import (
	"context"
	"sync"

	"tg-gemini-go/internal/model"
)

type memoryHistoryRepository struct {
	mu       sync.RWMutex
	data     map[int64][]model.Turn
	maxTurns int
}

// NewMemoryHistoryRepository 创建一个纯内存的 HistoryRepository。
// 不跨重启存活，仅用于测试与所有持久化后端都不可用时的最后兜底。
func NewMemoryHistoryRepository(maxTurns int) HistoryRepository {
	return &memoryHistoryRepository{
		data:     make(map[int64][]model.Turn),
		maxTurns: maxTurns,
	}
}

func (r *memoryHistoryRepository) Get(ctx context.Context, userID int64) ([]model.Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	turns, ok := r.data[userID]
	if !ok {
		return []model.Turn{}, nil
	}
	// 返回副本，避免调用方修改内部状态
	out := make([]model.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (r *memoryHistoryRepository) Save(ctx context.Context, userID int64, turns []model.Turn) error {
	turns = truncate(turns, r.maxTurns)
	stored := make([]model.Turn, len(turns))
	copy(stored, turns)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[userID] = stored
	return nil
}

func (r *memoryHistoryRepository) Clear(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, userID)
	return nil
}
