// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"

	"tg-gemini-go/internal/model"
)

// HistoryRepository 定义了按用户标识存取有界对话历史的操作接口。
//
// 约定：
//   - Get 在历史不存在时返回空切片而不是错误——无数据是正常情况。
//   - Save 在写入前把历史截断为最近 maxTurns 条（FIFO 淘汰最旧的）。
//   - Clear 是幂等的，清除不存在的历史同样成功。
//
// 一致性：假定同一用户同一时刻只有一个在途请求（由上层的按用户互斥锁保证），
// 存储层自身不对同键并发写做串行化。
type HistoryRepository interface {
	Get(ctx context.Context, userID int64) ([]model.Turn, error)
	Save(ctx context.Context, userID int64, turns []model.Turn) error
	Clear(ctx context.Context, userID int64) error
}

// truncate 返回最近 maxTurns 条，保持由旧到新的顺序。
func truncate(turns []model.Turn, maxTurns int) []model.Turn {
	if maxTurns > 0 && len(turns) > maxTurns {
		return turns[len(turns)-maxTurns:]
	}
	return turns
}
