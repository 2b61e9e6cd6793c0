package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tg-gemini-go/internal/model"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS histories (
    user_id    INTEGER PRIMARY KEY,
    turns      BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);`

type sqliteHistoryRepository struct {
	db       *sql.DB
	maxTurns int
}

// NewSQLiteHistoryRepository 创建一个以本地 SQLite 为后端的 HistoryRepository。
// 这是 Redis 未配置或不可达时的落盘降级方案，保证历史跨进程重启存活。
func NewSQLiteHistoryRepository(db *sql.DB, maxTurns int) (HistoryRepository, error) {
	if _, err := db.Exec(historySchema); err != nil {
		return nil, fmt.Errorf("创建 histories 表失败: %w", err)
	}
	return &sqliteHistoryRepository{db: db, maxTurns: maxTurns}, nil
}

// Get 读取对话历史。无记录时返回空历史。
func (r *sqliteHistoryRepository) Get(ctx context.Context, userID int64) ([]model.Turn, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT turns FROM histories WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []model.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	var turns []model.Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return turns, nil
}

// Save 截断后整体覆盖写入该用户的历史。
func (r *sqliteHistoryRepository) Save(ctx context.Context, userID int64, turns []model.Turn) error {
	turns = truncate(turns, r.maxTurns)

	raw, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO histories (user_id, turns, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET turns = excluded.turns, updated_at = excluded.updated_at`,
		userID, raw, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// Clear 删除用户的全部历史，幂等。
func (r *sqliteHistoryRepository) Clear(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM histories WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}
