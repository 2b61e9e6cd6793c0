package database

import (
	"context"
	"time"

	"tg-gemini-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。
// 与关系型数据库不同，历史存储把 Redis 视为可选后端：
// 连接失败时返回 error 而不是退出进程，由调用方降级到本地存储。
func InitRedis(addr, password string, db int) error {
	RDB = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		RDB = nil
		return err
	}

	log.Info("Redis client connected successfully")
	return nil
}
