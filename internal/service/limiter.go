// Package service 包含了应用的业务逻辑层。
package service

import "context"

// Limiter 是一个进程级的计数信号量，限制同时在途的模型调用数量，
// 以遵守上游服务的速率限制。超出上限的请求排队等待而不是失败。
type Limiter struct {
	tokens chan struct{}
}

// NewLimiter 创建一个容量为 n 的并发限制器。
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{tokens: make(chan struct{}, n)}
}

// Acquire 获取一个令牌，ctx 取消时放弃等待。
// 成功后必须配对调用 Release，任何退出路径都不能遗漏。
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release 归还一个令牌。
func (l *Limiter) Release() {
	<-l.tokens
}
