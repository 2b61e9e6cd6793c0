// Package retry 提供了一个显式的指数退避重试策略。
package retry

import (
	"context"
	"time"
)

// Policy 描述一次可重试调用的完整策略：
// 最大尝试次数、退避区间以及"哪些错误值得重试"的判定函数。
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable 返回 true 时错误被视为瞬时错误，允许重试；
	// 为 nil 时所有错误都重试。
	Retryable func(error) bool
}

// Do 按策略执行 fn：失败且错误可重试时指数退避后再试，
// 直到成功、尝试次数耗尽、遇到不可重试错误或 ctx 被取消。
// 返回最后一次的错误。
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(p.nextDelay(&delay)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// nextDelay 返回本轮等待时长并把 delay 翻倍，封顶于 MaxDelay。
func (p Policy) nextDelay(delay *time.Duration) time.Duration {
	d := *delay
	if d < 0 {
		d = 0
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	*delay = d * 2
	return d
}
