package service

import (
	"context"
	"time"

	"tg-gemini-go/internal/config"
	"tg-gemini-go/internal/model"
	"tg-gemini-go/pkg/gemini"
	"tg-gemini-go/pkg/retry"
)

// ReplyService 定义了回复生成操作的接口。
type ReplyService interface {
	// Generate 以完整的有序轮次序列（已含最新用户轮与可选的检索上下文轮）
	// 调用模型，返回生成文本。瞬时失败内部按退避策略重试；
	// 终态失败（重试耗尽、安全拦截）原样返回给上层处理。
	Generate(ctx context.Context, turns []model.Turn) (string, error)
}

type replyService struct {
	client   gemini.Client
	limiter  *Limiter
	policy   retry.Policy
	maxTurns int
	timeout  time.Duration
}

// NewReplyService 创建一个新的 ReplyService 实例。
func NewReplyService(cfg config.ReplyConfig, client gemini.Client, limiter *Limiter, maxTurns int) ReplyService {
	return &replyService{
		client:  client,
		limiter: limiter,
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   time.Duration(cfg.BackoffBaseSec) * time.Second,
			MaxDelay:    time.Duration(cfg.BackoffMaxSec) * time.Second,
			Retryable:   gemini.IsTransient,
		},
		maxTurns: maxTurns,
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// Generate 截取最近 maxTurns 条作为上下文窗口，在并发限制与重试策略下调用模型。
func (s *replyService) Generate(ctx context.Context, turns []model.Turn) (string, error) {
	if s.maxTurns > 0 && len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}

	var reply string
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		// 令牌在单次尝试期间持有，退避等待时不占用并发额度
		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		defer s.limiter.Release()

		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		out, err := s.client.GenerateContent(ctx, turns, nil)
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}
