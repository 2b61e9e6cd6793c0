package service

import (
	"context"
	"fmt"
	"testing"

	"tg-gemini-go/internal/config"
	"tg-gemini-go/internal/model"
	"tg-gemini-go/pkg/gemini"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replyCfg() config.ReplyConfig {
	return config.ReplyConfig{
		MaxAttempts:    4,
		BackoffBaseSec: 0, // 测试中不等待
		BackoffMaxSec:  0,
		MaxConcurrent:  2,
		TimeoutSeconds: 5,
	}
}

// flakyGeminiClient 前 failCount 次调用返回瞬时错误。
type flakyGeminiClient struct {
	failCount int
	failWith  error
	calls     int
	lastTurns []model.Turn
}

func (f *flakyGeminiClient) GenerateContent(ctx context.Context, turns []model.Turn, gen *gemini.GenerationParams) (string, error) {
	f.calls++
	f.lastTurns = turns
	if f.calls <= f.failCount {
		return "", f.failWith
	}
	return "ответ", nil
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	client := &flakyGeminiClient{failCount: 2, failWith: &gemini.APIError{StatusCode: 503}}
	s := NewReplyService(replyCfg(), client, NewLimiter(2), 40)

	out, err := s.Generate(context.Background(), []model.Turn{model.TextTurn(model.RoleUser, "hi")})
	require.NoError(t, err)
	assert.Equal(t, "ответ", out)
	assert.Equal(t, 3, client.calls)
}

func TestGenerateDoesNotRetryBlocked(t *testing.T) {
	client := &flakyGeminiClient{failCount: 10, failWith: gemini.ErrBlocked}
	s := NewReplyService(replyCfg(), client, NewLimiter(2), 40)

	_, err := s.Generate(context.Background(), []model.Turn{model.TextTurn(model.RoleUser, "hi")})
	assert.ErrorIs(t, err, gemini.ErrBlocked)
	assert.Equal(t, 1, client.calls)
}

func TestGenerateExhaustsRetries(t *testing.T) {
	client := &flakyGeminiClient{failCount: 10, failWith: &gemini.APIError{StatusCode: 500}}
	s := NewReplyService(replyCfg(), client, NewLimiter(2), 40)

	_, err := s.Generate(context.Background(), []model.Turn{model.TextTurn(model.RoleUser, "hi")})
	assert.Error(t, err)
	assert.Equal(t, 4, client.calls)
}

func TestGenerateCapsContextWindow(t *testing.T) {
	const maxTurns = 4
	client := &flakyGeminiClient{}
	s := NewReplyService(replyCfg(), client, NewLimiter(2), maxTurns)

	var turns []model.Turn
	for i := 0; i < 10; i++ {
		turns = append(turns, model.TextTurn(model.RoleUser, fmt.Sprintf("m%d", i)))
	}
	_, err := s.Generate(context.Background(), turns)
	require.NoError(t, err)

	require.Len(t, client.lastTurns, maxTurns)
	// 发送的是最近的几轮
	assert.Equal(t, "m6", client.lastTurns[0].JoinedText())
	assert.Equal(t, "m9", client.lastTurns[maxTurns-1].JoinedText())
}

// 任何失败路径都必须归还并发令牌，否则后续调用会永久饿死。
func TestGenerateReleasesLimiterOnFailure(t *testing.T) {
	limiter := NewLimiter(1)
	client := &flakyGeminiClient{failCount: 10, failWith: gemini.ErrBlocked}
	s := NewReplyService(replyCfg(), client, limiter, 40)

	for i := 0; i < 3; i++ {
		_, err := s.Generate(context.Background(), []model.Turn{model.TextTurn(model.RoleUser, "hi")})
		assert.Error(t, err)
	}
	// 令牌仍可获取
	require.NoError(t, limiter.Acquire(context.Background()))
	limiter.Release()
}
