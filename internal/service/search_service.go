package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tg-gemini-go/internal/config"
	"tg-gemini-go/internal/model"
	"tg-gemini-go/pkg/gemini"
	"tg-gemini-go/pkg/googlesearch"
	"tg-gemini-go/pkg/log"
)

// decisionPrompt 是 LLM 判定策略使用的零温度分类提示，要求只回答 YES/NO。
const decisionPrompt = "Ответь ТОЛЬКО YES или NO: нужно ли искать актуальную информацию в интернете для точного ответа на это сообщение?\n\n%s"

// SearchService 接口定义了搜索增强操作。
// 搜索永远是尽力而为的增强：任何失败都降级为"无增强"，不会中断对话流程。
type SearchService interface {
	// ShouldAugment 判定该消息是否值得做一次外部检索。
	ShouldAugment(ctx context.Context, text string) bool
	// Search 执行外部检索并返回格式化摘要。
	// 凭据未配置时返回空串；检索失败时返回人类可读的降级文案，均不返回错误。
	Search(ctx context.Context, query string) string
}

type searchService struct {
	cfg            config.SearchConfig
	searchClient   *googlesearch.Client
	decisionClient gemini.Client
	limiter        *Limiter
}

// NewSearchService 创建一个新的 SearchService 实例。
// decisionClient 只在 cfg.Decision == "llm" 时使用，可为 nil。
func NewSearchService(cfg config.SearchConfig, searchClient *googlesearch.Client, decisionClient gemini.Client, limiter *Limiter) SearchService {
	return &searchService{
		cfg:            cfg,
		searchClient:   searchClient,
		decisionClient: decisionClient,
		limiter:        limiter,
	}
}

// ShouldAugment 根据配置的策略判定是否检索。
func (s *searchService) ShouldAugment(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if s.cfg.Decision == "llm" && s.decisionClient != nil {
		return s.llmDecision(ctx, text)
	}
	return s.heuristicDecision(text)
}

// heuristicDecision 是确定性的关键词/标点启发式：
// 较长的疑问句，或命中任一触发词。
func (s *searchService) heuristicDecision(text string) bool {
	lower := strings.ToLower(text)
	if len([]rune(text)) > 15 && strings.Contains(lower, "?") {
		return true
	}
	for _, w := range s.cfg.TriggerWords {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// llmDecision 把判定委托给模型：零温度、限制 5 个输出 token 的 YES/NO 分类。
// 任何失败都保守地返回 false。
func (s *searchService) llmDecision(ctx context.Context, text string) bool {
	if err := s.limiter.Acquire(ctx); err != nil {
		return false
	}
	defer s.limiter.Release()

	zero := 0.0
	five := 5
	prompt := fmt.Sprintf(decisionPrompt, text)
	out, err := s.decisionClient.GenerateContent(ctx,
		[]model.Turn{model.TextTurn(model.RoleUser, prompt)},
		&gemini.GenerationParams{Temperature: &zero, MaxOutputTokens: &five})
	if err != nil {
		log.Warnf("搜索判定调用失败: %v", err)
		return false
	}
	return strings.Contains(strings.ToUpper(strings.TrimSpace(out)), "YES")
}

// Search 执行一次外部检索并把结果格式化为编号的 title/snippet 列表。
func (s *searchService) Search(ctx context.Context, query string) string {
	if !s.searchClient.Configured() {
		// 未配置凭据：增强不可用，静默跳过
		return ""
	}

	timeout := time.Duration(s.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 7 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := s.searchClient.Search(ctx, query, s.cfg.ResultCount)
	if err != nil {
		log.Warnf("外部检索失败: %v", err)
		return s.cfg.UnavailableText
	}
	if len(results) == 0 {
		return ""
	}

	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. %s\n%s", i+1, r.Title, r.Snippet))
	}
	return strings.Join(lines, "\n\n")
}
