package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tg-gemini-go/internal/config"
	"tg-gemini-go/internal/model"
	"tg-gemini-go/pkg/gemini"
	"tg-gemini-go/pkg/googlesearch"
	"tg-gemini-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	m.Run()
}

func searchCfg() config.SearchConfig {
	return config.SearchConfig{
		ResultCount:     4,
		TimeoutSeconds:  2,
		Decision:        "heuristic",
		TriggerWords:    []string{"погода", "новости", "news", "price", "weather"},
		UnavailableText: "Поиск временно недоступен.",
	}
}

func newHeuristicService(cfg config.SearchConfig, client *googlesearch.Client) SearchService {
	if client == nil {
		client = googlesearch.NewClient("", "", time.Second)
	}
	return NewSearchService(cfg, client, nil, NewLimiter(1))
}

func TestShouldAugmentHeuristic(t *testing.T) {
	s := newHeuristicService(searchCfg(), nil)
	ctx := context.Background()

	assert.True(t, s.ShouldAugment(ctx, "What is the weather today?"))
	assert.True(t, s.ShouldAugment(ctx, "какая сегодня погода"))
	assert.True(t, s.ShouldAugment(ctx, "bitcoin price"))
	assert.False(t, s.ShouldAugment(ctx, "hello"))
	assert.False(t, s.ShouldAugment(ctx, "ты кто?")) // 疑问句但太短
	assert.False(t, s.ShouldAugment(ctx, "   "))
}

// llmDecision 策略通过模型的 YES/NO 输出判定。
func TestShouldAugmentLLM(t *testing.T) {
	cfg := searchCfg()
	cfg.Decision = "llm"

	decision := &fakeGeminiClient{reply: " YES"}
	s := NewSearchService(cfg, googlesearch.NewClient("", "", time.Second), decision, NewLimiter(1))
	assert.True(t, s.ShouldAugment(context.Background(), "что нового в мире"))
	require.Len(t, decision.calls, 1)
	// 判定调用带零温度与 5 token 上限
	require.NotNil(t, decision.lastParams)
	assert.Equal(t, 0.0, *decision.lastParams.Temperature)
	assert.Equal(t, 5, *decision.lastParams.MaxOutputTokens)

	decision = &fakeGeminiClient{reply: "NO"}
	s = NewSearchService(cfg, googlesearch.NewClient("", "", time.Second), decision, NewLimiter(1))
	assert.False(t, s.ShouldAugment(context.Background(), "привет"))

	// 判定失败时保守地不增强
	decision = &fakeGeminiClient{err: assert.AnError}
	s = NewSearchService(cfg, googlesearch.NewClient("", "", time.Second), decision, NewLimiter(1))
	assert.False(t, s.ShouldAugment(context.Background(), "что нового в мире"))
}

func TestSearchWithoutCredentialsReturnsEmpty(t *testing.T) {
	s := newHeuristicService(searchCfg(), nil)
	assert.Equal(t, "", s.Search(context.Background(), "anything"))
}

func TestSearchFormatsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "q-text", r.URL.Query().Get("q"))
		w.Write([]byte(`{"items":[
			{"title":"Первый","snippet":"раз"},
			{"title":"Второй","snippet":"два"}
		]}`))
	}))
	defer srv.Close()

	client := googlesearch.NewClient("key", "cse", time.Second)
	client.Endpoint = srv.URL
	s := newHeuristicService(searchCfg(), client)

	got := s.Search(context.Background(), "q-text")
	assert.Equal(t, "1. Первый\nраз\n\n2. Второй\nдва", got)
}

func TestSearchProviderFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := googlesearch.NewClient("key", "cse", time.Second)
	client.Endpoint = srv.URL
	s := newHeuristicService(searchCfg(), client)

	assert.Equal(t, "Поиск временно недоступен.", s.Search(context.Background(), "q"))
}

func TestSearchNoResultsReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	client := googlesearch.NewClient("key", "cse", time.Second)
	client.Endpoint = srv.URL
	s := newHeuristicService(searchCfg(), client)

	assert.Equal(t, "", s.Search(context.Background(), "q"))
}

// fakeGeminiClient 是测试用的 gemini.Client 实现。
type fakeGeminiClient struct {
	reply      string
	err        error
	calls      [][]model.Turn
	lastParams *gemini.GenerationParams
}

func (f *fakeGeminiClient) GenerateContent(ctx context.Context, turns []model.Turn, gen *gemini.GenerationParams) (string, error) {
	f.calls = append(f.calls, turns)
	f.lastParams = gen
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}
