// Package gemini 提供了调用 Google Gemini generateContent API 的客户端。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"tg-gemini-go/internal/config"
	"tg-gemini-go/internal/model"
)

// ErrBlocked 表示模型拒绝生成（无候选或被安全策略拦截）。
// 这是不可重试的终态错误。
var ErrBlocked = errors.New("gemini: response blocked by safety policy")

// APIError 表示 API 返回的非 200 响应。
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api returned status %d: %s", e.StatusCode, e.Body)
}

// Transient 判断该错误是否为瞬时错误（限流、服务端错误、超时），值得重试。
func (e *APIError) Transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// IsTransient 对任意错误做瞬时/终态分类：
// 网络超时与 5xx/429/408 可重试；安全拦截与其余错误不可。
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	if errors.Is(err, ErrBlocked) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// 连接级失败（连接被拒、DNS 等）视为瞬时
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Client 定义了生成接口。唯一的具体实现在构造时确定。
type Client interface {
	// GenerateContent 以完整的轮次序列调用模型，返回生成的文本。
	GenerateContent(ctx context.Context, turns []model.Turn, gen *GenerationParams) (string, error)
}

// GenerationParams 控制生成行为。
type GenerationParams struct {
	Temperature     *float64
	TopP            *float64
	MaxOutputTokens *int
}

type restClient struct {
	cfg    config.GeminiConfig
	client *http.Client
}

// NewClient 创建一个新的 Gemini REST 客户端。
func NewClient(cfg config.GeminiConfig) Client {
	return &restClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type generateRequest struct {
	SystemInstruction *content          `json:"system_instruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string       `json:"role,omitempty"`
	Parts []model.Part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// GenerateContent 调用 generateContent 接口并返回拼接后的候选文本。
// 无候选或被安全策略拦截时返回 ErrBlocked；非 200 响应包装为 *APIError。
func (c *restClient) GenerateContent(ctx context.Context, turns []model.Turn, gen *GenerationParams) (string, error) {
	reqBody := generateRequest{
		Contents: make([]content, 0, len(turns)),
	}
	if c.cfg.Prompt.System != "" {
		reqBody.SystemInstruction = &content{Parts: []model.Part{model.TextPart(c.cfg.Prompt.System)}}
	}
	for _, t := range turns {
		reqBody.Contents = append(reqBody.Contents, content{Role: t.Role, Parts: t.Parts})
	}

	// 生成参数：传参优先，否则从配置注入非零值
	if gen != nil {
		reqBody.GenerationConfig = &generationConfig{
			Temperature:     gen.Temperature,
			TopP:            gen.TopP,
			MaxOutputTokens: gen.MaxOutputTokens,
		}
	} else if gc := c.configGeneration(); gc != nil {
		reqBody.GenerationConfig = gc
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call gemini api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}

	if len(genResp.Candidates) == 0 {
		return "", ErrBlocked
	}
	cand := genResp.Candidates[0]
	if strings.EqualFold(cand.FinishReason, "SAFETY") {
		return "", ErrBlocked
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func (c *restClient) configGeneration() *generationConfig {
	var gc generationConfig
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		gc.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		gc.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		gc.MaxOutputTokens = &m
	}
	if gc.Temperature == nil && gc.TopP == nil && gc.MaxOutputTokens == nil {
		return nil
	}
	return &gc
}
