// Package googlesearch 提供了一个与 Google Custom Search API 交互的客户端。
package googlesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultEndpoint 是 Custom Search 的线上地址。
const DefaultEndpoint = "https://www.googleapis.com/customsearch/v1"

// Result 是单条搜索结果。
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Client 是 Custom Search 的客户端。
type Client struct {
	// Endpoint 可在测试中指向本地假服务。
	Endpoint string

	apiKey     string
	cseID      string
	httpClient *http.Client
}

// NewClient 创建一个新的搜索客户端实例。apiKey 或 cseID 为空时客户端视为未配置。
func NewClient(apiKey, cseID string, timeout time.Duration) *Client {
	return &Client{
		Endpoint: DefaultEndpoint,
		apiKey:   apiKey,
		cseID:    cseID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured 报告是否具备调用所需的凭据。
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.cseID != ""
}

// Search 执行一次外部检索，最多返回 num 条结果。
func (c *Client) Search(ctx context.Context, query string, num int) ([]Result, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.cseID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))

	req, err := http.NewRequestWithContext(ctx, "GET", c.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("创建搜索请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用搜索 API 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("搜索 API 返回错误 [%d]", resp.StatusCode)
	}

	var body struct {
		Items []Result `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("解析搜索响应失败: %w", err)
	}

	if len(body.Items) > num {
		body.Items = body.Items[:num]
	}
	return body.Items, nil
}
