// Package telegram 提供了一个最小化的 Telegram Bot API 客户端。
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tg-gemini-go/internal/config"
)

// Client 是 Bot API 的客户端。
type Client struct {
	apiBase     string // 例如 "https://api.telegram.org/bot<token>"
	fileAPIBase string // 例如 "https://api.telegram.org/file/bot<token>"
	httpClient  *http.Client
}

// NewClient 根据配置创建一个 Telegram 客户端。
func NewClient(cfg config.TelegramConfig) *Client {
	return &Client{
		apiBase:     cfg.APIBase + "/bot" + cfg.Token,
		fileAPIBase: cfg.FileAPIBase + "/bot" + cfg.Token,
		httpClient: &http.Client{
			Timeout: 90 * time.Second, // 长轮询需要超过 poll_timeout 的余量
		},
	}
}

// apiResponse 是 Bot API 的通用响应包装。
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description,omitempty"`
}

// call 执行一次 JSON POST 方法调用并解出 result。
func (c *Client) call(ctx context.Context, method string, payload interface{}, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 %s 请求失败: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiBase+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建 %s 请求失败: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("调用 %s 失败: %w", method, err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("解析 %s 响应失败: %w", method, err)
	}
	if !apiResp.OK {
		return fmt.Errorf("%s 返回错误: %s", method, apiResp.Description)
	}
	if result != nil {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("解析 %s 结果失败: %w", method, err)
		}
	}
	return nil
}

// SendMessage 向指定会话发送一条文本消息，关闭链接预览。
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

// SendChatAction 发送会话状态提示（如 "typing"）。失败只影响体验，不影响主流程。
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"action":  action,
	}
	return c.call(ctx, "sendChatAction", payload, nil)
}

// GetFile 获取文件的下载路径描述。
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := c.call(ctx, "getFile", map[string]interface{}{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DownloadFile 下载 GetFile 返回的文件内容。
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.fileAPIBase+"/"+filePath, nil)
	if err != nil {
		return nil, fmt.Errorf("创建下载请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("下载文件失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载文件返回错误 [%d]", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// SetWebhook 注册 webhook 地址并丢弃积压的更新。
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	payload := map[string]interface{}{
		"url":                  webhookURL,
		"secret_token":         secret,
		"drop_pending_updates": true,
	}
	return c.call(ctx, "setWebhook", payload, nil)
}

// DeleteWebhook 注销 webhook 并丢弃积压的更新。
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]interface{}{"drop_pending_updates": true}, nil)
}

// GetUpdates 以长轮询方式拉取更新，用于本地开发的 poll 模式。
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))

	req, err := http.NewRequestWithContext(ctx, "GET", c.apiBase+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("创建 getUpdates 请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 getUpdates 失败: %w", err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("解析 getUpdates 响应失败: %w", err)
	}
	if !apiResp.OK {
		// 凭据失效等持续性失败必须以 error 暴露，轮询方据此退避并记录
		return nil, fmt.Errorf("getUpdates 返回错误: %s", apiResp.Description)
	}

	var updates []Update
	if err := json.Unmarshal(apiResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("解析 getUpdates 结果失败: %w", err)
	}
	return updates, nil
}
