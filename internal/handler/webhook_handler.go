// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"net/http"

	"tg-gemini-go/internal/service"
	"tg-gemini-go/pkg/log"
	"tg-gemini-go/pkg/telegram"

	"github.com/gin-gonic/gin"
)

// WebhookHandler 负责接收 Telegram 的 webhook 更新推送。
type WebhookHandler struct {
	chatService service.ChatService
	tgClient    *telegram.Client
}

// NewWebhookHandler 创建一个新的 WebhookHandler。
func NewWebhookHandler(chatService service.ChatService, tgClient *telegram.Client) *WebhookHandler {
	return &WebhookHandler{
		chatService: chatService,
		tgClient:    tgClient,
	}
}

// Handle 处理一次 webhook 回调：解析更新、立即回 200、异步处理消息。
// Telegram 对响应超时会重发更新，因此处理工作不能留在请求生命周期内。
func (h *WebhookHandler) Handle(c *gin.Context) {
	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		log.Warnf("解析 webhook 更新失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的更新格式"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})

	if update.Message == nil {
		return
	}
	msg := NormalizeMessage(h.tgClient, update.Message)
	go h.chatService.HandleMessage(context.Background(), msg)
}

// Health 是健康检查端点。
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NormalizeMessage 把 Telegram 消息规范化为编排器的入站事件，
// 附件字节通过闭包惰性下载。照片取分辨率最高的变体。
func NormalizeMessage(tgClient *telegram.Client, m *telegram.Message) service.IncomingMessage {
	userID := m.Chat.ID
	if m.From != nil {
		userID = m.From.ID
	}

	msg := service.IncomingMessage{
		UserID:  userID,
		Text:    m.Text,
		Caption: m.Caption,
	}

	if len(m.Photo) > 0 {
		photo := m.Photo[len(m.Photo)-1]
		msg.Attachments = append(msg.Attachments, service.Attachment{
			Kind:     service.AttachmentPhoto,
			MIMEType: "image/jpeg",
			Size:     photo.FileSize,
			Fetch:    fetchFunc(tgClient, photo.FileID),
		})
	}

	if m.Document != nil {
		msg.Attachments = append(msg.Attachments, service.Attachment{
			Kind:     service.AttachmentDocument,
			MIMEType: m.Document.MIMEType,
			Size:     m.Document.FileSize,
			Fetch:    fetchFunc(tgClient, m.Document.FileID),
		})
	}

	return msg
}

// fetchFunc 构造按需下载附件字节的闭包。
func fetchFunc(tgClient *telegram.Client, fileID string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		f, err := tgClient.GetFile(ctx, fileID)
		if err != nil {
			return nil, err
		}
		return tgClient.DownloadFile(ctx, f.FilePath)
	}
}
