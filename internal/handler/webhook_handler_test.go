package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tg-gemini-go/internal/config"
	"tg-gemini-go/internal/middleware"
	"tg-gemini-go/internal/service"
	"tg-gemini-go/pkg/log"
	"tg-gemini-go/pkg/telegram"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	gin.SetMode(gin.TestMode)
	m.Run()
}

// capturingChat 记录收到的入站消息。
type capturingChat struct {
	mu   sync.Mutex
	msgs []service.IncomingMessage
	done chan struct{}
}

func (c *capturingChat) HandleMessage(ctx context.Context, msg service.IncomingMessage) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	select {
	case c.done <- struct{}{}:
	default:
	}
}

func testRouter(chat service.ChatService, secret string) *gin.Engine {
	tgClient := telegram.NewClient(config.TelegramConfig{
		Token:       "t",
		APIBase:     "http://127.0.0.1:0",
		FileAPIBase: "http://127.0.0.1:0",
	})
	r := gin.New()
	h := NewWebhookHandler(chat, tgClient)
	r.POST("/webhook", middleware.WebhookSecret(secret), h.Handle)
	r.GET("/healthz", Health)
	return r
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	chat := &capturingChat{done: make(chan struct{}, 1)}
	r := testRouter(chat, "s3cret")

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(`{}`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, chat.msgs)
}

func TestWebhookDispatchesMessage(t *testing.T) {
	chat := &capturingChat{done: make(chan struct{}, 1)}
	r := testRouter(chat, "s3cret")

	body := `{"update_id":10,"message":{"message_id":1,"from":{"id":77},"chat":{"id":77},"text":"Hello"}}`
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	select {
	case <-chat.done:
	case <-time.After(time.Second):
		t.Fatal("message was not dispatched")
	}

	chat.mu.Lock()
	defer chat.mu.Unlock()
	require.Len(t, chat.msgs, 1)
	assert.Equal(t, int64(77), chat.msgs[0].UserID)
	assert.Equal(t, "Hello", chat.msgs[0].Text)
}

func TestWebhookIgnoresNonMessageUpdate(t *testing.T) {
	chat := &capturingChat{done: make(chan struct{}, 1)}
	r := testRouter(chat, "")

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(`{"update_id":11}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, chat.msgs)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	chat := &capturingChat{done: make(chan struct{}, 1)}
	r := testRouter(chat, "")

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(`not json`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	r := testRouter(&capturingChat{done: make(chan struct{}, 1)}, "")

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestNormalizeMessageMapsAttachments(t *testing.T) {
	tgClient := telegram.NewClient(config.TelegramConfig{Token: "t", APIBase: "http://x", FileAPIBase: "http://x"})

	m := &telegram.Message{
		From:    &telegram.User{ID: 5},
		Chat:    telegram.Chat{ID: 5},
		Caption: "подпись",
		Photo: []telegram.PhotoSize{
			{FileID: "small", FileSize: 10},
			{FileID: "big", FileSize: 100},
		},
		Document: &telegram.Document{FileID: "doc", FileSize: 7, MIMEType: "application/pdf"},
	}

	msg := NormalizeMessage(tgClient, m)
	assert.Equal(t, int64(5), msg.UserID)
	assert.Equal(t, "подпись", msg.Caption)
	require.Len(t, msg.Attachments, 2)

	// 照片取最高分辨率变体
	photo := msg.Attachments[0]
	assert.Equal(t, service.AttachmentPhoto, photo.Kind)
	assert.Equal(t, "image/jpeg", photo.MIMEType)
	assert.Equal(t, int64(100), photo.Size)

	doc := msg.Attachments[1]
	assert.Equal(t, service.AttachmentDocument, doc.Kind)
	assert.Equal(t, "application/pdf", doc.MIMEType)
	assert.Equal(t, int64(7), doc.Size)
}
