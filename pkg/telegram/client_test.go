package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tg-gemini-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.TelegramConfig{
		Token:       "TOKEN",
		APIBase:     srv.URL,
		FileAPIBase: srv.URL + "/file",
	})
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	require.NoError(t, client.SendMessage(context.Background(), 42, "привет"))
	assert.Equal(t, "/botTOKEN/sendMessage", gotPath)
	assert.Equal(t, float64(42), gotBody["chat_id"])
	assert.Equal(t, "привет", gotBody["text"])
	assert.Equal(t, true, gotBody["disable_web_page_preview"])
}

func TestSendMessageAPIErrorSurfaces(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	})

	err := client.SendMessage(context.Background(), 42, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestGetFileAndDownload(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/getFile":
			w.Write([]byte(`{"ok":true,"result":{"file_id":"abc","file_path":"photos/p.jpg"}}`))
		case "/file/botTOKEN/photos/p.jpg":
			w.Write([]byte{0xff, 0xd8})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	f, err := client.GetFile(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "photos/p.jpg", f.FilePath)

	data, err := client.DownloadFile(context.Background(), f.FilePath)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, data)
}

func TestGetUpdates(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("offset"))
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":7,"message":{"message_id":1,"chat":{"id":9},"text":"hi"}},
			{"update_id":8}
		]}`))
	})

	updates, err := client.GetUpdates(context.Background(), 7, 30)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	require.NotNil(t, updates[0].Message)
	assert.Equal(t, "hi", updates[0].Message.Text)
	assert.Nil(t, updates[1].Message)
}

// 无效 token 等持续性失败必须作为 error 返回，否则轮询循环不会退避。
func TestGetUpdatesAPIErrorSurfaces(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	})

	updates, err := client.GetUpdates(context.Background(), 0, 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
	assert.Nil(t, updates)
}

func TestSetWebhook(t *testing.T) {
	var gotBody map[string]interface{}
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/setWebhook", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"ok":true,"result":true}`))
	})

	require.NoError(t, client.SetWebhook(context.Background(), "https://example.com/webhook", "s"))
	assert.Equal(t, "https://example.com/webhook", gotBody["url"])
	assert.Equal(t, "s", gotBody["secret_token"])
	assert.Equal(t, true, gotBody["drop_pending_updates"])
}
