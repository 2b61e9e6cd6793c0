package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// secretHeader 是 Telegram 回调携带密钥的请求头。
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSecret 创建一个 Gin 中间件，校验 webhook 回调的密钥头，
// 拒绝伪造的更新推送。secret 为空时不做校验。
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		got := c.GetHeader(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的 webhook 密钥"})
			return
		}
		c.Next()
	}
}
