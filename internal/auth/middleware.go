package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/session-login/internal/session"
)

// RequireLogin はセッションを検証するミドルウェアを返します。
// 未ログイン・期限切れのいずれもログイン画面へリダイレクトします。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, status := m.sessions.Validate(authSession(c))
		if status != session.StatusAuthenticated {
			if status == session.StatusExpired {
				m.logger.Info("session expired", zap.String("path", c.Request.URL.Path))
			}
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}

		c.Set(ContextTokenKey, token)
		c.Next()
	}
}
