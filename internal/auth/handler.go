package auth

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/session-login/internal/session"
)

const (
	// SessionCookieName はログイン状態を保持するクッキー名です。
	SessionCookieName = "session"
	// FlashCookieName はフラッシュメッセージ専用のクッキー名です。
	// ログイン失敗時に認証用クッキーを発行しないよう分けています。
	FlashCookieName = "flash"

	// ContextTokenKey は、ハンドラー間でログイン済みセッションを共有するためのキーです。
	ContextTokenKey = "auth.token"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates はログイン画面とダッシュボードのテンプレートを返します。
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// SessionMiddleware は認証用とフラッシュ用のセッションを有効にします。
func SessionMiddleware(store sessions.Store) gin.HandlerFunc {
	return sessions.SessionsMany([]string{SessionCookieName, FlashCookieName}, store)
}

// Register はログイン関連のルートを登録します。
func (m *Manager) Register(r gin.IRoutes) {
	r.GET("/", m.Home)
	r.POST("/login", m.Login)
	r.GET("/dashboard", m.RequireLogin(), m.Dashboard)
	r.GET("/logout", m.Logout)
}

// Home は GET / のハンドラーです。ログイン済みならダッシュボードへ転送します。
func (m *Manager) Home(c *gin.Context) {
	if _, status := m.sessions.Validate(authSession(c)); status == session.StatusAuthenticated {
		c.Redirect(http.StatusFound, "/dashboard")
		return
	}

	c.HTML(http.StatusOK, "login.html", gin.H{
		"messages": m.popFlashes(c),
	})
}

// Login は POST /login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	err := m.Authenticate(c.Request.Context(), c.ClientIP(), username, password)
	switch {
	case err == nil:
	case errors.Is(err, ErrLocked):
		m.redirectWithFlash(c, MsgTooManyAttempts)
		return
	case errors.Is(err, ErrInvalidCredentials):
		m.redirectWithFlash(c, MsgInvalidCredentials)
		return
	default:
		// ストア障害はログには残すが、利用者には認証失敗と同じ表示にする
		m.logger.Error("credential lookup failed", zap.Error(err))
		m.redirectWithFlash(c, MsgInvalidCredentials)
		return
	}

	token, err := m.sessions.Start(authSession(c), username)
	if err != nil {
		m.logger.Error("failed to start session", zap.Error(err))
		m.renderServerError(c)
		return
	}

	m.logger.Info("login succeeded",
		zap.String("username", token.Username),
		zap.Time("expires_at", token.ExpiresAt),
	)
	c.Redirect(http.StatusFound, "/dashboard")
}

// Dashboard は GET /dashboard のハンドラーです。RequireLogin の後に置きます。
func (m *Manager) Dashboard(c *gin.Context) {
	token, ok := c.Get(ContextTokenKey)
	if !ok {
		c.Redirect(http.StatusFound, "/")
		return
	}
	t := token.(session.Token)

	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"username":  t.Username,
		"sessionID": t.DisplayID,
		"expiresAt": t.ExpiresAt.UTC().Format(time.RFC1123),
	})
}

// Logout は GET /logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	if err := m.sessions.End(authSession(c)); err != nil {
		m.logger.Error("failed to clear session", zap.Error(err))
		m.renderServerError(c)
		return
	}
	m.redirectWithFlash(c, MsgLoggedOut)
}

func (m *Manager) redirectWithFlash(c *gin.Context, message string) {
	flash := sessions.DefaultMany(c, FlashCookieName)
	flash.AddFlash(message)
	if err := flash.Save(); err != nil {
		m.logger.Warn("failed to save flash", zap.Error(err))
	}
	c.Redirect(http.StatusFound, "/")
}

func (m *Manager) popFlashes(c *gin.Context) []string {
	flash := sessions.DefaultMany(c, FlashCookieName)
	raw := flash.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := flash.Save(); err != nil {
		m.logger.Warn("failed to save flash", zap.Error(err))
	}

	messages := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			messages = append(messages, s)
		}
	}
	return messages
}

func (m *Manager) renderServerError(c *gin.Context) {
	c.HTML(http.StatusInternalServerError, "error.html", gin.H{
		"message": MsgServerError,
	})
}

func authSession(c *gin.Context) sessions.Session {
	return sessions.DefaultMany(c, SessionCookieName)
}
