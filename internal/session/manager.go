// Package session は署名付きクッキーに保存するログインセッションのライフサイクルを管理します。
//
// サーバー側にセッションテーブルは持たず、毎リクエストでクッキーから復元して有効期限を検証します。
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/google/uuid"
)

const (
	keyLoggedIn  = "logged_in"
	keyUsername  = "username"
	keyDisplayID = "display_session_id"
	keyExpiresAt = "expires_at"
)

// DefaultTimeout はセッションの既定の有効期間です。
const DefaultTimeout = time.Minute

// ErrSessionSave はクッキーストアへの保存に失敗したことを表します。
var ErrSessionSave = errors.New("failed to save session")

// Status は Validate の判定結果です。
type Status int

const (
	StatusAnonymous Status = iota
	StatusAuthenticated
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusExpired:
		return "expired"
	default:
		return "anonymous"
	}
}

// Token はクッキーに保存されるログイン情報です。
type Token struct {
	Username  string
	DisplayID string
	ExpiresAt time.Time
}

// Manager はセッションの開始・検証・終了を行います。
type Manager struct {
	timeout time.Duration
	now     func() time.Time
	cookie  sessions.Options
}

// Option は Manager の設定を変更します。
type Option func(*Manager)

// WithClock は現在時刻の取得関数を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithCookieOptions はクッキーの属性（Path、Secure など）を指定します。
// MaxAge は常にセッションの有効期間から決まるため無視されます。
func WithCookieOptions(opts sessions.Options) Option {
	return func(m *Manager) {
		m.cookie = opts
	}
}

// NewManager は Manager を作成します。timeout が 0 以下なら DefaultTimeout を使います。
func NewManager(timeout time.Duration, opts ...Option) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m := &Manager{
		timeout: timeout,
		now:     time.Now,
		cookie: sessions.Options{
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Timeout はセッションの有効期間を返します。
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// MaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func (m *Manager) MaxAgeSeconds() int {
	return int(m.timeout.Seconds())
}

// CookieOptions はセッションクッキーに設定する属性を返します。
func (m *Manager) CookieOptions() sessions.Options {
	opts := m.cookie
	opts.MaxAge = m.MaxAgeSeconds()
	return opts
}

// Start は新しいセッションを確立します。
// 既存の値はすべて破棄してから新しい表示用IDを発行します（セッション固定化対策）。
func (m *Manager) Start(s sessions.Session, username string) (Token, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Token{}, fmt.Errorf("generate session id: %w", err)
	}

	token := Token{
		Username:  username,
		DisplayID: id.String(),
		ExpiresAt: time.UnixMilli(m.now().Add(m.timeout).UnixMilli()),
	}

	s.Clear()
	s.Options(m.CookieOptions())
	s.Set(keyLoggedIn, true)
	s.Set(keyUsername, token.Username)
	s.Set(keyDisplayID, token.DisplayID)
	s.Set(keyExpiresAt, token.ExpiresAt.UnixMilli())

	if err := s.Save(); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrSessionSave, err)
	}
	return token, nil
}

// Validate はクッキーから復元した値を検証します。
// 期限切れの場合はその場でセッションを破棄し StatusExpired を返します。
func (m *Manager) Validate(s sessions.Session) (Token, Status) {
	loggedIn, _ := s.Get(keyLoggedIn).(bool)
	username, _ := s.Get(keyUsername).(string)
	displayID, _ := s.Get(keyDisplayID).(string)
	expiresAt := readUnixMilli(s.Get(keyExpiresAt))

	if !loggedIn || username == "" || displayID == "" || expiresAt.IsZero() {
		return Token{}, StatusAnonymous
	}

	if m.now().After(expiresAt) {
		_ = m.discard(s)
		return Token{}, StatusExpired
	}

	return Token{
		Username:  username,
		DisplayID: displayID,
		ExpiresAt: expiresAt,
	}, StatusAuthenticated
}

// End はセッションの全ての値を即座に破棄し、クッキーも削除します。
func (m *Manager) End(s sessions.Session) error {
	return m.discard(s)
}

// discard は値を消したうえで MaxAge=-1 を指定し、ブラウザにクッキーを削除させる。
func (m *Manager) discard(s sessions.Session) error {
	s.Clear()
	opts := m.cookie
	opts.MaxAge = -1
	s.Options(opts)
	if err := s.Save(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionSave, err)
	}
	return nil
}

// readUnixMilli は expires_at（ミリ秒単位の UNIX 時刻）を復元する。
func readUnixMilli(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.UnixMilli(t)
	case int:
		return time.UnixMilli(int64(t))
	case float64:
		return time.UnixMilli(int64(t))
	default:
		return time.Time{}
	}
}
