// Package auth はログイン処理とセッション保護を提供します。
package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/session-login/internal/session"
	"github.com/yourusername/session-login/internal/throttle"
)

// 利用者に表示するメッセージ
const (
	MsgInvalidCredentials = "Invalid username or password. Please try again."
	MsgLoggedOut          = "You have been logged out."
	MsgTooManyAttempts    = "Too many failed attempts. Please try again later."
	MsgServerError        = "A server error occurred. Please try again later."
)

// ユーザーが存在しない場合も bcrypt の比較を一度行い、応答時間を揃えるためのダミー平文
const dummyPlaintext = "timing-equalizer"

// ErrInvalidCredentials はユーザー名またはパスワードが一致しないことを表します。
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrLocked は試行回数の上限に達していることを表します。
var ErrLocked = errors.New("too many failed attempts")

// CredentialStore はユーザー名からパスワードハッシュを引きます。
type CredentialStore interface {
	FindPasswordHash(ctx context.Context, username string) (string, bool, error)
}

// PasswordHasher はパスワードのハッシュ化と検証を行います。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// Manager は認証処理に必要な依存をまとめた構造体です。
type Manager struct {
	store     CredentialStore
	hasher    PasswordHasher
	sessions  *session.Manager
	limiter   throttle.Limiter
	logger    *zap.Logger
	dummyHash string
}

// NewManager は認証マネージャーを作成します。limiter が nil なら制限しません。
func NewManager(store CredentialStore, hasher PasswordHasher, sessions *session.Manager, limiter throttle.Limiter, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if hasher == nil {
		return nil, errors.New("hasher is nil")
	}
	if sessions == nil {
		return nil, errors.New("sessions is nil")
	}
	if limiter == nil {
		limiter = throttle.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dummy, err := hasher.Hash(dummyPlaintext)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:     store,
		hasher:    hasher,
		sessions:  sessions,
		limiter:   limiter,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// Sessions はセッションマネージャーを返します。
func (m *Manager) Sessions() *session.Manager {
	return m.sessions
}

// Authenticate はユーザー名とパスワードを検証します。
//
// ストア障害は ErrInvalidCredentials と区別できるエラーで返しますが、
// 画面上の表示は呼び出し側で同一にすることを想定しています。
func (m *Manager) Authenticate(ctx context.Context, clientKey, username, password string) error {
	retryAfter, err := m.limiter.Check(ctx, clientKey)
	if err != nil {
		// Redis 障害時はログイン自体は止めない
		m.logger.Warn("login throttle check failed", zap.Error(err))
	} else if retryAfter > 0 {
		m.logger.Info("login rejected: locked",
			zap.String("client", clientKey),
			zap.Duration("retry_after", retryAfter.Round(time.Second)),
		)
		return ErrLocked
	}

	hash, found, err := m.store.FindPasswordHash(ctx, username)
	if err != nil {
		m.hasher.Verify(password, m.dummyHash)
		return err
	}

	if !found {
		m.hasher.Verify(password, m.dummyHash)
		m.recordFailure(ctx, clientKey, "unknown_user")
		return ErrInvalidCredentials
	}

	if !m.hasher.Verify(password, hash) {
		m.recordFailure(ctx, clientKey, "bad_password")
		return ErrInvalidCredentials
	}

	if err := m.limiter.Reset(ctx, clientKey); err != nil {
		m.logger.Warn("login throttle reset failed", zap.Error(err))
	}
	return nil
}

func (m *Manager) recordFailure(ctx context.Context, clientKey, reason string) {
	remaining, err := m.limiter.RecordFailure(ctx, clientKey)
	if err != nil {
		m.logger.Warn("login throttle record failed", zap.Error(err))
		return
	}
	m.logger.Info("login failed",
		zap.String("reason", reason),
		zap.String("client", clientKey),
		zap.Int("remaining_attempts", remaining),
	)
}
