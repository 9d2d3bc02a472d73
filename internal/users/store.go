// Package users はユーザー名とパスワードハッシュの永続化を提供します。
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrStoreUnavailable はデータベースに到達できない、またはクエリが失敗したことを表します。
// 呼び出し側はこれを「認証情報が不正」と同一視してはいけません。
var ErrStoreUnavailable = errors.New("credential store unavailable")

// Hasher は新規ユーザー作成時に平文をハッシュ化します。
type Hasher interface {
	Hash(plaintext string) (string, error)
}

// Store は users テーブルへのアクセスを担います。
type Store struct {
	db      *sql.DB
	hasher  Hasher
	timeout time.Duration
}

// NewStore は Store を作成します。timeout は各クエリに適用されます。
func NewStore(db *sql.DB, hasher Hasher, timeout time.Duration) *Store {
	return &Store{
		db:      db,
		hasher:  hasher,
		timeout: timeout,
	}
}

// Open は pgx ドライバで接続プールを作成します。
// 接続は最初のクエリまで確立されないため、疎通確認は Ping で行います。
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrStoreUnavailable, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// FindPasswordHash はユーザー名に対応するハッシュを返します。
// 該当ユーザーがいない場合は found=false, err=nil です。
func (s *Store) FindPasswordHash(ctx context.Context, username string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE username = $1`,
		username,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: find user: %v", ErrStoreUnavailable, err)
	}
	return hash, true, nil
}

// CreateIfAbsent はユーザーが存在しない場合のみハッシュ化したパスワードで作成します。
// 行を書き込んだ場合に true を返します。
func (s *Store) CreateIfAbsent(ctx context.Context, username, secret string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`,
		username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: check user: %v", ErrStoreUnavailable, err)
	}
	if exists {
		return false, nil
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	// 同時起動で競合しても ON CONFLICT で一行に収まる
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) ON CONFLICT (username) DO NOTHING`,
		username, hash,
	)
	if err != nil {
		return false, fmt.Errorf("%w: insert user: %v", ErrStoreUnavailable, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: insert user: %v", ErrStoreUnavailable, err)
	}
	return rows > 0, nil
}

// Ping はヘルスチェック用にデータベースへの疎通を確認します。
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
