// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"crypto/rand"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// データベース設定
	DBHost    string        // PostgreSQL ホスト
	DBPort    string        // PostgreSQL ポート
	DBName    string        // データベース名
	DBUser    string        // 接続ユーザー
	DBPass    string        // 接続パスワード
	DBSSLMode string        // sslmode (disable, require, verify-full など)
	DBTimeout time.Duration // 接続・クエリのタイムアウト

	// セッション設定
	SessionSecret        []byte        // クッキー署名用の秘密鍵
	SessionSecretFromEnv bool          // SESSION_SECRET が明示的に与えられたか
	SessionEncryptionKey []byte        // クッキー暗号化鍵（任意）
	SessionTimeout       time.Duration // セッションの有効期間

	// 初期ユーザー設定
	SeedUsername string // 起動時に作成するユーザー名
	SeedPassword string // 起動時に作成するユーザーのパスワード（平文、ハッシュ化して保存）
	BcryptCost   int    // bcrypt のコスト

	// ログイン試行制限
	RedisURL string // 試行回数を保存する Redis（空なら制限なし）

	// サーバー設定
	Port     string // HTTPサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // zap のログレベル

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、空なら無効）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		DBHost:    getEnv("DB_HOST", "localhost"),
		DBPort:    getEnv("DB_PORT", "5432"),
		DBName:    getEnv("DB_NAME", ""),
		DBUser:    getEnv("DB_USER", ""),
		DBPass:    getEnv("DB_PASS", ""),
		DBSSLMode: getEnv("DB_SSLMODE", "disable"),
		DBTimeout: getEnvAsSeconds("DB_TIMEOUT_SECONDS", 5*time.Second),

		SessionEncryptionKey: []byte(getEnv("SESSION_ENCRYPTION_KEY", "")),
		SessionTimeout:       getEnvAsSeconds("SESSION_TIMEOUT_SECONDS", time.Minute),

		SeedUsername: getEnv("SEED_USERNAME", "student"),
		SeedPassword: getEnv("SEED_PASSWORD", "2301769"),
		BcryptCost:   getEnvAsInt("BCRYPT_COST", 10),

		RedisURL: getEnv("REDIS_URL", ""),

		Port:     getEnv("PORT", "5000"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
	}

	if len(config.SessionEncryptionKey) == 0 {
		config.SessionEncryptionKey = nil
	}

	// 秘密鍵が未設定なら起動ごとに生成する（再起動で全セッションが無効になる）
	if secret := getEnv("SESSION_SECRET", ""); secret != "" {
		config.SessionSecret = []byte(secret)
		config.SessionSecretFromEnv = true
	} else {
		generated, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		config.SessionSecret = generated
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT_SECONDS must be positive")
	}
	if c.DBTimeout <= 0 {
		return fmt.Errorf("DB_TIMEOUT_SECONDS must be positive")
	}
	if len(c.SessionSecret) < 16 {
		return fmt.Errorf("SESSION_SECRET must be at least 16 bytes")
	}
	switch len(c.SessionEncryptionKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("SESSION_ENCRYPTION_KEY must be 16, 24 or 32 bytes")
	}
	if c.SeedUsername == "" {
		return fmt.Errorf("SEED_USERNAME must not be empty")
	}

	// 本番環境では秘密鍵の外部注入と接続情報を必須にする
	if c.GinMode == "release" {
		if !c.SessionSecretFromEnv {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.DBName == "" {
			return fmt.Errorf("DB_NAME is required in release mode")
		}
		if c.DBUser == "" {
			return fmt.Errorf("DB_USER is required in release mode")
		}
	}

	return nil
}

// DSN は PostgreSQL の接続文字列を組み立てます。
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   c.DBHost + ":" + c.DBPort,
		Path:   "/" + c.DBName,
	}
	if c.DBUser != "" {
		if c.DBPass != "" {
			u.User = url.UserPassword(c.DBUser, c.DBPass)
		} else {
			u.User = url.User(c.DBUser)
		}
	}
	q := url.Values{}
	q.Set("sslmode", c.DBSSLMode)
	q.Set("connect_timeout", strconv.Itoa(int(c.DBTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

func generateSecret() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSeconds は秒数の環境変数を time.Duration として取得します。
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	seconds := getEnvAsInt(key, -1)
	if seconds < 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
