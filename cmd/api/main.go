// Package main はログインデモサーバーのエントリーポイントです。
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/session-login/internal/auth"
	"github.com/yourusername/session-login/internal/config"
	"github.com/yourusername/session-login/internal/logging"
	"github.com/yourusername/session-login/internal/password"
	"github.com/yourusername/session-login/internal/session"
	"github.com/yourusername/session-login/internal/throttle"
	"github.com/yourusername/session-login/internal/users"
)

func main() {
	// 設定の読み込み（ロガー生成前なので標準 log を使う）
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.GinMode)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.SessionSecretFromEnv {
		logger.Warn("SESSION_SECRET is not set; using a generated key, all sessions are invalidated on restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// データベース（接続は遅延、初期化に失敗してもサーバーは起動する）
	db, err := users.Open(cfg.DSN())
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	hasher := password.NewHasher(cfg.BcryptCost)
	store := users.NewStore(db, hasher, cfg.DBTimeout)
	initDatabase(ctx, cfg, db, store, logger)

	// ログイン試行制限（REDIS_URL が無ければ無効）
	var limiter throttle.Limiter = throttle.Noop{}
	if cfg.RedisURL != "" {
		redisLimiter, redisClient, err := throttle.NewFromURL(cfg.RedisURL, throttle.DefaultLimits)
		if err != nil {
			logger.Fatal("failed to configure login throttle", zap.Error(err))
		}
		defer redisClient.Close()
		limiter = redisLimiter
	}

	sessionManager := session.NewManager(cfg.SessionTimeout, session.WithCookieOptions(cookieOptions(cfg)))
	authManager, err := auth.NewManager(store, hasher, sessionManager, limiter, logger)
	if err != nil {
		logger.Fatal("failed to init auth manager", zap.Error(err))
	}

	router := newRouter(cfg, authManager, store, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			zap.String("addr", server.Addr),
			zap.String("mode", cfg.GinMode),
			zap.Duration("session_timeout", cfg.SessionTimeout),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

// initDatabase はテーブル作成と初期ユーザーの登録を行います。
// データベースに到達できない場合は初期化を飛ばし、サーバーの起動は続けます。
func initDatabase(ctx context.Context, cfg *config.Config, db *sql.DB, store seeder, logger *zap.Logger) {
	if err := store.Ping(ctx); err != nil {
		logger.Error("skipping database initialization", zap.Error(err))
		return
	}
	if err := migrateUp(ctx, db); err != nil {
		logger.Error("failed to apply migrations", zap.Error(err))
		return
	}

	created, err := store.CreateIfAbsent(ctx, cfg.SeedUsername, cfg.SeedPassword)
	if err != nil {
		logger.Error("failed to create default user", zap.Error(err))
		return
	}
	if created {
		logger.Info("default user created", zap.String("username", cfg.SeedUsername))
	}
}

// cookieOptions はセッションクッキーの属性です。MaxAge は session.Manager が決めます。
func cookieOptions(cfg *config.Config) sessions.Options {
	return sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	}
}

// newRouter は Gin エンジンを組み立てます。
func newRouter(cfg *config.Config, authManager *auth.Manager, store healthChecker, logger *zap.Logger) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(logging.Middleware(logger), gin.Recovery())
	router.SetHTMLTemplate(auth.Templates())

	// セッションストアの設定（クッキー署名鍵は必須、暗号化鍵は任意）
	var keyPairs [][]byte
	if len(cfg.SessionEncryptionKey) > 0 {
		keyPairs = [][]byte{cfg.SessionSecret, cfg.SessionEncryptionKey}
	} else {
		keyPairs = [][]byte{cfg.SessionSecret}
	}
	sessionStore := cookie.NewStore(keyPairs...)
	sessionStore.Options(authManager.Sessions().CookieOptions())
	router.Use(auth.SessionMiddleware(sessionStore))

	// フロントエンドを別オリジンで配信する場合のみ CORS を有効にする
	if cfg.CORSAllowedOrigins != "" {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
		corsConfig.AllowCredentials = true
		router.Use(cors.New(corsConfig))
	}

	router.GET("/health", handleHealth(store))
	authManager.Register(router)
	return router
}
