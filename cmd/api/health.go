package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/session-login/internal/migrations"
)

// migrateUp はテストで差し替えるためのフックです。
var migrateUp = migrations.Up

type healthChecker interface {
	Ping(ctx context.Context) error
}

type seeder interface {
	healthChecker
	CreateIfAbsent(ctx context.Context, username, secret string) (bool, error)
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
// データベースの詳細なエラーは返しません。
func handleHealth(store healthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "degraded",
				"service": "session-login",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "session-login",
		})
	}
}
