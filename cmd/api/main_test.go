package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/session-login/internal/auth"
	"github.com/yourusername/session-login/internal/config"
	"github.com/yourusername/session-login/internal/password"
	"github.com/yourusername/session-login/internal/session"
)

type fakeStore struct {
	pingErr   error
	createErr error
	created   bool
	seeded    []string
	hashes    map[string]string
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeStore) CreateIfAbsent(ctx context.Context, username, secret string) (bool, error) {
	f.seeded = append(f.seeded, username)
	return f.created, f.createErr
}

func (f *fakeStore) FindPasswordHash(ctx context.Context, username string) (string, bool, error) {
	hash, ok := f.hashes[username]
	return hash, ok, nil
}

func testConfig() *config.Config {
	return &config.Config{
		SessionSecret:  []byte("0123456789abcdef0123456789abcdef"),
		SessionTimeout: time.Minute,
		SeedUsername:   "student",
		SeedPassword:   "2301769",
		GinMode:        gin.TestMode,
	}
}

func stubMigrations(t *testing.T, err error) *int {
	t.Helper()
	orig := migrateUp
	t.Cleanup(func() { migrateUp = orig })
	calls := 0
	migrateUp = func(ctx context.Context, db *sql.DB) error {
		calls++
		return err
	}
	return &calls
}

func TestInitDatabaseSeedsUser(t *testing.T) {
	calls := stubMigrations(t, nil)
	core, logs := observer.New(zap.InfoLevel)
	store := &fakeStore{created: true}

	initDatabase(context.Background(), testConfig(), nil, store, zap.New(core))

	if *calls != 1 {
		t.Fatalf("expected migrations to run once, got %d", *calls)
	}
	if len(store.seeded) != 1 || store.seeded[0] != "student" {
		t.Fatalf("unexpected seed calls: %#v", store.seeded)
	}
	if logs.FilterMessage("default user created").Len() != 1 {
		t.Fatal("expected creation log")
	}
}

func TestInitDatabaseSkipsWhenUnreachable(t *testing.T) {
	calls := stubMigrations(t, nil)
	core, logs := observer.New(zap.InfoLevel)
	store := &fakeStore{pingErr: errors.New("connection refused")}

	initDatabase(context.Background(), testConfig(), nil, store, zap.New(core))

	if *calls != 0 || len(store.seeded) != 0 {
		t.Fatal("initialization must be skipped when the database is unreachable")
	}
	if logs.FilterMessage("skipping database initialization").Len() != 1 {
		t.Fatal("expected skip log")
	}
}

func TestInitDatabaseStopsOnMigrationError(t *testing.T) {
	stubMigrations(t, errors.New("bad migration"))
	store := &fakeStore{}

	initDatabase(context.Background(), testConfig(), nil, store, zap.NewNop())

	if len(store.seeded) != 0 {
		t.Fatal("seed must not run after migration failure")
	}
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{name: "ok", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "degraded", pingErr: errors.New("dial tcp: secret-host refused"), wantStatus: http.StatusServiceUnavailable, wantBody: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/health", handleHealth(&fakeStore{pingErr: tt.pingErr}))

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			var payload map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if payload["status"] != tt.wantBody {
				t.Fatalf("unexpected status field: %s", payload["status"])
			}
			if strings.Contains(rec.Body.String(), "secret-host") {
				t.Fatal("internal error detail leaked")
			}
		})
	}
}

func TestNewRouterServesLoginPage(t *testing.T) {
	hasher := password.NewHasher(bcrypt.MinCost)
	store := &fakeStore{hashes: map[string]string{}}
	authManager, err := auth.NewManager(store, hasher, session.NewManager(time.Minute), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	router := newRouter(testConfig(), authManager, store, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `id="password"`) {
		t.Fatalf("login form missing: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestCookieOptionsSecureInRelease(t *testing.T) {
	cfg := testConfig()
	if cookieOptions(cfg).Secure {
		t.Fatal("Secure must be off outside release mode")
	}

	cfg.GinMode = gin.ReleaseMode
	opts := cookieOptions(cfg)
	if !opts.Secure || !opts.HttpOnly || opts.Path != "/" {
		t.Fatalf("unexpected release cookie options: %#v", opts)
	}

	sm := session.NewManager(cfg.SessionTimeout, session.WithCookieOptions(opts))
	if got := sm.CookieOptions(); got.MaxAge != 60 || !got.Secure {
		t.Fatalf("unexpected session cookie options: %#v", got)
	}
}
