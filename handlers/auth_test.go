package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/postboard/postboard/backend/go-services/internal/config"
	"github.com/postboard/postboard/backend/go-services/internal/sessions"
	"github.com/postboard/postboard/backend/go-services/internal/tokens"
	"github.com/postboard/postboard/backend/go-services/internal/users"
	"github.com/postboard/postboard/backend/go-services/pkg/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret-32-bytes-xxxxxxx"

func newAuthRouter(t *testing.T, env string, usersSvc *users.Service) (*gin.Engine, *config.Config) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Environment = env
	cfg.JWT.Secret = testSecret
	cfg.JWT.AccessTokenTTL = 10 * time.Minute

	g := gin.New()
	NewAuthHandler(cfg, usersSvc).Register(g, middleware.AuthMiddleware(tokens.NewVerifier(testSecret)))
	return g, cfg
}

func devToken(t *testing.T, g *gin.Engine, body string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/dev-token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out["accessToken"].(string)
}

func call(g *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func TestMeUpsertsUser(t *testing.T) {
	g, _ := newAuthRouter(t, "development", users.NewService(users.NewMemoryUserRepository()))
	tok := devToken(t, g, `{"sub":"alice","name":"Alice","email":"a@b.c","roles":["admin"]}`)

	w := call(g, http.MethodGet, "/api/auth/me", tok)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		User struct {
			Sub   string   `json:"sub"`
			Name  string   `json:"name"`
			Roles []string `json:"roles"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "alice", out.User.Sub)
	assert.Equal(t, "Alice", out.User.Name)
	assert.Equal(t, []string{"admin"}, out.User.Roles)

	assert.Equal(t, http.StatusUnauthorized, call(g, http.MethodGet, "/api/auth/me", "").Code)
}

func TestMeFallsBackToClaims(t *testing.T) {
	g, _ := newAuthRouter(t, "development", nil)
	tok := devToken(t, g, `{"sub":"bob"}`)

	w := call(g, http.MethodGet, "/api/auth/me", tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"claims"`)
	assert.Contains(t, w.Body.String(), `"bob"`)
}

func TestDevTokenOnlyInDevelopment(t *testing.T) {
	g, _ := newAuthRouter(t, "production", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/dev-token", strings.NewReader(`{"sub":"x"}`))
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	dev, _ := newAuthRouter(t, "development", nil)
	req = httptest.NewRequest(http.MethodPost, "/api/auth/dev-token", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	dev.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogoutBlacklistsAccessToken(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	sessions.SetBlacklistClient(redis.NewClient(&redis.Options{Addr: m.Addr()}))
	defer sessions.SetBlacklistClient(nil)

	g, _ := newAuthRouter(t, "development", nil)
	tok := devToken(t, g, `{"sub":"carol"}`)

	require.Equal(t, http.StatusOK, call(g, http.MethodGet, "/api/auth/me", tok).Code)
	w := call(g, http.MethodPost, "/api/auth/logout", tok)
	require.Equal(t, http.StatusOK, w.Code)

	black, err := sessions.IsAccessTokenBlacklisted(context.Background(), tok)
	require.NoError(t, err)
	assert.True(t, black)
	assert.Equal(t, http.StatusUnauthorized, call(g, http.MethodGet, "/api/auth/me", tok).Code)
}
