package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/postboard/postboard/backend/go-services/internal/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier accepts exactly one token.
type fakeVerifier struct {
	good   string
	claims map[string]interface{}
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{good: "goodtoken", claims: map[string]interface{}{"sub": "user1", "email": "test@example.com"}}
}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if raw == f.good {
		return &fakeToken{data: f.claims}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func serve(g *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	g := gin.New()
	g.GET("/", AuthMiddleware(newFakeVerifier()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	require.Equal(t, http.StatusUnauthorized, serve(g, "").Code)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	g := gin.New()
	g.GET("/", AuthMiddleware(newFakeVerifier()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	require.Equal(t, http.StatusUnauthorized, serve(g, "BadHeader").Code)
	require.Equal(t, http.StatusUnauthorized, serve(g, "Bearer wrong").Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	g := gin.New()
	g.GET("/", AuthMiddleware(newFakeVerifier()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"claims": Claims(c), "sub": Subject(c)})
	})
	rw := serve(g, "Bearer goodtoken")

	require.Equal(t, http.StatusOK, rw.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Contains(t, got, "claims")
	require.Equal(t, "user1", got["sub"])
}

func TestAuthMiddleware_RejectsBlacklistedToken(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	sessions.SetBlacklistClient(client)
	defer sessions.SetBlacklistClient(nil)

	token := "goodtoken"
	require.NoError(t, sessions.BlacklistAccessToken(context.Background(), token, 5*time.Second))

	g := gin.New()
	g.GET("/", AuthMiddleware(newFakeVerifier()), func(c *gin.Context) { c.Status(http.StatusOK) })
	require.Equal(t, http.StatusUnauthorized, serve(g, "Bearer "+token).Code)
}

func TestChainVerifier(t *testing.T) {
	first := &fakeVerifier{good: "a", claims: map[string]interface{}{"sub": "from-a"}}
	second := &fakeVerifier{good: "b", claims: map[string]interface{}{"sub": "from-b"}}
	chain := ChainVerifier{nil, first, second}

	tok, err := chain.Verify(context.Background(), "b")
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "from-b", claims["sub"])

	_, err = chain.Verify(context.Background(), "c")
	require.Error(t, err)

	_, err = ChainVerifier{}.Verify(context.Background(), "a")
	require.Error(t, err)
}

func TestSubjectFallsBackToLegacyIDClaims(t *testing.T) {
	cases := []struct {
		claims map[string]interface{}
		want   string
	}{
		{map[string]interface{}{"sub": "s", "id": "i"}, "s"},
		{map[string]interface{}{"id": "i", "_id": "x"}, "i"},
		{map[string]interface{}{"_id": "x"}, "x"},
		{map[string]interface{}{"email": "a@b"}, ""},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set("claims", tc.claims)
		require.Equal(t, tc.want, Subject(c))
	}
}

func TestRequireRole(t *testing.T) {
	admin := &fakeVerifier{good: "admin", claims: map[string]interface{}{
		"sub":          "root",
		"realm_access": map[string]interface{}{"roles": []interface{}{"offline_access", "admin"}},
	}}
	g := gin.New()
	g.GET("/", AuthMiddleware(ChainVerifier{admin, newFakeVerifier()}), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	require.Equal(t, http.StatusOK, serve(g, "Bearer admin").Code)
	require.Equal(t, http.StatusForbidden, serve(g, "Bearer goodtoken").Code)

	require.True(t, HasRole(map[string]interface{}{"role": "Admin"}, "admin"))
	require.True(t, HasRole(map[string]interface{}{"roles": []string{"admin"}}, "admin"))
	require.False(t, HasRole(nil, "admin"))
}
