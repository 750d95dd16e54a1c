package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitescan/internal/redis"
)

func newTestService(t *testing.T, rdb *redis.Client) *Service {
	t.Helper()
	svc, err := NewService("test-secret", time.Hour, rdb)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService("", time.Hour, nil)
	assert.Error(t, err)
}

func TestAuthIssueValidateRevoke(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	token, err := svc.IssueToken(ctx, 7)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "7", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)

	require.NoError(t, svc.RevokeToken(ctx, token))
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	other, err := svc.IssueToken(ctx, 7)
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, other)
	assert.NoError(t, err, "revoking one token leaves others valid")
}

func TestAuthRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	_, err := svc.IssueToken(ctx, 0)
	assert.Error(t, err)

	_, err = svc.ValidateToken(ctx, "")
	assert.ErrorIs(t, err, ErrTokenRequired)

	_, err = svc.ValidateToken(ctx, "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := NewService("other-secret", time.Hour, nil)
	require.NoError(t, err)
	token, err := foreign.IssueToken(ctx, 1)
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthValidateExpiredToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	issued := time.Now()
	svc.now = func() time.Time { return issued }

	token, err := svc.IssueToken(ctx, 2)
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NoError(t, svc.RevokeToken(ctx, token), "revoking an expired token is a no-op")
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t, nil)
	token, err := svc.IssueToken(context.Background(), 42)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", svc.Middleware(), func(c *gin.Context) {
		id, _ := UserIDFromContext(c)
		tok, _ := TokenFromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "sameToken": tok == token})
	})

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := do("Bearer " + token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42,"sameToken":true}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, do(token).Code)
}

func TestAuthRevocationUsesRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed auth tests")
	}
	client, err := redis.Dial(&goredis.Options{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	svc := newTestService(t, client)
	token, err := svc.IssueToken(ctx, 10)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeToken(ctx, token))
	exists, err := client.Exists(ctx, revokedKeyPrefix+claims.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}
