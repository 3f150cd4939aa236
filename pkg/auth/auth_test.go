package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"rentmarket/pkg/response"
)

func setupAuthRouter(i *Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", i.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestIssuer_IssueAndVerify(t *testing.T) {
	i := NewIssuer("secret", time.Hour)

	token, err := i.Issue("user-1")
	require.NoError(t, err)

	userID, err := i.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestIssuer_RejectsForeignAndExpiredTokens(t *testing.T) {
	i := NewIssuer("secret", time.Hour)
	other := NewIssuer("other-secret", time.Hour)

	token, err := other.Issue("user-1")
	require.NoError(t, err)
	_, err = i.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired := NewIssuer("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err = expired.Issue("user-1")
	require.NoError(t, err)
	_, err = i.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	i := NewIssuer("secret", time.Hour)
	r := setupAuthRouter(i)
	token, err := i.Issue("user-7")
	require.NoError(t, err)

	t.Run("header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "user-7", w.Body.String())
	})

	t.Run("query token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)

		var resp response.APIResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.False(t, resp.Success)
		require.Equal(t, "missing bearer token", resp.Message)
	})

	t.Run("garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
