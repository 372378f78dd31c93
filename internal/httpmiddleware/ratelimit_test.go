package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"attendease/internal/auth"
)

func TestAllowRefills(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60)
	l.now = func() time.Time { return clock }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	clock = clock.Add(time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	clock = clock.Add(time.Hour)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestGinMiddlewareKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewTokenBucket(1, 1)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-User"); id != "" {
			c.Set("principal", auth.Principal{UserID: id, Role: auth.RoleStudent})
		}
		c.Next()
	})
	r.Use(l.GinMiddleware(nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, do("u1").Code)
	assert.Equal(t, http.StatusNoContent, do("u2").Code)
	assert.Equal(t, http.StatusNoContent, do("").Code)

	w := do("u1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"message":"rate limit exceeded"}`, w.Body.String())
	assert.Equal(t, http.StatusTooManyRequests, do("").Code)
}
