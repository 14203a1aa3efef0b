package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"courier/internal/config"
)

func TestMiddleware_LimitsPerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiters := NewLimiters(config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2})

	router := gin.New()
	router.Use(limiters.Middleware())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "other clients have their own bucket")
	assert.Equal(t, 2, limiters.Len())
}

func TestLimiters_EvictIdle(t *testing.T) {
	limiters := NewLimiters(config.RateLimitConfig{MaxAge: time.Minute})
	limiters.get("a")
	limiters.get("b")

	limiters.evictIdle(time.Now().Add(2 * time.Minute))
	assert.Zero(t, limiters.Len())
}
