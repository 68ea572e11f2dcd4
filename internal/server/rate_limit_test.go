package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/feeledger/internal/ratelimit"
	"github.com/stretchr/testify/assert"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*ratelimit.Result, error) {
	return nil, errors.New("redis down")
}

func rateLimitedRouter(limiter ratelimit.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	srv := &Server{limiter: limiter}
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.Use(func(c *gin.Context) {
		c.Set(contextAPIKeyIDKey, c.GetHeader("X-Key"))
		c.Next()
	})
	router.Use(srv.RateLimited())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return router
}

func ping(router *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Key", key)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRateLimited_PerAPIKey(t *testing.T) {
	router := rateLimitedRouter(ratelimit.NewLocalLimiter(0.001, 2))

	assert.Equal(t, http.StatusNoContent, ping(router, "key-a").Code)
	assert.Equal(t, http.StatusNoContent, ping(router, "key-a").Code)

	resp := ping(router, "key-a")
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("Retry-After"))
	assert.Contains(t, resp.Body.String(), "rate_limited")

	// another key has its own bucket
	assert.Equal(t, http.StatusNoContent, ping(router, "key-b").Code)
}

func TestRateLimited_FailsOpen(t *testing.T) {
	router := rateLimitedRouter(failingLimiter{})
	assert.Equal(t, http.StatusNoContent, ping(router, "key-a").Code)

	router = rateLimitedRouter(nil)
	assert.Equal(t, http.StatusNoContent, ping(router, "key-a").Code)
}
