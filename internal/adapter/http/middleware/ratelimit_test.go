package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aptos-x402-gateway/internal/adapter/http/middleware"
	redisStore "aptos-x402-gateway/internal/adapter/storage/redis"
	"aptos-x402-gateway/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func setupRateLimitRouter(t *testing.T, skip ...middleware.SkipFunc) (*miniredis.Miniredis, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := redisStore.NewRateLimitStore(client)
	rule := middleware.RateLimitRule{Limit: 3, Window: time.Minute}

	r := gin.New()
	r.GET("/test", middleware.RateLimiter(store, "test", rule, zerolog.Nop(), skip...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return mr, r
}

func doGet(r *gin.Engine, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	_, router := setupRateLimitRouter(t)

	for i := 0; i < 3; i++ {
		w := doGet(router, "203.0.113.1:1000", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	_, router := setupRateLimitRouter(t)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doGet(router, "203.0.113.1:1000", nil).Code)
	}

	w := doGet(router, "203.0.113.1:1000", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_001")
}

func TestRateLimiter_PerClientIP(t *testing.T) {
	_, router := setupRateLimitRouter(t)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doGet(router, "203.0.113.1:1000", nil).Code)
	}

	assert.Equal(t, http.StatusOK, doGet(router, "198.51.100.7:1000", nil).Code)
}

func TestRateLimiter_SkipsPaidRequests(t *testing.T) {
	_, router := setupRateLimitRouter(t, middleware.CarriesPayment)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doGet(router, "203.0.113.1:1000", nil).Code)
	}

	paid := doGet(router, "203.0.113.1:1000", map[string]string{domain.HeaderPayment: `{"x402Version":1}`})
	assert.Equal(t, http.StatusOK, paid.Code, "requests with a proof are not counted")
	assert.Empty(t, paid.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, http.StatusTooManyRequests, doGet(router, "203.0.113.1:1000", nil).Code)
}

type pathRules map[string]domain.PaymentRule

func (p pathRules) Resolve(path string) (domain.PaymentRule, bool) {
	r, ok := p[path]
	return r, ok
}

func TestRateLimiter_SkipsUnpricedPaths(t *testing.T) {
	_, router := setupRateLimitRouter(t, middleware.Unpriced(pathRules{}))

	for i := 0; i < 5; i++ {
		w := doGet(router, "203.0.113.1:1000", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}

	_, priced := setupRateLimitRouter(t, middleware.Unpriced(pathRules{"/test": {Amount: "0.01"}}))
	assert.NotEmpty(t, doGet(priced, "203.0.113.1:1000", nil).Header().Get("X-RateLimit-Limit"))
}

func TestRateLimiter_DegradedMode(t *testing.T) {
	mr, router := setupRateLimitRouter(t)
	mr.Close()

	w := doGet(router, "203.0.113.1:1000", nil)
	assert.Equal(t, http.StatusOK, w.Code, "store errors allow the request")
}

func TestDefaultRateLimitRules(t *testing.T) {
	rules := middleware.DefaultRateLimitRules()
	assert.Equal(t, int64(60), rules[middleware.GroupPaymentRequired].Limit)
	assert.Equal(t, time.Minute, rules[middleware.GroupPaymentRequired].Window)
	assert.Equal(t, int64(300), rules[middleware.GroupFacilitator].Limit)
}
