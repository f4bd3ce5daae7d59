package middleware

import (
	"fmt"
	"strconv"
	"time"

	redisStore "aptos-x402-gateway/internal/adapter/storage/redis"
	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports"
	"aptos-x402-gateway/pkg/apperror"
	"aptos-x402-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// Rate limit groups
const (
	GroupPaymentRequired = "payment_required"
	GroupFacilitator     = "facilitator"
)

// DefaultRateLimitRules returns the default limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		GroupPaymentRequired: {Limit: 60, Window: time.Minute},
		GroupFacilitator:     {Limit: 300, Window: time.Minute},
	}
}

// SkipFunc exempts a request from a rate limit.
type SkipFunc func(c *gin.Context) bool

// CarriesPayment skips requests that present a payment proof, so only
// requests that will be answered with a fresh requirement are counted.
func CarriesPayment(c *gin.Context) bool {
	return c.GetHeader(domain.HeaderPayment) != ""
}

// Unpriced skips requests for paths without a payment rule.
func Unpriced(resolver ports.RuleResolver) SkipFunc {
	return func(c *gin.Context) bool {
		_, ok := resolver.Resolve(c.Request.URL.Path)
		return !ok
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Requests matching any skip function are not counted.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger, skip ...SkipFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, s := range skip {
			if s(c) {
				c.Next()
				return
			}
		}

		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)
		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier determines the rate limit key source: the service
// token subject when authenticated, the client IP otherwise.
func extractIdentifier(c *gin.Context) string {
	if sub, exists := c.Get(CtxSubject); exists {
		return fmt.Sprintf("sub:%v", sub)
	}
	return c.ClientIP()
}
