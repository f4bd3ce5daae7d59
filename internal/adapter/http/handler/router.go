package handler

import (
	"time"

	"aptos-x402-gateway/internal/adapter/http/middleware"
	redisStore "aptos-x402-gateway/internal/adapter/storage/redis"
	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// GatewayDeps holds everything the resource server needs.
type GatewayDeps struct {
	Resolver       ports.RuleResolver
	Verifier       ports.PaymentVerifier
	Replay         ports.ReplayGuard          // nil = paymentId replay check disabled
	ReplayTTL      time.Duration
	Network        domain.Network
	TokenAddress   string
	Recorder       ports.PaymentEventRecorder // nil = gate audit disabled
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule
	HealthCheckers []ports.HealthChecker
	Clock          ports.Clock
	Logger         zerolog.Logger
}

// NewGatewayRouter builds the resource server: demo routes behind the
// payment gate, plus an ungated deep /health.
func NewGatewayRouter(deps GatewayDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(middleware.DefaultMaxBodyBytes))
	r.Use(middleware.MaxHeaderSize(domain.HeaderPayment, middleware.MaxHeaderValueBytes))

	if deps.Recorder != nil {
		r.Use(middleware.PaymentAudit(deps.Recorder))
	}
	if rl := rateLimiter(deps.RateLimitStore, deps.RateLimitRules, middleware.GroupPaymentRequired, deps.Logger,
		middleware.Unpriced(deps.Resolver), middleware.CarriesPayment); rl != nil {
		r.Use(rl)
	}
	r.Use(middleware.PaymentGate(middleware.GateConfig{
		Resolver:     deps.Resolver,
		Verifier:     deps.Verifier,
		Replay:       deps.Replay,
		ReplayTTL:    deps.ReplayTTL,
		Network:      deps.Network,
		TokenAddress: deps.TokenAddress,
		Clock:        deps.Clock,
		Log:          deps.Logger,
	}))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	api := r.Group("/api")
	{
		api.GET("/free/hello", Hello)
		api.GET("/premium/weather", Weather)
		api.GET("/premium/stocks", Stocks)
	}

	return r
}

// FacilitatorDeps holds everything the facilitator server needs.
type FacilitatorDeps struct {
	Verifier        ports.PaymentVerifier
	TokenSvc        ports.TokenService // nil = unauthenticated
	AllowedSubjects []string
	RateLimitStore  *redisStore.RateLimitStore
	RateLimitRules  map[string]middleware.RateLimitRule
	HealthCheckers  []ports.HealthChecker
	Docs            *APIDocs
	Logger          zerolog.Logger
}

// NewFacilitatorRouter builds the facilitator API.
func NewFacilitatorRouter(deps FacilitatorDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(middleware.DefaultMaxBodyBytes))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Docs != nil {
		r.GET("/docs", deps.Docs.UIHandler("/docs/spec"))
		r.GET("/docs/spec", deps.Docs.SpecHandler)
	}

	h := NewFacilitatorHandler(deps.Verifier, deps.Logger)
	api := r.Group("")
	if deps.TokenSvc != nil {
		api.Use(middleware.ServiceAuth(deps.TokenSvc, deps.Logger, deps.AllowedSubjects...))
	}
	if rl := rateLimiter(deps.RateLimitStore, deps.RateLimitRules, middleware.GroupFacilitator, deps.Logger); rl != nil {
		api.Use(rl)
	}
	api.POST("/verify-payment", h.VerifyPayment)
	api.POST("/submit-transaction", h.SubmitTransaction)

	return r
}

// rateLimiter returns nil when the store is missing or the group has no rule.
func rateLimiter(store *redisStore.RateLimitStore, rules map[string]middleware.RateLimitRule, group string, log zerolog.Logger, skip ...middleware.SkipFunc) gin.HandlerFunc {
	if store == nil {
		return nil
	}
	if rules == nil {
		rules = middleware.DefaultRateLimitRules()
	}
	rule, ok := rules[group]
	if !ok {
		return nil
	}
	return middleware.RateLimiter(store, group, rule, log, skip...)
}
