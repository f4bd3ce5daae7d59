package middleware

import (
	"net/http"
	"strings"
	"time"

	"aptos-x402-gateway/internal/core/ports"
	"aptos-x402-gateway/pkg/apperror"
	"aptos-x402-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxRequestID = "request_id"
	CtxSubject   = "token_subject"
)

// ServiceAuth validates the bearer service token sent by gateways to the
// facilitator. allowedSubjects, when non-empty, restricts the token subject.
func ServiceAuth(tokenSvc ports.TokenService, log zerolog.Logger, allowedSubjects ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedSubjects))
	for _, s := range allowedSubjects {
		allowed[s] = struct{}{}
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenStr == "" {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("service token rejected")
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}
		if len(allowed) > 0 {
			if _, ok := allowed[claims.Subject]; !ok {
				log.Warn().Str("subject", claims.Subject).Msg("service token subject not allowed")
				response.Error(c, apperror.ErrUnauthorized())
				c.Abort()
				return
			}
		}

		c.Set(CtxSubject, claims.Subject)
		c.Next()
	}
}

// RequestID propagates or assigns an X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest && status != http.StatusPaymentRequired {
			event = log.Warn()
		}

		event = event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP())
		if id, ok := c.Get(CtxPaymentID); ok {
			event = event.Interface("payment_id", id)
		}
		event.Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": apperror.CodeInternal,
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
