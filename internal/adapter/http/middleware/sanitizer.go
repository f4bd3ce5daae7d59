package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultMaxBodyBytes limits request bodies on the gateway and facilitator.
const DefaultMaxBodyBytes = 1 << 20

// MaxHeaderValueBytes bounds an X-Aptos-Payment value. Signed payloads are
// base64 inside the header, so this is generous.
const MaxHeaderValueBytes = 16 << 10

// MaxBodySize returns middleware that limits the request body size.
// Once the limit is exceeded the reader returns an error and the
// request is rejected with 413 Payload Too Large.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// MaxHeaderSize rejects requests whose named header exceeds maxBytes with
// 431 Request Header Fields Too Large.
func MaxHeaderSize(header string, maxBytes int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(c.GetHeader(header)) > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestHeaderFieldsTooLarge, gin.H{
				"error_code": "HDR_001",
				"message":    header + " header too large",
			})
			return
		}
		c.Next()
	}
}
