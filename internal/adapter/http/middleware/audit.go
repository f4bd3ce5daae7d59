package middleware

import (
	"fmt"
	"time"

	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentAudit records the decision PaymentGate reached for each gated
// request. It must run before PaymentGate; requests the gate let through
// without a rule are not recorded.
func PaymentAudit(recorder ports.PaymentEventRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		outcome, ok := c.Get(CtxPaymentOutcome)
		if !ok {
			return
		}

		event := &domain.PaymentEvent{
			ID:        uuid.New(),
			PaymentID: c.GetString(CtxPaymentID),
			Path:      c.Request.URL.Path,
			Outcome:   outcome.(domain.PaymentOutcome),
			Reason:    c.GetString(CtxPaymentReason),
			Amount:    c.GetString(CtxPaymentAmount),
			ClientIP:  c.ClientIP(),
			CreatedAt: time.Now(),
		}
		if v, ok := c.Get(CtxPaymentResult); ok {
			if result, ok := v.(*domain.VerifyResult); ok {
				event.TransactionHash = result.TransactionHash
			}
		}
		if event.Outcome == domain.PaymentOutcomeVerified && c.Writer.Status() >= 500 {
			event.Reason = fmt.Sprintf("handler failed with status %d", c.Writer.Status())
		}

		recorder.Record(c.Request.Context(), event)
	}
}
