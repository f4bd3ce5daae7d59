package response

import (
	"errors"
	"net/http"
	"time"

	"aptos-x402-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// PaymentDetails is the human-readable summary of a payment requirement.
type PaymentDetails struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Recipient   string `json:"recipient"`
	Description string `json:"description,omitempty"`
}

// PaymentRequiredBody is the body of a 402 issued for a gated resource.
type PaymentRequiredBody struct {
	Error          string         `json:"error"`
	Message        string         `json:"message"`
	PaymentDetails PaymentDetails `json:"paymentDetails"`
}

// PaymentRejectedBody is the body of a 402 issued after a failed verification.
type PaymentRejectedBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// PaymentRequired sends a 402 carrying the encoded requirement in headerName.
func PaymentRequired(c *gin.Context, headerName, headerValue string, body interface{}) {
	c.Header(headerName, headerValue)
	c.JSON(http.StatusPaymentRequired, body)
}

// Error sends an error response. It checks if err is an *apperror.AppError
// and maps it accordingly, otherwise returns 500.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, ErrorResponse{
			ErrorCode: appErr.Code,
			Message:   appErr.Message,
			RequestID: getRequestID(c),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	// Unknown error -> 500
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		ErrorCode: apperror.CodeInternal,
		Message:   "Internal server error",
		RequestID: getRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// getRequestID retrieves request ID from context, or generates one.
func getRequestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
