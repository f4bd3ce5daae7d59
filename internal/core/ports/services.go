package ports

import (
	"context"
	"time"

	"aptos-x402-gateway/internal/core/domain"
)

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService issues and validates service-to-service tokens.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// PaymentEventRecorder records gate decisions without blocking the request.
type PaymentEventRecorder interface {
	Record(ctx context.Context, event *domain.PaymentEvent)
}

// RefillNotifier announces refill attempts to an operator channel.
type RefillNotifier interface {
	NotifyRefill(ctx context.Context, event domain.RefillEvent) error
}
