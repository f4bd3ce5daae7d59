package ports

import (
	"context"
	"time"

	"aptos-x402-gateway/internal/core/domain"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

// RefillEventRepository persists refill attempts.
type RefillEventRepository interface {
	Create(ctx context.Context, event *domain.RefillEvent) error
	ListByWallet(ctx context.Context, walletAddress string, limit int) ([]domain.RefillEvent, error)
}

// TransferRepository persists transfers made by a balance manager.
type TransferRepository interface {
	Create(ctx context.Context, record *domain.TransferRecord) error
	ListByAddress(ctx context.Context, address string, limit int) ([]domain.TransferRecord, error)
}

// PaymentEventRepository persists gate decisions.
type PaymentEventRepository interface {
	Create(ctx context.Context, event *domain.PaymentEvent) error
}

// SettlementRepository persists payments accepted by the facilitator.
type SettlementRepository interface {
	Create(ctx context.Context, settlement *domain.Settlement) error
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Settlement, error)
}

// ReplayGuard remembers identifiers that must only be accepted once.
type ReplayGuard interface {
	// CheckAndSet atomically records id under scope.
	// Returns true if id is new, false if it was already consumed.
	CheckAndSet(ctx context.Context, scope string, id string, ttl time.Duration) (bool, error)
	// Release forgets id so it can be consumed again.
	Release(ctx context.Context, scope string, id string) error
}
