package ports

import (
	"context"

	"aptos-x402-gateway/internal/core/domain"
)

//go:generate mockgen -source=facilitator.go -destination=mocks/mock_facilitator.go -package=mocks

// PaymentVerifier checks proofs and relays signed transactions.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error)
	SubmitTransaction(ctx context.Context, signedPayload []byte) (*domain.SubmitResult, error)
}

// RuleResolver maps a request path to its price.
type RuleResolver interface {
	Resolve(path string) (domain.PaymentRule, bool)
}

// Ledger reads and writes the chain on behalf of the facilitator.
type Ledger interface {
	// TransactionByHash returns nil, nil when the hash is unknown.
	TransactionByHash(ctx context.Context, hash string) (*domain.LedgerTransaction, error)
	SubmitSignedTransaction(ctx context.Context, payload []byte) (string, error)
}
