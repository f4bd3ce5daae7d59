package ports

import (
	"context"
	"time"

	"aptos-x402-gateway/internal/core/domain"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=wallet.go -destination=mocks/mock_wallet.go -package=mocks

// Wallet is the signing capability behind a single account.
// Every method except Connect and IsConnected fails with WAL_003 before
// Connect succeeds.
type Wallet interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	Address() (string, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	// SignAndSubmit returns the transaction identifier. An insufficient
	// balance is reported as WAL_004.
	SignAndSubmit(ctx context.Context, payload domain.TransferPayload) (string, error)
}

// FundsManager keeps the spending wallet funded and pays from it.
type FundsManager interface {
	EnsureFunds(ctx context.Context) error
	Pay(ctx context.Context, payload domain.TransferPayload) (*domain.TransferRecord, error)
}

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}
