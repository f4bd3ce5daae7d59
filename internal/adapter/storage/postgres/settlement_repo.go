package postgres

import (
	"context"
	"errors"
	"fmt"

	"aptos-x402-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SettlementRepo implements ports.SettlementRepository.
type SettlementRepo struct {
	pool Pool
}

// NewSettlementRepo creates a new SettlementRepo.
func NewSettlementRepo(pool Pool) *SettlementRepo {
	return &SettlementRepo{pool: pool}
}

// Create inserts a settlement. A second settlement for the same paymentId
// violates the unique constraint and is returned as an error.
func (r *SettlementRepo) Create(ctx context.Context, s *domain.Settlement) error {
	query := `INSERT INTO settlements (id, payment_id, transaction_hash, sender_address, recipient_address, amount, network, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.PaymentID, s.TransactionHash, s.SenderAddress, s.RecipientAddress,
		s.Amount.String(), string(s.Network), s.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// GetByPaymentID returns nil, nil when the payment has not settled.
func (r *SettlementRepo) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Settlement, error) {
	query := `SELECT id, payment_id, transaction_hash, sender_address, recipient_address, amount::text, network, verified_at
		FROM settlements WHERE payment_id = $1`

	var (
		s       domain.Settlement
		amount  string
		network string
	)
	err := r.pool.QueryRow(ctx, query, paymentID).Scan(
		&s.ID, &s.PaymentID, &s.TransactionHash, &s.SenderAddress, &s.RecipientAddress,
		&amount, &network, &s.VerifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settlement by payment id: %w", err)
	}
	if s.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse settlement amount %q: %w", amount, err)
	}
	s.Network = domain.Network(network)
	return &s, nil
}
