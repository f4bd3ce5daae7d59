package postgres

import (
	"context"
	"fmt"

	"aptos-x402-gateway/internal/core/domain"
)

// PaymentEventRepo implements ports.PaymentEventRepository.
type PaymentEventRepo struct {
	pool Pool
}

// NewPaymentEventRepo creates a new PaymentEventRepo.
func NewPaymentEventRepo(pool Pool) *PaymentEventRepo {
	return &PaymentEventRepo{pool: pool}
}

func (r *PaymentEventRepo) Create(ctx context.Context, ev *domain.PaymentEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payment_events (id, payment_id, path, outcome, reason, amount, transaction_hash, client_ip, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.PaymentID, ev.Path, string(ev.Outcome), ev.Reason,
		ev.Amount, ev.TransactionHash, ev.ClientIP, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}
