package postgres

import (
	"context"
	"fmt"

	"aptos-x402-gateway/internal/core/domain"

	"github.com/shopspring/decimal"
)

// RefillEventRepo implements ports.RefillEventRepository.
type RefillEventRepo struct {
	pool Pool
}

// NewRefillEventRepo creates a new RefillEventRepo.
func NewRefillEventRepo(pool Pool) *RefillEventRepo {
	return &RefillEventRepo{pool: pool}
}

// Create appends a refill attempt.
func (r *RefillEventRepo) Create(ctx context.Context, ev *domain.RefillEvent) error {
	query := `INSERT INTO refill_events (id, wallet_address, amount, transaction_id, reason, success, error, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		ev.ID, ev.WalletAddress, ev.Amount.String(), ev.TransactionID,
		string(ev.Reason), ev.Success, ev.Error, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert refill event: %w", err)
	}
	return nil
}

// ListByWallet returns the newest refill attempts for walletAddress.
func (r *RefillEventRepo) ListByWallet(ctx context.Context, walletAddress string, limit int) ([]domain.RefillEvent, error) {
	query := `SELECT id, wallet_address, amount::text, transaction_id, reason, success, error, created_at
		FROM refill_events WHERE wallet_address = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, walletAddress, limit)
	if err != nil {
		return nil, fmt.Errorf("list refill events: %w", err)
	}
	defer rows.Close()

	var events []domain.RefillEvent
	for rows.Next() {
		var (
			ev     domain.RefillEvent
			amount string
			reason string
		)
		if err := rows.Scan(&ev.ID, &ev.WalletAddress, &amount, &ev.TransactionID,
			&reason, &ev.Success, &ev.Error, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan refill event row: %w", err)
		}
		if ev.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse refill amount %q: %w", amount, err)
		}
		ev.Reason = domain.RefillReason(reason)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refill event rows: %w", err)
	}
	return events, nil
}
