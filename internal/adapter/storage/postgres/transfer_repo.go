package postgres

import (
	"context"
	"fmt"

	"aptos-x402-gateway/internal/core/domain"

	"github.com/shopspring/decimal"
)

// TransferRepo implements ports.TransferRepository.
type TransferRepo struct {
	pool Pool
}

// NewTransferRepo creates a new TransferRepo.
func NewTransferRepo(pool Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

// Create records a transfer. Recording the same transaction twice keeps the
// latest status.
func (r *TransferRepo) Create(ctx context.Context, t *domain.TransferRecord) error {
	query := `INSERT INTO transfers (transaction_id, from_address, to_address, amount, kind, status, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (transaction_id) DO UPDATE SET status = EXCLUDED.status`

	_, err := r.pool.Exec(ctx, query,
		t.TransactionID, t.From, t.To, t.Amount.String(),
		string(t.Kind), string(t.Status), t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// ListByAddress returns the newest transfers sent from or to address.
func (r *TransferRepo) ListByAddress(ctx context.Context, address string, limit int) ([]domain.TransferRecord, error) {
	query := `SELECT transaction_id, from_address, to_address, amount::text, kind, status, created_at
		FROM transfers WHERE from_address = $1 OR to_address = $1
		ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var records []domain.TransferRecord
	for rows.Next() {
		var (
			t            domain.TransferRecord
			amount       string
			kind, status string
		)
		if err := rows.Scan(&t.TransactionID, &t.From, &t.To, &amount, &kind, &status, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse transfer amount %q: %w", amount, err)
		}
		t.Kind = domain.TransferKind(kind)
		t.Status = domain.TransferStatus(status)
		records = append(records, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer rows: %w", err)
	}
	return records, nil
}
