package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus represents the lifecycle state of an on-chain transfer.
type TransferStatus string

const (
	TransferStatusPending TransferStatus = "pending"
	TransferStatusSuccess TransferStatus = "success"
	TransferStatusFailed  TransferStatus = "failed"
)

// TransferKind distinguishes refills from per-request payments.
type TransferKind string

const (
	TransferKindRefill  TransferKind = "refill"
	TransferKindPayment TransferKind = "payment"
)

// TransferRecord is an append-only entry for a transfer made by the balance manager.
type TransferRecord struct {
	TransactionID string          `json:"transactionId"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          TransferKind    `json:"kind"`
	Status        TransferStatus  `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}

// IsTerminal returns true if the transfer is in a final state.
func (t *TransferRecord) IsTerminal() bool {
	return t.Status == TransferStatusSuccess || t.Status == TransferStatusFailed
}
