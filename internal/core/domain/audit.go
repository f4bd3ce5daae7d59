package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentOutcome is the terminal state the gate reached for one request.
type PaymentOutcome string

const (
	PaymentOutcomeRequired PaymentOutcome = "required"
	PaymentOutcomeVerified PaymentOutcome = "verified"
	PaymentOutcomeRejected PaymentOutcome = "rejected"
	PaymentOutcomeError    PaymentOutcome = "error"
)

// PaymentEvent records one gate decision.
type PaymentEvent struct {
	ID              uuid.UUID      `json:"id"`
	PaymentID       string         `json:"payment_id"`
	Path            string         `json:"path"`
	Outcome         PaymentOutcome `json:"outcome"`
	Reason          string         `json:"reason,omitempty"`
	Amount          string         `json:"amount"`
	TransactionHash string         `json:"transaction_hash,omitempty"`
	ClientIP        string         `json:"client_ip"`
	CreatedAt       time.Time      `json:"created_at"`
}
