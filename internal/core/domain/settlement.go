package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VerifyRequest is the facilitator verification request.
type VerifyRequest struct {
	PaymentID                string  `json:"paymentId"`
	SignedTransactionPayload []byte  `json:"signedTransactionPayload,omitempty"`
	TransactionHash          string  `json:"transactionHash,omitempty"`
	ExpectedAmount           string  `json:"expectedAmount"`
	ExpectedTokenAddress     string  `json:"expectedTokenAddress"`
	ExpectedRecipientAddress string  `json:"expectedRecipientAddress"`
	ExpectedNetwork          Network `json:"expectedNetwork"`
}

// NewVerifyRequest builds the facilitator request for proof against rule.
func NewVerifyRequest(proof PaymentProof, rule PaymentRule, network Network, token string) VerifyRequest {
	if token == "" {
		token = AptosCoinType
	}
	return VerifyRequest{
		PaymentID:                proof.PaymentID,
		SignedTransactionPayload: proof.SignedPayload,
		TransactionHash:          proof.TransactionHash,
		ExpectedAmount:           rule.Amount,
		ExpectedTokenAddress:     token,
		ExpectedRecipientAddress: rule.RecipientAddress,
		ExpectedNetwork:          network,
	}
}

// VerifyResult is the facilitator verdict.
type VerifyResult struct {
	IsValid           bool   `json:"isValid"`
	Reason            string `json:"reason,omitempty"`
	TransactionHash   string `json:"transactionHash,omitempty"`
	SenderAddress     string `json:"senderAddress,omitempty"`
	AmountTransferred string `json:"amountTransferred,omitempty"`
	Timestamp         int64  `json:"timestamp,omitempty"` // unix milliseconds
}

// Invalid returns a rejecting verdict with reason.
func Invalid(reason string) *VerifyResult {
	return &VerifyResult{IsValid: false, Reason: reason}
}

// SubmitRequest asks the facilitator to relay a signed transaction.
type SubmitRequest struct {
	SignedTransactionPayload []byte `json:"signedTransactionPayload"`
}

// SubmitResult carries the hash of a relayed transaction.
type SubmitResult struct {
	TransactionHash string `json:"transactionHash"`
}

// Settlement is the facilitator's record of an accepted payment.
type Settlement struct {
	ID               uuid.UUID       `json:"id"`
	PaymentID        string          `json:"payment_id"`
	TransactionHash  string          `json:"transaction_hash"`
	SenderAddress    string          `json:"sender_address"`
	RecipientAddress string          `json:"recipient_address"`
	Amount           decimal.Decimal `json:"amount"`
	Network          Network         `json:"network"`
	VerifiedAt       time.Time       `json:"verified_at"`
}

// LedgerTransaction is the subset of an on-chain transaction the
// facilitator checks.
type LedgerTransaction struct {
	Hash          string
	Type          string // user_transaction, pending_transaction, ...
	Success       bool
	VMStatus      string
	Sender        string
	Function      string
	TypeArguments []string
	Arguments     []string
	Timestamp     time.Time
}

// IsPending reports whether the transaction has not been committed yet.
func (t *LedgerTransaction) IsPending() bool {
	return t.Type == "pending_transaction"
}
