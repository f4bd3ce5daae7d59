package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SmartWalletConfig governs when and how the spending wallet is refilled.
type SmartWalletConfig struct {
	LowBalanceThreshold  decimal.Decimal `json:"lowBalanceThreshold"`
	AutoRefillAmount     decimal.Decimal `json:"autoRefillAmount"`
	MaxRefillsPerDay     int             `json:"maxRefillsPerDay"`
	MaxDailyRefillAmount decimal.Decimal `json:"maxDailyRefillAmount"`
	EnableAutoRefill     bool            `json:"enableAutoRefill"`
	EnableNotifications  bool            `json:"enableNotifications"`
}

// DefaultSmartWalletConfig returns the stock refill policy.
func DefaultSmartWalletConfig() SmartWalletConfig {
	return SmartWalletConfig{
		LowBalanceThreshold:  decimal.RequireFromString("0.005"),
		AutoRefillAmount:     decimal.RequireFromString("0.05"),
		MaxRefillsPerDay:     10,
		MaxDailyRefillAmount: decimal.NewFromInt(1),
		EnableAutoRefill:     true,
	}
}

// SmartWalletConfigPatch carries a partial config update; nil fields are kept.
type SmartWalletConfigPatch struct {
	LowBalanceThreshold  *decimal.Decimal
	AutoRefillAmount     *decimal.Decimal
	MaxRefillsPerDay     *int
	MaxDailyRefillAmount *decimal.Decimal
	EnableAutoRefill     *bool
	EnableNotifications  *bool
}

// Apply returns cfg with the non-nil patch fields applied.
func (p SmartWalletConfigPatch) Apply(cfg SmartWalletConfig) SmartWalletConfig {
	if p.LowBalanceThreshold != nil {
		cfg.LowBalanceThreshold = *p.LowBalanceThreshold
	}
	if p.AutoRefillAmount != nil {
		cfg.AutoRefillAmount = *p.AutoRefillAmount
	}
	if p.MaxRefillsPerDay != nil {
		cfg.MaxRefillsPerDay = *p.MaxRefillsPerDay
	}
	if p.MaxDailyRefillAmount != nil {
		cfg.MaxDailyRefillAmount = *p.MaxDailyRefillAmount
	}
	if p.EnableAutoRefill != nil {
		cfg.EnableAutoRefill = *p.EnableAutoRefill
	}
	if p.EnableNotifications != nil {
		cfg.EnableNotifications = *p.EnableNotifications
	}
	return cfg
}

// DailyRefillCounter tracks refills within one calendar day.
type DailyRefillCounter struct {
	Count       int             `json:"count"`
	AmountMoved decimal.Decimal `json:"amountMoved"`
	PeriodStart time.Time       `json:"periodStart"` // midnight of the tracked day
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ResetIfStale zeroes the counter when now falls on a different day.
// Returns true when a reset happened.
func (c *DailyRefillCounter) ResetIfStale(now time.Time) bool {
	today := StartOfDay(now)
	if c.PeriodStart.Equal(today) {
		return false
	}
	c.Count = 0
	c.AmountMoved = decimal.Zero
	c.PeriodStart = today
	return true
}

// Allows reports whether a refill of amount fits under cfg's daily caps.
func (c *DailyRefillCounter) Allows(cfg SmartWalletConfig, amount decimal.Decimal) bool {
	if c.Count >= cfg.MaxRefillsPerDay {
		return false
	}
	if c.AmountMoved.GreaterThanOrEqual(cfg.MaxDailyRefillAmount) {
		return false
	}
	return c.AmountMoved.Add(amount).LessThanOrEqual(cfg.MaxDailyRefillAmount)
}

// Record adds a successful refill to the counter.
func (c *DailyRefillCounter) Record(amount decimal.Decimal) {
	c.Count++
	c.AmountMoved = c.AmountMoved.Add(amount)
}

// DailyRefillStats is a read-only view of the daily budget.
type DailyRefillStats struct {
	Date            string          `json:"date"`
	Count           int             `json:"count"`
	AmountMoved     decimal.Decimal `json:"amountMoved"`
	RemainingCount  int             `json:"remainingCount"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
}

// RefillReason says why a refill was attempted.
type RefillReason string

const (
	RefillReasonLowBalance        RefillReason = "low_balance"
	RefillReasonInsufficientFunds RefillReason = "insufficient_funds"
	RefillReasonManual            RefillReason = "manual"
)

// RefillEvent is an append-only record of a refill attempt.
type RefillEvent struct {
	ID            uuid.UUID       `json:"id"`
	WalletAddress string          `json:"walletAddress"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId,omitempty"`
	Reason        RefillReason    `json:"reason"`
	Timestamp     time.Time       `json:"timestamp"`
	Success       bool            `json:"success"`
	Error         string          `json:"error,omitempty"`
}

// TransferPayload is the entry-function call a wallet signs and submits.
type TransferPayload struct {
	Function      string          `json:"function"`
	TypeArguments []string        `json:"type_arguments"`
	Recipient     string          `json:"recipient"`
	Amount        decimal.Decimal `json:"amount"`
}

// NewCoinTransfer builds a 0x1::coin::transfer of amount to recipient.
func NewCoinTransfer(recipient string, amount decimal.Decimal, token string) TransferPayload {
	if token == "" {
		token = AptosCoinType
	}
	return TransferPayload{
		Function:      CoinTransferFunction,
		TypeArguments: []string{token},
		Recipient:     recipient,
		Amount:        amount,
	}
}
