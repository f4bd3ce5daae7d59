package domain

import (
	"fmt"
	"time"
)

// Protocol constants.
const (
	ProtocolVersion = 1

	HeaderPaymentRequired = "X-Aptos-Payment-Required"
	HeaderPayment         = "X-Aptos-Payment"
	HeaderPaymentResponse = "X-Aptos-Payment-Response"

	AptosCoinType   = "0x1::aptos_coin::AptosCoin"
	AptosCoinSymbol = "APT"
	AptosDecimals   = 8

	CoinTransferFunction    = "0x1::coin::transfer"
	AccountTransferFunction = "0x1::aptos_account::transfer"
)

// Network identifies the Aptos network a payment settles on.
type Network string

const (
	NetworkTestnet Network = "testnet"
	NetworkMainnet Network = "mainnet"
	NetworkDevnet  Network = "devnet"
)

// IsValid reports whether n is a known network.
func (n Network) IsValid() bool {
	switch n {
	case NetworkTestnet, NetworkMainnet, NetworkDevnet:
		return true
	}
	return false
}

// ParseNetwork returns the network named s, defaulting to testnet when empty.
func ParseNetwork(s string) (Network, error) {
	if s == "" {
		return NetworkTestnet, nil
	}
	n := Network(s)
	if !n.IsValid() {
		return "", fmt.Errorf("unknown network %q", s)
	}
	return n, nil
}

// PaymentRequirement is issued by the gate with every 402.
type PaymentRequirement struct {
	ProtocolVersion  int     `json:"x402Version"`
	PaymentID        string  `json:"paymentId"`
	Amount           string  `json:"amount"`
	TokenAddress     string  `json:"tokenAddress"`
	RecipientAddress string  `json:"recipientAddress"`
	Network          Network `json:"network"`
	CurrencySymbol   string  `json:"currencySymbol,omitempty"`
	Description      string  `json:"description,omitempty"`
	IssuedAt         int64   `json:"timestamp,omitempty"` // unix milliseconds
}

// PaymentProof is attached by the client to the retried request.
type PaymentProof struct {
	ProtocolVersion int    `json:"x402Version"`
	PaymentID       string `json:"paymentId"`
	TransactionHash string `json:"transactionHash,omitempty"`
	SignedPayload   []byte `json:"signedTransactionPayload,omitempty"`
	SenderAddress   string `json:"senderAddress,omitempty"`
	IssuedAt        int64  `json:"timestamp,omitempty"` // unix milliseconds
	ClientAppID     string `json:"clientAppId,omitempty"`
}

// PaymentResponse is echoed to the client once a proof has been accepted.
type PaymentResponse struct {
	Success         bool   `json:"success"`
	PaymentID       string `json:"paymentId"`
	TransactionHash string `json:"transactionHash,omitempty"`
	SenderAddress   string `json:"senderAddress,omitempty"`
}

// PaymentRule prices a path prefix.
type PaymentRule struct {
	Path             string
	Amount           string
	RecipientAddress string
	Description      string
}

// NewRequirement builds a fresh requirement for rule.
func NewRequirement(paymentID string, rule PaymentRule, network Network, token string, now time.Time) PaymentRequirement {
	if token == "" {
		token = AptosCoinType
	}
	return PaymentRequirement{
		ProtocolVersion:  ProtocolVersion,
		PaymentID:        paymentID,
		Amount:           rule.Amount,
		TokenAddress:     token,
		RecipientAddress: rule.RecipientAddress,
		Network:          network,
		CurrencySymbol:   AptosCoinSymbol,
		Description:      rule.Description,
		IssuedAt:         now.UnixMilli(),
	}
}
