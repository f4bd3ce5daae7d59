package dto

import "aptos-x402-gateway/internal/core/domain"

// --- Facilitator DTOs ---

type VerifyPaymentRequest struct {
	PaymentID                string `json:"paymentId" binding:"required,payment_id"`
	SignedTransactionPayload []byte `json:"signedTransactionPayload,omitempty"`
	TransactionHash          string `json:"transactionHash,omitempty" binding:"omitempty,tx_hash"`
	ExpectedAmount           string `json:"expectedAmount" binding:"required,token_amount"`
	ExpectedTokenAddress     string `json:"expectedTokenAddress" binding:"omitempty,max=256"`
	ExpectedRecipientAddress string `json:"expectedRecipientAddress" binding:"required,aptos_address"`
	ExpectedNetwork          string `json:"expectedNetwork" binding:"required,oneof=testnet mainnet devnet"`
}

// ToDomain converts the bound request into a domain.VerifyRequest.
func (r VerifyPaymentRequest) ToDomain() domain.VerifyRequest {
	return domain.VerifyRequest{
		PaymentID:                r.PaymentID,
		SignedTransactionPayload: r.SignedTransactionPayload,
		TransactionHash:          r.TransactionHash,
		ExpectedAmount:           r.ExpectedAmount,
		ExpectedTokenAddress:     r.ExpectedTokenAddress,
		ExpectedRecipientAddress: r.ExpectedRecipientAddress,
		ExpectedNetwork:          domain.Network(r.ExpectedNetwork),
	}
}

type SubmitTransactionRequest struct {
	SignedTransactionPayload []byte `json:"signedTransactionPayload" binding:"required"`
}

// --- Gateway demo resources ---

type WeatherResponse struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	Conditions  string  `json:"conditions"`
	Humidity    int     `json:"humidity"`
	PaidBy      string  `json:"paidBy,omitempty"`
}

type StockQuote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
}

type StocksResponse struct {
	Quotes []StockQuote `json:"quotes"`
	PaidBy string       `json:"paidBy,omitempty"`
}

type HelloResponse struct {
	Message string `json:"message"`
}
