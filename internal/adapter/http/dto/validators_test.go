package dto

import (
	"testing"

	"aptos-x402-gateway/internal/core/domain"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPaymentID = "3f2b8c1e-9a4d-4f6b-8c2d-1e5f7a9b0c3d"
	testRecipient = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testTxHash    = "0x8e3f5b2a9c1d7e4f6a0b3c5d8e1f2a4b6c9d0e3f5a7b1c2d4e6f8a0b3c5d7e9f"
)

func newValidator(t *testing.T) *validator.Validate {
	t.Helper()
	v := validator.New()
	v.SetTagName("binding")
	require.NoError(t, RegisterValidators(v))
	return v
}

func validRequest() VerifyPaymentRequest {
	return VerifyPaymentRequest{
		PaymentID:                testPaymentID,
		TransactionHash:          testTxHash,
		ExpectedAmount:           "0.01",
		ExpectedTokenAddress:     domain.AptosCoinType,
		ExpectedRecipientAddress: testRecipient,
		ExpectedNetwork:          "testnet",
	}
}

func TestVerifyPaymentRequest_Valid(t *testing.T) {
	v := newValidator(t)
	assert.NoError(t, v.Struct(validRequest()))

	noHash := validRequest()
	noHash.TransactionHash = ""
	noHash.SignedTransactionPayload = []byte(`{"sender":"0x1"}`)
	assert.NoError(t, v.Struct(noHash))
}

func TestVerifyPaymentRequest_Invalid(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name   string
		mutate func(*VerifyPaymentRequest)
		field  string
	}{
		{"missing payment id", func(r *VerifyPaymentRequest) { r.PaymentID = "" }, "PaymentID"},
		{"payment id not v4", func(r *VerifyPaymentRequest) { r.PaymentID = "3f2b8c1e-9a4d-1f6b-8c2d-1e5f7a9b0c3d" }, "PaymentID"},
		{"short tx hash", func(r *VerifyPaymentRequest) { r.TransactionHash = "0xabc" }, "TransactionHash"},
		{"too many decimals", func(r *VerifyPaymentRequest) { r.ExpectedAmount = "0.0000001" }, "ExpectedAmount"},
		{"negative amount", func(r *VerifyPaymentRequest) { r.ExpectedAmount = "-1" }, "ExpectedAmount"},
		{"short recipient", func(r *VerifyPaymentRequest) { r.ExpectedRecipientAddress = "0x1" }, "ExpectedRecipientAddress"},
		{"unknown network", func(r *VerifyPaymentRequest) { r.ExpectedNetwork = "localnet" }, "ExpectedNetwork"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := v.Struct(req)
			require.Error(t, err)
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.field, verrs[0].Field())
		})
	}
}

func TestVerifyPaymentRequest_ToDomain(t *testing.T) {
	req := validRequest()
	req.SignedTransactionPayload = []byte("signed")

	got := req.ToDomain()

	assert.Equal(t, testPaymentID, got.PaymentID)
	assert.Equal(t, []byte("signed"), got.SignedTransactionPayload)
	assert.Equal(t, domain.NetworkTestnet, got.ExpectedNetwork)
	assert.Equal(t, testRecipient, got.ExpectedRecipientAddress)
}

func TestSubmitTransactionRequest_Required(t *testing.T) {
	v := newValidator(t)
	assert.Error(t, v.Struct(SubmitTransactionRequest{}))
	assert.NoError(t, v.Struct(SubmitTransactionRequest{SignedTransactionPayload: []byte("x")}))
}

func TestTrimStrings(t *testing.T) {
	hash := "  " + testTxHash + "\n"
	req := struct {
		PaymentID string
		Hash      *string
		Nil       *string
		Payload   []byte
	}{
		PaymentID: " " + testPaymentID + " ",
		Hash:      &hash,
		Payload:   []byte("  raw  "),
	}

	TrimStrings(&req)

	assert.Equal(t, testPaymentID, req.PaymentID)
	assert.Equal(t, testTxHash, *req.Hash)
	assert.Nil(t, req.Nil)
	assert.Equal(t, []byte("  raw  "), req.Payload)
}

func TestTrimStrings_NonPointerIsNoOp(t *testing.T) {
	req := VerifyPaymentRequest{PaymentID: "  x  "}
	TrimStrings(req)
	assert.Equal(t, "  x  ", req.PaymentID)
}
