package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"aptos-x402-gateway/internal/adapter/http/dto"
	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports/mocks"
	"aptos-x402-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testPaymentID = "3f2b8c1e-9a4d-4f6b-8c2d-1e5f7a9b0c3d"
	testRecipient = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testSender    = "0x2222222222222222222222222222222222222222222222222222222222222222"
	testTxHash    = "0x8e3f5b2a9c1d7e4f6a0b3c5d8e1f2a4b6c9d0e3f5a7b1c2d4e6f8a0b3c5d7e9f"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func postJSON(h gin.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		raw, _ = json.Marshal(b)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	c.Request.Header.Set("Content-Type", "application/json")
	h(c)
	return w
}

func verifyBody() dto.VerifyPaymentRequest {
	return dto.VerifyPaymentRequest{
		PaymentID:                testPaymentID,
		TransactionHash:          testTxHash,
		ExpectedAmount:           "0.01",
		ExpectedTokenAddress:     domain.AptosCoinType,
		ExpectedRecipientAddress: testRecipient,
		ExpectedNetwork:          "testnet",
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

// --- Facilitator Handler Tests ---

func TestVerifyPayment_Valid(t *testing.T) {
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockPaymentVerifier(ctrl)
	h := NewFacilitatorHandler(verifier, zerolog.Nop())

	body := verifyBody()
	body.PaymentID = "  " + testPaymentID + "  "
	verifier.EXPECT().VerifyPayment(gomock.Any(), domain.VerifyRequest{
		PaymentID:                testPaymentID,
		TransactionHash:          testTxHash,
		ExpectedAmount:           "0.01",
		ExpectedTokenAddress:     domain.AptosCoinType,
		ExpectedRecipientAddress: testRecipient,
		ExpectedNetwork:          domain.NetworkTestnet,
	}).Return(&domain.VerifyResult{
		IsValid:           true,
		TransactionHash:   testTxHash,
		SenderAddress:     testSender,
		AmountTransferred: "0.01",
		Timestamp:         1714816800000,
	}, nil)

	w := postJSON(h.VerifyPayment, "/verify-payment", body)

	assert.Equal(t, http.StatusOK, w.Code)
	var result domain.VerifyResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.IsValid)
	assert.Equal(t, testSender, result.SenderAddress)
	assert.Equal(t, int64(1714816800000), result.Timestamp)
}

func TestVerifyPayment_InvalidIsStill200(t *testing.T) {
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockPaymentVerifier(ctrl)
	h := NewFacilitatorHandler(verifier, zerolog.Nop())

	verifier.EXPECT().VerifyPayment(gomock.Any(), gomock.Any()).
		Return(domain.Invalid("amount too low: got 0.001, want 0.01"), nil)

	w := postJSON(h.VerifyPayment, "/verify-payment", verifyBody())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"isValid":false,"reason":"amount too low: got 0.001, want 0.01"}`, w.Body.String())
}

func TestVerifyPayment_BadRequests(t *testing.T) {
	noProof := verifyBody()
	noProof.TransactionHash = ""

	badAddr := verifyBody()
	badAddr.ExpectedRecipientAddress = "0x1"

	tests := []struct {
		name string
		body interface{}
	}{
		{"not json", "{"},
		{"empty object", "{}"},
		{"no hash or payload", noProof},
		{"short recipient", badAddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			h := NewFacilitatorHandler(mocks.NewMockPaymentVerifier(ctrl), zerolog.Nop())

			w := postJSON(h.VerifyPayment, "/verify-payment", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, apperror.CodeValidation, errorCode(t, w))
		})
	}
}

func TestVerifyPayment_LedgerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockPaymentVerifier(ctrl)
	h := NewFacilitatorHandler(verifier, zerolog.Nop())

	verifier.EXPECT().VerifyPayment(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrLedger(errors.New("node returned 503")))

	w := postJSON(h.VerifyPayment, "/verify-payment", verifyBody())

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, apperror.CodeLedgerError, errorCode(t, w))
	assert.NotContains(t, w.Body.String(), "503")
}

func TestSubmitTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockPaymentVerifier(ctrl)
	h := NewFacilitatorHandler(verifier, zerolog.Nop())

	payload := []byte(`{"sender":"0x2"}`)
	verifier.EXPECT().SubmitTransaction(gomock.Any(), payload).
		Return(&domain.SubmitResult{TransactionHash: testTxHash}, nil)

	w := postJSON(h.SubmitTransaction, "/submit-transaction", dto.SubmitTransactionRequest{SignedTransactionPayload: payload})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"transactionHash":"`+testTxHash+`"}`, w.Body.String())
}

func TestSubmitTransaction_MissingPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewFacilitatorHandler(mocks.NewMockPaymentVerifier(ctrl), zerolog.Nop())

	w := postJSON(h.SubmitTransaction, "/submit-transaction", "{}")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, errorCode(t, w))
}

// --- Demo Handler Tests ---

func TestWeather_ReportsPayer(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/premium/weather?city=Lisbon", nil)
	c.Set("payment_result", &domain.VerifyResult{IsValid: true, SenderAddress: testSender})

	Weather(c)

	var resp dto.WeatherResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Lisbon", resp.City)
	assert.Equal(t, testSender, resp.PaidBy)
}

func TestStocks_FilterSymbols(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/premium/stocks?symbols=apt,%20eth", nil)

	Stocks(c)

	var resp dto.StocksResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Quotes, 2)
	assert.Equal(t, "APT", resp.Quotes[0].Symbol)
	assert.Equal(t, "ETH", resp.Quotes[1].Symbol)
	assert.Empty(t, resp.PaidBy)
}
