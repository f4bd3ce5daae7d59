package facilitator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports/mocks"
	"aptos-x402-gateway/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testVerifyRequest() domain.VerifyRequest {
	return domain.VerifyRequest{
		PaymentID:                "3f2b8c1e-9a4d-4f6b-8c2d-1e5f7a9b0c3d",
		TransactionHash:          "0xabc",
		ExpectedAmount:           "0.01",
		ExpectedTokenAddress:     domain.AptosCoinType,
		ExpectedRecipientAddress: "0x1111111111111111111111111111111111111111111111111111111111111111",
		ExpectedNetwork:          domain.NetworkTestnet,
	}
}

func TestClient_VerifyPayment_Valid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/verify-payment", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "demo", r.Header.Get("X-Api-Key"))

		var req domain.VerifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xabc", req.TransactionHash)
		assert.Equal(t, domain.NetworkTestnet, req.ExpectedNetwork)

		_ = json.NewEncoder(w).Encode(domain.VerifyResult{IsValid: true, TransactionHash: "0xabc", SenderAddress: "0x2"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", Headers: map[string]string{"X-Api-Key": "demo"}}, zerolog.Nop())
	result, err := c.VerifyPayment(context.Background(), testVerifyRequest())

	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, "0xabc", result.TransactionHash)
}

func TestClient_VerifyPayment_InvalidIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isValid":false,"reason":"amount too low"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	result, err := c.VerifyPayment(context.Background(), testVerifyRequest())

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, "amount too low", result.Reason)
}

func TestClient_VerifyPayment_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := c.VerifyPayment(context.Background(), testVerifyRequest())

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.CodeFacilitatorError, appErr.Code)
	assert.Contains(t, appErr.Message, "503")
	assert.Contains(t, err.Error(), "maintenance")
}

func TestClient_VerifyPayment_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, zerolog.Nop())
	_, err := c.VerifyPayment(context.Background(), testVerifyRequest())

	assert.Equal(t, apperror.CodeFacilitatorTimeout, apperror.CodeOf(err))
}

func TestClient_VerifyPayment_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url}, zerolog.Nop())
	_, err := c.VerifyPayment(context.Background(), testVerifyRequest())

	assert.Equal(t, apperror.CodeFacilitatorError, apperror.CodeOf(err))
}

func TestClient_VerifyPayment_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := c.VerifyPayment(context.Background(), testVerifyRequest())

	assert.Equal(t, apperror.CodeFacilitatorError, apperror.CodeOf(err))
}

func TestClient_SubmitTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submit-transaction", r.URL.Path)
		var req domain.SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []byte("signed"), req.SignedTransactionPayload)
		_, _ = w.Write([]byte(`{"transactionHash":"0xfeed"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	result, err := c.SubmitTransaction(context.Background(), []byte("signed"))

	require.NoError(t, err)
	assert.Equal(t, "0xfeed", result.TransactionHash)
}

func TestClient_BearerToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokens := mocks.NewMockTokenService(ctrl)
	tokens.EXPECT().Generate("gateway").Return("jwt-token", time.Now().Add(time.Hour), nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"isValid":true}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop(), WithTokenService(tokens))
	_, err := c.VerifyPayment(context.Background(), testVerifyRequest())
	assert.NoError(t, err)
}

func TestClient_Ping(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	assert.Equal(t, "facilitator", c.Name())
	assert.NoError(t, c.Ping(context.Background()))

	healthy.Store(false)
	assert.Error(t, c.Ping(context.Background()))
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://localhost"}, zerolog.Nop())
	assert.Equal(t, DefaultTimeout, c.timeout)
}
