package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"aptos-x402-gateway/internal/adapter/facilitator"
	"aptos-x402-gateway/internal/adapter/http/handler"
	"aptos-x402-gateway/internal/adapter/storage/memory"
	"aptos-x402-gateway/internal/adapter/wallet"
	"aptos-x402-gateway/internal/core/codec"
	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/service"
	"aptos-x402-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paymentStack runs a gateway and a facilitator over one in-memory ledger.
type paymentStack struct {
	ledger    *wallet.Ledger
	gateway   *httptest.Server
	recipient string
}

func newPaymentStack(t *testing.T) *paymentStack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zerolog.Nop()
	ledger := wallet.NewLedger()
	recipient := wallet.RandomAddress()
	tokens := service.NewJWTTokenService("scenario-secret-0123456789abcdef", time.Minute, "aptos-x402-facilitator")

	verifier := service.NewVerificationService(ledger, domain.NetworkTestnet, log,
		service.WithReplayGuard(memory.NewReplayGuard(), time.Hour),
		service.WithConfirmation(200*time.Millisecond, 10*time.Millisecond),
	)
	fac := httptest.NewServer(handler.NewFacilitatorRouter(handler.FacilitatorDeps{
		Verifier:        verifier,
		TokenSvc:        tokens,
		AllowedSubjects: []string{"gateway"},
		Logger:          log,
	}))
	t.Cleanup(fac.Close)

	resolver, err := service.NewRuleResolver([]domain.PaymentRule{
		{Path: "/api/premium/weather", Amount: "0.01", RecipientAddress: recipient, Description: "Premium weather data"},
	})
	require.NoError(t, err)

	client := facilitator.NewClient(facilitator.Config{BaseURL: fac.URL, Timeout: 5 * time.Second}, log,
		facilitator.WithTokenService(tokens))
	gw := httptest.NewServer(handler.NewGatewayRouter(handler.GatewayDeps{
		Resolver: resolver,
		Verifier: client,
		Replay:   memory.NewReplayGuard(),
		Network:  domain.NetworkTestnet,
		Logger:   log,
	}))
	t.Cleanup(gw.Close)

	return &paymentStack{ledger: ledger, gateway: gw, recipient: recipient}
}

type payer struct {
	negotiator *service.Negotiator
	manager    *service.BalanceManager
	spending   string
	saving     string
}

func (s *paymentStack) newPayer(t *testing.T, spendingBalance, savingBalance string) *payer {
	t.Helper()
	ctx := context.Background()

	spendingAddr, savingAddr := wallet.RandomAddress(), wallet.RandomAddress()
	s.ledger.Fund(spendingAddr, decimal.RequireFromString(spendingBalance))
	s.ledger.Fund(savingAddr, decimal.RequireFromString(savingBalance))

	spending := wallet.NewWallet(s.ledger, spendingAddr)
	saving := wallet.NewWallet(s.ledger, savingAddr)
	require.NoError(t, spending.Connect(ctx))
	require.NoError(t, saving.Connect(ctx))

	manager := service.NewBalanceManager(spending, saving, domain.DefaultSmartWalletConfig(), zerolog.Nop())
	return &payer{
		negotiator: service.NewNegotiator(s.gateway.Client(), manager, zerolog.Nop()),
		manager:    manager,
		spending:   domain.NormalizeAddress(spendingAddr),
		saving:     domain.NormalizeAddress(savingAddr),
	}
}

func (s *paymentStack) weatherURL() string {
	return s.gateway.URL + "/api/premium/weather"
}

// Scenario A: no proof yields a fresh requirement.
func TestScenario_RequirementIssued(t *testing.T) {
	s := newPaymentStack(t)

	resp, err := http.Get(s.weatherURL())
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	req, err := codec.DecodeRequirement(resp.Header.Get(domain.HeaderPaymentRequired))
	require.NoError(t, err)
	assert.True(t, domain.IsValidPaymentID(req.PaymentID))
	assert.Equal(t, "0.01", req.Amount)
	assert.Equal(t, s.recipient, req.RecipientAddress)
	assert.Equal(t, domain.NetworkTestnet, req.Network)
}

// Scenario B: enough spending balance pays directly without a refill.
func TestScenario_PaysWithoutRefill(t *testing.T) {
	s := newPaymentStack(t)
	p := s.newPayer(t, "0.02", "0.1")

	resp, err := p.negotiator.Get(context.Background(), s.weatherURL())
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		City   string `json:"city"`
		PaidBy string `json:"paidBy"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, p.spending, body.PaidBy)

	paymentResp, err := codec.DecodePaymentResponse(resp.Header.Get(domain.HeaderPaymentResponse))
	require.NoError(t, err)
	assert.True(t, paymentResp.Success)

	assert.Empty(t, p.manager.RefillEvents())
	history := p.manager.TransferHistory()
	require.Len(t, history, 1)
	assert.Equal(t, domain.TransferKindPayment, history[0].Kind)
	assert.Equal(t, paymentResp.TransactionHash, history[0].TransactionID)

	assert.True(t, s.ledger.Balance(s.recipient).Equal(decimal.RequireFromString("0.01")))
	assert.True(t, s.ledger.Balance(p.spending).Equal(decimal.RequireFromString("0.01")))
}

// Scenario C: a low spending balance is refilled once before paying.
func TestScenario_RefillsBeforePaying(t *testing.T) {
	s := newPaymentStack(t)
	p := s.newPayer(t, "0.001", "0.1")

	resp, err := p.negotiator.Get(context.Background(), s.weatherURL())
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	events := p.manager.RefillEvents()
	require.Len(t, events, 1)
	assert.True(t, events[0].Success)
	assert.True(t, events[0].Amount.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, domain.RefillReasonLowBalance, events[0].Reason)

	history := p.manager.TransferHistory()
	require.Len(t, history, 2)
	assert.Equal(t, domain.TransferKindRefill, history[0].Kind)
	assert.Equal(t, domain.TransferKindPayment, history[1].Kind)

	assert.True(t, s.ledger.Balance(p.saving).Equal(decimal.RequireFromString("0.05")))
	assert.True(t, s.ledger.Balance(p.spending).Equal(decimal.RequireFromString("0.041")))
}

// Scenario D: an empty saving wallet aborts the payment.
func TestScenario_InsufficientSavings(t *testing.T) {
	s := newPaymentStack(t)
	p := s.newPayer(t, "0.001", "0.01")

	resp, err := p.negotiator.Get(context.Background(), s.weatherURL())
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, apperror.IsCode(err, apperror.CodePaymentHandlingFailed))
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientSavingsFunds))

	assert.Empty(t, p.manager.TransferHistory())
	events := p.manager.RefillEvents()
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.True(t, s.ledger.Balance(s.recipient).IsZero())
}

// Scenario E: a proof whose paymentId does not belong to the transaction is
// rejected and a new requirement is issued.
func TestScenario_MismatchedPaymentIDRejected(t *testing.T) {
	s := newPaymentStack(t)
	p := s.newPayer(t, "0.02", "0.1")

	resp, err := p.negotiator.Get(context.Background(), s.weatherURL())
	require.NoError(t, err)
	resp.Body.Close()
	txHash := p.manager.TransferHistory()[0].TransactionID

	forged := domain.PaymentProof{
		ProtocolVersion: domain.ProtocolVersion,
		PaymentID:       uuid.NewString(),
		TransactionHash: txHash,
		SenderAddress:   p.spending,
	}
	header, err := codec.EncodeProof(forged)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, s.weatherURL(), nil)
	require.NoError(t, err)
	req.Header.Set(domain.HeaderPayment, header)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	var body struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "transaction already used for another payment", body.Reason)

	fresh, err := codec.DecodeRequirement(resp.Header.Get(domain.HeaderPaymentRequired))
	require.NoError(t, err)
	assert.NotEqual(t, forged.PaymentID, fresh.PaymentID)
	assert.True(t, domain.IsValidPaymentID(fresh.PaymentID))
}

// Concurrent payers each settle exactly once and every payment lands.
func TestScenario_ConcurrentPayers(t *testing.T) {
	s := newPaymentStack(t)

	const n = 10
	payers := make([]*payer, n)
	for i := range payers {
		payers[i] = s.newPayer(t, "0.02", "0.1")
	}

	var wg sync.WaitGroup
	statuses := make([]int, n)
	errs := make([]error, n)
	for i, p := range payers {
		wg.Add(1)
		go func(i int, p *payer) {
			defer wg.Done()
			resp, err := p.negotiator.Get(context.Background(), s.weatherURL())
			if err != nil {
				errs[i] = err
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i, p)
	}
	wg.Wait()

	for i := range payers {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i])
		assert.Len(t, payers[i].manager.TransferHistory(), 1)
	}
	assert.True(t, s.ledger.Balance(s.recipient).Equal(decimal.RequireFromString("0.1")),
		"recipient balance %s", s.ledger.Balance(s.recipient))
}
