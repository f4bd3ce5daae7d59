package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"aptos-x402-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	spendingAddr = "0x1111111111111111111111111111111111111111111111111111111111111111"
	savingAddr   = "0x2222222222222222222222222222222222222222222222222222222222222222"
	payeeAddr    = "0x3333333333333333333333333333333333333333333333333333333333333333"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func newTestRefillEvent() *domain.RefillEvent {
	return &domain.RefillEvent{
		ID:            uuid.New(),
		WalletAddress: spendingAddr,
		Amount:        decimal.RequireFromString("0.05"),
		TransactionID: "0xabc",
		Reason:        domain.RefillReasonLowBalance,
		Timestamp:     time.Now().UTC().Truncate(time.Microsecond),
		Success:       true,
	}
}

func refillColumns() []string {
	return []string{"id", "wallet_address", "amount", "transaction_id", "reason", "success", "error", "created_at"}
}

func TestRefillEventRepo_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRefillEventRepo(mock)
	ev := newTestRefillEvent()

	mock.ExpectExec("INSERT INTO refill_events").
		WithArgs(ev.ID, ev.WalletAddress, "0.05", ev.TransactionID, "low_balance", true, "", ev.Timestamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefillEventRepo_ListByWallet(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRefillEventRepo(mock)
	ev := newTestRefillEvent()
	failedAt := ev.Timestamp.Add(-time.Hour)
	failedID := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM refill_events WHERE wallet_address").
		WithArgs(spendingAddr, 20).
		WillReturnRows(pgxmock.NewRows(refillColumns()).
			AddRow(ev.ID, ev.WalletAddress, "0.05000000", ev.TransactionID, "low_balance", true, "", ev.Timestamp).
			AddRow(failedID, ev.WalletAddress, "0.10000000", "", "insufficient_funds", false, "saving wallet empty", failedAt))

	events, err := repo.ListByWallet(context.Background(), spendingAddr, 20)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, ev.ID, events[0].ID)
	assert.True(t, events[0].Amount.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, domain.RefillReasonLowBalance, events[0].Reason)
	assert.False(t, events[1].Success)
	assert.Equal(t, domain.RefillReasonInsufficientFunds, events[1].Reason)
	assert.Equal(t, "saving wallet empty", events[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefillEventRepo_ListByWallet_BadAmount(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRefillEventRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM refill_events").
		WithArgs(spendingAddr, 5).
		WillReturnRows(pgxmock.NewRows(refillColumns()).
			AddRow(uuid.New(), spendingAddr, "NaN?", "", "manual", false, "", time.Now()))

	_, err := repo.ListByWallet(context.Background(), spendingAddr, 5)
	assert.Error(t, err)
}

func TestTransferRepo_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewTransferRepo(mock)
	rec := &domain.TransferRecord{
		TransactionID: "0xdef",
		From:          savingAddr,
		To:            spendingAddr,
		Amount:        decimal.RequireFromString("0.25"),
		Kind:          domain.TransferKindRefill,
		Status:        domain.TransferStatusSuccess,
		Timestamp:     time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectExec("INSERT INTO transfers .+ ON CONFLICT").
		WithArgs(rec.TransactionID, savingAddr, spendingAddr, "0.25", "refill", "success", rec.Timestamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRepo_ListByAddress(t *testing.T) {
	mock := newMockPool(t)
	repo := NewTransferRepo(mock)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM transfers WHERE from_address = \\$1 OR to_address = \\$1").
		WithArgs(spendingAddr, 50).
		WillReturnRows(pgxmock.NewRows([]string{"transaction_id", "from_address", "to_address", "amount", "kind", "status", "created_at"}).
			AddRow("0x02", spendingAddr, payeeAddr, "0.01000000", "payment", "success", now).
			AddRow("0x01", savingAddr, spendingAddr, "0.05000000", "refill", "success", now.Add(-time.Minute)))

	records, err := repo.ListByAddress(context.Background(), spendingAddr, 50)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.TransferKindPayment, records[0].Kind)
	assert.Equal(t, payeeAddr, records[0].To)
	assert.Equal(t, domain.TransferKindRefill, records[1].Kind)
	assert.True(t, records[1].Amount.Equal(decimal.RequireFromString("0.05")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRepo_ListByAddress_QueryError(t *testing.T) {
	mock := newMockPool(t)
	repo := NewTransferRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transfers").
		WithArgs(spendingAddr, 10).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.ListByAddress(context.Background(), spendingAddr, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list transfers")
}

func TestPaymentEventRepo_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPaymentEventRepo(mock)
	ev := &domain.PaymentEvent{
		ID:              uuid.New(),
		PaymentID:       "3f2b8c1e-9a4d-4f6b-8c2d-1e5f7a9b0c3d",
		Path:            "/api/premium/weather",
		Outcome:         domain.PaymentOutcomeVerified,
		Amount:          "0.01",
		TransactionHash: "0xabc",
		ClientIP:        "10.0.0.1",
		CreatedAt:       time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO payment_events").
		WithArgs(ev.ID, ev.PaymentID, ev.Path, "verified", "", "0.01", "0xabc", "10.0.0.1", ev.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func settlementColumns() []string {
	return []string{"id", "payment_id", "transaction_hash", "sender_address", "recipient_address", "amount", "network", "verified_at"}
}

func TestSettlementRepo_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSettlementRepo(mock)
	s := &domain.Settlement{
		ID:               uuid.New(),
		PaymentID:        "3f2b8c1e-9a4d-4f6b-8c2d-1e5f7a9b0c3d",
		TransactionHash:  "0xabc",
		SenderAddress:    spendingAddr,
		RecipientAddress: payeeAddr,
		Amount:           decimal.RequireFromString("0.01"),
		Network:          domain.NetworkTestnet,
		VerifiedAt:       time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO settlements").
		WithArgs(s.ID, s.PaymentID, "0xabc", spendingAddr, payeeAddr, "0.01", "testnet", s.VerifiedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepo_GetByPaymentID(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSettlementRepo(mock)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM settlements WHERE payment_id").
		WithArgs("3f2b8c1e-9a4d-4f6b-8c2d-1e5f7a9b0c3d").
		WillReturnRows(pgxmock.NewRows(settlementColumns()).
			AddRow(id, "3f2b8c1e-9a4d-4f6b-8c2d-1e5f7a9b0c3d", "0xabc", spendingAddr, payeeAddr, "0.01000000", "devnet", at))

	s, err := repo.GetByPaymentID(context.Background(), "3f2b8c1e-9a4d-4f6b-8c2d-1e5f7a9b0c3d")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, id, s.ID)
	assert.Equal(t, domain.NetworkDevnet, s.Network)
	assert.True(t, s.Amount.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, at, s.VerifiedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepo_GetByPaymentID_NotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSettlementRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM settlements WHERE payment_id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(settlementColumns()))

	s, err := repo.GetByPaymentID(context.Background(), "9d1c6a2e-7b3f-4e8a-9c5d-2f4b6a8c0e1d")
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, mock.ExpectationsWereMet())
}
