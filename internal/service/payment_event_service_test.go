package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func testPaymentEvent(outcome domain.PaymentOutcome) *domain.PaymentEvent {
	return &domain.PaymentEvent{
		ID:        uuid.New(),
		PaymentID: testPaymentID,
		Path:      "/api/premium/weather",
		Outcome:   outcome,
		Amount:    "0.01",
		ClientIP:  "127.0.0.1",
		CreatedAt: time.Now(),
	}
}

func TestPaymentEventService_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockPaymentEventRepository(ctrl)
	svc := NewPaymentEventService(repo, zerolog.Nop())

	done := make(chan struct{})
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, ev *domain.PaymentEvent) error {
			assert.Equal(t, domain.PaymentOutcomeVerified, ev.Outcome)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			close(done)
			return nil
		},
	)

	svc.Record(context.Background(), testPaymentEvent(domain.PaymentOutcomeVerified))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("payment event not persisted in time")
	}
}

func TestPaymentEventService_OutlivesRequestContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockPaymentEventRepository(ctrl)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *domain.PaymentEvent) error {
			return ctx.Err()
		},
	)
	svc := NewPaymentEventService(repo, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Record(ctx, testPaymentEvent(domain.PaymentOutcomeRequired))
	svc.Wait()
}

func TestPaymentEventService_RepoErrorIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockPaymentEventRepository(ctrl)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))
	svc := NewPaymentEventService(repo, zerolog.Nop())

	svc.Record(context.Background(), testPaymentEvent(domain.PaymentOutcomeRejected))
	svc.Wait()
}

func TestPaymentEventService_NilRepo(t *testing.T) {
	svc := NewPaymentEventService(nil, zerolog.Nop())

	// Should not panic
	svc.Record(context.Background(), testPaymentEvent(domain.PaymentOutcomeError))
	svc.Wait()
}
