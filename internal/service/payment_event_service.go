package service

import (
	"context"
	"sync"
	"time"

	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

const paymentEventWriteTimeout = 5 * time.Second

// PaymentEventService implements ports.PaymentEventRecorder.
type PaymentEventService struct {
	repo ports.PaymentEventRepository
	log  zerolog.Logger
	wg   sync.WaitGroup
}

// NewPaymentEventService creates a recorder.
// If repo is nil, events are only written to the logger.
func NewPaymentEventService(repo ports.PaymentEventRepository, log zerolog.Logger) *PaymentEventService {
	return &PaymentEventService{repo: repo, log: log}
}

// Record logs and persists event asynchronously (fire-and-forget).
func (s *PaymentEventService) Record(ctx context.Context, event *domain.PaymentEvent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.log.Info().
			Str("payment_id", event.PaymentID).
			Str("path", event.Path).
			Str("outcome", string(event.Outcome)).
			Str("reason", event.Reason).
			Str("amount", event.Amount).
			Str("ip", event.ClientIP).
			Msg("payment event")

		if s.repo == nil {
			return
		}
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), paymentEventWriteTimeout)
		defer cancel()
		if err := s.repo.Create(writeCtx, event); err != nil {
			s.log.Warn().Err(err).Str("payment_id", event.PaymentID).Msg("failed to persist payment event")
		}
	}()
}

// Wait blocks until every recorded event has been handled.
func (s *PaymentEventService) Wait() {
	s.wg.Wait()
}
