package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports"
	"aptos-x402-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	txHashScope = "txhash"

	// DefaultTxHashTTL is how long a settled transaction hash is remembered.
	DefaultTxHashTTL = 7 * 24 * time.Hour

	DefaultConfirmTimeout = 10 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
)

// VerificationService is the facilitator: it checks payment proofs against
// the ledger and relays signed transactions.
type VerificationService struct {
	ledger         ports.Ledger
	replay         ports.ReplayGuard
	settlements    ports.SettlementRepository
	network        domain.Network
	clock          ports.Clock
	txHashTTL      time.Duration
	confirmTimeout time.Duration
	pollInterval   time.Duration
	log            zerolog.Logger
}

// VerificationOption configures a VerificationService.
type VerificationOption func(*VerificationService)

// WithReplayGuard rejects a transaction hash that already settled another payment.
func WithReplayGuard(g ports.ReplayGuard, ttl time.Duration) VerificationOption {
	return func(s *VerificationService) {
		s.replay = g
		if ttl > 0 {
			s.txHashTTL = ttl
		}
	}
}

// WithSettlements persists every accepted payment.
func WithSettlements(repo ports.SettlementRepository) VerificationOption {
	return func(s *VerificationService) { s.settlements = repo }
}

// WithConfirmation sets how long a pending or not yet visible transaction is polled.
func WithConfirmation(timeout, interval time.Duration) VerificationOption {
	return func(s *VerificationService) {
		s.confirmTimeout = timeout
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

// WithVerificationClock overrides the wall clock.
func WithVerificationClock(c ports.Clock) VerificationOption {
	return func(s *VerificationService) { s.clock = c }
}

// NewVerificationService creates a facilitator serving network.
func NewVerificationService(ledger ports.Ledger, network domain.Network, log zerolog.Logger, opts ...VerificationOption) *VerificationService {
	s := &VerificationService{
		ledger:         ledger,
		network:        network,
		clock:          SystemClock{},
		txHashTTL:      DefaultTxHashTTL,
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   DefaultPollInterval,
		log:            log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyPayment checks that the referenced transaction pays the expected
// recipient at least the expected amount. A proof that does not hold is
// reported as an invalid result; only infrastructure failures are errors.
func (s *VerificationService) VerifyPayment(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	if err := validateVerifyRequest(req); err != nil {
		return nil, err
	}
	expected, _ := domain.ParseAmount(req.ExpectedAmount)
	log := s.log.With().Str("payment_id", req.PaymentID).Logger()

	if req.ExpectedNetwork != s.network {
		return domain.Invalid(fmt.Sprintf("network mismatch: facilitator serves %s", s.network)), nil
	}

	if s.settlements != nil {
		prior, err := s.settlements.GetByPaymentID(ctx, req.PaymentID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lookup settlement: %w", err))
		}
		if prior != nil {
			if req.TransactionHash != "" && strings.EqualFold(prior.TransactionHash, req.TransactionHash) {
				return settledResult(prior), nil
			}
			return domain.Invalid("payment already settled"), nil
		}
	}

	hash := req.TransactionHash
	if hash == "" {
		if len(req.SignedTransactionPayload) == 0 {
			return domain.Invalid("missing transaction hash or signed payload"), nil
		}
		submitted, err := s.ledger.SubmitSignedTransaction(ctx, req.SignedTransactionPayload)
		if err != nil {
			log.Warn().Err(err).Msg("signed payload rejected by ledger")
			return domain.Invalid("transaction submission failed"), nil
		}
		hash = submitted
	}
	log = log.With().Str("tx_hash", hash).Logger()

	tx, err := s.awaitTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return domain.Invalid("transaction not found"), nil
	}
	if tx.IsPending() {
		return domain.Invalid("transaction pending"), nil
	}

	received, reason := checkTransfer(tx, req, expected)
	if reason != "" {
		log.Info().Str("reason", reason).Msg("payment transaction rejected")
		return domain.Invalid(reason), nil
	}

	if s.replay != nil {
		fresh, err := s.replay.CheckAndSet(ctx, txHashScope, strings.ToLower(hash), s.txHashTTL)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("tx hash replay check: %w", err))
		}
		if !fresh {
			log.Warn().Msg("transaction hash reused")
			return domain.Invalid("transaction already used for another payment"), nil
		}
	}

	settlement := &domain.Settlement{
		ID:               uuid.New(),
		PaymentID:        req.PaymentID,
		TransactionHash:  hash,
		SenderAddress:    tx.Sender,
		RecipientAddress: domain.NormalizeAddress(req.ExpectedRecipientAddress),
		Amount:           domain.FromBaseUnits(received),
		Network:          s.network,
		VerifiedAt:       s.clock.Now(),
	}
	if s.settlements != nil {
		if err := s.settlements.Create(ctx, settlement); err != nil {
			if s.replay != nil {
				if rerr := s.replay.Release(ctx, txHashScope, strings.ToLower(hash)); rerr != nil {
					log.Error().Err(rerr).Msg("failed to release tx hash")
				}
			}
			return nil, apperror.InternalError(fmt.Errorf("save settlement: %w", err))
		}
	}

	log.Info().Str("amount", settlement.Amount.String()).Str("sender", tx.Sender).Msg("payment settled")
	return settledResult(settlement), nil
}

// SubmitTransaction relays a signed transaction to the ledger.
func (s *VerificationService) SubmitTransaction(ctx context.Context, signedPayload []byte) (*domain.SubmitResult, error) {
	if len(signedPayload) == 0 {
		return nil, apperror.Validation("signedTransactionPayload is required")
	}
	hash, err := s.ledger.SubmitSignedTransaction(ctx, signedPayload)
	if err != nil {
		return nil, apperror.ErrLedger(err)
	}
	s.log.Info().Str("tx_hash", hash).Msg("transaction submitted")
	return &domain.SubmitResult{TransactionHash: hash}, nil
}

// awaitTransaction polls until the transaction is committed or the
// confirmation window closes, then returns the last observation.
func (s *VerificationService) awaitTransaction(ctx context.Context, hash string) (*domain.LedgerTransaction, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		tx, err := s.ledger.TransactionByHash(ctx, hash)
		if err != nil {
			return nil, apperror.ErrLedger(err)
		}
		if tx != nil && !tx.IsPending() {
			return tx, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, apperror.ErrLedger(ctx.Err())
			}
			return tx, nil
		case <-ticker.C:
		}
	}
}

func validateVerifyRequest(req domain.VerifyRequest) error {
	switch {
	case !domain.IsValidPaymentID(req.PaymentID):
		return apperror.Validation("paymentId must be a UUIDv4")
	case !domain.IsValidAmount(req.ExpectedAmount):
		return apperror.Validation("invalid expectedAmount")
	case !domain.IsValidAddress(req.ExpectedRecipientAddress):
		return apperror.Validation("invalid expectedRecipientAddress")
	case !req.ExpectedNetwork.IsValid():
		return apperror.Validation("invalid expectedNetwork")
	}
	return nil
}

// checkTransfer returns the octas received, or a rejection reason.
func checkTransfer(tx *domain.LedgerTransaction, req domain.VerifyRequest, expected decimal.Decimal) (uint64, string) {
	if !tx.Success {
		return 0, "transaction failed: " + tx.VMStatus
	}

	token := domain.AptosCoinType
	switch tx.Function {
	case domain.CoinTransferFunction:
		if len(tx.TypeArguments) == 0 {
			return 0, "missing coin type argument"
		}
		token = tx.TypeArguments[0]
	case domain.AccountTransferFunction:
	default:
		return 0, "not a transfer transaction"
	}
	want := req.ExpectedTokenAddress
	if want == "" {
		want = domain.AptosCoinType
	}
	if token != want {
		return 0, fmt.Sprintf("token mismatch: got %s", token)
	}

	if len(tx.Arguments) < 2 {
		return 0, "unexpected transfer arguments"
	}
	if domain.NormalizeAddress(tx.Arguments[0]) != domain.NormalizeAddress(req.ExpectedRecipientAddress) {
		return 0, "recipient mismatch"
	}

	received, err := strconv.ParseUint(tx.Arguments[1], 10, 64)
	if err != nil {
		return 0, "unexpected transfer amount"
	}
	if received < domain.ToBaseUnits(expected) {
		return 0, fmt.Sprintf("amount too low: got %s, want %s", domain.FromBaseUnits(received), expected)
	}
	return received, ""
}

func settledResult(s *domain.Settlement) *domain.VerifyResult {
	return &domain.VerifyResult{
		IsValid:           true,
		TransactionHash:   s.TransactionHash,
		SenderAddress:     s.SenderAddress,
		AmountTransferred: s.Amount.String(),
		Timestamp:         s.VerifiedAt.UnixMilli(),
	}
}
