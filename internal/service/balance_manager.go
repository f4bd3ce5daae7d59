package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports"
	"aptos-x402-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// BalanceManager keeps a spending wallet funded from a saving wallet under
// daily caps. It exclusively owns both wallets.
//
// Every refill decision (read balance, decide, transfer, update counters)
// runs inside a single-slot region, so concurrent callers wait for the
// in-flight decision and then evaluate against the updated counter.
type BalanceManager struct {
	spending ports.Wallet
	saving   ports.Wallet
	clock    ports.Clock
	log      zerolog.Logger

	refillRepo   ports.RefillEventRepository // nil = in-memory only
	transferRepo ports.TransferRepository    // nil = in-memory only
	notifier     ports.RefillNotifier        // nil = notifications disabled

	sem      chan struct{}
	notifyWG sync.WaitGroup

	mu      sync.RWMutex
	config  domain.SmartWalletConfig
	counter domain.DailyRefillCounter
	events  []domain.RefillEvent
	history []domain.TransferRecord
}

// BalanceManagerOption customizes a BalanceManager.
type BalanceManagerOption func(*BalanceManager)

// WithClock injects the clock used for daily resets and timestamps.
func WithClock(clock ports.Clock) BalanceManagerOption {
	return func(b *BalanceManager) { b.clock = clock }
}

// WithHistory persists refill events and transfers in addition to the
// in-memory logs.
func WithHistory(refills ports.RefillEventRepository, transfers ports.TransferRepository) BalanceManagerOption {
	return func(b *BalanceManager) {
		b.refillRepo = refills
		b.transferRepo = transfers
	}
}

// WithNotifier announces refill attempts when notifications are enabled.
func WithNotifier(n ports.RefillNotifier) BalanceManagerOption {
	return func(b *BalanceManager) { b.notifier = n }
}

// NewBalanceManager creates a manager over the spending and saving wallets.
func NewBalanceManager(spending, saving ports.Wallet, cfg domain.SmartWalletConfig, log zerolog.Logger, opts ...BalanceManagerOption) *BalanceManager {
	b := &BalanceManager{
		spending: spending,
		saving:   saving,
		clock:    SystemClock{},
		log:      log,
		sem:      make(chan struct{}, 1),
		config:   cfg,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.counter.ResetIfStale(b.clock.Now())
	return b
}

// EnsureFunds refills the spending wallet when its balance is below the
// configured threshold. Hitting a daily cap is logged, not returned.
func (b *BalanceManager) EnsureFunds(ctx context.Context) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()

	cfg := b.Config()
	if !cfg.EnableAutoRefill {
		return nil
	}
	if !b.withinDailyCaps(cfg.AutoRefillAmount) {
		b.log.Warn().
			Str("code", apperror.CodeDailyLimitReached).
			Int("max_refills", cfg.MaxRefillsPerDay).
			Str("max_amount", cfg.MaxDailyRefillAmount.String()).
			Msg("daily refill limit reached, skipping refill")
		return nil
	}

	balance, err := b.spending.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("reading spending balance: %w", err)
	}
	if balance.GreaterThanOrEqual(cfg.LowBalanceThreshold) {
		return nil
	}

	b.log.Info().
		Str("balance", balance.String()).
		Str("threshold", cfg.LowBalanceThreshold.String()).
		Msg("spending balance below threshold, refilling")
	_, err = b.refill(ctx, cfg.AutoRefillAmount, domain.RefillReasonLowBalance)
	return err
}

// Watch runs EnsureFunds every interval until ctx is done. Failed checks
// are logged and the loop keeps going.
func (b *BalanceManager) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return apperror.Validation("watch interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.log.Info().Dur("interval", interval).Msg("balance watch started")
	for {
		if err := b.EnsureFunds(ctx); err != nil && ctx.Err() == nil {
			b.log.Error().Err(err).Msg("balance check failed")
		}
		select {
		case <-ctx.Done():
			b.log.Info().Msg("balance watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// EmergencyRefill refills after a payment failed for lack of funds,
// skipping the threshold check but not the daily caps.
func (b *BalanceManager) EmergencyRefill(ctx context.Context) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()

	cfg := b.Config()
	if !b.withinDailyCaps(cfg.AutoRefillAmount) {
		return apperror.ErrDailyLimitReached()
	}
	_, err := b.refill(ctx, cfg.AutoRefillAmount, domain.RefillReasonInsufficientFunds)
	return err
}

// ManualRefill moves amount from saving to spending on request.
func (b *BalanceManager) ManualRefill(ctx context.Context, amount decimal.Decimal) (*domain.RefillEvent, error) {
	if !amount.IsPositive() {
		return nil, apperror.Validation("refill amount must be positive")
	}
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	if !b.withinDailyCaps(amount) {
		return nil, apperror.ErrDailyLimitReached()
	}
	return b.refill(ctx, amount, domain.RefillReasonManual)
}

// Pay submits payload from the spending wallet. When the wallet reports
// insufficient funds and auto-refill is on, it runs one emergency refill
// and retries once.
func (b *BalanceManager) Pay(ctx context.Context, payload domain.TransferPayload) (*domain.TransferRecord, error) {
	record, err := b.submitPayment(ctx, payload)
	if err == nil {
		return record, nil
	}
	if !apperror.IsCode(err, apperror.CodeInsufficientFunds) || !b.Config().EnableAutoRefill {
		return nil, err
	}

	b.log.Warn().Str("amount", payload.Amount.String()).Msg("payment failed for insufficient funds, attempting emergency refill")
	if rerr := b.EmergencyRefill(ctx); rerr != nil {
		return nil, fmt.Errorf("emergency refill: %w", rerr)
	}
	return b.submitPayment(ctx, payload)
}

func (b *BalanceManager) submitPayment(ctx context.Context, payload domain.TransferPayload) (*domain.TransferRecord, error) {
	from, err := b.spending.Address()
	if err != nil {
		return nil, err
	}
	txID, err := b.spending.SignAndSubmit(ctx, payload)
	if err != nil {
		if txID != "" {
			// committed on chain but aborted
			b.appendTransfer(ctx, b.newTransfer(txID, from, payload.Recipient, payload.Amount, domain.TransferKindPayment, domain.TransferStatusFailed))
		}
		return nil, err
	}

	record := b.newTransfer(txID, from, payload.Recipient, payload.Amount, domain.TransferKindPayment, domain.TransferStatusSuccess)
	b.appendTransfer(ctx, record)
	b.log.Info().
		Str("tx_id", txID).
		Str("recipient", payload.Recipient).
		Str("amount", payload.Amount.String()).
		Msg("payment submitted")
	return &record, nil
}

// refill runs the transfer part of a refill decision. Callers hold the region.
func (b *BalanceManager) refill(ctx context.Context, amount decimal.Decimal, reason domain.RefillReason) (*domain.RefillEvent, error) {
	spendingAddr, err := b.spending.Address()
	if err != nil {
		return nil, err
	}
	savingAddr, err := b.saving.Address()
	if err != nil {
		return nil, err
	}

	event := domain.RefillEvent{
		ID:            uuid.New(),
		WalletAddress: spendingAddr,
		Amount:        amount,
		Reason:        reason,
	}

	savingBalance, err := b.saving.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading saving balance: %w", err)
	}
	if savingBalance.LessThan(amount) {
		appErr := apperror.ErrInsufficientSavingsFunds(savingBalance.String(), amount.String())
		b.finishEvent(ctx, event, appErr)
		return nil, appErr
	}

	txID, err := b.saving.SignAndSubmit(ctx, domain.NewCoinTransfer(spendingAddr, amount, ""))
	event.TransactionID = txID
	if err != nil {
		if txID != "" {
			// committed on chain but aborted
			b.appendTransfer(ctx, b.newTransfer(txID, savingAddr, spendingAddr, amount, domain.TransferKindRefill, domain.TransferStatusFailed))
		}
		b.finishEvent(ctx, event, err)
		return nil, fmt.Errorf("refill transfer: %w", err)
	}

	b.mu.Lock()
	b.counter.Record(amount)
	b.mu.Unlock()
	b.appendTransfer(ctx, b.newTransfer(txID, savingAddr, spendingAddr, amount, domain.TransferKindRefill, domain.TransferStatusSuccess))
	ev := b.finishEvent(ctx, event, nil)

	b.log.Info().
		Str("tx_id", txID).
		Str("amount", amount.String()).
		Str("reason", string(reason)).
		Msg("refill completed")
	return &ev, nil
}

// finishEvent stamps, stores, persists and announces a refill event.
func (b *BalanceManager) finishEvent(ctx context.Context, event domain.RefillEvent, cause error) domain.RefillEvent {
	event.Timestamp = b.clock.Now()
	event.Success = cause == nil
	if cause != nil {
		event.Error = cause.Error()
		b.log.Error().Err(cause).Str("reason", string(event.Reason)).Msg("refill failed")
	}

	b.mu.Lock()
	b.events = append(b.events, event)
	notify := b.config.EnableNotifications
	b.mu.Unlock()

	if b.refillRepo != nil {
		if err := b.refillRepo.Create(ctx, &event); err != nil {
			b.log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("failed to persist refill event")
		}
	}
	if notify && b.notifier != nil {
		b.notifyWG.Add(1)
		go func(ev domain.RefillEvent) {
			defer b.notifyWG.Done()
			if err := b.notifier.NotifyRefill(context.Background(), ev); err != nil {
				b.log.Warn().Err(err).Str("event_id", ev.ID.String()).Msg("refill notification failed")
			}
		}(event)
	}
	return event
}

func (b *BalanceManager) newTransfer(txID, from, to string, amount decimal.Decimal, kind domain.TransferKind, status domain.TransferStatus) domain.TransferRecord {
	return domain.TransferRecord{
		TransactionID: txID,
		From:          from,
		To:            to,
		Amount:        amount,
		Kind:          kind,
		Status:        status,
		Timestamp:     b.clock.Now(),
	}
}

func (b *BalanceManager) appendTransfer(ctx context.Context, record domain.TransferRecord) {
	b.mu.Lock()
	b.history = append(b.history, record)
	b.mu.Unlock()

	if b.transferRepo != nil {
		if err := b.transferRepo.Create(ctx, &record); err != nil {
			b.log.Warn().Err(err).Str("tx_id", record.TransactionID).Msg("failed to persist transfer")
		}
	}
}

// withinDailyCaps resets a stale counter and reports whether a refill of
// amount still fits today's budget.
func (b *BalanceManager) withinDailyCaps(amount decimal.Decimal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.counter.ResetIfStale(b.clock.Now()) {
		b.log.Debug().Time("period_start", b.counter.PeriodStart).Msg("daily refill counter reset")
	}
	return b.counter.Allows(b.config, amount)
}

func (b *BalanceManager) acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *BalanceManager) release() { <-b.sem }

// Config returns the active policy.
func (b *BalanceManager) Config() domain.SmartWalletConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// UpdateConfig applies a partial policy update and returns the result.
func (b *BalanceManager) UpdateConfig(patch domain.SmartWalletConfigPatch) (domain.SmartWalletConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := patch.Apply(b.config)
	if err := ValidateSmartWalletConfig(next); err != nil {
		return b.config, err
	}
	b.config = next
	b.log.Info().
		Str("threshold", next.LowBalanceThreshold.String()).
		Str("refill_amount", next.AutoRefillAmount.String()).
		Bool("auto_refill", next.EnableAutoRefill).
		Msg("smart wallet config updated")
	return next, nil
}

// ValidateSmartWalletConfig rejects negative amounts and caps.
func ValidateSmartWalletConfig(cfg domain.SmartWalletConfig) error {
	switch {
	case cfg.LowBalanceThreshold.IsNegative():
		return apperror.Validation("lowBalanceThreshold must not be negative")
	case cfg.AutoRefillAmount.IsNegative():
		return apperror.Validation("autoRefillAmount must not be negative")
	case cfg.MaxRefillsPerDay < 0:
		return apperror.Validation("maxRefillsPerDay must not be negative")
	case cfg.MaxDailyRefillAmount.IsNegative():
		return apperror.Validation("maxDailyRefillAmount must not be negative")
	}
	return nil
}

// DailyStats reports today's refill budget usage.
func (b *BalanceManager) DailyStats() domain.DailyRefillStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counter.ResetIfStale(b.clock.Now())

	remainingCount := b.config.MaxRefillsPerDay - b.counter.Count
	if remainingCount < 0 {
		remainingCount = 0
	}
	remainingAmount := b.config.MaxDailyRefillAmount.Sub(b.counter.AmountMoved)
	if remainingAmount.IsNegative() {
		remainingAmount = decimal.Zero
	}
	return domain.DailyRefillStats{
		Date:            b.counter.PeriodStart.Format(time.DateOnly),
		Count:           b.counter.Count,
		AmountMoved:     b.counter.AmountMoved,
		RemainingCount:  remainingCount,
		RemainingAmount: remainingAmount,
	}
}

// RefillEvents returns a copy of the refill log.
func (b *BalanceManager) RefillEvents() []domain.RefillEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.RefillEvent, len(b.events))
	copy(out, b.events)
	return out
}

// TransferHistory returns a copy of the transfer log.
func (b *BalanceManager) TransferHistory() []domain.TransferRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.TransferRecord, len(b.history))
	copy(out, b.history)
	return out
}

// WalletStatus summarizes both wallets.
type WalletStatus struct {
	SpendingAddress string          `json:"spendingAddress"`
	SpendingBalance decimal.Decimal `json:"spendingBalance"`
	SavingAddress   string          `json:"savingAddress"`
	SavingBalance   decimal.Decimal `json:"savingBalance"`
}

// Status reads both wallet balances.
func (b *BalanceManager) Status(ctx context.Context) (*WalletStatus, error) {
	var st WalletStatus
	var err error
	if st.SpendingAddress, err = b.spending.Address(); err != nil {
		return nil, err
	}
	if st.SavingAddress, err = b.saving.Address(); err != nil {
		return nil, err
	}
	if st.SpendingBalance, err = b.spending.GetBalance(ctx); err != nil {
		return nil, fmt.Errorf("reading spending balance: %w", err)
	}
	if st.SavingBalance, err = b.saving.GetBalance(ctx); err != nil {
		return nil, fmt.Errorf("reading saving balance: %w", err)
	}
	return &st, nil
}

// WaitNotifications blocks until in-flight notifications have finished.
func (b *BalanceManager) WaitNotifications() {
	b.notifyWG.Wait()
}
