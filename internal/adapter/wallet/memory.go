// Package wallet provides an in-memory wallet capability backed by a shared
// in-process ledger, for local runs and tests.
package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/pkg/apperror"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"
)

// ErrSubmitUnsupported is returned when raw signed payloads are submitted to
// the in-memory ledger.
var ErrSubmitUnsupported = errors.New("in-memory ledger does not accept signed payloads")

// Ledger is an in-memory account book shared by memory wallets.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	txs      map[string]domain.LedgerTransaction
	seq      uint64
	now      func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]decimal.Decimal),
		txs:      make(map[string]domain.LedgerTransaction),
		now:      time.Now,
	}
}

// Fund credits amount to address.
func (l *Ledger) Fund(address string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := domain.NormalizeAddress(address)
	l.balances[key] = l.balances[key].Add(amount)
}

// Balance returns the balance of address.
func (l *Ledger) Balance(address string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[domain.NormalizeAddress(address)]
}

// Transfer moves amount from one account to another and returns the
// transaction hash. It fails with WAL_004 when from cannot cover amount.
func (l *Ledger) Transfer(from, to string, amount decimal.Decimal, token string) (string, error) {
	if !amount.IsPositive() {
		return "", apperror.Validation("transfer amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromKey, toKey := domain.NormalizeAddress(from), domain.NormalizeAddress(to)
	if l.balances[fromKey].LessThan(amount) {
		return "", apperror.ErrInsufficientFunds()
	}
	l.balances[fromKey] = l.balances[fromKey].Sub(amount)
	l.balances[toKey] = l.balances[toKey].Add(amount)

	l.seq++
	h := sha3.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", fromKey, toKey, amount.String(), l.seq)))
	hash := "0x" + hex.EncodeToString(h[:])
	if token == "" {
		token = domain.AptosCoinType
	}
	l.txs[hash] = domain.LedgerTransaction{
		Hash:          hash,
		Type:          "user_transaction",
		Success:       true,
		VMStatus:      "Executed successfully",
		Sender:        fromKey,
		Function:      domain.CoinTransferFunction,
		TypeArguments: []string{token},
		Arguments:     []string{toKey, strconv.FormatUint(domain.ToBaseUnits(amount), 10)},
		Timestamp:     l.now(),
	}
	return hash, nil
}

// TransactionByHash implements ports.Ledger.
func (l *Ledger) TransactionByHash(_ context.Context, hash string) (*domain.LedgerTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.txs[hash]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

// SubmitSignedTransaction implements ports.Ledger.
func (l *Ledger) SubmitSignedTransaction(context.Context, []byte) (string, error) {
	return "", ErrSubmitUnsupported
}

// Wallet is a ports.Wallet over a Ledger account.
type Wallet struct {
	ledger  *Ledger
	address string

	mu        sync.RWMutex
	connected bool
}

// NewWallet creates a disconnected wallet for address.
func NewWallet(ledger *Ledger, address string) *Wallet {
	return &Wallet{ledger: ledger, address: domain.NormalizeAddress(address)}
}

// RandomAddress returns a fresh 32-byte address.
func RandomAddress() string {
	var b [32]byte
	_, _ = rand.Read(b[:])
	return "0x" + hex.EncodeToString(b[:])
}

func (w *Wallet) Connect(context.Context) error {
	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
	return nil
}

func (w *Wallet) Disconnect(context.Context) error {
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()
	return nil
}

func (w *Wallet) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *Wallet) Address() (string, error) {
	if !w.IsConnected() {
		return "", apperror.ErrWalletNotConnected()
	}
	return w.address, nil
}

func (w *Wallet) GetBalance(context.Context) (decimal.Decimal, error) {
	if !w.IsConnected() {
		return decimal.Zero, apperror.ErrWalletNotConnected()
	}
	return w.ledger.Balance(w.address), nil
}

func (w *Wallet) SignAndSubmit(ctx context.Context, payload domain.TransferPayload) (string, error) {
	if !w.IsConnected() {
		return "", apperror.ErrWalletNotConnected()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token := ""
	if len(payload.TypeArguments) > 0 {
		token = payload.TypeArguments[0]
	}
	return w.ledger.Transfer(w.address, payload.Recipient, payload.Amount, token)
}
