package aptos

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/pkg/apperror"

	aptossdk "github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Gas defaults for wallet transactions.
const (
	DefaultMaxGasAmount = 2000
	DefaultGasUnitPrice = 100
)

const (
	seedSize       = 32
	privateKeySize = 64
)

// ParsePrivateKey accepts a hex ed25519 seed (32 bytes) or full private key
// (64 bytes), with optional "0x" or "ed25519-priv-0x" prefixes.
func ParsePrivateKey(s string) (*crypto.Ed25519PrivateKey, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "ed25519-priv-")
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(b) != seedSize && len(b) != privateKeySize {
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d", seedSize, privateKeySize, len(b))
	}

	key := &crypto.Ed25519PrivateKey{}
	if err := key.FromBytes(b[:seedSize]); err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	if len(b) == privateKeySize && !bytes.Equal(key.PubKey().Bytes(), b[seedSize:]) {
		return nil, errors.New("private key does not match its public half")
	}
	return key, nil
}

// Wallet implements ports.Wallet over an on-chain ed25519 account.
// Submissions are serialized so sequence numbers never collide.
type Wallet struct {
	client   *Client
	account  *aptossdk.Account
	address  string
	maxGas   uint64
	gasPrice uint64
	log      zerolog.Logger

	submitMu  sync.Mutex
	mu        sync.RWMutex
	connected bool
}

// WalletOption configures a Wallet.
type WalletOption func(*Wallet)

// WithGas overrides the gas limit and price.
func WithGas(maxGasAmount, gasUnitPrice uint64) WalletOption {
	return func(w *Wallet) {
		w.maxGas = maxGasAmount
		w.gasPrice = gasUnitPrice
	}
}

// NewWallet creates a disconnected wallet for privateKey.
func NewWallet(client *Client, privateKey string, log zerolog.Logger, opts ...WalletOption) (*Wallet, error) {
	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	account, err := aptossdk.NewAccountFromSigner(key)
	if err != nil {
		return nil, fmt.Errorf("derive account: %w", err)
	}
	w := &Wallet{
		client:   client,
		account:  account,
		address:  domain.NormalizeAddress(account.Address.String()),
		maxGas:   DefaultMaxGasAmount,
		gasPrice: DefaultGasUnitPrice,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = log.With().Str("wallet", w.address).Logger()
	return w, nil
}

// Connect checks that a node is reachable.
func (w *Wallet) Connect(ctx context.Context) error {
	if err := w.client.Ping(ctx); err != nil {
		return apperror.ErrLedger(err)
	}
	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
	w.log.Info().Msg("wallet connected")
	return nil
}

// Disconnect implements ports.Wallet.
func (w *Wallet) Disconnect(context.Context) error {
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()
	return nil
}

// IsConnected implements ports.Wallet.
func (w *Wallet) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// Address implements ports.Wallet.
func (w *Wallet) Address() (string, error) {
	if !w.IsConnected() {
		return "", apperror.ErrWalletNotConnected()
	}
	return w.address, nil
}

// GetBalance returns the APT balance.
func (w *Wallet) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	if !w.IsConnected() {
		return decimal.Zero, apperror.ErrWalletNotConnected()
	}
	bal, err := w.client.Balance(ctx, w.address, domain.AptosCoinType)
	if err != nil {
		return decimal.Zero, apperror.ErrLedger(err)
	}
	return bal, nil
}

// SignAndSubmit signs payload, submits it and waits for the outcome. A
// transaction that committed but aborted returns its hash with the error.
func (w *Wallet) SignAndSubmit(ctx context.Context, payload domain.TransferPayload) (string, error) {
	if !w.IsConnected() {
		return "", apperror.ErrWalletNotConnected()
	}
	if err := validateTransfer(payload); err != nil {
		return "", err
	}
	w.submitMu.Lock()
	defer w.submitMu.Unlock()

	token := domain.AptosCoinType
	if len(payload.TypeArguments) > 0 {
		token = payload.TypeArguments[0]
	}
	bal, err := w.client.Balance(ctx, w.address, token)
	if err != nil {
		return "", apperror.ErrLedger(err)
	}
	if bal.LessThan(payload.Amount) {
		return "", apperror.ErrInsufficientFunds()
	}

	signed, err := w.sign(ctx, payload)
	if err != nil {
		return "", err
	}
	hash, err := w.client.Submit(ctx, signed)
	if err != nil {
		return "", ledgerError(err)
	}
	log := w.log.With().Str("tx_hash", hash).Logger()
	log.Info().Str("to", payload.Recipient).Str("amount", payload.Amount.String()).Msg("transaction submitted")

	tx, err := w.client.WaitForTransaction(ctx, hash)
	if err != nil {
		return "", apperror.ErrLedger(fmt.Errorf("wait for %s: %w", hash, err))
	}
	if tx.IsPending() {
		return "", apperror.ErrLedger(fmt.Errorf("transaction %s still pending", hash))
	}
	if !tx.Success {
		log.Warn().Str("vm_status", tx.VMStatus).Msg("transaction failed")
		if isInsufficientBalance(tx.VMStatus) {
			return hash, apperror.ErrInsufficientFunds()
		}
		return hash, apperror.ErrLedger(fmt.Errorf("transaction %s failed: %s", hash, tx.VMStatus))
	}
	return hash, nil
}

// SignTransfer signs payload without submitting it and returns the BCS
// encoded signed transaction.
func (w *Wallet) SignTransfer(ctx context.Context, payload domain.TransferPayload) ([]byte, error) {
	if !w.IsConnected() {
		return nil, apperror.ErrWalletNotConnected()
	}
	w.submitMu.Lock()
	defer w.submitMu.Unlock()

	signed, err := w.sign(ctx, payload)
	if err != nil {
		return nil, err
	}
	return bcs.Serialize(signed)
}

func validateTransfer(payload domain.TransferPayload) error {
	if !payload.Amount.IsPositive() {
		return apperror.Validation("transfer amount must be positive")
	}
	if !domain.IsValidAddress(domain.NormalizeAddress(payload.Recipient)) {
		return apperror.Validation("invalid recipient address")
	}
	return nil
}

func (w *Wallet) sign(ctx context.Context, payload domain.TransferPayload) (*aptossdk.SignedTransaction, error) {
	if err := validateTransfer(payload); err != nil {
		return nil, err
	}
	entry, err := entryFunction(payload)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	raw, err := w.client.BuildTransaction(ctx, w.account.Address, aptossdk.TransactionPayload{Payload: entry}, w.maxGas, w.gasPrice)
	if err != nil {
		return nil, ledgerError(err)
	}
	signed, err := raw.SignedTransaction(w.account)
	if err != nil {
		return nil, apperror.ErrLedger(fmt.Errorf("sign transaction: %w", err))
	}
	return signed, nil
}

// entryFunction encodes payload as a call to payload.Function with the
// recipient and base-unit amount as arguments.
func entryFunction(payload domain.TransferPayload) (*aptossdk.EntryFunction, error) {
	parts := strings.Split(payload.Function, "::")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid function %q", payload.Function)
	}
	module, err := parseAddress(parts[0])
	if err != nil {
		return nil, err
	}

	typeArgs := make([]aptossdk.TypeTag, 0, len(payload.TypeArguments))
	for _, t := range payload.TypeArguments {
		tag, err := parseTypeTag(t)
		if err != nil {
			return nil, err
		}
		typeArgs = append(typeArgs, tag)
	}

	recipient, err := parseAddress(payload.Recipient)
	if err != nil {
		return nil, err
	}
	amount := &bcs.Serializer{}
	amount.U64(domain.ToBaseUnits(payload.Amount))

	return &aptossdk.EntryFunction{
		Module:   aptossdk.ModuleId{Address: module, Name: parts[1]},
		Function: parts[2],
		ArgTypes: typeArgs,
		Args:     [][]byte{recipient[:], amount.ToBytes()},
	}, nil
}

func ledgerError(err error) error {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) && isInsufficientBalance(nodeErr.Message+" "+nodeErr.ErrorCode) {
		return apperror.ErrInsufficientFunds()
	}
	return apperror.ErrLedger(err)
}

func isInsufficientBalance(status string) bool {
	return strings.Contains(strings.ToUpper(status), "INSUFFICIENT_BALANCE")
}
