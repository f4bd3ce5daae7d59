// Package aptos talks to Aptos fullnodes through the Aptos Go SDK.
package aptos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aptos-x402-gateway/internal/core/domain"

	aptossdk "github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultTimeout bounds a single node request.
const DefaultTimeout = 30 * time.Second

// ErrNotFound is returned when a node answers 404.
var ErrNotFound = errors.New("aptos: not found")

// NodeError is a non-retryable 4xx answer from a node.
type NodeError struct {
	Status    int
	ErrorCode string
	Message   string
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("aptos node error %d %s: %s", e.Status, e.ErrorCode, e.Message)
}

// Node is a single fullnode. Implementations return ErrNotFound or a
// *NodeError for answers that another node would repeat.
type Node interface {
	Ping() error
	// Balance returns the coinType balance of owner in base units. Coin
	// stores and fungible-asset stores both count.
	Balance(owner aptossdk.AccountAddress, coinType string) (uint64, error)
	TransactionByHash(hash string) (*domain.LedgerTransaction, error)
	WaitForTransaction(hash string) (*domain.LedgerTransaction, error)
	BuildTransaction(sender aptossdk.AccountAddress, payload aptossdk.TransactionPayload, maxGas, gasPrice uint64) (*aptossdk.RawTransaction, error)
	SubmitTransaction(signed *aptossdk.SignedTransaction) (string, error)
}

// DefaultNodeURLs returns the public fullnodes for network.
func DefaultNodeURLs(network domain.Network) []string {
	switch network {
	case domain.NetworkMainnet:
		return []string{"https://fullnode.mainnet.aptoslabs.com/v1", "https://api.mainnet.aptoslabs.com/v1"}
	case domain.NetworkDevnet:
		return []string{"https://fullnode.devnet.aptoslabs.com/v1"}
	default:
		return []string{"https://fullnode.testnet.aptoslabs.com/v1", "https://api.testnet.aptoslabs.com/v1"}
	}
}

// ChainID returns the chain id of network, or 0 when the node must be asked.
func ChainID(network domain.Network) uint8 {
	switch network {
	case domain.NetworkMainnet:
		return 1
	case domain.NetworkTestnet:
		return 2
	default:
		return 0
	}
}

// Config configures a Client.
type Config struct {
	Network  domain.Network
	NodeURLs []string
	APIKey   string
	Timeout  time.Duration
}

type namedNode struct {
	url  string
	node Node
}

// Client spreads requests over several fullnodes. Requests go to the first
// node that answers; transport errors and 5xx move on to the next node.
type Client struct {
	nodes []namedNode
	log   zerolog.Logger
}

// NewClient creates a client over cfg.NodeURLs.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if len(cfg.NodeURLs) == 0 {
		return nil, errors.New("aptos: at least one node URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	nodes := make([]namedNode, 0, len(cfg.NodeURLs))
	for _, u := range cfg.NodeURLs {
		u = strings.TrimSuffix(u, "/")
		n, err := newSDKNode(u, ChainID(cfg.Network), cfg.APIKey, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("aptos node %s: %w", u, err)
		}
		nodes = append(nodes, namedNode{url: u, node: n})
	}
	return &Client{nodes: nodes, log: log}, nil
}

func (c *Client) do(ctx context.Context, op string, fn func(Node) error) error {
	var errs []error
	for _, n := range c.nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := callWithContext(ctx, func() error { return fn(n.node) })
		if err == nil {
			return nil
		}
		var nodeErr *NodeError
		if errors.Is(err, ErrNotFound) || errors.As(err, &nodeErr) || ctx.Err() != nil {
			return err
		}
		c.log.Debug().Err(err).Str("node", n.url).Str("op", op).Msg("aptos node failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", n.url, err))
	}
	return fmt.Errorf("aptos: all nodes failed: %w", errors.Join(errs...))
}

// callWithContext returns when fn does or ctx ends, whichever comes first.
// fn keeps running in the background until the node timeout fires.
func callWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Balance returns the coinType balance of address. An unknown account
// holds zero.
func (c *Client) Balance(ctx context.Context, address, coinType string) (decimal.Decimal, error) {
	owner, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	if coinType == "" {
		coinType = domain.AptosCoinType
	}
	var units uint64
	err = c.do(ctx, "balance", func(n Node) error {
		u, err := n.Balance(owner, coinType)
		if err == nil {
			units = u
		}
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return decimal.Zero, nil
	case err != nil:
		return decimal.Zero, err
	}
	return domain.FromBaseUnits(units), nil
}

// TransactionByHash implements ports.Ledger.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*domain.LedgerTransaction, error) {
	var tx *domain.LedgerTransaction
	err := c.do(ctx, "transaction_by_hash", func(n Node) error {
		t, err := n.TransactionByHash(hash)
		if err == nil {
			tx = t
		}
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return tx, nil
}

// WaitForTransaction blocks until hash leaves the mempool.
func (c *Client) WaitForTransaction(ctx context.Context, hash string) (*domain.LedgerTransaction, error) {
	var tx *domain.LedgerTransaction
	err := c.do(ctx, "wait_for_transaction", func(n Node) error {
		t, err := n.WaitForTransaction(hash)
		if err == nil {
			tx = t
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// BuildTransaction fills in the sequence number, chain id and expiry for
// payload sent by sender.
func (c *Client) BuildTransaction(ctx context.Context, sender aptossdk.AccountAddress, payload aptossdk.TransactionPayload, maxGas, gasPrice uint64) (*aptossdk.RawTransaction, error) {
	var raw *aptossdk.RawTransaction
	err := c.do(ctx, "build_transaction", func(n Node) error {
		r, err := n.BuildTransaction(sender, payload, maxGas, gasPrice)
		if err == nil {
			raw = r
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Submit posts a signed transaction and returns its hash.
func (c *Client) Submit(ctx context.Context, signed *aptossdk.SignedTransaction) (string, error) {
	var hash string
	err := c.do(ctx, "submit_transaction", func(n Node) error {
		h, err := n.SubmitTransaction(signed)
		if err == nil {
			hash = h
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return hash, nil
}

// SubmitSignedTransaction implements ports.Ledger. payload is the BCS
// encoding of a signed transaction.
func (c *Client) SubmitSignedTransaction(ctx context.Context, payload []byte) (string, error) {
	var signed aptossdk.SignedTransaction
	if err := bcs.Deserialize(&signed, payload); err != nil {
		return "", fmt.Errorf("decode signed transaction: %w", err)
	}
	if signed.Transaction == nil || signed.Authenticator == nil {
		return "", errors.New("signed transaction is missing its body or authenticator")
	}
	return c.Submit(ctx, &signed)
}

// Ping implements ports.HealthChecker.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", func(n Node) error { return n.Ping() })
}

// Name implements ports.HealthChecker.
func (c *Client) Name() string { return "aptos" }

func parseAddress(s string) (aptossdk.AccountAddress, error) {
	var addr aptossdk.AccountAddress
	if err := addr.ParseStringRelaxed(strings.TrimSpace(s)); err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}
