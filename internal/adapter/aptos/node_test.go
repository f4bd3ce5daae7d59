package aptos

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"aptos-x402-gateway/internal/core/domain"

	aptossdk "github.com/aptos-labs/aptos-go-sdk"
)

var errUnavailable = errors.New("503 Service Unavailable: overloaded")

// fakeNode is an in-process Node with coin balances and sequence numbers.
type fakeNode struct {
	mu        sync.Mutex
	balances  map[string]uint64
	sequences map[string]uint64
	txs       map[string]*domain.LedgerTransaction
	submitted []*aptossdk.SignedTransaction
	calls     int
	failNext  int   // answer this many calls with errUnavailable
	err       error // answer every call with err
	vmStatus  string
	stall     chan struct{} // when set, Balance blocks until it is closed
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		balances:  make(map[string]uint64),
		sequences: make(map[string]uint64),
		txs:       make(map[string]*domain.LedgerTransaction),
		vmStatus:  "Executed successfully",
	}
}

func (n *fakeNode) fund(addr string, octas uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[domain.NormalizeAddress(addr)] += octas
}

func (n *fakeNode) balance(addr string) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.balances[domain.NormalizeAddress(addr)]
}

func (n *fakeNode) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *fakeNode) submissions() []*aptossdk.SignedTransaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*aptossdk.SignedTransaction(nil), n.submitted...)
}

// enter counts a call and returns the injected failure, if any. Callers
// hold n.mu.
func (n *fakeNode) enter() error {
	n.calls++
	if n.err != nil {
		return n.err
	}
	if n.failNext > 0 {
		n.failNext--
		return errUnavailable
	}
	return nil
}

func (n *fakeNode) Ping() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enter()
}

func (n *fakeNode) Balance(owner aptossdk.AccountAddress, coinType string) (uint64, error) {
	n.mu.Lock()
	stall := n.stall
	n.mu.Unlock()
	if stall != nil {
		<-stall
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(); err != nil {
		return 0, err
	}
	if coinType != domain.AptosCoinType {
		return 0, ErrNotFound
	}
	return n.balances[domain.NormalizeAddress(owner.String())], nil
}

func (n *fakeNode) TransactionByHash(hash string) (*domain.LedgerTransaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(); err != nil {
		return nil, err
	}
	tx, ok := n.txs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

func (n *fakeNode) WaitForTransaction(hash string) (*domain.LedgerTransaction, error) {
	return n.TransactionByHash(hash)
}

func (n *fakeNode) BuildTransaction(sender aptossdk.AccountAddress, payload aptossdk.TransactionPayload, maxGas, gasPrice uint64) (*aptossdk.RawTransaction, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(); err != nil {
		return nil, err
	}
	return &aptossdk.RawTransaction{
		Sender:                     sender,
		SequenceNumber:             n.sequences[domain.NormalizeAddress(sender.String())],
		Payload:                    payload,
		MaxGasAmount:               maxGas,
		GasUnitPrice:               gasPrice,
		ExpirationTimestampSeconds: uint64(time.Now().Add(time.Minute).Unix()),
		ChainId:                    4,
	}, nil
}

func (n *fakeNode) SubmitTransaction(signed *aptossdk.SignedTransaction) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(); err != nil {
		return "", err
	}

	raw := signed.Transaction
	sender := domain.NormalizeAddress(raw.Sender.String())
	if raw.SequenceNumber != n.sequences[sender] {
		return "", &NodeError{Status: 400, ErrorCode: "vm_error", Message: "SEQUENCE_NUMBER_TOO_OLD"}
	}
	entry, ok := raw.Payload.Payload.(*aptossdk.EntryFunction)
	if !ok || len(entry.Args) != 2 {
		return "", &NodeError{Status: 400, ErrorCode: "invalid_input", Message: "unexpected payload"}
	}
	var to aptossdk.AccountAddress
	copy(to[:], entry.Args[0])
	recipient := domain.NormalizeAddress(to.String())
	amount := binary.LittleEndian.Uint64(entry.Args[1])

	n.sequences[sender]++
	n.submitted = append(n.submitted, signed)

	typeArgs := make([]string, 0, len(entry.ArgTypes))
	for _, t := range entry.ArgTypes {
		typeArgs = append(typeArgs, t.String())
	}
	hash := fmt.Sprintf("0x%064x", len(n.txs)+1)
	tx := &domain.LedgerTransaction{
		Hash:          hash,
		Type:          "user_transaction",
		Sender:        sender,
		Function:      entry.Module.Address.String() + "::" + entry.Module.Name + "::" + entry.Function,
		TypeArguments: typeArgs,
		Arguments:     []string{recipient, fmt.Sprint(amount)},
		Timestamp:     time.UnixMicro(1778061600000000),
	}
	switch {
	case n.vmStatus != "Executed successfully":
		tx.VMStatus = n.vmStatus
	case n.balances[sender] < amount:
		tx.VMStatus = "Move abort in 0x1::coin: EINSUFFICIENT_BALANCE(0x10006)"
	default:
		n.balances[sender] -= amount
		n.balances[recipient] += amount
		tx.Success = true
		tx.VMStatus = n.vmStatus
	}
	n.txs[hash] = tx
	return hash, nil
}
