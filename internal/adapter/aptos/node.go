package aptos

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aptos-x402-gateway/internal/core/domain"

	aptossdk "github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/api"
)

// sdkNode is a Node backed by one SDK client.
type sdkNode struct {
	client *aptossdk.Client
}

func newSDKNode(url string, chainID uint8, apiKey string, timeout time.Duration) (*sdkNode, error) {
	client, err := aptossdk.NewClient(aptossdk.NetworkConfig{
		Name:    "custom",
		ChainId: chainID,
		NodeUrl: url,
	})
	if err != nil {
		return nil, err
	}
	client.SetTimeout(timeout)
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &sdkNode{client: client}, nil
}

func (n *sdkNode) Ping() error {
	_, err := n.client.Info()
	return classify(err)
}

func (n *sdkNode) Balance(owner aptossdk.AccountAddress, coinType string) (uint64, error) {
	if coinType == domain.AptosCoinType {
		units, err := n.client.AccountAPTBalance(owner)
		if err != nil {
			return 0, classify(err)
		}
		return units, nil
	}

	tag, err := parseTypeTag(coinType)
	if err != nil {
		return 0, err
	}
	out, err := n.client.View(&aptossdk.ViewPayload{
		Module:   aptossdk.ModuleId{Address: aptossdk.AccountOne, Name: "coin"},
		Function: "balance",
		ArgTypes: []aptossdk.TypeTag{tag},
		Args:     [][]byte{owner[:]},
	})
	if err != nil {
		return 0, classify(err)
	}
	if len(out) == 0 {
		return 0, errors.New("coin::balance returned nothing")
	}
	return parseU64(out[0])
}

func (n *sdkNode) TransactionByHash(hash string) (*domain.LedgerTransaction, error) {
	tx, err := n.client.TransactionByHash(hash)
	if err != nil {
		return nil, classify(err)
	}
	return toLedgerTransaction(hash, tx), nil
}

func (n *sdkNode) WaitForTransaction(hash string) (*domain.LedgerTransaction, error) {
	tx, err := n.client.WaitForTransaction(hash)
	if err != nil {
		return nil, classify(err)
	}
	return fromUserTransaction(tx), nil
}

func (n *sdkNode) BuildTransaction(sender aptossdk.AccountAddress, payload aptossdk.TransactionPayload, maxGas, gasPrice uint64) (*aptossdk.RawTransaction, error) {
	raw, err := n.client.BuildTransaction(sender, payload,
		aptossdk.MaxGasAmount(maxGas),
		aptossdk.GasUnitPrice(gasPrice),
	)
	if err != nil {
		return nil, classify(err)
	}
	return raw, nil
}

func (n *sdkNode) SubmitTransaction(signed *aptossdk.SignedTransaction) (string, error) {
	resp, err := n.client.SubmitTransaction(signed)
	if err != nil {
		return "", classify(err)
	}
	return resp.Hash, nil
}

// classify maps SDK HTTP errors onto ErrNotFound and *NodeError.
func classify(err error) error {
	var httpErr *aptossdk.HttpError
	if err == nil || !errors.As(err, &httpErr) {
		return err
	}
	switch {
	case httpErr.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
		var body struct {
			Message   string `json:"message"`
			ErrorCode string `json:"error_code"`
		}
		if json.Unmarshal(httpErr.Body, &body) != nil || body.Message == "" {
			body.Message = string(httpErr.Body)
		}
		return &NodeError{Status: httpErr.StatusCode, ErrorCode: body.ErrorCode, Message: body.Message}
	}
	return err
}

func toLedgerTransaction(hash string, tx *api.Transaction) *domain.LedgerTransaction {
	if tx == nil {
		return nil
	}
	if ut, ok := tx.Inner.(*api.UserTransaction); ok {
		return fromUserTransaction(ut)
	}
	return &domain.LedgerTransaction{Hash: hash, Type: string(tx.Type)}
}

func fromUserTransaction(ut *api.UserTransaction) *domain.LedgerTransaction {
	if ut == nil {
		return nil
	}
	out := &domain.LedgerTransaction{
		Hash:      ut.Hash,
		Type:      "user_transaction",
		Success:   ut.Success,
		VMStatus:  ut.VmStatus,
		Timestamp: time.UnixMicro(int64(ut.Timestamp)),
	}
	if ut.Sender != nil {
		out.Sender = domain.NormalizeAddress(ut.Sender.String())
	}
	if ut.Payload == nil {
		return out
	}
	if ef, ok := ut.Payload.Inner.(*api.TransactionPayloadEntryFunction); ok {
		out.Function = ef.Function
		out.TypeArguments = ef.TypeArguments
		out.Arguments = make([]string, 0, len(ef.Arguments))
		for _, a := range ef.Arguments {
			out.Arguments = append(out.Arguments, argString(a))
		}
	}
	return out
}

func argString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func parseU64(v any) (uint64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseUint(t, 10, 64)
	case float64:
		return uint64(t), nil
	default:
		return 0, fmt.Errorf("unexpected u64 value %T", v)
	}
}

// parseTypeTag parses a non-generic struct tag such as
// 0x1::aptos_coin::AptosCoin.
func parseTypeTag(s string) (aptossdk.TypeTag, error) {
	parts := strings.Split(strings.TrimSpace(s), "::")
	if len(parts) != 3 || strings.ContainsAny(s, "<>") {
		return aptossdk.TypeTag{}, fmt.Errorf("unsupported type tag %q", s)
	}
	addr, err := parseAddress(parts[0])
	if err != nil {
		return aptossdk.TypeTag{}, err
	}
	return aptossdk.TypeTag{Value: &aptossdk.StructTag{
		Address:    addr,
		Module:     parts[1],
		Name:       parts[2],
		TypeParams: []aptossdk.TypeTag{},
	}}, nil
}
