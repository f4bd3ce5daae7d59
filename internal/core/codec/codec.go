// Package codec encodes and decodes the payment protocol headers.
//
// Decoding never panics: every failure is an *apperror.AppError with code
// HDR_001 (malformed) or HDR_002 (missing field).
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/pkg/apperror"
)

// wireRequirement mirrors domain.PaymentRequirement with pointer fields so
// absent keys can be told apart from zero values.
type wireRequirement struct {
	ProtocolVersion  *int    `json:"x402Version"`
	PaymentID        *string `json:"paymentId"`
	Amount           *string `json:"amount"`
	TokenAddress     *string `json:"tokenAddress"`
	RecipientAddress *string `json:"recipientAddress"`
	Network          *string `json:"network"`
	CurrencySymbol   *string `json:"currencySymbol"`
	Description      *string `json:"description"`
	IssuedAt         *int64  `json:"timestamp"`
}

type wireProof struct {
	ProtocolVersion *int    `json:"x402Version"`
	PaymentID       *string `json:"paymentId"`
	TransactionHash *string `json:"transactionHash"`
	SignedPayload   []byte  `json:"signedTransactionPayload"`
	SenderAddress   *string `json:"senderAddress"`
	IssuedAt        *int64  `json:"timestamp"`
	ClientAppID     *string `json:"clientAppId"`
}

// EncodeRequirement serializes req for the X-Aptos-Payment-Required header.
func EncodeRequirement(req domain.PaymentRequirement) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding payment requirement: %w", err)
	}
	return string(b), nil
}

// EncodeProof serializes proof for the X-Aptos-Payment header.
func EncodeProof(proof domain.PaymentProof) (string, error) {
	b, err := json.Marshal(proof)
	if err != nil {
		return "", fmt.Errorf("encoding payment proof: %w", err)
	}
	return string(b), nil
}

// EncodePaymentResponse serializes resp for the X-Aptos-Payment-Response header.
func EncodePaymentResponse(resp domain.PaymentResponse) (string, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("encoding payment response: %w", err)
	}
	return string(b), nil
}

// DecodePaymentResponse parses an X-Aptos-Payment-Response value.
func DecodePaymentResponse(header string) (domain.PaymentResponse, error) {
	var resp domain.PaymentResponse
	if err := unmarshalObject(header, &resp); err != nil {
		return domain.PaymentResponse{}, err
	}
	if resp.PaymentID == "" {
		return domain.PaymentResponse{}, apperror.ErrMissingField("paymentId")
	}
	return resp, nil
}

// DecodeRequirement parses and validates an X-Aptos-Payment-Required value.
func DecodeRequirement(header string) (domain.PaymentRequirement, error) {
	var w wireRequirement
	if err := unmarshalObject(header, &w); err != nil {
		return domain.PaymentRequirement{}, err
	}

	switch {
	case w.ProtocolVersion == nil:
		return domain.PaymentRequirement{}, apperror.ErrMissingField("x402Version")
	case w.PaymentID == nil:
		return domain.PaymentRequirement{}, apperror.ErrMissingField("paymentId")
	case w.Amount == nil:
		return domain.PaymentRequirement{}, apperror.ErrMissingField("amount")
	case w.RecipientAddress == nil:
		return domain.PaymentRequirement{}, apperror.ErrMissingField("recipientAddress")
	case w.Network == nil:
		return domain.PaymentRequirement{}, apperror.ErrMissingField("network")
	}

	if err := checkVersion(*w.ProtocolVersion); err != nil {
		return domain.PaymentRequirement{}, err
	}
	if !domain.IsValidPaymentID(*w.PaymentID) {
		return domain.PaymentRequirement{}, apperror.ErrMalformedHeader("paymentId is not a UUIDv4")
	}
	if !domain.IsValidAmount(*w.Amount) {
		return domain.PaymentRequirement{}, apperror.ErrMalformedHeader("invalid amount format")
	}
	if !domain.IsValidAddress(*w.RecipientAddress) {
		return domain.PaymentRequirement{}, apperror.ErrMalformedHeader("invalid recipient address")
	}
	network := domain.Network(*w.Network)
	if !network.IsValid() {
		return domain.PaymentRequirement{}, apperror.ErrMalformedHeader("unknown network")
	}

	return domain.PaymentRequirement{
		ProtocolVersion:  *w.ProtocolVersion,
		PaymentID:        *w.PaymentID,
		Amount:           *w.Amount,
		TokenAddress:     deref(w.TokenAddress),
		RecipientAddress: *w.RecipientAddress,
		Network:          network,
		CurrencySymbol:   deref(w.CurrencySymbol),
		Description:      deref(w.Description),
		IssuedAt:         derefInt(w.IssuedAt),
	}, nil
}

// DecodeProof parses and validates an X-Aptos-Payment value.
func DecodeProof(header string) (domain.PaymentProof, error) {
	var w wireProof
	if err := unmarshalObject(header, &w); err != nil {
		return domain.PaymentProof{}, err
	}

	if w.ProtocolVersion == nil {
		return domain.PaymentProof{}, apperror.ErrMissingField("x402Version")
	}
	if w.PaymentID == nil {
		return domain.PaymentProof{}, apperror.ErrMissingField("paymentId")
	}
	if err := checkVersion(*w.ProtocolVersion); err != nil {
		return domain.PaymentProof{}, err
	}
	if !domain.IsValidPaymentID(*w.PaymentID) {
		return domain.PaymentProof{}, apperror.ErrMalformedHeader("paymentId is not a UUIDv4")
	}
	if w.SenderAddress != nil && !domain.IsValidAddress(*w.SenderAddress) {
		return domain.PaymentProof{}, apperror.ErrMalformedHeader("invalid sender address")
	}

	return domain.PaymentProof{
		ProtocolVersion: *w.ProtocolVersion,
		PaymentID:       *w.PaymentID,
		TransactionHash: deref(w.TransactionHash),
		SignedPayload:   w.SignedPayload,
		SenderAddress:   deref(w.SenderAddress),
		IssuedAt:        derefInt(w.IssuedAt),
		ClientAppID:     deref(w.ClientAppID),
	}, nil
}

// unmarshalObject accepts exactly one JSON object.
func unmarshalObject(header string, v interface{}) error {
	trimmed := bytes.TrimSpace([]byte(header))
	if len(trimmed) == 0 {
		return apperror.ErrMalformedHeader("empty header")
	}
	if trimmed[0] != '{' {
		return apperror.ErrMalformedHeader("not a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(v); err != nil {
		return apperror.ErrMalformedHeader("invalid JSON: " + err.Error())
	}
	if dec.More() {
		return apperror.ErrMalformedHeader("trailing data after JSON object")
	}
	return nil
}

func checkVersion(v int) error {
	if v != domain.ProtocolVersion {
		return apperror.ErrMalformedHeader(fmt.Sprintf("unsupported protocol version %d", v))
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int64) int64 {
	if i == nil {
		return 0
	}
	return *i
}
