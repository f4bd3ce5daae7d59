package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"aptos-x402-gateway/internal/core/codec"
	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports"
	"aptos-x402-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// Negotiator performs HTTP requests and settles 402 responses by paying
// from a FundsManager and retrying once with the proof attached.
type Negotiator struct {
	client      HTTPClient
	funds       ports.FundsManager
	clock       ports.Clock
	clientAppID string
	timeout     time.Duration
	log         zerolog.Logger
}

// DefaultRequestTimeout bounds each HTTP call a Negotiator makes unless
// WithRequestTimeout says otherwise.
const DefaultRequestTimeout = 30 * time.Second

// NegotiatorOption customizes a Negotiator.
type NegotiatorOption func(*Negotiator)

// WithClientAppID tags every proof with id.
func WithClientAppID(id string) NegotiatorOption {
	return func(n *Negotiator) { n.clientAppID = id }
}

// WithNegotiatorClock injects the clock used for proof timestamps.
func WithNegotiatorClock(clock ports.Clock) NegotiatorOption {
	return func(n *Negotiator) { n.clock = clock }
}

// WithRequestTimeout bounds each HTTP call, response body included.
// Zero or less leaves only the caller's context.
func WithRequestTimeout(d time.Duration) NegotiatorOption {
	return func(n *Negotiator) { n.timeout = d }
}

// NewNegotiator creates a negotiator. A nil client means http.DefaultClient.
func NewNegotiator(client HTTPClient, funds ports.FundsManager, log zerolog.Logger, opts ...NegotiatorOption) *Negotiator {
	if client == nil {
		client = http.DefaultClient
	}
	n := &Negotiator{
		client:  client,
		funds:   funds,
		clock:   SystemClock{},
		timeout: DefaultRequestTimeout,
		log:     log,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Get fetches url, paying for it if required.
func (n *Negotiator) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperror.ErrFetchFailed(err)
	}
	return n.Do(ctx, req)
}

// Do sends req. A 402 answer is paid and the request is re-sent once with
// the X-Aptos-Payment header; any other answer is returned unchanged.
func (n *Negotiator) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, apperror.ErrFetchFailed(err)
	}

	resp, err := n.send(cloneRequest(ctx, req, body))
	if err != nil {
		return nil, apperror.ErrFetchFailed(err)
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	header := resp.Header.Get(domain.HeaderPaymentRequired)
	drainAndClose(resp)

	requirement, err := codec.DecodeRequirement(header)
	if err != nil {
		return nil, apperror.ErrInvalidPaymentRequired(err)
	}
	log := n.log.With().
		Str("payment_id", requirement.PaymentID).
		Str("url", req.URL.String()).
		Str("amount", requirement.Amount).
		Logger()
	log.Info().Str("recipient", requirement.RecipientAddress).Msg("payment required")

	proofHeader, err := n.settle(ctx, requirement)
	if err != nil {
		log.Error().Err(err).Msg("payment handling failed")
		return nil, apperror.ErrPaymentHandlingFailed(err)
	}

	retry := cloneRequest(ctx, req, body)
	retry.Header.Set(domain.HeaderPayment, proofHeader)
	resp, err = n.send(retry)
	if err != nil {
		return nil, apperror.ErrPaymentHandlingFailed(fmt.Errorf("sending paid request: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		drainAndClose(resp)
		log.Warn().Int("status", resp.StatusCode).Msg("paid request rejected")
		return nil, apperror.ErrPaymentVerificationFailed(resp.StatusCode)
	}

	log.Info().Int("status", resp.StatusCode).Msg("paid request accepted")
	return resp, nil
}

// settle funds and submits the payment and returns the encoded proof.
func (n *Negotiator) settle(ctx context.Context, requirement domain.PaymentRequirement) (string, error) {
	amount, err := domain.ParseAmount(requirement.Amount)
	if err != nil {
		return "", err
	}
	if err := n.funds.EnsureFunds(ctx); err != nil {
		return "", fmt.Errorf("ensuring funds: %w", err)
	}
	record, err := n.funds.Pay(ctx, domain.NewCoinTransfer(requirement.RecipientAddress, amount, requirement.TokenAddress))
	if err != nil {
		return "", fmt.Errorf("paying: %w", err)
	}

	proof := domain.PaymentProof{
		ProtocolVersion: domain.ProtocolVersion,
		PaymentID:       requirement.PaymentID,
		TransactionHash: record.TransactionID,
		IssuedAt:        n.clock.Now().UnixMilli(),
		ClientAppID:     n.clientAppID,
	}
	if domain.IsValidAddress(record.From) {
		proof.SenderAddress = record.From
	}
	return codec.EncodeProof(proof)
}

// RoundTripper returns a transport that pays transparently. The negotiator's
// own client must not use it.
func (n *Negotiator) RoundTripper() http.RoundTripper {
	return payingTransport{n: n}
}

// send runs req under the request timeout. The deadline stays armed until
// the response body is closed.
func (n *Negotiator) send(req *http.Request) (*http.Response, error) {
	if n.timeout <= 0 {
		return n.client.Do(req)
	}
	ctx, cancel := context.WithTimeout(req.Context(), n.timeout)
	resp, err := n.client.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

type payingTransport struct {
	n *Negotiator
}

func (t payingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.n.Do(req.Context(), req)
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

func cloneRequest(ctx context.Context, req *http.Request, body []byte) *http.Request {
	r := req.Clone(ctx)
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return r
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
