// Package facilitator is the HTTP client for the payment facilitator service.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports"
	"aptos-x402-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a facilitator call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// tokenSubject identifies the gateway in service tokens.
const tokenSubject = "gateway"

// Config configures the facilitator client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// Client implements ports.PaymentVerifier and ports.HealthChecker.
type Client struct {
	baseURL    string
	timeout    time.Duration
	headers    map[string]string
	httpClient *http.Client
	tokens     ports.TokenService // nil = unauthenticated
	log        zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenService sends a bearer service token on every call.
func WithTokenService(ts ports.TokenService) Option {
	return func(c *Client) { c.tokens = ts }
}

// NewClient creates a facilitator client.
func NewClient(cfg Config, log zerolog.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    timeout,
		headers:    cfg.Headers,
		httpClient: &http.Client{},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VerifyPayment asks the facilitator to check a proof. A rejected proof is a
// result with IsValid false, not an error.
func (c *Client) VerifyPayment(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	var result domain.VerifyResult
	if err := c.post(ctx, "/verify-payment", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitTransaction relays a signed transaction through the facilitator.
func (c *Client) SubmitTransaction(ctx context.Context, signedPayload []byte) (*domain.SubmitResult, error) {
	var result domain.SubmitResult
	if err := c.post(ctx, "/submit-transaction", domain.SubmitRequest{SignedTransactionPayload: signedPayload}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping checks GET /health.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facilitator health returned status %d", resp.StatusCode)
	}
	return nil
}

// Name returns the dependency name.
func (c *Client) Name() string {
	return "facilitator"
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperror.ErrFacilitator(0, fmt.Errorf("marshal request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperror.ErrFacilitator(0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.tokens != nil {
		token, _, err := c.tokens.Generate(tokenSubject)
		if err != nil {
			return apperror.ErrFacilitator(0, fmt.Errorf("service token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			c.log.Warn().Str("path", path).Dur("timeout", c.timeout).Msg("facilitator request timed out")
			return apperror.ErrFacilitatorTimeout(err)
		}
		return apperror.ErrFacilitator(0, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("facilitator call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperror.ErrFacilitator(resp.StatusCode, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(ctx, err) {
			return apperror.ErrFacilitatorTimeout(err)
		}
		return apperror.ErrFacilitator(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
