package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// webhookRetryIntervals defines the default wait before each retry.
var webhookRetryIntervals = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
}

// Webhook request headers
const (
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
	HeaderWebhookDelivery  = "X-Webhook-Delivery"
	HeaderWebhookEvent     = "X-Webhook-Event"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookNotifier implements ports.RefillNotifier by POSTing a signed
// RefillNotification to an operator endpoint.
type WebhookNotifier struct {
	url        string
	secret     string
	signer     ports.SignatureService
	httpClient HTTPClient
	intervals  []time.Duration
	log        zerolog.Logger
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithRetryIntervals overrides the waits between delivery attempts.
func WithRetryIntervals(intervals ...time.Duration) WebhookOption {
	return func(n *WebhookNotifier) { n.intervals = intervals }
}

// WithSigner replaces the HMAC-SHA256 signer.
func WithSigner(signer ports.SignatureService) WebhookOption {
	return func(n *WebhookNotifier) { n.signer = signer }
}

// NewWebhookNotifier creates a notifier for url signed with secret.
func NewWebhookNotifier(url, secret string, httpClient HTTPClient, log zerolog.Logger, opts ...WebhookOption) *WebhookNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	n := &WebhookNotifier{
		url:        url,
		secret:     secret,
		signer:     NewHMACSignatureService(),
		httpClient: httpClient,
		intervals:  webhookRetryIntervals,
		log:        log,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyRefill delivers event, retrying until an attempt gets a 2xx, the
// retries run out, or ctx ends.
func (n *WebhookNotifier) NotifyRefill(ctx context.Context, event domain.RefillEvent) error {
	notification := domain.NewRefillNotification(event)
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	deliveryID := uuid.NewString()
	timestamp := time.Now().Unix()
	notification.Signature = n.signer.Sign(n.secret,
		webhookSigningString(notification.EventType, timestamp, deliveryID, eventBytes))

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	log := n.log.With().Str("delivery_id", deliveryID).Str("event_type", notification.EventType).Logger()
	var lastErr error
	for attempt := 0; attempt <= len(n.intervals); attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(n.intervals[attempt-1])
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), lastErr)
			case <-timer.C:
			}
		}

		lastErr = n.deliver(ctx, payload, notification, deliveryID, timestamp)
		if lastErr == nil {
			log.Info().Int("attempt", attempt+1).Msg("webhook: delivered successfully")
			return nil
		}
		log.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("webhook: delivery failed")
	}

	log.Error().Msg("webhook: all retry attempts exhausted")
	return fmt.Errorf("webhook: delivery failed after %d attempts: %w", len(n.intervals)+1, lastErr)
}

func (n *WebhookNotifier) deliver(ctx context.Context, payload []byte, notification domain.RefillNotification, deliveryID string, timestamp int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWebhookSignature, notification.Signature)
	req.Header.Set(HeaderWebhookTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderWebhookDelivery, deliveryID)
	req.Header.Set(HeaderWebhookEvent, notification.EventType)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return nil
}

// RefillNotifiers fans a refill event out to several notifiers.
type RefillNotifiers []ports.RefillNotifier

// NotifyRefill calls every notifier and joins their errors.
func (ns RefillNotifiers) NotifyRefill(ctx context.Context, event domain.RefillEvent) error {
	var errs []error
	for _, n := range ns {
		if err := n.NotifyRefill(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
