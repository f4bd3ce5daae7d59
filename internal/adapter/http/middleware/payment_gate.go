package middleware

import (
	"errors"
	"fmt"
	"time"

	"aptos-x402-gateway/internal/core/codec"
	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports"
	"aptos-x402-gateway/pkg/apperror"
	"aptos-x402-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Context keys set by PaymentGate
	CtxPaymentID      = "payment_id"
	CtxPaymentOutcome = "payment_outcome"
	CtxPaymentReason  = "payment_reason"
	CtxPaymentAmount  = "payment_amount"
	CtxPaymentResult  = "payment_result"

	// DefaultReplayTTL is how long a consumed paymentId is remembered.
	DefaultReplayTTL = 24 * time.Hour

	replayScope = "payment"
)

// GateConfig configures PaymentGate.
type GateConfig struct {
	Resolver     ports.RuleResolver
	Verifier     ports.PaymentVerifier
	Replay       ports.ReplayGuard // nil disables the consumed-paymentId check
	ReplayTTL    time.Duration
	Network      domain.Network
	TokenAddress string
	Clock        ports.Clock
	Log          zerolog.Logger
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// PaymentGate requires an accepted X-Aptos-Payment proof on every path
// that has a payment rule. Paths without a rule pass through untouched.
// Every request reaches exactly one terminal state.
func PaymentGate(cfg GateConfig) gin.HandlerFunc {
	if cfg.ReplayTTL <= 0 {
		cfg.ReplayTTL = DefaultReplayTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = wallClock{}
	}
	if cfg.Network == "" {
		cfg.Network = domain.NetworkTestnet
	}
	log := cfg.Log

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		rule, ok := cfg.Resolver.Resolve(path)
		if !ok {
			c.Next()
			return
		}
		if rule.Description == "" {
			rule.Description = "Payment for " + path
		}
		c.Set(CtxPaymentAmount, rule.Amount)

		header := c.GetHeader(domain.HeaderPayment)
		if header == "" {
			issueRequirement(c, cfg, rule, nil)
			return
		}

		proof, err := codec.DecodeProof(header)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("malformed payment proof")
			issueRequirement(c, cfg, rule, &response.PaymentRejectedBody{
				Error:  "Invalid payment header",
				Reason: malformedReason(err),
			})
			return
		}
		c.Set(CtxPaymentID, proof.PaymentID)
		plog := log.With().Str("payment_id", proof.PaymentID).Str("path", path).Logger()

		result, err := cfg.Verifier.VerifyPayment(c.Request.Context(), domain.NewVerifyRequest(proof, rule, cfg.Network, cfg.TokenAddress))
		if err != nil {
			plog.Error().Err(err).Msg("payment verification errored")
			c.Set(CtxPaymentOutcome, domain.PaymentOutcomeError)
			c.Set(CtxPaymentReason, apperror.CodeOf(err))
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if !result.IsValid {
			plog.Info().Str("reason", result.Reason).Msg("payment rejected")
			issueRequirement(c, cfg, rule, &response.PaymentRejectedBody{
				Error:  "Payment verification failed",
				Reason: result.Reason,
			})
			return
		}

		if cfg.Replay != nil {
			fresh, err := cfg.Replay.CheckAndSet(c.Request.Context(), replayScope, proof.PaymentID, cfg.ReplayTTL)
			if err != nil {
				plog.Error().Err(err).Msg("replay store unavailable, refusing payment")
				c.Set(CtxPaymentOutcome, domain.PaymentOutcomeError)
				c.Set(CtxPaymentReason, "replay store unavailable")
				response.Error(c, apperror.InternalError(err))
				c.Abort()
				return
			}
			if !fresh {
				plog.Warn().Msg("payment id already consumed")
				issueRequirement(c, cfg, rule, &response.PaymentRejectedBody{
					Error:  "Payment verification failed",
					Reason: apperror.ErrPaymentRejected("payment already used").Message,
				})
				return
			}
		}

		txHash := result.TransactionHash
		if txHash == "" {
			txHash = proof.TransactionHash
		}
		sender := result.SenderAddress
		if sender == "" {
			sender = proof.SenderAddress
		}
		encoded, err := codec.EncodePaymentResponse(domain.PaymentResponse{
			Success:         true,
			PaymentID:       proof.PaymentID,
			TransactionHash: txHash,
			SenderAddress:   sender,
		})
		if err != nil {
			plog.Error().Err(err).Msg("failed to encode payment response")
			c.Set(CtxPaymentOutcome, domain.PaymentOutcomeError)
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}

		plog.Info().Str("tx_hash", txHash).Str("amount", rule.Amount).Msg("payment verified")
		c.Header(domain.HeaderPaymentResponse, encoded)
		c.Set(CtxPaymentOutcome, domain.PaymentOutcomeVerified)
		c.Set(CtxPaymentResult, result)
		c.Next()
	}
}

// issueRequirement answers 402 with a fresh requirement. rejected, when set,
// replaces the default body.
func issueRequirement(c *gin.Context, cfg GateConfig, rule domain.PaymentRule, rejected *response.PaymentRejectedBody) {
	req := domain.NewRequirement(uuid.NewString(), rule, cfg.Network, cfg.TokenAddress, cfg.Clock.Now())
	encoded, err := codec.EncodeRequirement(req)
	if err != nil {
		cfg.Log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("failed to encode payment requirement")
		c.Set(CtxPaymentOutcome, domain.PaymentOutcomeError)
		response.Error(c, apperror.InternalError(err))
		c.Abort()
		return
	}

	var body interface{}
	if rejected != nil {
		body = rejected
		c.Set(CtxPaymentOutcome, domain.PaymentOutcomeRejected)
		c.Set(CtxPaymentReason, rejected.Reason)
	} else {
		body = response.PaymentRequiredBody{
			Error:   "Payment Required",
			Message: fmt.Sprintf("Payment of %s %s required", rule.Amount, domain.AptosCoinSymbol),
			PaymentDetails: response.PaymentDetails{
				Amount:      rule.Amount,
				Currency:    domain.AptosCoinSymbol,
				Recipient:   rule.RecipientAddress,
				Description: rule.Description,
			},
		}
		c.Set(CtxPaymentID, req.PaymentID)
		c.Set(CtxPaymentOutcome, domain.PaymentOutcomeRequired)
	}

	response.PaymentRequired(c, domain.HeaderPaymentRequired, encoded, body)
	c.Abort()
}

// malformedReason keeps decoder detail out of the response; only the
// missing field name is echoed back.
func malformedReason(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Code == apperror.CodeMissingField {
		return appErr.Message
	}
	return "malformed payment proof"
}
