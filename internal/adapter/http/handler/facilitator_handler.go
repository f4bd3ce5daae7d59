package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"aptos-x402-gateway/internal/adapter/http/dto"
	"aptos-x402-gateway/internal/core/ports"
	"aptos-x402-gateway/pkg/apperror"
	"aptos-x402-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog"
)

// FacilitatorHandler serves the verification API used by gateways.
type FacilitatorHandler struct {
	verifier ports.PaymentVerifier
	log      zerolog.Logger
}

// NewFacilitatorHandler creates a new FacilitatorHandler.
func NewFacilitatorHandler(verifier ports.PaymentVerifier, log zerolog.Logger) *FacilitatorHandler {
	return &FacilitatorHandler{verifier: verifier, log: log}
}

// VerifyPayment handles POST /verify-payment. An invalid payment is a 200
// with isValid=false; only malformed requests and infrastructure failures
// produce error statuses.
func (h *FacilitatorHandler) VerifyPayment(c *gin.Context) {
	var req dto.VerifyPaymentRequest
	if err := bindTrimmed(c, &req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if req.TransactionHash == "" && len(req.SignedTransactionPayload) == 0 {
		response.Error(c, apperror.Validation("transactionHash or signedTransactionPayload is required"))
		return
	}

	result, err := h.verifier.VerifyPayment(c.Request.Context(), req.ToDomain())
	if err != nil {
		h.log.Error().Err(err).Str("payment_id", req.PaymentID).Msg("verify payment failed")
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SubmitTransaction handles POST /submit-transaction.
func (h *FacilitatorHandler) SubmitTransaction(c *gin.Context) {
	var req dto.SubmitTransactionRequest
	if err := bindTrimmed(c, &req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.verifier.SubmitTransaction(c.Request.Context(), req.SignedTransactionPayload)
	if err != nil {
		h.log.Error().Err(err).Msg("submit transaction failed")
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// bindTrimmed decodes the JSON body into obj, trims its string fields and
// then runs the binding validators.
func bindTrimmed(c *gin.Context, obj interface{}) error {
	if c.Request.Body == nil {
		return fmt.Errorf("request body is required")
	}
	if err := json.NewDecoder(c.Request.Body).Decode(obj); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	dto.TrimStrings(obj)
	return binding.Validator.ValidateStruct(obj)
}
