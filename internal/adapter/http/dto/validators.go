package dto

import (
	"reflect"
	"regexp"
	"strings"

	"aptos-x402-gateway/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var txHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = RegisterValidators(v)
	}
}

// RegisterValidators adds the aptos_address, payment_id, token_amount and
// tx_hash tags to v.
func RegisterValidators(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"aptos_address": validateAptosAddress,
		"payment_id":    validatePaymentID,
		"token_amount":  validateTokenAmount,
		"tx_hash":       validateTxHash,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

func validateAptosAddress(fl validator.FieldLevel) bool {
	return domain.IsValidAddress(fl.Field().String())
}

func validatePaymentID(fl validator.FieldLevel) bool {
	return domain.IsValidPaymentID(fl.Field().String())
}

// validateTokenAmount accepts decimals with at most six fractional digits.
func validateTokenAmount(fl validator.FieldLevel) bool {
	return domain.IsValidAmount(fl.Field().String())
}

func validateTxHash(fl validator.FieldLevel) bool {
	return txHashRe.MatchString(fl.Field().String())
}

// TrimStrings trims whitespace from every exported string field (including
// *string) of a struct pointer.
func TrimStrings(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	trimFields(rv.Elem())
}

func trimFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(strings.TrimSpace(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			if elem := f.Elem(); elem.Kind() == reflect.String {
				elem.SetString(strings.TrimSpace(elem.String()))
			}
		}
	}
}
