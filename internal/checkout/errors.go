package checkout

import (
	"errors"
	"strings"
)

var (
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")
	ErrInvalidPaymentInput = errors.New("invalid payment input")
	ErrSettlementDeclined  = errors.New("settlement declined")
	ErrSettlementTimedOut  = errors.New("settlement timed out")
	ErrStorageFailure      = errors.New("storage failure during checkout")
	ErrTotalMismatch       = errors.New("order total does not match payment amount")
)

// PaymentInputError names the settlement fields that were missing.
type PaymentInputError struct {
	Fields []string
}

func (e *PaymentInputError) Error() string {
	return ErrInvalidPaymentInput.Error() + ": missing " + strings.Join(e.Fields, ", ")
}

func (e *PaymentInputError) Unwrap() error {
	return ErrInvalidPaymentInput
}
