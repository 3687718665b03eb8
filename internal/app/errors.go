package app

import (
	"errors"
	"fmt"

	"github.com/sbalsara05/Burrow-Housing-sub000/internal/store"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrForbidden            = errors.New("not a party to this contract")
	ErrStateConflict        = errors.New("contract state conflict")
	ErrPaymentWindowExpired = errors.New("payment window expired")
	ErrExternalService      = errors.New("external service failure")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrInvalidWebhook       = errors.New("invalid webhook signature")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStateConflict, fmt.Sprintf(format, args...))
}

func externalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalService, op, err)
}

// mapStoreError folds a lost status guard into the state conflict class.
func mapStoreError(err error) error {
	if errors.Is(err, store.ErrContractConflict) {
		return fmt.Errorf("%w: %w", ErrStateConflict, err)
	}
	return err
}
