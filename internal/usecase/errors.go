package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                      = errors.New("not found")
	ErrUnauthorized                  = errors.New("unauthorized")
	ErrValidation                    = errors.New("validation failed")
	ErrInvalidState                  = errors.New("invalid state")
	ErrGatewayUnavailable            = errors.New("payment provider unavailable")
	ErrAlreadyProcessing             = errors.New("payment is already being processed")
	ErrChargeCreationFailed          = errors.New("charge creation failed")
	ErrReservationConfirmationFailed = errors.New("reservation confirmation failed")
	ErrInvalidSignature              = errors.New("invalid webhook signature")
)

// UserError carries a message that is safe to show to the payer.
type UserError struct {
	Kind    error
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserError) Is(target error) bool { return target == e.Kind }

func (e *UserError) Unwrap() error { return e.Err }

// ConfirmationError reports a charge that succeeded while the booking write
// did not. Support locates the payment by Reference.
type ConfirmationError struct {
	PaymentID     string
	Reference     string
	ReservationID string
	Err           error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("payment %s succeeded but reservation %s was not confirmed, manual reconciliation required: %v",
		e.Reference, e.ReservationID, e.Err)
}

func (e *ConfirmationError) Is(target error) bool {
	return target == ErrReservationConfirmationFailed
}

func (e *ConfirmationError) Unwrap() error { return e.Err }
