package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type PaymentMethod string

const (
	PaymentMethodGCash   PaymentMethod = "gcash"
	PaymentMethodPayMaya PaymentMethod = "paymaya"
	PaymentMethodCash    PaymentMethod = "cash"
)

// IsEWallet reports whether the method settles through a checkout source.
func (m PaymentMethod) IsEWallet() bool {
	return m == PaymentMethodGCash || m == PaymentMethodPayMaya
}

type PaymentKind string

const (
	PaymentKindFull             PaymentKind = "full"
	PaymentKindRemainingBalance PaymentKind = "remaining_balance"
	PaymentKindDownPayment      PaymentKind = "down_payment"
)

// PaymentMetadata is the audit part of a payment row. Flags with protocol
// meaning live in typed columns on Payment instead.
type PaymentMetadata struct {
	Description             string          `json:"description,omitempty"`
	CheckoutURL             string          `json:"checkout_url,omitempty"`
	ProviderPayment         json.RawMessage `json:"provider_payment,omitempty"`
	ReservationUpdateFailed bool            `json:"reservation_update_failed,omitempty"`
	ReservationUpdateError  string          `json:"reservation_update_error,omitempty"`
	FailureCode             string          `json:"failure_code,omitempty"`
	FailureMessage          string          `json:"failure_message,omitempty"`
}

type Payment struct {
	Base
	Reference           string          `db:"reference"`
	UserID              uuid.UUID       `db:"user_id"`
	ReservationID       uuid.UUID       `db:"reservation_id"`
	Amount              decimal.Decimal `db:"amount"`
	Currency            string          `db:"currency"`
	Method              PaymentMethod   `db:"method"`
	Kind                PaymentKind     `db:"kind"`
	Status              PaymentStatus   `db:"status"`
	ExternalID          *string         `db:"external_id"`
	SourceID            *string         `db:"source_id"`
	RecurrenceGroupID   *uuid.UUID      `db:"recurrence_group_id"`
	ProcessingOwner     *string         `db:"processing_owner"`
	ProcessingStartedAt *time.Time      `db:"processing_started_at"`
	ExpiresAt           *time.Time      `db:"expires_at"`
	PaidAt              *time.Time      `db:"paid_at"`
	Metadata            PaymentMetadata `db:"metadata"`
}

func (p *Payment) IsDownPayment() bool {
	return p.Kind == PaymentKindDownPayment
}

// ExpectedReservationStatus is the status a reservation settles in once
// this payment has completed.
func (p *Payment) ExpectedReservationStatus() ReservationStatus {
	if p.IsDownPayment() {
		return ReservationStatusPartiallyPaid
	}
	return ReservationStatusConfirmed
}

// LeaseActive reports whether another worker holds a lease younger than staleAfter.
func (p *Payment) LeaseActive(now time.Time, staleAfter time.Duration) bool {
	if p.ProcessingOwner == nil || p.ProcessingStartedAt == nil {
		return false
	}
	return now.Sub(*p.ProcessingStartedAt) < staleAfter
}
