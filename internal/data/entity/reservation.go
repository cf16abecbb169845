package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationStatusPendingPayment ReservationStatus = "pending_payment"
	ReservationStatusPartiallyPaid  ReservationStatus = "partially_paid"
	ReservationStatusConfirmed      ReservationStatus = "confirmed"
	ReservationStatusCompleted      ReservationStatus = "completed"
	ReservationStatusCancelled      ReservationStatus = "cancelled"
)

type ReservationMetadata struct {
	DownPaymentAmount     *decimal.Decimal `json:"down_payment_amount,omitempty"`
	IntendedPaymentMethod string           `json:"intended_payment_method,omitempty"`
	PaymentMethod         string           `json:"payment_method,omitempty"`
	PaymentInitiatedAt    *time.Time       `json:"payment_initiated_at,omitempty"`
	PaymentStatusHistory  []string         `json:"payment_status_history,omitempty"`
}

type Reservation struct {
	Base
	UserID             uuid.UUID           `db:"user_id"`
	CourtID            uuid.UUID           `db:"court_id"`
	StartTime          time.Time           `db:"start_time"`
	EndTime            time.Time           `db:"end_time"`
	TotalAmount        decimal.Decimal     `db:"total_amount"`
	AmountPaid         decimal.Decimal     `db:"amount_paid"`
	Status             ReservationStatus   `db:"status"`
	RecurrenceGroupID  *uuid.UUID          `db:"recurrence_group_id"`
	CancelledAt        *time.Time          `db:"cancelled_at"`
	CancellationReason *string             `db:"cancellation_reason"`
	Metadata           ReservationMetadata `db:"metadata"`
}

func (r *Reservation) RemainingBalance() decimal.Decimal {
	remaining := r.TotalAmount.Sub(r.AmountPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// HasPartialPayment reports whether some but not all of the total has been
// collected, whatever the current status says.
func (r *Reservation) HasPartialPayment() bool {
	return r.Status == ReservationStatusPartiallyPaid ||
		(r.AmountPaid.IsPositive() && r.AmountPaid.LessThan(r.TotalAmount))
}

func (r *Reservation) IsFullyPaid() bool {
	return r.AmountPaid.GreaterThanOrEqual(r.TotalAmount)
}

// IsIntendedCash reports whether the booking was made to be settled in cash
// at the venue, with only a down payment charged online.
func (r *Reservation) IsIntendedCash() bool {
	return strings.EqualFold(r.Metadata.IntendedPaymentMethod, string(PaymentMethodCash))
}

// DownPayment returns the reservation's own down-payment amount, if set.
func (r *Reservation) DownPayment() (decimal.Decimal, bool) {
	if r.Metadata.DownPaymentAmount == nil || !r.Metadata.DownPaymentAmount.IsPositive() {
		return decimal.Zero, false
	}
	return *r.Metadata.DownPaymentAmount, true
}
