package response

import (
	"time"

	"court-booking/internal/data/entity"

	"github.com/shopspring/decimal"
)

type CheckoutResponse struct {
	PaymentID   string             `json:"payment_id"`
	Reference   string             `json:"reference"`
	SourceID    string             `json:"source_id"`
	CheckoutURL string             `json:"checkout_url"`
	Amount      decimal.Decimal    `json:"amount"`
	Currency    string             `json:"currency"`
	Kind        entity.PaymentKind `json:"kind"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

type ReconcileStatus string

const (
	ReconcileStatusConfirmed     ReconcileStatus = "confirmed"
	ReconcileStatusPartiallyPaid ReconcileStatus = "partially_paid"
	ReconcileStatusPending       ReconcileStatus = "pending"
	ReconcileStatusFailed        ReconcileStatus = "failed"
)

type ReconcileResponse struct {
	Status        ReconcileStatus `json:"status"`
	PaymentID     string          `json:"payment_id,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	ReservationID string          `json:"reservation_id,omitempty"`
	Charged       bool            `json:"charged"`
	Repaired      bool            `json:"repaired"`
	GroupUpdated  int             `json:"group_updated,omitempty"`
	GroupFailed   int             `json:"group_failed,omitempty"`
}

type PaymentStatusResponse struct {
	SourceID          string                   `json:"source_id"`
	SourceStatus      string                   `json:"source_status"`
	PaymentID         string                   `json:"payment_id"`
	PaymentStatus     entity.PaymentStatus     `json:"payment_status"`
	ReservationID     string                   `json:"reservation_id"`
	ReservationStatus entity.ReservationStatus `json:"reservation_status,omitempty"`
}

type WebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type SweepResponse struct {
	Expired    int `json:"expired"`
	Reconciled int `json:"reconciled"`
	Cancelled  int `json:"cancelled"`
	Failed     int `json:"failed"`
}

// StatusFromReservation maps a settled reservation status onto a reconcile result.
func StatusFromReservation(status entity.ReservationStatus) ReconcileStatus {
	if status == entity.ReservationStatusPartiallyPaid {
		return ReconcileStatusPartiallyPaid
	}
	return ReconcileStatusConfirmed
}
