package entity

import (
	"time"

	"github.com/google/uuid"
)

type QueueSessionStatus string

const (
	QueueSessionStatusPendingApproval QueueSessionStatus = "pending_approval"
	QueueSessionStatusPendingPayment  QueueSessionStatus = "pending_payment"
	QueueSessionStatusOpen            QueueSessionStatus = "open"
	QueueSessionStatusActive          QueueSessionStatus = "active"
	QueueSessionStatusClosed          QueueSessionStatus = "closed"
	QueueSessionStatusCancelled       QueueSessionStatus = "cancelled"
)

const QueuePaymentStatusPaid = "paid"

type QueueSessionMetadata struct {
	ReservationID      string     `json:"reservation_id,omitempty"`
	PaymentStatus      string     `json:"payment_status,omitempty"`
	PaymentConfirmedAt *time.Time `json:"payment_confirmed_at,omitempty"`
}

type QueueSession struct {
	Base
	CourtID     uuid.UUID            `db:"court_id"`
	OrganizerID uuid.UUID            `db:"organizer_id"`
	Status      QueueSessionStatus   `db:"status"`
	StartTime   time.Time            `db:"start_time"`
	EndTime     time.Time            `db:"end_time"`
	Metadata    QueueSessionMetadata `db:"metadata"`
}

// AwaitingPayment reports whether the session is still gated on payment.
func (q *QueueSession) AwaitingPayment() bool {
	return q.Status == QueueSessionStatusPendingPayment || q.Status == QueueSessionStatusPendingApproval
}
