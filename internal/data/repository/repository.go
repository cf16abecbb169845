package repository

import (
	"time"

	"court-booking/pkg/database"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Repository struct {
	Payment      PaymentRepository
	Reservation  ReservationRepository
	QueueSession QueueSessionRepository
	WebhookEvent WebhookEventRepository
}

// NewRepository wires every store. cache may be nil.
func NewRepository(db database.PgxIface, cache *redis.Client, eventTTL time.Duration, log *zap.Logger) *Repository {
	return &Repository{
		Payment:      NewPaymentRepository(db, log),
		Reservation:  NewReservationRepository(db, log),
		QueueSession: NewQueueSessionRepository(db, log),
		WebhookEvent: NewWebhookEventRepository(cache, eventTTL, log),
	}
}
