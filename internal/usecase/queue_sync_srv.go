package usecase

import (
	"context"
	"time"

	"court-booking/internal/data/entity"
	"court-booking/internal/data/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueueSyncService advances the queue session linked to a reservation once
// that reservation has been paid for. Failures are logged, never returned.
type QueueSyncService interface {
	SyncFromReservation(ctx context.Context, reservationID uuid.UUID)
}

type queueSyncService struct {
	repo *repository.Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewQueueSyncService(repo *repository.Repository, log *zap.Logger) QueueSyncService {
	return &queueSyncService{
		repo: repo,
		log:  log.With(zap.String("service", "queue_sync")),
		now:  time.Now,
	}
}

func (s *queueSyncService) SyncFromReservation(ctx context.Context, reservationID uuid.UUID) {
	session, err := s.repo.QueueSession.FindByReservationID(ctx, reservationID)
	if err != nil {
		s.log.Warn("Queue session lookup failed, skipping sync",
			zap.Error(err),
			zap.String("reservation_id", reservationID.String()),
		)
		return
	}
	if session == nil {
		return
	}

	now := s.now()

	// sessions already open or active keep their status
	if !session.AwaitingPayment() {
		if err := s.repo.QueueSession.UpdatePaymentStatus(ctx, session.ID, entity.QueuePaymentStatusPaid, now); err != nil {
			s.log.Warn("Failed to mark queue session paid",
				zap.Error(err),
				zap.String("queue_session_id", session.ID.String()),
				zap.String("reservation_id", reservationID.String()),
			)
			return
		}
		s.log.Info("Queue session payment status updated",
			zap.String("queue_session_id", session.ID.String()),
			zap.String("status", string(session.Status)),
		)
		return
	}

	newStatus := entity.QueueSessionStatusOpen
	if !session.StartTime.After(now) {
		newStatus = entity.QueueSessionStatusActive
	}

	if err := s.repo.QueueSession.UpdateStatus(ctx, session.ID, newStatus, entity.QueuePaymentStatusPaid, now); err != nil {
		s.log.Warn("Failed to advance queue session",
			zap.Error(err),
			zap.String("queue_session_id", session.ID.String()),
			zap.String("reservation_id", reservationID.String()),
			zap.String("target_status", string(newStatus)),
		)
		return
	}

	s.log.Info("Queue session advanced after payment",
		zap.String("queue_session_id", session.ID.String()),
		zap.String("reservation_id", reservationID.String()),
		zap.String("from", string(session.Status)),
		zap.String("to", string(newStatus)),
	)
}
