package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"court-booking/internal/data/entity"
	"court-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type QueueSessionRepository interface {
	FindByReservationID(ctx context.Context, reservationID uuid.UUID) (*entity.QueueSession, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.QueueSessionStatus, paymentStatus string, confirmedAt time.Time) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus string, confirmedAt time.Time) error
}

type queueSessionRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewQueueSessionRepository(db database.PgxIface, log *zap.Logger) QueueSessionRepository {
	return &queueSessionRepository{
		db:  db,
		log: log.With(zap.String("repository", "queue_session")),
	}
}

func (r *queueSessionRepository) FindByReservationID(ctx context.Context, reservationID uuid.UUID) (*entity.QueueSession, error) {
	query := `
		SELECT id, court_id, organizer_id, status, start_time, end_time, metadata, created_at, updated_at
		FROM queue_sessions
		WHERE metadata ->> 'reservation_id' = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var session entity.QueueSession
	err := r.db.QueryRow(ctx, query, reservationID.String()).Scan(
		&session.ID,
		&session.CourtID,
		&session.OrganizerID,
		&session.Status,
		&session.StartTime,
		&session.EndTime,
		&session.Metadata,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find queue session by reservation",
			zap.Error(err),
			zap.String("reservation_id", reservationID.String()),
		)
		return nil, fmt.Errorf("find queue session for reservation %s: %w", reservationID.String(), err)
	}

	return &session, nil
}

func (r *queueSessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.QueueSessionStatus, paymentStatus string, confirmedAt time.Time) error {
	query := `
		UPDATE queue_sessions
		SET status = $2,
		    metadata = metadata || jsonb_build_object('payment_status', $3::text, 'payment_confirmed_at', $4::timestamptz),
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, string(status), paymentStatus, confirmedAt)
	if err != nil {
		r.log.Error("Failed to update queue session status",
			zap.Error(err),
			zap.String("queue_session_id", id.String()),
			zap.String("status", string(status)),
		)
		return fmt.Errorf("update queue session %s to %s: %w", id.String(), status, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("queue session %s not found", id.String())
	}

	return nil
}

func (r *queueSessionRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, paymentStatus string, confirmedAt time.Time) error {
	query := `
		UPDATE queue_sessions
		SET metadata = metadata || jsonb_build_object('payment_status', $2::text, 'payment_confirmed_at', $3::timestamptz),
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, paymentStatus, confirmedAt)
	if err != nil {
		r.log.Error("Failed to update queue session payment status",
			zap.Error(err),
			zap.String("queue_session_id", id.String()),
		)
		return fmt.Errorf("update payment status of queue session %s: %w", id.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("queue session %s not found", id.String())
	}

	return nil
}
