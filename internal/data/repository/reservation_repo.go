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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ReservationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Reservation, error)
	// FindPayableByGroupID returns the group members still awaiting payment.
	FindPayableByGroupID(ctx context.Context, groupID uuid.UUID) ([]*entity.Reservation, error)

	// UpdatePaymentState writes status and amount_paid and appends status to
	// the payment history. It reports the number of rows written.
	UpdatePaymentState(ctx context.Context, id uuid.UUID, status entity.ReservationStatus, amountPaid decimal.Decimal) (int64, error)
	// MarkPendingPayment records the checkout method. A partially paid
	// reservation keeps its status.
	MarkPendingPayment(ctx context.Context, id uuid.UUID, method entity.PaymentMethod, at time.Time) error
	// Cancel releases an unpaid pending_payment reservation and reports
	// whether it did. Reservations holding any payment are left alone.
	Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
}

type reservationRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewReservationRepository(db database.PgxIface, log *zap.Logger) ReservationRepository {
	return &reservationRepository{
		db:  db,
		log: log.With(zap.String("repository", "reservation")),
	}
}

const reservationColumns = `
	id, user_id, court_id, start_time, end_time, total_amount, amount_paid, status,
	recurrence_group_id, cancelled_at, cancellation_reason, metadata, created_at, updated_at
`

func scanReservation(row pgx.Row) (*entity.Reservation, error) {
	var reservation entity.Reservation
	err := row.Scan(
		&reservation.ID,
		&reservation.UserID,
		&reservation.CourtID,
		&reservation.StartTime,
		&reservation.EndTime,
		&reservation.TotalAmount,
		&reservation.AmountPaid,
		&reservation.Status,
		&reservation.RecurrenceGroupID,
		&reservation.CancelledAt,
		&reservation.CancellationReason,
		&reservation.Metadata,
		&reservation.CreatedAt,
		&reservation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *reservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	reservation, err := scanReservation(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find reservation by ID",
			zap.Error(err),
			zap.String("reservation_id", id.String()),
		)
		return nil, fmt.Errorf("find reservation by ID %s: %w", id.String(), err)
	}

	return reservation, nil
}

func (r *reservationRepository) FindPayableByGroupID(ctx context.Context, groupID uuid.UUID) ([]*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
		FROM reservations
		WHERE recurrence_group_id = $1 AND status = 'pending_payment'
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		r.log.Error("Failed to find group reservations",
			zap.Error(err),
			zap.String("recurrence_group_id", groupID.String()),
		)
		return nil, fmt.Errorf("find reservations of group %s: %w", groupID.String(), err)
	}
	defer rows.Close()

	var reservations []*entity.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			r.log.Error("Failed to scan group reservation", zap.Error(err))
			return nil, fmt.Errorf("scan reservation of group %s: %w", groupID.String(), err)
		}
		reservations = append(reservations, reservation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations of group %s: %w", groupID.String(), err)
	}

	return reservations, nil
}

func (r *reservationRepository) UpdatePaymentState(ctx context.Context, id uuid.UUID, status entity.ReservationStatus, amountPaid decimal.Decimal) (int64, error) {
	query := `
		UPDATE reservations
		SET status = $2,
		    amount_paid = $3,
		    metadata = jsonb_set(
		        metadata,
		        '{payment_status_history}',
		        CASE
		            WHEN COALESCE(metadata -> 'payment_status_history', '[]'::jsonb) ? $2 THEN COALESCE(metadata -> 'payment_status_history', '[]'::jsonb)
		            ELSE COALESCE(metadata -> 'payment_status_history', '[]'::jsonb) || to_jsonb($2::text)
		        END
		    ),
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, string(status), amountPaid)
	if err != nil {
		r.log.Error("Failed to update reservation payment state",
			zap.Error(err),
			zap.String("reservation_id", id.String()),
			zap.String("status", string(status)),
			zap.String("amount_paid", amountPaid.String()),
		)
		return 0, fmt.Errorf("update reservation %s to %s: %w", id.String(), status, err)
	}

	return result.RowsAffected(), nil
}

func (r *reservationRepository) MarkPendingPayment(ctx context.Context, id uuid.UUID, method entity.PaymentMethod, at time.Time) error {
	query := `
		UPDATE reservations
		SET status = CASE WHEN status = 'partially_paid' THEN status ELSE 'pending_payment' END,
		    metadata = metadata || jsonb_build_object('payment_method', $2::text, 'payment_initiated_at', $3::timestamptz),
		    updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, string(method), at)
	if err != nil {
		r.log.Error("Failed to mark reservation pending payment",
			zap.Error(err),
			zap.String("reservation_id", id.String()),
		)
		return fmt.Errorf("mark reservation %s pending payment: %w", id.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s not found", id.String())
	}

	return nil
}

// Cancel releases the slot of a reservation that has not been paid for.
func (r *reservationRepository) Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE reservations
		SET status = 'cancelled',
		    cancelled_at = $3,
		    cancellation_reason = $2,
		    metadata = metadata || jsonb_build_object('cancelled_by_system', true),
		    updated_at = $3
		WHERE id = $1 AND status = 'pending_payment' AND amount_paid = 0
	`

	result, err := r.db.Exec(ctx, query, id, reason, at)
	if err != nil {
		r.log.Error("Failed to cancel reservation",
			zap.Error(err),
			zap.String("reservation_id", id.String()),
		)
		return false, fmt.Errorf("cancel reservation %s: %w", id.String(), err)
	}

	if result.RowsAffected() == 0 {
		r.log.Info("Reservation not cancellable, left unchanged", zap.String("reservation_id", id.String()))
		return false, nil
	}

	return true, nil
}
