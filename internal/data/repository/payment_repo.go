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

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error)
	// FindByExternalID matches the current external id or the original source id.
	FindByExternalID(ctx context.Context, externalID string) (*entity.Payment, error)
	FindByReference(ctx context.Context, reference string) (*entity.Payment, error)
	FindByMetadataReference(ctx context.Context, reference string) (*entity.Payment, error)
	FindLatestByReservationID(ctx context.Context, reservationID uuid.UUID) (*entity.Payment, error)
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*entity.Payment, error)

	// Processing lease
	AcquireLease(ctx context.Context, id uuid.UUID, owner string, now time.Time, staleAfter time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, id uuid.UUID, owner string) error

	// State transitions
	MarkCompleted(ctx context.Context, id uuid.UUID, chargeID string, paidAt time.Time, providerPayment []byte) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, code, message string) (bool, error)
	MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) error
}

type paymentRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewPaymentRepository(db database.PgxIface, log *zap.Logger) PaymentRepository {
	return &paymentRepository{
		db:  db,
		log: log.With(zap.String("repository", "payment")),
	}
}

const paymentColumns = `
	id, reference, user_id, reservation_id, amount, currency, method, kind, status,
	external_id, source_id, recurrence_group_id, processing_owner, processing_started_at,
	expires_at, paid_at, metadata, created_at, updated_at
`

func scanPayment(row pgx.Row) (*entity.Payment, error) {
	var payment entity.Payment
	err := row.Scan(
		&payment.ID,
		&payment.Reference,
		&payment.UserID,
		&payment.ReservationID,
		&payment.Amount,
		&payment.Currency,
		&payment.Method,
		&payment.Kind,
		&payment.Status,
		&payment.ExternalID,
		&payment.SourceID,
		&payment.RecurrenceGroupID,
		&payment.ProcessingOwner,
		&payment.ProcessingStartedAt,
		&payment.ExpiresAt,
		&payment.PaidAt,
		&payment.Metadata,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (id, reference, user_id, reservation_id, amount, currency, method, kind, status,
			external_id, source_id, recurrence_group_id, expires_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.Exec(ctx, query,
		payment.ID,
		payment.Reference,
		payment.UserID,
		payment.ReservationID,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.Kind,
		payment.Status,
		payment.ExternalID,
		payment.SourceID,
		payment.RecurrenceGroupID,
		payment.ExpiresAt,
		payment.Metadata,
		payment.CreatedAt,
		payment.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create payment",
			zap.Error(err),
			zap.String("reservation_id", payment.ReservationID.String()),
			zap.String("reference", payment.Reference),
		)
		return fmt.Errorf("create payment for reservation %s: %w", payment.ReservationID.String(), err)
	}

	return nil
}

func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	payment, err := scanPayment(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment by ID",
			zap.Error(err),
			zap.String("payment_id", id.String()),
		)
		return nil, fmt.Errorf("find payment by ID %s: %w", id.String(), err)
	}

	return payment, nil
}

func (r *paymentRepository) FindByExternalID(ctx context.Context, externalID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE external_id = $1 OR source_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	payment, err := scanPayment(r.db.QueryRow(ctx, query, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment by external ID",
			zap.Error(err),
			zap.String("external_id", externalID),
		)
		return nil, fmt.Errorf("find payment by external ID %s: %w", externalID, err)
	}

	return payment, nil
}

func (r *paymentRepository) FindByReference(ctx context.Context, reference string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`

	payment, err := scanPayment(r.db.QueryRow(ctx, query, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment by reference",
			zap.Error(err),
			zap.String("reference", reference),
		)
		return nil, fmt.Errorf("find payment by reference %s: %w", reference, err)
	}

	return payment, nil
}

func (r *paymentRepository) FindByMetadataReference(ctx context.Context, reference string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE metadata ->> 'payment_reference' = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	payment, err := scanPayment(r.db.QueryRow(ctx, query, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment by metadata reference",
			zap.Error(err),
			zap.String("reference", reference),
		)
		return nil, fmt.Errorf("find payment by metadata reference %s: %w", reference, err)
	}

	return payment, nil
}

func (r *paymentRepository) FindLatestByReservationID(ctx context.Context, reservationID uuid.UUID) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE reservation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	payment, err := scanPayment(r.db.QueryRow(ctx, query, reservationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment by reservation ID",
			zap.Error(err),
			zap.String("reservation_id", reservationID.String()),
		)
		return nil, fmt.Errorf("find payment by reservation ID %s: %w", reservationID.String(), err)
	}

	return payment, nil
}

func (r *paymentRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'pending'
		  AND method <> 'cash'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		r.log.Error("Failed to find expired payments", zap.Error(err))
		return nil, fmt.Errorf("find expired payments: %w", err)
	}
	defer rows.Close()

	var payments []*entity.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			r.log.Error("Failed to scan expired payment", zap.Error(err))
			return nil, fmt.Errorf("scan expired payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired payments: %w", err)
	}

	return payments, nil
}

// ==================== PROCESSING LEASE ====================

// AcquireLease takes the processing lease when the payment is still pending
// and nobody holds a lease younger than staleAfter.
func (r *paymentRepository) AcquireLease(ctx context.Context, id uuid.UUID, owner string, now time.Time, staleAfter time.Duration) (bool, error) {
	query := `
		UPDATE payments
		SET processing_owner = $2, processing_started_at = $3, updated_at = $3
		WHERE id = $1
		  AND status = 'pending'
		  AND (processing_owner IS NULL OR processing_started_at IS NULL OR processing_started_at < $4)
	`

	result, err := r.db.Exec(ctx, query, id, owner, now, now.Add(-staleAfter))
	if err != nil {
		r.log.Error("Failed to acquire processing lease",
			zap.Error(err),
			zap.String("payment_id", id.String()),
			zap.String("owner", owner),
		)
		return false, fmt.Errorf("acquire lease on payment %s: %w", id.String(), err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *paymentRepository) ReleaseLease(ctx context.Context, id uuid.UUID, owner string) error {
	query := `
		UPDATE payments
		SET processing_owner = NULL, processing_started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND processing_owner = $2
	`

	if _, err := r.db.Exec(ctx, query, id, owner); err != nil {
		r.log.Error("Failed to release processing lease",
			zap.Error(err),
			zap.String("payment_id", id.String()),
			zap.String("owner", owner),
		)
		return fmt.Errorf("release lease on payment %s: %w", id.String(), err)
	}

	return nil
}

// ==================== STATE TRANSITIONS ====================

// MarkCompleted moves a pending payment to completed. The boolean is false
// when the payment had already left pending, so exactly one caller observes
// the transition. The processing lease is kept until its owner releases it
// after converging the reservation.
func (r *paymentRepository) MarkCompleted(ctx context.Context, id uuid.UUID, chargeID string, paidAt time.Time, providerPayment []byte) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'completed',
		    external_id = COALESCE(NULLIF($2, ''), external_id),
		    paid_at = $3,
		    metadata = CASE
		        WHEN $4::jsonb IS NULL THEN metadata
		        ELSE metadata || jsonb_build_object('provider_payment', $4::jsonb)
		    END,
		    updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`

	var raw any
	if len(providerPayment) > 0 {
		raw = string(providerPayment)
	}

	result, err := r.db.Exec(ctx, query, id, chargeID, paidAt, raw)
	if err != nil {
		r.log.Error("Failed to mark payment completed",
			zap.Error(err),
			zap.String("payment_id", id.String()),
			zap.String("charge_id", chargeID),
		)
		return false, fmt.Errorf("mark payment %s completed: %w", id.String(), err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *paymentRepository) MarkFailed(ctx context.Context, id uuid.UUID, code, message string) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'failed',
		    processing_owner = NULL,
		    processing_started_at = NULL,
		    metadata = metadata || jsonb_build_object('failure_code', $2::text, 'failure_message', $3::text),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.db.Exec(ctx, query, id, code, message)
	if err != nil {
		r.log.Error("Failed to mark payment failed",
			zap.Error(err),
			zap.String("payment_id", id.String()),
		)
		return false, fmt.Errorf("mark payment %s failed: %w", id.String(), err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *paymentRepository) MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) error {
	query := `
		UPDATE payments
		SET metadata = metadata || $2::jsonb, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, id, patch)
	if err != nil {
		r.log.Error("Failed to merge payment metadata",
			zap.Error(err),
			zap.String("payment_id", id.String()),
		)
		return fmt.Errorf("merge metadata of payment %s: %w", id.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("payment %s not found", id.String())
	}

	return nil
}
