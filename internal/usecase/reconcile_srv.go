package usecase

import (
	"context"
	"fmt"
	"time"

	"court-booking/internal/data/entity"
	"court-booking/internal/data/repository"
	"court-booking/internal/dto/response"
	"court-booking/internal/gateway"
	"court-booking/pkg/broker"
	"court-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReconcileService converges payments, reservations and queue sessions after
// a provider signal. Every entry point is safe to call repeatedly and
// concurrently for the same payment.
type ReconcileService interface {
	Reconcile(ctx context.Context, sourceID string) (*response.ReconcileResponse, error)
	ReconcileByReservation(ctx context.Context, reservationID string) (*response.ReconcileResponse, error)

	// Provider events
	HandlePaymentPaid(ctx context.Context, event *gateway.Event) (*response.ReconcileResponse, error)
	HandlePaymentFailed(ctx context.Context, event *gateway.Event) error

	// Maintenance
	ExpireStale(ctx context.Context) (*response.SweepResponse, error)
}

type reconcileService struct {
	repo      *repository.Repository
	gateway   gateway.CheckoutGateway
	queueSync QueueSyncService
	publisher broker.Publisher
	config    utils.PaymentConfig
	log       *zap.Logger

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newOwner func() string
}

func NewReconcileService(
	repo *repository.Repository,
	gw gateway.CheckoutGateway,
	queueSync QueueSyncService,
	publisher broker.Publisher,
	config *utils.Config,
	log *zap.Logger,
) ReconcileService {
	return &reconcileService{
		repo:      repo,
		gateway:   gw,
		queueSync: queueSync,
		publisher: publisher,
		config:    config.Payment,
		log:       log.With(zap.String("service", "reconcile")),
		now:       time.Now,
		sleep:     sleepContext,
		newOwner:  utils.GenerateWorkerID,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ==================== ENTRY POINTS ====================

func (s *reconcileService) Reconcile(ctx context.Context, sourceID string) (*response.ReconcileResponse, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: source ID is required", ErrValidation)
	}

	payment, err := s.repo.Payment.FindByExternalID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if payment == nil {
		s.log.Warn("No payment for source", zap.String("source_id", sourceID))
		return nil, fmt.Errorf("payment for source %s: %w", sourceID, ErrNotFound)
	}

	return s.reconcilePayment(ctx, payment)
}

func (s *reconcileService) ReconcileByReservation(ctx context.Context, reservationID string) (*response.ReconcileResponse, error) {
	resID, err := uuid.Parse(reservationID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid reservation ID %s", ErrValidation, reservationID)
	}

	payment, err := s.repo.Payment.FindLatestByReservationID(ctx, resID)
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if payment == nil {
		return nil, fmt.Errorf("payment for reservation %s: %w", reservationID, ErrNotFound)
	}

	// cash is settled at the venue
	if payment.Method == entity.PaymentMethodCash {
		return &response.ReconcileResponse{
			Status:        response.ReconcileStatusPending,
			PaymentID:     payment.ID.String(),
			Reference:     payment.Reference,
			ReservationID: payment.ReservationID.String(),
		}, nil
	}

	return s.reconcilePayment(ctx, payment)
}

// reconcilePayment drives one payment through the state machine:
// completed payments converge without charging, pending ones are charged
// once their source is chargeable.
func (s *reconcileService) reconcilePayment(ctx context.Context, payment *entity.Payment) (*response.ReconcileResponse, error) {
	log := s.log.With(
		zap.String("payment_id", payment.ID.String()),
		zap.String("reference", payment.Reference),
	)

	switch payment.Status {
	case entity.PaymentStatusCompleted:
		return s.convergeCompleted(ctx, payment)
	case entity.PaymentStatusFailed:
		return s.result(payment, response.ReconcileStatusFailed), nil
	}

	sourceID := sourceOf(payment)
	if !payment.Method.IsEWallet() || sourceID == "" {
		return s.result(payment, response.ReconcileStatusPending), nil
	}

	if payment.LeaseActive(s.now(), s.config.ProcessingStaleAfter) {
		log.Info("Payment is being processed elsewhere, waiting before recheck",
			zap.Duration("wait", s.config.ProcessingWait),
		)
		if err := s.sleep(ctx, s.config.ProcessingWait); err != nil {
			return nil, err
		}

		fresh, err := s.repo.Payment.FindByID(ctx, payment.ID)
		if err != nil {
			return nil, fmt.Errorf("reload payment: %w", err)
		}
		if fresh == nil {
			return nil, fmt.Errorf("payment %s: %w", payment.ID, ErrNotFound)
		}
		payment = fresh

		switch payment.Status {
		case entity.PaymentStatusCompleted:
			log.Info("Payment completed by another worker")
			return s.result(payment, response.StatusFromReservation(payment.ExpectedReservationStatus())), nil
		case entity.PaymentStatusFailed:
			return s.result(payment, response.ReconcileStatusFailed), nil
		}
	}

	source, err := s.gateway.GetSource(ctx, sourceID)
	if err != nil {
		log.Warn("Source status lookup failed", zap.Error(err), zap.String("source_id", sourceID))
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case source.Status == gateway.SourceStatusChargeable:
	case source.Status.IsTerminalFailure():
		if _, err := s.repo.Payment.MarkFailed(ctx, payment.ID, "source_"+string(source.Status), "Checkout source "+string(source.Status)); err != nil {
			return nil, fmt.Errorf("mark payment failed: %w", err)
		}
		log.Info("Checkout source can no longer be charged", zap.String("source_status", string(source.Status)))
		return s.result(payment, response.ReconcileStatusFailed), nil
	default:
		if source.Status == gateway.SourceStatusConsumed || source.Status == gateway.SourceStatusPaid {
			log.Warn("Source already consumed, waiting for payment event", zap.String("source_id", sourceID))
		}
		return s.result(payment, response.ReconcileStatusPending), nil
	}

	return s.charge(ctx, payment, sourceID)
}

// charge takes the processing lease, creates the provider charge and
// converges the booking state.
func (s *reconcileService) charge(ctx context.Context, payment *entity.Payment, sourceID string) (*response.ReconcileResponse, error) {
	log := s.log.With(
		zap.String("payment_id", payment.ID.String()),
		zap.String("reference", payment.Reference),
		zap.String("source_id", sourceID),
	)

	owner := s.newOwner()
	acquired, err := s.repo.Payment.AcquireLease(ctx, payment.ID, owner, s.now(), s.config.ProcessingStaleAfter)
	if err != nil {
		return nil, fmt.Errorf("acquire processing lease: %w", err)
	}
	if !acquired {
		current, err := s.repo.Payment.FindByID(ctx, payment.ID)
		if err == nil && current != nil && current.Status == entity.PaymentStatusCompleted {
			return s.result(current, response.StatusFromReservation(current.ExpectedReservationStatus())), nil
		}
		log.Info("Processing lease held by another worker")
		return nil, fmt.Errorf("payment %s: %w", payment.Reference, ErrAlreadyProcessing)
	}
	defer s.releaseLease(ctx, payment.ID, owner)

	charge, err := s.gateway.CreateCharge(ctx, gateway.ChargeRequest{
		SourceID:    sourceID,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Description: payment.Metadata.Description,
		Metadata: map[string]string{
			"payment_id":        payment.ID.String(),
			"reservation_id":    payment.ReservationID.String(),
			"payment_reference": payment.Reference,
		},
	})
	if err != nil {
		log.Error("Charge creation failed, payment left pending for retry", zap.Error(err))
		if gateway.IsTransient(err) {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrChargeCreationFailed, err)
	}

	paidAt := s.now()
	transitioned, err := s.repo.Payment.MarkCompleted(ctx, payment.ID, charge.ID, paidAt, charge.Raw)
	if err != nil {
		log.Error("Charge succeeded but payment could not be marked completed",
			zap.Error(err),
			zap.String("charge_id", charge.ID),
		)
		return nil, &ConfirmationError{
			PaymentID:     payment.ID.String(),
			Reference:     payment.Reference,
			ReservationID: payment.ReservationID.String(),
			Err:           err,
		}
	}
	if !transitioned {
		log.Error("Payment completed elsewhere while charging, check for a duplicate charge",
			zap.String("charge_id", charge.ID),
		)
		resp := s.result(payment, response.StatusFromReservation(payment.ExpectedReservationStatus()))
		resp.Charged = true
		return resp, nil
	}

	log.Info("Payment charged",
		zap.String("charge_id", charge.ID),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("kind", string(payment.Kind)),
	)

	payment.Status = entity.PaymentStatusCompleted
	payment.ExternalID = &charge.ID
	payment.PaidAt = &paidAt

	resp, err := s.converge(ctx, payment, true)
	if err != nil {
		return nil, err
	}
	resp.Charged = true
	return resp, nil
}

// convergeCompleted is the re-entry path for a completed payment. A payment
// whose lease is still live is being converged by its charging worker.
func (s *reconcileService) convergeCompleted(ctx context.Context, payment *entity.Payment) (*response.ReconcileResponse, error) {
	if payment.LeaseActive(s.now(), s.config.ProcessingStaleAfter) {
		return s.result(payment, response.StatusFromReservation(payment.ExpectedReservationStatus())), nil
	}
	return s.converge(ctx, payment, false)
}

func (s *reconcileService) releaseLease(ctx context.Context, paymentID uuid.UUID, owner string) {
	if err := s.repo.Payment.ReleaseLease(context.WithoutCancel(ctx), paymentID, owner); err != nil {
		s.log.Warn("Failed to release processing lease",
			zap.Error(err),
			zap.String("payment_id", paymentID.String()),
		)
	}
}

// ==================== CONVERGENCE ====================

// converge brings reservation and queue state in line with a completed
// payment. fresh is true only for the caller that moved the payment to
// completed; every other caller repairs a reservation left behind without
// adding the amount again.
func (s *reconcileService) converge(ctx context.Context, payment *entity.Payment, fresh bool) (*response.ReconcileResponse, error) {
	expected := payment.ExpectedReservationStatus()
	resp := s.result(payment, response.StatusFromReservation(expected))

	repaired, err := s.confirmPrimary(ctx, payment, fresh)
	if err != nil {
		s.flagConfirmationFailure(ctx, payment, err)
		return nil, &ConfirmationError{
			PaymentID:     payment.ID.String(),
			Reference:     payment.Reference,
			ReservationID: payment.ReservationID.String(),
			Err:           err,
		}
	}
	resp.Repaired = repaired

	if payment.RecurrenceGroupID != nil {
		resp.GroupUpdated, resp.GroupFailed = s.fanOutGroup(ctx, payment)
	}

	s.queueSync.SyncFromReservation(ctx, payment.ReservationID)

	if fresh || repaired || resp.GroupUpdated > 0 {
		s.publishConfirmed(ctx, payment, expected)
	}

	return resp, nil
}

// confirmPrimary writes the payment's reservation. It reports whether a
// repair was needed on a non-fresh pass.
func (s *reconcileService) confirmPrimary(ctx context.Context, payment *entity.Payment, fresh bool) (bool, error) {
	// read immediately before writing so amount_paid is current
	reservation, err := s.repo.Reservation.FindByID(ctx, payment.ReservationID)
	if err != nil {
		return false, fmt.Errorf("load reservation: %w", err)
	}
	if reservation == nil {
		return false, fmt.Errorf("reservation %s: %w", payment.ReservationID, ErrNotFound)
	}

	expected := payment.ExpectedReservationStatus()

	if !fresh {
		if reservation.Status == expected ||
			reservation.Status == entity.ReservationStatusConfirmed ||
			reservation.Status == entity.ReservationStatusCompleted {
			return false, nil
		}
		s.log.Warn("Repairing reservation left behind by a completed payment",
			zap.String("payment_id", payment.ID.String()),
			zap.String("reservation_id", reservation.ID.String()),
			zap.String("actual", string(reservation.Status)),
			zap.String("expected", string(expected)),
		)
	} else if reservation.Status == entity.ReservationStatusCancelled {
		s.log.Warn("Confirming a cancelled reservation after successful charge",
			zap.String("payment_id", payment.ID.String()),
			zap.String("reservation_id", reservation.ID.String()),
		)
	}

	newAmountPaid := s.amountPaidAfter(payment, reservation)
	if err := s.writeReservation(ctx, reservation.ID, expected, newAmountPaid); err != nil {
		return false, err
	}

	s.log.Info("Reservation updated from payment",
		zap.String("payment_id", payment.ID.String()),
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("status", string(expected)),
		zap.String("amount_paid", newAmountPaid.StringFixed(2)),
		zap.Bool("repair", !fresh),
	)

	return !fresh, nil
}

// amountPaidAfter is the primary reservation's amount_paid once payment is
// applied. Group payments carry several reservations, so each member is
// settled with its own share instead of the group total.
func (s *reconcileService) amountPaidAfter(payment *entity.Payment, reservation *entity.Reservation) decimal.Decimal {
	if payment.RecurrenceGroupID != nil {
		return s.memberAmountPaid(payment, reservation)
	}
	if payment.IsDownPayment() {
		return payment.Amount
	}
	return reservation.AmountPaid.Add(payment.Amount)
}

func (s *reconcileService) memberAmountPaid(payment *entity.Payment, reservation *entity.Reservation) decimal.Decimal {
	if payment.IsDownPayment() {
		return downPaymentFor(reservation, s.config.DownPaymentPercent)
	}
	return reservation.AmountPaid.Add(reservation.RemainingBalance())
}

// writeReservation writes the new payment state. A write touching no rows is
// checked against a fresh read and retried exactly once.
func (s *reconcileService) writeReservation(ctx context.Context, id uuid.UUID, status entity.ReservationStatus, amountPaid decimal.Decimal) error {
	rows, err := s.repo.Reservation.UpdatePaymentState(ctx, id, status, amountPaid)
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	current, err := s.repo.Reservation.FindByID(ctx, id)
	if err == nil && current != nil && current.Status == status {
		return nil
	}

	s.log.Warn("Reservation update affected no rows, retrying once",
		zap.String("reservation_id", id.String()),
		zap.String("status", string(status)),
	)

	rows, err = s.repo.Reservation.UpdatePaymentState(ctx, id, status, amountPaid)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("reservation %s update to %s affected no rows", id, status)
	}
	return nil
}

// fanOutGroup settles the other payable members of the payment's recurrence
// group. Each member is written independently; failures are logged and counted.
func (s *reconcileService) fanOutGroup(ctx context.Context, payment *entity.Payment) (updated, failed int) {
	groupID := *payment.RecurrenceGroupID
	log := s.log.With(
		zap.String("payment_id", payment.ID.String()),
		zap.String("recurrence_group_id", groupID.String()),
	)

	siblings, err := s.repo.Reservation.FindPayableByGroupID(ctx, groupID)
	if err != nil {
		log.Error("Failed to load recurrence group, siblings left for a later pass", zap.Error(err))
		return 0, 0
	}

	status := payment.ExpectedReservationStatus()
	for _, sibling := range siblings {
		if sibling.ID == payment.ReservationID {
			continue
		}

		amount := s.memberAmountPaid(payment, sibling)
		if err := s.writeReservation(ctx, sibling.ID, status, amount); err != nil {
			log.Error("Failed to update group reservation",
				zap.Error(err),
				zap.String("reservation_id", sibling.ID.String()),
			)
			failed++
			continue
		}
		updated++
	}

	log.Info("Recurrence group settled",
		zap.Int("updated", updated),
		zap.Int("failed", failed),
	)
	return updated, failed
}

func (s *reconcileService) flagConfirmationFailure(ctx context.Context, payment *entity.Payment, cause error) {
	s.log.Error("Payment succeeded but reservation confirmation failed",
		zap.Error(cause),
		zap.String("payment_id", payment.ID.String()),
		zap.String("reference", payment.Reference),
		zap.String("reservation_id", payment.ReservationID.String()),
	)

	patch := map[string]any{
		"reservation_update_failed":    true,
		"reservation_update_error":     cause.Error(),
		"reservation_update_failed_at": s.now().UTC(),
	}
	if err := s.repo.Payment.MergeMetadata(context.WithoutCancel(ctx), payment.ID, patch); err != nil {
		s.log.Error("Failed to flag payment for manual reconciliation",
			zap.Error(err),
			zap.String("payment_id", payment.ID.String()),
		)
	}
}

func (s *reconcileService) publishConfirmed(ctx context.Context, payment *entity.Payment, status entity.ReservationStatus) {
	event := broker.ReservationConfirmedEvent{
		PaymentID:        payment.ID.String(),
		PaymentReference: payment.Reference,
		ReservationID:    payment.ReservationID.String(),
		Status:           string(status),
		Amount:           payment.Amount.StringFixed(2),
		Currency:         payment.Currency,
		ConfirmedAt:      s.now().UTC(),
	}
	if payment.RecurrenceGroupID != nil {
		event.RecurrenceGroupID = payment.RecurrenceGroupID.String()
	}

	if err := s.publisher.PublishReservationConfirmed(ctx, event); err != nil {
		s.log.Warn("Failed to publish reservation confirmed event",
			zap.Error(err),
			zap.String("payment_id", payment.ID.String()),
		)
	}
}

func (s *reconcileService) result(payment *entity.Payment, status response.ReconcileStatus) *response.ReconcileResponse {
	return &response.ReconcileResponse{
		Status:        status,
		PaymentID:     payment.ID.String(),
		Reference:     payment.Reference,
		ReservationID: payment.ReservationID.String(),
	}
}

func sourceOf(payment *entity.Payment) string {
	if payment.SourceID != nil && *payment.SourceID != "" {
		return *payment.SourceID
	}
	if payment.ExternalID != nil {
		return *payment.ExternalID
	}
	return ""
}

// ==================== PROVIDER EVENTS ====================

func (s *reconcileService) HandlePaymentPaid(ctx context.Context, event *gateway.Event) (*response.ReconcileResponse, error) {
	payment, err := s.findPaymentForEvent(ctx, event)
	if err != nil {
		return nil, err
	}

	log := s.log.With(
		zap.String("payment_id", payment.ID.String()),
		zap.String("event_id", event.ID),
	)

	switch payment.Status {
	case entity.PaymentStatusCompleted:
		return s.convergeCompleted(ctx, payment)
	case entity.PaymentStatusFailed:
		log.Error("Provider reports a paid charge for a failed payment, manual reconciliation required",
			zap.String("provider_payment_id", event.Resource.ID),
		)
		return s.result(payment, response.ReconcileStatusFailed), nil
	}

	owner := "event:" + event.ID
	acquired, err := s.repo.Payment.AcquireLease(ctx, payment.ID, owner, s.now(), s.config.ProcessingStaleAfter)
	if err != nil {
		return nil, fmt.Errorf("acquire processing lease: %w", err)
	}
	if !acquired {
		log.Info("Payment is being charged elsewhere, event to be redelivered")
		return nil, fmt.Errorf("payment %s: %w", payment.Reference, ErrAlreadyProcessing)
	}
	defer s.releaseLease(ctx, payment.ID, owner)

	paidAt := s.now()
	transitioned, err := s.repo.Payment.MarkCompleted(ctx, payment.ID, event.Resource.ID, paidAt, event.Resource.Raw)
	if err != nil {
		return nil, fmt.Errorf("mark payment completed: %w", err)
	}
	if !transitioned {
		return s.result(payment, response.StatusFromReservation(payment.ExpectedReservationStatus())), nil
	}

	log.Info("Payment completed from provider event", zap.String("provider_payment_id", event.Resource.ID))

	payment.Status = entity.PaymentStatusCompleted
	payment.PaidAt = &paidAt
	if event.Resource.ID != "" {
		payment.ExternalID = &event.Resource.ID
	}

	return s.converge(ctx, payment, true)
}

func (s *reconcileService) HandlePaymentFailed(ctx context.Context, event *gateway.Event) error {
	payment, err := s.findPaymentForEvent(ctx, event)
	if err != nil {
		return err
	}

	log := s.log.With(
		zap.String("payment_id", payment.ID.String()),
		zap.String("event_id", event.ID),
	)

	if payment.Status != entity.PaymentStatusPending {
		log.Info("Ignoring failure event for settled payment", zap.String("status", string(payment.Status)))
		return nil
	}

	failed, err := s.repo.Payment.MarkFailed(ctx, payment.ID, event.Resource.FailureCode, event.Resource.FailureMessage)
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	if !failed {
		return nil
	}

	log.Info("Payment failed",
		zap.String("failure_code", event.Resource.FailureCode),
		zap.String("failure_message", event.Resource.FailureMessage),
	)

	s.releaseReservations(ctx, payment, "Payment failed")
	return nil
}

// releaseReservations cancels the unpaid reservations a failed payment was
// holding so their slots free up.
func (s *reconcileService) releaseReservations(ctx context.Context, payment *entity.Payment, reason string) int {
	now := s.now()
	ids := []uuid.UUID{payment.ReservationID}

	if payment.RecurrenceGroupID != nil {
		siblings, err := s.repo.Reservation.FindPayableByGroupID(ctx, *payment.RecurrenceGroupID)
		if err != nil {
			s.log.Warn("Failed to load recurrence group for release", zap.Error(err))
		}
		for _, sibling := range siblings {
			if sibling.ID != payment.ReservationID {
				ids = append(ids, sibling.ID)
			}
		}
	}

	released := 0
	for _, id := range ids {
		cancelled, err := s.repo.Reservation.Cancel(ctx, id, reason, now)
		if err != nil {
			s.log.Error("Failed to release reservation",
				zap.Error(err),
				zap.String("reservation_id", id.String()),
				zap.String("payment_id", payment.ID.String()),
			)
			continue
		}
		if cancelled {
			released++
		}
	}
	return released
}

// findPaymentForEvent resolves the payment a provider event refers to:
// provider payment id, source id, reference, metadata reference, then the
// latest payment of the reservation named in metadata.
func (s *reconcileService) findPaymentForEvent(ctx context.Context, event *gateway.Event) (*entity.Payment, error) {
	res := event.Resource
	reference := res.Metadata["payment_reference"]

	lookups := []func() (*entity.Payment, error){
		func() (*entity.Payment, error) { return s.findByExternal(ctx, res.ID) },
		func() (*entity.Payment, error) { return s.findByExternal(ctx, res.SourceID) },
		func() (*entity.Payment, error) {
			if reference == "" {
				return nil, nil
			}
			return s.repo.Payment.FindByReference(ctx, reference)
		},
		func() (*entity.Payment, error) {
			if reference == "" {
				return nil, nil
			}
			return s.repo.Payment.FindByMetadataReference(ctx, reference)
		},
		func() (*entity.Payment, error) {
			resID, err := uuid.Parse(res.Metadata["reservation_id"])
			if err != nil {
				return nil, nil
			}
			return s.repo.Payment.FindLatestByReservationID(ctx, resID)
		},
	}

	for _, lookup := range lookups {
		payment, err := lookup()
		if err != nil {
			return nil, fmt.Errorf("resolve payment for event %s: %w", event.ID, err)
		}
		if payment != nil {
			return payment, nil
		}
	}

	s.log.Warn("No payment matches provider event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("resource_id", res.ID),
	)
	return nil, fmt.Errorf("payment for event %s: %w", event.ID, ErrNotFound)
}

func (s *reconcileService) findByExternal(ctx context.Context, id string) (*entity.Payment, error) {
	if id == "" {
		return nil, nil
	}
	return s.repo.Payment.FindByExternalID(ctx, id)
}

// ==================== MAINTENANCE ====================

// ExpireStale settles pending e-wallet payments whose checkout window has
// passed. Sources that became chargeable are reconciled, the rest are
// failed and their reservations released.
func (s *reconcileService) ExpireStale(ctx context.Context) (*response.SweepResponse, error) {
	now := s.now()
	payments, err := s.repo.Payment.FindExpiredPending(ctx, now, s.config.SweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("find expired payments: %w", err)
	}

	resp := &response.SweepResponse{}
	for _, payment := range payments {
		if payment.LeaseActive(now, s.config.ProcessingStaleAfter) {
			continue
		}

		if sourceID := sourceOf(payment); sourceID != "" {
			source, err := s.gateway.GetSource(ctx, sourceID)
			if err != nil {
				s.log.Warn("Skipping expired payment, source lookup failed",
					zap.Error(err),
					zap.String("payment_id", payment.ID.String()),
				)
				resp.Failed++
				continue
			}
			if source.Status == gateway.SourceStatusChargeable {
				if _, err := s.charge(ctx, payment, sourceID); err != nil {
					s.log.Warn("Late reconciliation of expired payment failed",
						zap.Error(err),
						zap.String("payment_id", payment.ID.String()),
					)
					resp.Failed++
					continue
				}
				resp.Reconciled++
				continue
			}
		}

		expired, err := s.repo.Payment.MarkFailed(ctx, payment.ID, "expired", "Checkout window expired")
		if err != nil {
			resp.Failed++
			continue
		}
		if !expired {
			continue
		}
		resp.Expired++
		resp.Cancelled += s.releaseReservations(ctx, payment, "Payment window expired")
	}

	if len(payments) > 0 {
		s.log.Info("Expired payment sweep finished",
			zap.Int("scanned", len(payments)),
			zap.Int("expired", resp.Expired),
			zap.Int("reconciled", resp.Reconciled),
			zap.Int("cancelled", resp.Cancelled),
			zap.Int("failed", resp.Failed),
		)
	}

	return resp, nil
}
