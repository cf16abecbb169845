package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"court-booking/internal/data/entity"
	"court-booking/internal/data/repository"
	"court-booking/internal/dto/request"
	"court-booking/internal/dto/response"
	"court-booking/internal/gateway"
	"court-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService starts e-wallet checkouts and reports their progress.
type PaymentService interface {
	Initiate(ctx context.Context, userID string, req *request.CreateCheckoutRequest) (*response.CheckoutResponse, error)
	CheckStatus(ctx context.Context, userID string, sourceID string) (*response.PaymentStatusResponse, error)
}

type paymentService struct {
	repo    *repository.Repository
	gateway gateway.CheckoutGateway
	config  utils.PaymentConfig
	baseURL string
	log     *zap.Logger
	now     func() time.Time
}

func NewPaymentService(repo *repository.Repository, gw gateway.CheckoutGateway, config *utils.Config, log *zap.Logger) PaymentService {
	return &paymentService{
		repo:    repo,
		gateway: gw,
		config:  config.Payment,
		baseURL: strings.TrimRight(config.App.BaseURL, "/"),
		log:     log.With(zap.String("service", "payment")),
		now:     time.Now,
	}
}

// chargePlan is the outcome of the amount policy for one checkout.
type chargePlan struct {
	amount  decimal.Decimal
	kind    entity.PaymentKind
	groupID *uuid.UUID
	members int
}

func (s *paymentService) Initiate(ctx context.Context, userID string, req *request.CreateCheckoutRequest) (*response.CheckoutResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Checkout validation failed", zap.Any("errors", errs))
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user ID %s", ErrValidation, userID)
	}

	reservationID, err := uuid.Parse(req.ReservationID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid reservation ID %s", ErrValidation, req.ReservationID)
	}

	reservation, err := s.repo.Reservation.FindByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	if reservation == nil {
		return nil, fmt.Errorf("reservation %s: %w", req.ReservationID, ErrNotFound)
	}

	if reservation.UserID != userUUID {
		s.log.Warn("Checkout attempted by non-owner",
			zap.String("reservation_id", req.ReservationID),
			zap.String("user_id", userID),
		)
		return nil, fmt.Errorf("reservation %s does not belong to caller: %w", req.ReservationID, ErrUnauthorized)
	}

	if err := checkPayable(reservation); err != nil {
		return nil, err
	}

	plan, err := s.planCharge(ctx, reservation)
	if err != nil {
		return nil, err
	}

	method := entity.PaymentMethod(req.Method)
	now := s.now()
	reference := utils.GeneratePaymentReference(reservation.ID, now)
	description := fmt.Sprintf("Court reservation %s on %s", reference, reservation.StartTime.Format("2006-01-02 15:04"))

	metadata := map[string]string{
		"reservation_id":    reservation.ID.String(),
		"user_id":           userUUID.String(),
		"payment_reference": reference,
		"payment_kind":      string(plan.kind),
	}
	if plan.groupID != nil {
		metadata["recurrence_group_id"] = plan.groupID.String()
	}

	var billing *gateway.Billing
	if req.Billing != nil {
		billing = &gateway.Billing{Name: req.Billing.Name, Email: req.Billing.Email, Phone: req.Billing.Phone}
	}

	// Nothing is written before the provider accepts the checkout.
	source, err := s.gateway.CreateSource(ctx, gateway.SourceRequest{
		Amount:     plan.amount,
		Currency:   s.config.Currency,
		Method:     req.Method,
		SuccessURL: fmt.Sprintf("%s/checkout/success?reservation=%s", s.baseURL, reservation.ID),
		FailedURL:  fmt.Sprintf("%s/checkout/failed?reservation=%s", s.baseURL, reservation.ID),
		Billing:    billing,
		Metadata:   metadata,
	})
	if err != nil {
		s.log.Error("Checkout source creation failed",
			zap.Error(err),
			zap.String("reservation_id", reservation.ID.String()),
			zap.String("method", req.Method),
		)
		return nil, translateGatewayError(method, err)
	}

	expiresAt := now.Add(s.config.CheckoutTTL)
	payment := &entity.Payment{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Reference:         reference,
		UserID:            userUUID,
		ReservationID:     reservation.ID,
		Amount:            plan.amount,
		Currency:          s.config.Currency,
		Method:            method,
		Kind:              plan.kind,
		Status:            entity.PaymentStatusPending,
		ExternalID:        &source.ID,
		SourceID:          &source.ID,
		RecurrenceGroupID: plan.groupID,
		ExpiresAt:         &expiresAt,
		Metadata: entity.PaymentMetadata{
			Description: description,
			CheckoutURL: source.CheckoutURL,
		},
	}

	if err := s.repo.Payment.Create(ctx, payment); err != nil {
		s.log.Error("Failed to record payment for created source",
			zap.Error(err),
			zap.String("source_id", source.ID),
			zap.String("reference", reference),
		)
		return nil, fmt.Errorf("create payment: %w", err)
	}

	if err := s.repo.Reservation.MarkPendingPayment(ctx, reservation.ID, method, now); err != nil {
		// the payment row already links the source; reconciliation does not need this marker
		s.log.Warn("Failed to mark reservation pending payment",
			zap.Error(err),
			zap.String("reservation_id", reservation.ID.String()),
		)
	}

	s.log.Info("Checkout initiated",
		zap.String("payment_id", payment.ID.String()),
		zap.String("reference", reference),
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("source_id", source.ID),
		zap.String("method", req.Method),
		zap.String("kind", string(plan.kind)),
		zap.String("amount", plan.amount.StringFixed(2)),
		zap.Int("group_members", plan.members),
	)

	return &response.CheckoutResponse{
		PaymentID:   payment.ID.String(),
		Reference:   reference,
		SourceID:    source.ID,
		CheckoutURL: source.CheckoutURL,
		Amount:      plan.amount,
		Currency:    s.config.Currency,
		Kind:        plan.kind,
		ExpiresAt:   expiresAt,
	}, nil
}

func checkPayable(reservation *entity.Reservation) error {
	switch reservation.Status {
	case entity.ReservationStatusCancelled, entity.ReservationStatusCompleted:
		return fmt.Errorf("%w: cannot pay for a %s reservation", ErrInvalidState, reservation.Status)
	case entity.ReservationStatusConfirmed:
		return fmt.Errorf("%w: reservation already paid", ErrInvalidState)
	case entity.ReservationStatusPartiallyPaid:
		if reservation.RemainingBalance().IsZero() {
			return fmt.Errorf("%w: reservation already paid", ErrInvalidState)
		}
		return nil
	}

	if reservation.IsFullyPaid() && reservation.TotalAmount.IsPositive() {
		return fmt.Errorf("%w: reservation already paid", ErrInvalidState)
	}
	return nil
}

// planCharge applies the amount policy: remaining balance, then down payment
// for intended cash bookings, then the full price, summed over the payable
// members of a recurrence group.
func (s *paymentService) planCharge(ctx context.Context, reservation *entity.Reservation) (*chargePlan, error) {
	if reservation.HasPartialPayment() {
		return &chargePlan{
			amount:  reservation.RemainingBalance(),
			kind:    entity.PaymentKindRemainingBalance,
			members: 1,
		}, nil
	}

	amount, kind := s.itemCharge(reservation)
	plan := &chargePlan{amount: amount, kind: kind, members: 1}

	if reservation.RecurrenceGroupID != nil {
		siblings, err := s.repo.Reservation.FindPayableByGroupID(ctx, *reservation.RecurrenceGroupID)
		if err != nil {
			return nil, fmt.Errorf("load recurrence group: %w", err)
		}

		total := amount
		members := 1
		for _, sibling := range siblings {
			if sibling.ID == reservation.ID {
				continue
			}
			siblingAmount, _ := s.itemCharge(sibling)
			total = total.Add(siblingAmount)
			members++
		}

		groupID := *reservation.RecurrenceGroupID
		plan.amount = total
		plan.groupID = &groupID
		plan.members = members
	}

	if !plan.amount.IsPositive() {
		return nil, fmt.Errorf("%w: nothing to charge for reservation %s", ErrInvalidState, reservation.ID)
	}

	return plan, nil
}

// itemCharge is the amount one reservation contributes to a checkout.
func (s *paymentService) itemCharge(reservation *entity.Reservation) (decimal.Decimal, entity.PaymentKind) {
	if reservation.IsIntendedCash() {
		return downPaymentFor(reservation, s.config.DownPaymentPercent), entity.PaymentKindDownPayment
	}
	return reservation.TotalAmount, entity.PaymentKindFull
}

// downPaymentFor returns the reservation's own down payment, falling back to
// percent of its total.
func downPaymentFor(reservation *entity.Reservation, percent float64) decimal.Decimal {
	if amount, ok := reservation.DownPayment(); ok {
		return amount
	}
	return reservation.TotalAmount.Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100)).Round(2)
}

// translateGatewayError turns provider failures into messages a payer can act on.
func translateGatewayError(method entity.PaymentMethod, err error) error {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		detail := strings.ToLower(gwErr.Detail)
		if strings.Contains(detail, "not allowed to process") || strings.Contains(detail, "not enabled") ||
			strings.Contains(detail, string(method)+" payments") {
			return &UserError{
				Kind:    ErrGatewayUnavailable,
				Message: fmt.Sprintf("%s payments are currently unavailable. Please use the 'Pay with Cash' option at the venue instead.", methodLabel(method)),
				Err:     err,
			}
		}
		if gwErr.StatusCode == http.StatusUnauthorized || gwErr.StatusCode == http.StatusForbidden {
			return &UserError{
				Kind:    ErrGatewayUnavailable,
				Message: "Online payments are not available right now. Please pay with cash at the venue or contact support.",
				Err:     err,
			}
		}
	}

	return &UserError{
		Kind:    ErrGatewayUnavailable,
		Message: "Payment provider is temporarily unavailable. Please try again later or pay with cash at the venue.",
		Err:     err,
	}
}

func methodLabel(method entity.PaymentMethod) string {
	switch method {
	case entity.PaymentMethodGCash:
		return "GCash"
	case entity.PaymentMethodPayMaya:
		return "Maya"
	default:
		return strings.ToUpper(string(method))
	}
}

// ==================== STATUS ====================

func (s *paymentService) CheckStatus(ctx context.Context, userID string, sourceID string) (*response.PaymentStatusResponse, error) {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user ID %s", ErrValidation, userID)
	}

	payment, err := s.repo.Payment.FindByExternalID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if payment == nil {
		return nil, fmt.Errorf("payment for source %s: %w", sourceID, ErrNotFound)
	}
	if payment.UserID != userUUID {
		return nil, fmt.Errorf("payment for source %s does not belong to caller: %w", sourceID, ErrUnauthorized)
	}

	source, err := s.gateway.GetSource(ctx, sourceID)
	if err != nil {
		s.log.Warn("Source status lookup failed",
			zap.Error(err),
			zap.String("source_id", sourceID),
		)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	resp := &response.PaymentStatusResponse{
		SourceID:      sourceID,
		SourceStatus:  string(source.Status),
		PaymentID:     payment.ID.String(),
		PaymentStatus: payment.Status,
		ReservationID: payment.ReservationID.String(),
	}

	reservation, err := s.repo.Reservation.FindByID(ctx, payment.ReservationID)
	if err != nil {
		s.log.Warn("Reservation lookup failed during status check", zap.Error(err))
	} else if reservation != nil {
		resp.ReservationStatus = reservation.Status
	}

	return resp, nil
}
