package adaptor

import (
	"errors"
	"fmt"
	"net/http"

	"court-booking/internal/usecase"
	"court-booking/pkg/utils"

	"go.uber.org/zap"
)

type Handler struct {
	Payment *PaymentHandler
	Webhook *WebhookHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Payment: NewPaymentHandler(service.Payment, service.Reconcile, log),
		Webhook: NewWebhookHandler(service.Webhook, log),
	}
}

// respondServiceError maps usecase errors onto HTTP responses.
func respondServiceError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	var confErr *usecase.ConfirmationError
	if errors.As(err, &confErr) {
		log.Error(operation+" failed - payment taken but booking not confirmed",
			zap.Error(err),
			zap.String("operation", operation),
			zap.String("reference", confErr.Reference))
		utils.ResponseBadGateway(w,
			fmt.Sprintf("Payment was received but the booking could not be confirmed. Please contact support with reference %s.", confErr.Reference),
			map[string]string{
				"payment_reference": confErr.Reference,
				"payment_id":        confErr.PaymentID,
				"reservation_id":    confErr.ReservationID,
			})
		return
	}

	var userErr *usecase.UserError
	if errors.As(err, &userErr) {
		log.Warn(operation+" failed",
			zap.Error(err),
			zap.String("operation", operation))
		if errors.Is(userErr.Kind, usecase.ErrGatewayUnavailable) {
			utils.ResponseServiceUnavailable(w, userErr.Message)
			return
		}
		utils.ResponseBadRequest(w, userErr.Message, nil)
		return
	}

	switch {
	case errors.Is(err, usecase.ErrNotFound):
		log.Warn(operation+" failed - not found",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseNotFound(w, err.Error())

	case errors.Is(err, usecase.ErrValidation):
		log.Warn(operation+" validation failed",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseBadRequest(w, err.Error(), nil)

	case errors.Is(err, usecase.ErrInvalidSignature):
		log.Warn(operation+" failed - bad signature",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseUnauthorized(w, "Invalid signature")

	case errors.Is(err, usecase.ErrUnauthorized):
		log.Warn(operation+" failed - unauthorized",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseForbidden(w, "You do not have access to this payment")

	case errors.Is(err, usecase.ErrInvalidState):
		log.Warn(operation+" failed - invalid state",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseConflict(w, err.Error())

	case errors.Is(err, usecase.ErrAlreadyProcessing):
		log.Info(operation+" deferred - already processing",
			zap.String("operation", operation))
		utils.ResponseConflict(w, "Payment is already being processed, please check again shortly")

	case errors.Is(err, usecase.ErrChargeCreationFailed):
		log.Error(operation+" failed - charge rejected",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseBadGateway(w, "Payment could not be completed, please try again", nil)

	case errors.Is(err, usecase.ErrGatewayUnavailable):
		log.Warn(operation+" failed - provider unavailable",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseServiceUnavailable(w, "Payment provider is temporarily unavailable, please try again later")

	default:
		log.Error("Failed to "+operation,
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
