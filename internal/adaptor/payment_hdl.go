package adaptor

import (
	"encoding/json"
	"net/http"

	"court-booking/internal/dto/request"
	"court-booking/internal/dto/response"
	"court-booking/internal/usecase"
	"court-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	service   usecase.PaymentService
	reconcile usecase.ReconcileService
	log       *zap.Logger
}

func NewPaymentHandler(service usecase.PaymentService, reconcile usecase.ReconcileService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:   service,
		reconcile: reconcile,
		log:       log.With(zap.String("handler", "payment")),
	}
}

// Checkout handles POST /api/payments/checkout (protected)
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.CreateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	checkout, err := h.service.Initiate(r.Context(), userID.String(), &req)
	if err != nil {
		h.handleServiceError(w, err, "create checkout")
		return
	}

	utils.ResponseCreated(w, "success", checkout)
}

// Reconcile handles POST /api/payments/reconcile (protected), called by the
// checkout success page.
func (h *PaymentHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req request.ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	var (
		result *response.ReconcileResponse
		err    error
	)
	if req.SourceID != "" {
		result, err = h.reconcile.Reconcile(r.Context(), req.SourceID)
	} else {
		result, err = h.reconcile.ReconcileByReservation(r.Context(), req.ReservationID)
	}
	if err != nil {
		h.handleServiceError(w, err, "reconcile payment")
		return
	}

	if result.Status == response.ReconcileStatusPending {
		utils.ResponseAccepted(w, "Payment not yet completed", result)
		return
	}

	utils.ResponseSuccess(w, "success", result)
}

// Status handles GET /api/payments/status/{sourceId} (protected)
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	sourceID := chi.URLParam(r, "sourceId")
	if sourceID == "" {
		utils.ResponseBadRequest(w, "Source ID is required", nil)
		return
	}

	status, err := h.service.CheckStatus(r.Context(), userID.String(), sourceID)
	if err != nil {
		h.handleServiceError(w, err, "check payment status")
		return
	}

	utils.ResponseSuccess(w, "success", status)
}

func (h *PaymentHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	respondServiceError(w, h.log, err, operation)
}
