package adaptor

import (
	"io"
	"net/http"

	"court-booking/internal/gateway"
	"court-booking/internal/usecase"
	"court-booking/pkg/utils"

	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	service usecase.WebhookService
	log     *zap.Logger
}

func NewWebhookHandler(service usecase.WebhookService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		log:     log.With(zap.String("handler", "webhook")),
	}
}

// Receive handles POST /api/webhooks/paymongo (public, signed)
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), body, r.Header.Get(gateway.SignatureHeader))
	if err != nil {
		respondServiceError(w, h.log, err, "handle webhook")
		return
	}

	utils.ResponseSuccess(w, "received", result)
}

// Ping handles GET /api/webhooks/paymongo so the endpoint can be verified
// from the provider dashboard.
func (h *WebhookHandler) Ping(w http.ResponseWriter, r *http.Request) {
	utils.ResponseSuccess(w, "Webhook endpoint is ready", nil)
}
