package wire

import (
	"court-booking/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wireWebhook(r chi.Router, webhookHandler *adaptor.WebhookHandler) {
	// ==================== PUBLIC ROUTES (signed by provider) ====================
	// POST /api/webhooks/paymongo - Provider event delivery
	r.Post("/api/webhooks/paymongo", webhookHandler.Receive)

	// GET /api/webhooks/paymongo - Endpoint check from the provider dashboard
	r.Get("/api/webhooks/paymongo", webhookHandler.Ping)
}
