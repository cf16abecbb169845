package wire

import (
	"court-booking/internal/adaptor"
	"court-booking/pkg/middleware"
	"court-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wirePayment(
	r chi.Router,
	paymentHandler *adaptor.PaymentHandler,
	config *utils.Config,
	log *zap.Logger,
) {
	// ==================== PROTECTED ROUTES (require auth) ====================
	r.Route("/api/payments", func(r chi.Router) {
		r.Use(middleware.JWTAuth(config.JWT.Secret, log))

		// POST /api/payments/checkout - Start an e-wallet checkout for a reservation
		r.Post("/checkout", paymentHandler.Checkout)

		// POST /api/payments/reconcile - Success page poll, by source or reservation
		r.Post("/reconcile", paymentHandler.Reconcile)

		// GET /api/payments/status/{sourceId} - Provider and ledger status of a checkout
		r.Get("/status/{sourceId}", paymentHandler.Status)
	})
}
