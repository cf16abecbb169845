package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GeneratePaymentReference builds the support-facing reference of a payment.
// Format: RES-<first 8 chars of reservation id>-<unix millis>-<6 random hex>
// The suffix keeps two checkouts started in the same millisecond apart.
func GeneratePaymentReference(reservationID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("RES-%s-%d-%s", reservationID.String()[:8], now.UnixMilli(), uuid.New().String()[:6])
}

// GenerateWorkerID identifies one reconciliation attempt as a lease owner.
func GenerateWorkerID() string {
	return uuid.New().String()
}
