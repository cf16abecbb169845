package request

type BillingRequest struct {
	Name  string `json:"name,omitempty" validate:"omitempty,max=255"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

type CreateCheckoutRequest struct {
	ReservationID string          `json:"reservation_id" validate:"required,uuid"`
	Method        string          `json:"method" validate:"required,oneof=gcash paymaya"`
	Billing       *BillingRequest `json:"billing,omitempty"`
}

// ReconcileRequest is sent by the success page. Either id is enough.
type ReconcileRequest struct {
	SourceID      string `json:"source_id,omitempty" validate:"required_without=ReservationID,max=128"`
	ReservationID string `json:"reservation_id,omitempty" validate:"omitempty,uuid"`
}
