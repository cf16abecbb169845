package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// CheckoutGateway is the minimal provider contract the payment flow relies on.
type CheckoutGateway interface {
	CreateSource(ctx context.Context, req SourceRequest) (*Source, error)
	GetSource(ctx context.Context, sourceID string) (*Source, error)
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
}

type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusChargeable SourceStatus = "chargeable"
	SourceStatusCancelled  SourceStatus = "cancelled"
	SourceStatusExpired    SourceStatus = "expired"
	SourceStatusPaid       SourceStatus = "paid"
	SourceStatusConsumed   SourceStatus = "consumed"
)

// IsTerminalFailure reports whether the source can never be charged.
func (s SourceStatus) IsTerminalFailure() bool {
	return s == SourceStatusCancelled || s == SourceStatusExpired
}

type Billing struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// SourceRequest amounts are in major units (pesos).
type SourceRequest struct {
	Amount     decimal.Decimal
	Currency   string
	Method     string
	SuccessURL string
	FailedURL  string
	Billing    *Billing
	Metadata   map[string]string
}

type Source struct {
	ID          string
	Status      SourceStatus
	Amount      decimal.Decimal
	Currency    string
	CheckoutURL string
}

type ChargeRequest struct {
	SourceID    string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Metadata    map[string]string
}

type Charge struct {
	ID     string
	Status string
	Amount decimal.Decimal
	Raw    json.RawMessage
}

// Error is a provider-side failure.
type Error struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("paymongo: %s (%s, status %d)", e.Detail, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("paymongo: %s (status %d)", e.Detail, e.StatusCode)
}

// IsTransient reports whether retrying the same call later may succeed.
// Transport errors count as transient.
func IsTransient(err error) bool {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.StatusCode >= http.StatusInternalServerError || gwErr.StatusCode == http.StatusTooManyRequests
	}
	return err != nil
}

// ToMinorUnits converts a major-unit amount to centavos, the unit the
// provider API expects.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
