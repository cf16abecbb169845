package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const SignatureHeader = "Paymongo-Signature"

const (
	EventSourceChargeable = "source.chargeable"
	EventPaymentPaid      = "payment.paid"
	EventPaymentFailed    = "payment.failed"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// VerifySignature checks a Paymongo-Signature header of the form
// "t=<unix>,te=<test hmac>,li=<live hmac>" against payload. The live
// signature is used when present, the test one otherwise.
func VerifySignature(payload []byte, header, secret string) error {
	if header == "" {
		return ErrMissingSignature
	}

	var timestamp, testSig, liveSig string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "te":
			testSig = value
		case "li":
			liveSig = value
		}
	}

	sig := testSig
	if strings.TrimSpace(liveSig) != "" {
		sig = liveSig
	}
	if timestamp == "" || sig == "" {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignPayload produces the hex signature the provider would send for payload.
func SignPayload(payload []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Event is a decoded webhook delivery.
type Event struct {
	ID       string
	Type     string
	LiveMode bool
	Resource EventResource
}

type EventResource struct {
	ID             string
	Type           string
	Status         string
	Amount         int64
	SourceID       string
	Metadata       map[string]string
	FailureCode    string
	FailureMessage string
	Raw            json.RawMessage
}

type eventEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Type     string `json:"type"`
			LiveMode bool   `json:"livemode"`
			Data     struct {
				ID         string          `json:"id"`
				Type       string          `json:"type"`
				Attributes json.RawMessage `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

type eventResourceAttributes struct {
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	SourceID string `json:"source_id"`
	Source   *struct {
		ID string `json:"id"`
	} `json:"source"`
	Metadata       map[string]string `json:"metadata"`
	FailedCode     string            `json:"failed_code"`
	FailedMessage  string            `json:"failed_message"`
	FailureCode    string            `json:"failure_code"`
	FailureMessage string            `json:"failure_message"`
}

func ParseEvent(body []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	if env.Data.Attributes.Type == "" {
		return nil, errors.New("decode webhook event: missing event type")
	}

	event := &Event{
		ID:       env.Data.ID,
		Type:     env.Data.Attributes.Type,
		LiveMode: env.Data.Attributes.LiveMode,
		Resource: EventResource{
			ID:   env.Data.Attributes.Data.ID,
			Type: env.Data.Attributes.Data.Type,
			Raw:  body,
		},
	}

	if len(env.Data.Attributes.Data.Attributes) > 0 {
		var attrs eventResourceAttributes
		if err := json.Unmarshal(env.Data.Attributes.Data.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decode webhook resource: %w", err)
		}
		event.Resource.Status = attrs.Status
		event.Resource.Amount = attrs.Amount
		event.Resource.Metadata = attrs.Metadata
		event.Resource.SourceID = attrs.SourceID
		if attrs.Source != nil && attrs.Source.ID != "" {
			event.Resource.SourceID = attrs.Source.ID
		}
		event.Resource.FailureCode = firstNonEmpty(attrs.FailedCode, attrs.FailureCode)
		event.Resource.FailureMessage = firstNonEmpty(attrs.FailedMessage, attrs.FailureMessage)
	}

	return event, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
