package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.paymongo.com/v1"

type PayMongoClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	log        *zap.Logger
}

func NewPayMongoClient(baseURL, secretKey string, timeout time.Duration, log *zap.Logger) *PayMongoClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PayMongoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With(zap.String("gateway", "paymongo")),
	}
}

// ==================== WIRE TYPES ====================

type resource[T any] struct {
	Data struct {
		ID         string `json:"id,omitempty"`
		Type       string `json:"type,omitempty"`
		Attributes T      `json:"attributes"`
	} `json:"data"`
}

type sourceAttributes struct {
	Amount   int64             `json:"amount"`
	Type     string            `json:"type"`
	Currency string            `json:"currency"`
	Status   string            `json:"status,omitempty"`
	Redirect sourceRedirect    `json:"redirect"`
	Billing  *Billing          `json:"billing,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type sourceRedirect struct {
	Success     string `json:"success"`
	Failed      string `json:"failed"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

type paymentSourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type paymentAttributes struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status,omitempty"`
	Source      paymentSourceRef  `json:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type errorBody struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// ==================== OPERATIONS ====================

func (c *PayMongoClient) CreateSource(ctx context.Context, req SourceRequest) (*Source, error) {
	var body resource[sourceAttributes]
	body.Data.Attributes = sourceAttributes{
		Amount:   ToMinorUnits(req.Amount),
		Type:     req.Method,
		Currency: req.Currency,
		Redirect: sourceRedirect{Success: req.SuccessURL, Failed: req.FailedURL},
		Billing:  req.Billing,
		Metadata: req.Metadata,
	}

	var out resource[sourceAttributes]
	if _, err := c.do(ctx, http.MethodPost, "/sources", body, &out); err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}

	c.log.Info("Checkout source created",
		zap.String("source_id", out.Data.ID),
		zap.String("type", req.Method),
		zap.Int64("amount_minor", body.Data.Attributes.Amount),
	)

	return toSource(out), nil
}

func (c *PayMongoClient) GetSource(ctx context.Context, sourceID string) (*Source, error) {
	var out resource[sourceAttributes]
	if _, err := c.do(ctx, http.MethodGet, "/sources/"+sourceID, nil, &out); err != nil {
		return nil, fmt.Errorf("get source %s: %w", sourceID, err)
	}
	return toSource(out), nil
}

func (c *PayMongoClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	var body resource[paymentAttributes]
	body.Data.Attributes = paymentAttributes{
		Amount:      ToMinorUnits(req.Amount),
		Currency:    req.Currency,
		Description: req.Description,
		Source:      paymentSourceRef{ID: req.SourceID, Type: "source"},
		Metadata:    req.Metadata,
	}

	var out resource[paymentAttributes]
	raw, err := c.do(ctx, http.MethodPost, "/payments", body, &out)
	if err != nil {
		return nil, fmt.Errorf("create charge for source %s: %w", req.SourceID, err)
	}

	c.log.Info("Charge created",
		zap.String("charge_id", out.Data.ID),
		zap.String("source_id", req.SourceID),
		zap.String("status", out.Data.Attributes.Status),
	)

	return &Charge{
		ID:     out.Data.ID,
		Status: out.Data.Attributes.Status,
		Amount: FromMinorUnits(out.Data.Attributes.Amount),
		Raw:    raw,
	}, nil
}

func toSource(out resource[sourceAttributes]) *Source {
	return &Source{
		ID:          out.Data.ID,
		Status:      SourceStatus(out.Data.Attributes.Status),
		Amount:      FromMinorUnits(out.Data.Attributes.Amount),
		Currency:    out.Data.Attributes.Currency,
		CheckoutURL: out.Data.Attributes.Redirect.CheckoutURL,
	}
}

// do sends one request and decodes a 2xx body into out. The raw response
// body is returned for auditing.
func (c *PayMongoClient) do(ctx context.Context, method, path string, in, out any) (json.RawMessage, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.secretKey+":")))
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("PayMongo request failed",
			zap.Error(err),
			zap.String("method", method),
			zap.String("path", path),
		)
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &Error{StatusCode: resp.StatusCode, Detail: http.StatusText(resp.StatusCode)}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && len(eb.Errors) > 0 {
			gwErr.Code = eb.Errors[0].Code
			gwErr.Detail = eb.Errors[0].Detail
		}
		c.log.Warn("PayMongo returned error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", gwErr.Code),
			zap.String("detail", gwErr.Detail),
		)
		return nil, gwErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return respBody, nil
}
