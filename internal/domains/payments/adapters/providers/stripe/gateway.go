// Package stripe implements the payment gateway port against the Stripe
// HTTP API. Webhooks are verified with the HMAC SHA-256 scheme Stripe uses
// for its Stripe-Signature header.
package stripe

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/commercekit/orderflow/internal/domains/payments/domain"
	"github.com/commercekit/orderflow/internal/domains/payments/ports"
)

const GatewayName = "stripe"

// signatureHeader carries "t=<unix>,v1=<hex hmac>" per delivery.
const signatureHeader = "Stripe-Signature"

var _ ports.Gateway = (*Gateway)(nil)

// statusMap translates Stripe's payment intent vocabulary to the canonical
// set. Unknown values fall back to failed so settlement never acts on a
// status it does not understand.
var statusMap = map[string]domain.AttemptStatus{
	"requires_payment_method": domain.StatusPending,
	"requires_confirmation":   domain.StatusPending,
	"requires_action":         domain.StatusPending,
	"requires_capture":        domain.StatusProcessing,
	"processing":              domain.StatusProcessing,
	"succeeded":               domain.StatusCompleted,
	"canceled":                domain.StatusCancelled,
	"refunded":                domain.StatusRefunded,
	"payment_failed":          domain.StatusFailed,
}

// Config holds the per-instance client state for one Stripe account.
type Config struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	Limits        domain.Limits
	HTTPClient    *http.Client
}

// Gateway is a Stripe-backed implementation of the gateway port.
type Gateway struct {
	apiKey        string
	webhookSecret string
	baseURL       string
	limits        domain.Limits
	client        *http.Client
}

// New builds a Stripe gateway from config.
func New(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("stripe: API key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Gateway{
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       baseURL,
		limits:        cfg.Limits,
		client:        client,
	}, nil
}

func (g *Gateway) Name() string          { return GatewayName }
func (g *Gateway) Limits() domain.Limits { return g.limits }

type intentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

// CreatePayment starts a payment intent.
func (g *Gateway) CreatePayment(ctx context.Context, req ports.ChargeRequest) (*ports.Charge, error) {
	payload := map[string]any{
		"amount":   req.Amount,
		"currency": strings.ToLower(req.Currency),
		"metadata": map[string]string{"order_id": req.OrderID},
	}
	return g.call(ctx, http.MethodPost, "/v1/payment_intents", payload)
}

// CapturePayment finalizes an authorized intent.
func (g *Gateway) CapturePayment(ctx context.Context, providerPaymentID string) (*ports.Charge, error) {
	return g.call(ctx, http.MethodPost, "/v1/payment_intents/"+providerPaymentID+"/capture", nil)
}

// RefundPayment issues a partial or full refund against an intent.
func (g *Gateway) RefundPayment(ctx context.Context, providerPaymentID string, amount int64, reason string) (*ports.Charge, error) {
	payload := map[string]any{
		"payment_intent": providerPaymentID,
		"amount":         amount,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	charge, err := g.call(ctx, http.MethodPost, "/v1/refunds", payload)
	if err != nil {
		return nil, err
	}
	// Refund objects report "succeeded"; the canonical status for a refund
	// attempt is refunded.
	if charge.Status == domain.StatusCompleted {
		charge.Status = domain.StatusRefunded
	}
	charge.ProviderPaymentID = providerPaymentID
	return charge, nil
}

// GetStatus polls the intent.
func (g *Gateway) GetStatus(ctx context.Context, providerPaymentID string) (domain.AttemptStatus, error) {
	charge, err := g.call(ctx, http.MethodGet, "/v1/payment_intents/"+providerPaymentID, nil)
	if err != nil {
		return "", err
	}
	return charge.Status, nil
}

type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object intentResponse `json:"object"`
	} `json:"data"`
}

// VerifyWebhook checks the signed header against the raw body and returns
// the normalized event.
func (g *Gateway) VerifyWebhook(headers http.Header, rawBody []byte) (*domain.NormalizedEvent, error) {
	timestamp, signature, err := parseSignatureHeader(headers.Get(signatureHeader))
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	if !hmac.Equal(mac.Sum(nil), signature) {
		return nil, domain.ErrBadSignature
	}
	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedEvent, err)
	}
	return &domain.NormalizedEvent{
		Type:              envelope.Type,
		ProviderEventID:   envelope.ID,
		ProviderPaymentID: envelope.Data.Object.ID,
		Status:            normalize(envelope.Data.Object.Status),
		Amount:            envelope.Data.Object.Amount,
	}, nil
}

func parseSignatureHeader(header string) (timestamp string, signature []byte, err error) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signature, err = hex.DecodeString(value)
			if err != nil {
				return "", nil, domain.ErrBadSignature
			}
		}
	}
	if timestamp == "" || len(signature) == 0 {
		return "", nil, domain.ErrBadSignature
	}
	return timestamp, signature, nil
}

func (g *Gateway) call(ctx context.Context, method, path string, payload any) (*ports.Charge, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe: %w", domain.ErrProvider, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: stripe: %w", domain.ErrProvider, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: stripe: status %d", domain.ErrProvider, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("stripe: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var intent intentResponse
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, fmt.Errorf("%w: stripe: decode response: %w", domain.ErrProvider, err)
	}
	return &ports.Charge{
		ProviderPaymentID: intent.ID,
		Status:            normalize(intent.Status),
		RawResponse:       string(raw),
	}, nil
}

func normalize(status string) domain.AttemptStatus {
	if mapped, ok := statusMap[strings.ToLower(status)]; ok {
		return mapped
	}
	return domain.StatusFailed
}
