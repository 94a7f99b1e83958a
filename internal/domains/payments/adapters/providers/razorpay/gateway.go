// Package razorpay implements the payment gateway port against the Razorpay
// HTTP API. Webhooks carry a hex HMAC SHA-256 of the raw body in the
// X-Razorpay-Signature header.
package razorpay

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

const GatewayName = "razorpay"

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
)

var _ ports.Gateway = (*Gateway)(nil)

var statusMap = map[string]domain.AttemptStatus{
	"created":    domain.StatusPending,
	"authorized": domain.StatusProcessing,
	"captured":   domain.StatusCompleted,
	"refunded":   domain.StatusRefunded,
	"failed":     domain.StatusFailed,
}

// Config holds the per-instance client state for one Razorpay account.
type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	Limits        domain.Limits
	HTTPClient    *http.Client
}

// Gateway is a Razorpay-backed implementation of the gateway port.
type Gateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	limits        domain.Limits
	client        *http.Client
}

// New builds a Razorpay gateway from config.
func New(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.KeyID) == "" || strings.TrimSpace(cfg.KeySecret) == "" {
		return nil, errors.New("razorpay: key id and secret are required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.razorpay.com"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Gateway{
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       baseURL,
		limits:        cfg.Limits,
		client:        client,
	}, nil
}

func (g *Gateway) Name() string          { return GatewayName }
func (g *Gateway) Limits() domain.Limits { return g.limits }

type paymentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

// CreatePayment registers a payment for the order.
func (g *Gateway) CreatePayment(ctx context.Context, req ports.ChargeRequest) (*ports.Charge, error) {
	payload := map[string]any{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
		"notes":    map[string]string{"order_id": req.OrderID},
	}
	return g.call(ctx, http.MethodPost, "/v1/payments", payload)
}

// CapturePayment captures an authorized payment.
func (g *Gateway) CapturePayment(ctx context.Context, providerPaymentID string) (*ports.Charge, error) {
	return g.call(ctx, http.MethodPost, "/v1/payments/"+providerPaymentID+"/capture", nil)
}

// RefundPayment issues a partial or full refund.
func (g *Gateway) RefundPayment(ctx context.Context, providerPaymentID string, amount int64, reason string) (*ports.Charge, error) {
	payload := map[string]any{"amount": amount}
	if reason != "" {
		payload["notes"] = map[string]string{"reason": reason}
	}
	charge, err := g.call(ctx, http.MethodPost, "/v1/payments/"+providerPaymentID+"/refund", payload)
	if err != nil {
		return nil, err
	}
	charge.Status = domain.StatusRefunded
	charge.ProviderPaymentID = providerPaymentID
	return charge, nil
}

// GetStatus polls the payment.
func (g *Gateway) GetStatus(ctx context.Context, providerPaymentID string) (domain.AttemptStatus, error) {
	charge, err := g.call(ctx, http.MethodGet, "/v1/payments/"+providerPaymentID, nil)
	if err != nil {
		return "", err
	}
	return charge.Status, nil
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentResponse `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// VerifyWebhook checks the body HMAC and returns the normalized event. The
// delivery id rides in a header, not the body.
func (g *Gateway) VerifyWebhook(headers http.Header, rawBody []byte) (*domain.NormalizedEvent, error) {
	signature, err := hex.DecodeString(strings.TrimSpace(headers.Get(signatureHeader)))
	if err != nil || len(signature) == 0 {
		return nil, domain.ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(rawBody)
	if !hmac.Equal(mac.Sum(nil), signature) {
		return nil, domain.ErrBadSignature
	}
	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedEvent, err)
	}
	return &domain.NormalizedEvent{
		Type:              envelope.Event,
		ProviderEventID:   strings.TrimSpace(headers.Get(eventIDHeader)),
		ProviderPaymentID: envelope.Payload.Payment.Entity.ID,
		Status:            normalize(envelope.Payload.Payment.Entity.Status),
		Amount:            envelope.Payload.Payment.Entity.Amount,
	}, nil
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
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: razorpay: %w", domain.ErrProvider, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: razorpay: %w", domain.ErrProvider, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: razorpay: status %d", domain.ErrProvider, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("razorpay: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var payment paymentResponse
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("%w: razorpay: decode response: %w", domain.ErrProvider, err)
	}
	return &ports.Charge{
		ProviderPaymentID: payment.ID,
		Status:            normalize(payment.Status),
		RawResponse:       string(raw),
	}, nil
}

func normalize(status string) domain.AttemptStatus {
	if mapped, ok := statusMap[strings.ToLower(status)]; ok {
		return mapped
	}
	return domain.StatusFailed
}
