// Package paypal implements the payment gateway port against the PayPal
// HTTP API. Unlike the HMAC providers, PayPal webhooks are verified against
// an RSA certificate: the transmission signature covers the transmission id,
// timestamp, webhook id, and a CRC32 of the raw body.
package paypal

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/commercekit/orderflow/internal/domains/payments/domain"
	"github.com/commercekit/orderflow/internal/domains/payments/ports"
)

const GatewayName = "paypal"

const (
	transmissionIDHeader   = "Paypal-Transmission-Id"
	transmissionTimeHeader = "Paypal-Transmission-Time"
	transmissionSigHeader  = "Paypal-Transmission-Sig"
)

var _ ports.Gateway = (*Gateway)(nil)

var statusMap = map[string]domain.AttemptStatus{
	"created":               domain.StatusPending,
	"saved":                 domain.StatusPending,
	"payer_action_required": domain.StatusPending,
	"approved":              domain.StatusProcessing,
	"completed":             domain.StatusCompleted,
	"voided":                domain.StatusCancelled,
	"refunded":              domain.StatusRefunded,
	"declined":              domain.StatusFailed,
	"failed":                domain.StatusFailed,
}

// Config holds the per-instance client state for one PayPal app.
type Config struct {
	ClientID  string
	Secret    string
	WebhookID string
	// CertPEM is the PEM-encoded certificate whose public key signs
	// webhook transmissions.
	CertPEM    []byte
	BaseURL    string
	Limits     domain.Limits
	HTTPClient *http.Client
}

// Gateway is a PayPal-backed implementation of the gateway port. OAuth
// tokens are cached on the instance and refreshed before expiry.
type Gateway struct {
	clientID  string
	secret    string
	webhookID string
	publicKey *rsa.PublicKey
	baseURL   string
	limits    domain.Limits
	client    *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New builds a PayPal gateway from config.
func New(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("paypal: client id and secret are required")
	}
	var publicKey *rsa.PublicKey
	if len(cfg.CertPEM) > 0 {
		key, err := parseCertificateKey(cfg.CertPEM)
		if err != nil {
			return nil, fmt.Errorf("paypal: %w", err)
		}
		publicKey = key
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api-m.paypal.com"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Gateway{
		clientID:  cfg.ClientID,
		secret:    cfg.Secret,
		webhookID: cfg.WebhookID,
		publicKey: publicKey,
		baseURL:   baseURL,
		limits:    cfg.Limits,
		client:    client,
	}, nil
}

func parseCertificateKey(certPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, errors.New("invalid certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not carry an RSA key")
	}
	return key, nil
}

func (g *Gateway) Name() string          { return GatewayName }
func (g *Gateway) Limits() domain.Limits { return g.limits }

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		Value string `json:"value"`
	} `json:"amount"`
}

// CreatePayment creates a checkout order.
func (g *Gateway) CreatePayment(ctx context.Context, req ports.ChargeRequest) (*ports.Charge, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.OrderID,
			"amount": map[string]string{
				"currency_code": strings.ToUpper(req.Currency),
				"value":         minorToDecimal(req.Amount),
			},
		}},
	}
	return g.call(ctx, http.MethodPost, "/v2/checkout/orders", payload)
}

// CapturePayment captures an approved checkout order.
func (g *Gateway) CapturePayment(ctx context.Context, providerPaymentID string) (*ports.Charge, error) {
	return g.call(ctx, http.MethodPost, "/v2/checkout/orders/"+providerPaymentID+"/capture", nil)
}

// RefundPayment refunds part or all of a capture.
func (g *Gateway) RefundPayment(ctx context.Context, providerPaymentID string, amount int64, reason string) (*ports.Charge, error) {
	payload := map[string]any{
		"amount": map[string]string{"value": minorToDecimal(amount)},
	}
	if reason != "" {
		payload["note_to_payer"] = reason
	}
	charge, err := g.call(ctx, http.MethodPost, "/v2/payments/captures/"+providerPaymentID+"/refund", payload)
	if err != nil {
		return nil, err
	}
	charge.Status = domain.StatusRefunded
	charge.ProviderPaymentID = providerPaymentID
	return charge, nil
}

// GetStatus polls the checkout order.
func (g *Gateway) GetStatus(ctx context.Context, providerPaymentID string) (domain.AttemptStatus, error) {
	charge, err := g.call(ctx, http.MethodGet, "/v2/checkout/orders/"+providerPaymentID, nil)
	if err != nil {
		return "", err
	}
	return charge.Status, nil
}

type webhookEnvelope struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			Value string `json:"value"`
		} `json:"amount"`
	} `json:"resource"`
}

// VerifyWebhook validates the RSA transmission signature and returns the
// normalized event.
func (g *Gateway) VerifyWebhook(headers http.Header, rawBody []byte) (*domain.NormalizedEvent, error) {
	if g.publicKey == nil {
		return nil, fmt.Errorf("%w: no verification certificate configured", domain.ErrBadSignature)
	}
	transmissionID := strings.TrimSpace(headers.Get(transmissionIDHeader))
	transmissionTime := strings.TrimSpace(headers.Get(transmissionTimeHeader))
	signature, err := base64.StdEncoding.DecodeString(strings.TrimSpace(headers.Get(transmissionSigHeader)))
	if err != nil || transmissionID == "" || transmissionTime == "" || len(signature) == 0 {
		return nil, domain.ErrBadSignature
	}
	message := fmt.Sprintf("%s|%s|%s|%d", transmissionID, transmissionTime, g.webhookID, crc32.ChecksumIEEE(rawBody))
	digest := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPKCS1v15(g.publicKey, crypto.SHA256, digest[:], signature); err != nil {
		return nil, domain.ErrBadSignature
	}
	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedEvent, err)
	}
	return &domain.NormalizedEvent{
		Type:              envelope.EventType,
		ProviderEventID:   envelope.ID,
		ProviderPaymentID: envelope.Resource.ID,
		Status:            normalize(envelope.Resource.Status),
		Amount:            decimalToMinor(envelope.Resource.Amount.Value),
	}, nil
}

func (g *Gateway) call(ctx context.Context, method, path string, payload any) (*ports.Charge, error) {
	token, err := g.token(ctx)
	if err != nil {
		return nil, err
	}
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
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: paypal: %w", domain.ErrProvider, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: paypal: %w", domain.ErrProvider, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: paypal: status %d", domain.ErrProvider, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("paypal: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var order orderResponse
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("%w: paypal: decode response: %w", domain.ErrProvider, err)
	}
	return &ports.Charge{
		ProviderPaymentID: order.ID,
		Status:            normalize(order.Status),
		RawResponse:       string(raw),
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// token returns a cached OAuth token, fetching a fresh one when within a
// minute of expiry.
func (g *Gateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.accessToken != "" && time.Now().Before(g.tokenExpiry.Add(-time.Minute)) {
		return g.accessToken, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: paypal: token: %w", domain.ErrProvider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: paypal: token: status %d", domain.ErrProvider, resp.StatusCode)
	}
	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("%w: paypal: token: decode: %w", domain.ErrProvider, err)
	}
	g.accessToken = token.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return g.accessToken, nil
}

func minorToDecimal(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

func decimalToMinor(value string) int64 {
	whole, fraction, _ := strings.Cut(strings.TrimSpace(value), ".")
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0
	}
	var cents int64
	if fraction != "" {
		if len(fraction) > 2 {
			fraction = fraction[:2]
		}
		for len(fraction) < 2 {
			fraction += "0"
		}
		cents, _ = strconv.ParseInt(fraction, 10, 64)
	}
	return major*100 + cents
}

func normalize(status string) domain.AttemptStatus {
	if mapped, ok := statusMap[strings.ToLower(status)]; ok {
		return mapped
	}
	return domain.StatusFailed
}
