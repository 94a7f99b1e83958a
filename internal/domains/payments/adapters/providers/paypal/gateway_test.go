package paypal

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"hash/crc32"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/commercekit/orderflow/internal/domains/payments/domain"
)

const testWebhookID = "WH-TEST-1"

// testCertificate self-signs a throwaway RSA certificate so webhook
// verification can run against a key the test controls.
func testCertificate(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "webhook-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func newTestGateway(t *testing.T, certPEM []byte) *Gateway {
	t.Helper()
	gw, err := New(Config{ClientID: "client", Secret: "secret", WebhookID: testWebhookID, CertPEM: certPEM})
	require.NoError(t, err)
	return gw
}

func signedHeaders(t *testing.T, key *rsa.PrivateKey, transmissionID, transmissionTime, webhookID string, body []byte) http.Header {
	t.Helper()
	message := fmt.Sprintf("%s|%s|%s|%d", transmissionID, transmissionTime, webhookID, crc32.ChecksumIEEE(body))
	digest := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	headers := http.Header{}
	headers.Set(transmissionIDHeader, transmissionID)
	headers.Set(transmissionTimeHeader, transmissionTime)
	headers.Set(transmissionSigHeader, base64.StdEncoding.EncodeToString(signature))
	return headers
}

func TestVerifyWebhook_AcceptsSignedTransmission(t *testing.T) {
	key, certPEM := testCertificate(t)
	gw := newTestGateway(t, certPEM)
	body := []byte(`{"id":"WH-EVT-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","status":"COMPLETED","amount":{"value":"25.00"}}}`)
	headers := signedHeaders(t, key, "tx-1", "2026-08-31T12:00:00Z", testWebhookID, body)

	event, err := gw.VerifyWebhook(headers, body)
	require.NoError(t, err)
	require.Equal(t, "PAYMENT.CAPTURE.COMPLETED", event.Type)
	require.Equal(t, "WH-EVT-1", event.ProviderEventID)
	require.Equal(t, "CAP-1", event.ProviderPaymentID)
	require.Equal(t, domain.StatusCompleted, event.Status)
	require.Equal(t, int64(2500), event.Amount)
}

func TestVerifyWebhook_RejectsWrongKey(t *testing.T) {
	_, certPEM := testCertificate(t)
	otherKey, _ := testCertificate(t)
	gw := newTestGateway(t, certPEM)
	body := []byte(`{"id":"WH-EVT-1"}`)
	headers := signedHeaders(t, otherKey, "tx-1", "2026-08-31T12:00:00Z", testWebhookID, body)

	_, err := gw.VerifyWebhook(headers, body)
	require.ErrorIs(t, err, domain.ErrBadSignature)
}

func TestVerifyWebhook_RejectsTamperedBody(t *testing.T) {
	key, certPEM := testCertificate(t)
	gw := newTestGateway(t, certPEM)
	body := []byte(`{"id":"WH-EVT-1"}`)
	headers := signedHeaders(t, key, "tx-1", "2026-08-31T12:00:00Z", testWebhookID, body)

	_, err := gw.VerifyWebhook(headers, []byte(`{"id":"WH-EVT-2"}`))
	require.ErrorIs(t, err, domain.ErrBadSignature)
}

func TestVerifyWebhook_RejectsWrongWebhookID(t *testing.T) {
	key, certPEM := testCertificate(t)
	gw := newTestGateway(t, certPEM)
	body := []byte(`{"id":"WH-EVT-1"}`)
	headers := signedHeaders(t, key, "tx-1", "2026-08-31T12:00:00Z", "WH-OTHER", body)

	_, err := gw.VerifyWebhook(headers, body)
	require.ErrorIs(t, err, domain.ErrBadSignature)
}

func TestVerifyWebhook_RejectsMissingHeaders(t *testing.T) {
	_, certPEM := testCertificate(t)
	gw := newTestGateway(t, certPEM)

	_, err := gw.VerifyWebhook(http.Header{}, []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrBadSignature)
}

func TestVerifyWebhook_NoCertificateConfigured(t *testing.T) {
	gw := newTestGateway(t, nil)
	_, err := gw.VerifyWebhook(http.Header{}, []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrBadSignature)
}

func TestMinorDecimalConversion(t *testing.T) {
	require.Equal(t, "25.00", minorToDecimal(2500))
	require.Equal(t, "0.05", minorToDecimal(5))
	require.Equal(t, int64(2500), decimalToMinor("25.00"))
	require.Equal(t, int64(2550), decimalToMinor("25.5"))
	require.Equal(t, int64(0), decimalToMinor("garbage"))
}
