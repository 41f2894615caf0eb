package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body, prefixed
// with "sha256=".
const SignatureHeader = "X-Gateway-Signature"

// SignPayload computes the hex-encoded HMAC-SHA256 of payload using secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" or bare hex signature against payload.
func VerifySignature(payload []byte, secret, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient sets the HTTP client used to reach the gateway.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) { g.client = c }
}

// WithTimeout sets the client timeout. Ignored when zero.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.client.Timeout = d
		}
	}
}

// Gateway posts messages to an external SMS or email provider as signed JSON.
// A Gateway with an SMS URL satisfies SMSSender, and one with an email URL
// satisfies EmailSender; both are implemented on the same type.
type Gateway struct {
	smsURL   string
	emailURL string
	secret   string
	client   *http.Client
}

// NewGateway creates a gateway sender. Either URL may be empty, in which case
// sends on that channel fail.
func NewGateway(smsURL, emailURL, secret string, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		smsURL:   smsURL,
		emailURL: emailURL,
		secret:   secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type emailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SendSMS posts the message to the SMS gateway.
func (g *Gateway) SendSMS(ctx context.Context, to, body string) error {
	if g.smsURL == "" {
		return fmt.Errorf("sms gateway not configured")
	}
	return g.post(ctx, g.smsURL, smsRequest{To: to, Body: body})
}

// SendEmail posts the message to the email gateway.
func (g *Gateway) SendEmail(ctx context.Context, to, subject, body string) error {
	if g.emailURL == "" {
		return fmt.Errorf("email gateway not configured")
	}
	return g.post(ctx, g.emailURL, emailRequest{To: to, Subject: subject, Body: body})
}

func (g *Gateway) post(ctx context.Context, url string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Timestamp", time.Now().UTC().Format(time.RFC3339))
	if g.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+SignPayload(payload, g.secret))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
