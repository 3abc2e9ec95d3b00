package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

type CreateIntentParams struct {
	Amount         float64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

type Intent struct {
	ID           string
	ClientSecret string
}

// Gateway is the external payment processor. Intent creation is idempotent
// on the gateway side: retrying with the same idempotency key returns the
// original intent instead of opening a second charge.
type Gateway interface {
	CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error)
	Refund(ctx context.Context, externalIntentID string) (string, error)
}

type HTTPGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewHTTPGateway builds the production gateway client. Every call is bounded
// by timeout so a stalled gateway cannot hold a request handler forever.
func NewHTTPGateway(baseURL, secretKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL:   baseURL,
		secretKey: secretKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type createIntentRequest struct {
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

func (g *HTTPGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	body := createIntentRequest{
		// Gateways charge in the smallest currency unit.
		AmountCents: int64(math.Round(p.Amount * 100)),
		Currency:    p.Currency,
		Metadata:    p.Metadata,
	}

	var resp intentResponse
	if err := g.post(ctx, "/v1/payment_intents", p.IdempotencyKey, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: intent response missing id", ErrGatewayUnavailable)
	}

	return &Intent{ID: resp.ID, ClientSecret: resp.ClientSecret}, nil
}

type refundRequest struct {
	PaymentIntent string `json:"payment_intent"`
}

type refundResponse struct {
	ID string `json:"id"`
}

func (g *HTTPGateway) Refund(ctx context.Context, externalIntentID string) (string, error) {
	var resp refundResponse
	if err := g.post(ctx, "/v1/refunds", "", refundRequest{PaymentIntent: externalIntentID}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (g *HTTPGateway) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	res, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: gateway returned %d", ErrGatewayUnavailable, res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}

	return nil
}
