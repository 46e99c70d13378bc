package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"vendor-billing-engine/internal/domain"
	"vendor-billing-engine/internal/domain/ports/adapter"
	"vendor-billing-engine/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*PayMongoGateway)(nil)

// PayMongoGateway implements the payment port using direct HTTP calls against
// the PayMongo REST API. Amounts are in centavos.
type PayMongoGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

// NewPayMongoGateway creates a gateway client. baseURL is overridable for
// tests; pass "" for the production endpoint.
func NewPayMongoGateway(secretKey, baseURL string, timeout time.Duration) *PayMongoGateway {
	if baseURL == "" {
		baseURL = "https://api.paymongo.com/v1"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PayMongoGateway{
		secretKey: secretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
	}
}

func (g *PayMongoGateway) Name() string { return "paymongo" }

type apiEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Amount        int64             `json:"amount"`
			Currency      string            `json:"currency"`
			Status        string            `json:"status"`
			Metadata      map[string]string `json:"metadata"`
			FailedCode    string            `json:"failed_code"`
			FailedMessage string            `json:"failed_message"`
		} `json:"attributes"`
	} `json:"data"`
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (g *PayMongoGateway) CreateCustomer(ctx context.Context, details adapter.CustomerDetails) (string, error) {
	payload := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"first_name":     details.Name,
				"email":          details.Email,
				"phone":          details.Phone,
				"default_device": "email",
				"metadata":       details.Metadata,
			},
		},
	}
	var env apiEnvelope
	if err := g.call(ctx, http.MethodPost, "/customers", payload, &env, "create_customer"); err != nil {
		return "", err
	}
	if env.Data.ID == "" {
		return "", fmt.Errorf("%w: customer creation returned no id", domain.ErrOperationFailed)
	}
	return env.Data.ID, nil
}

func (g *PayMongoGateway) Charge(ctx context.Context, amount int64, currency, customerOrSource string, metadata map[string]string) (adapter.ChargeResult, error) {
	payload := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"amount":      amount,
				"currency":    currency,
				"source":      map[string]string{"id": customerOrSource, "type": "source"},
				"description": "subscription billing",
				"metadata":    metadata,
			},
		},
	}
	var env apiEnvelope
	if err := g.call(ctx, http.MethodPost, "/payments", payload, &env, "charge"); err != nil {
		return adapter.ChargeResult{}, err
	}
	return g.toResult(env)
}

func (g *PayMongoGateway) AttachPaymentMethod(ctx context.Context, intentID, methodID string) (string, error) {
	payload := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{"payment_method": methodID},
		},
	}
	var env apiEnvelope
	err := g.call(ctx, http.MethodPost, "/payment_intents/"+intentID+"/attach", payload, &env, "attach_payment_method")
	if err != nil {
		return "", err
	}
	return env.Data.Attributes.Status, nil
}

func (g *PayMongoGateway) RetrievePayment(ctx context.Context, paymentID string) (adapter.ChargeResult, error) {
	var env apiEnvelope
	if err := g.call(ctx, http.MethodGet, "/payments/"+paymentID, nil, &env, "retrieve_payment"); err != nil {
		return adapter.ChargeResult{}, err
	}
	return g.toResult(env)
}

func (g *PayMongoGateway) toResult(env apiEnvelope) (adapter.ChargeResult, error) {
	res := adapter.ChargeResult{
		ID:     env.Data.ID,
		Amount: env.Data.Attributes.Amount,
		Raw: map[string]any{
			"status":   env.Data.Attributes.Status,
			"currency": env.Data.Attributes.Currency,
		},
	}
	switch env.Data.Attributes.Status {
	case "paid":
		res.Status = adapter.ChargeStatusSucceeded
	case "failed":
		res.Status = adapter.ChargeStatusFailed
		res.Raw["failed_code"] = env.Data.Attributes.FailedCode
		res.Raw["failed_message"] = env.Data.Attributes.FailedMessage
		return res, fmt.Errorf("%w: %s", domain.ErrGatewayDeclined, env.Data.Attributes.FailedCode)
	default:
		res.Status = adapter.ChargeStatusPending
	}
	return res, nil
}

// call performs one API round trip. Transport failures and deadline expiry
// map to ErrGatewayTimeout because the outcome is unknown; a well-formed
// error response from the provider is a definite decline.
func (g *PayMongoGateway) call(ctx context.Context, method, path string, payload any, out *apiEnvelope, op string) error {
	start := time.Now()
	err := g.doCall(ctx, method, path, payload, out)
	metrics.ObserveGatewayCall(op, err == nil, time.Since(start))
	return err
}

func (g *PayMongoGateway) doCall(ctx context.Context, method, path string, payload any, out *apiEnvelope) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(g.secretKey+":")))

	resp, err := g.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", domain.ErrGatewayTimeout, err)
		}
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response body: %v", domain.ErrGatewayTimeout, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(raw))
	}

	if len(out.Errors) > 0 {
		return fmt.Errorf("%w: %s: %s", domain.ErrGatewayDeclined, out.Errors[0].Code, out.Errors[0].Detail)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: provider returned %d", domain.ErrGatewayTimeout, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: provider returned %d", domain.ErrGatewayDeclined, resp.StatusCode)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
