package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payment-lifecycle/internal"
	gatewaytypes "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/gateway"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw callback
// body, keyed with the tenant secret. The exact scheme is adapter-private;
// swapping gateways swaps this file, not the engine.
const SignatureHeader = "X-Paylink-Signature"

const accountHeader = "X-Paylink-Account"

type PaylinkConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     uint64
}

// PaylinkClient is the concrete Provider adapter for the paylink gateway.
type PaylinkClient struct {
	baseURL    string
	client     *http.Client
	maxRetries uint64
	logger     *slog.Logger
}

func NewPaylinkClient(cfg PaylinkConfig, logger *slog.Logger) *PaylinkClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	return &PaylinkClient{
		baseURL:    cfg.BaseURL,
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func sign(body []byte, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// VerifyCallback checks the authenticity tag on a raw callback body. A
// missing or undecodable header is a clean verification failure, not an
// error. Comparison goes through hmac.Equal.
func (c *PaylinkClient) VerifyCallback(rawBody []byte, headers http.Header, creds gatewaytypes.TenantCredentials) bool {
	provided := headers.Get(SignatureHeader)
	if provided == "" {
		return false
	}

	providedMAC, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	expectedMAC := sign(rawBody, creds.Secret)
	return hmac.Equal(expectedMAC, providedMAC)
}

type callbackPayload struct {
	TransactionCode string            `json:"transaction_code"`
	OutcomeCode     int               `json:"outcome_code"`
	Amount          decimal.Decimal   `json:"amount"`
	OccurredAt      time.Time         `json:"occurred_at"`
	FailureDetail   string            `json:"failure_detail,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// mapOutcomeCode folds the gateway's numeric result codes into the engine's
// canonical outcomes. The 2xx family means collected, the 4xx family means
// declined. Every other code, including codes the gateway invents after this
// adapter ships, is unknown and must never pass as succeeded.
func mapOutcomeCode(code int) gatewaytypes.Outcome {
	switch {
	case code >= 200 && code < 300:
		return gatewaytypes.OutcomeSucceeded
	case code >= 400 && code < 500:
		return gatewaytypes.OutcomeDeclined
	default:
		return gatewaytypes.OutcomeUnknown
	}
}

func (c *PaylinkClient) ParseCallback(rawBody []byte) (*gatewaytypes.CallbackData, error) {
	var payload callbackPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		// fresh error per call; WithCause on a shared sentinel would race
		return nil, errors.NewValidationError("callback payload could not be parsed", errors.ErrCodeMalformedPayload).WithCause(err)
	}

	if payload.TransactionCode == "" {
		return nil, errors.NewValidationError("callback is missing transaction_code", errors.ErrCodeMalformedPayload)
	}

	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &gatewaytypes.CallbackData{
		ExternalCode:   payload.TransactionCode,
		Outcome:        mapOutcomeCode(payload.OutcomeCode),
		RawOutcomeCode: payload.OutcomeCode,
		Amount:         payload.Amount,
		OccurredAt:     occurredAt,
		FailureDetail:  payload.FailureDetail,
		Metadata:       payload.Metadata,
		Raw:            rawBody,
	}, nil
}

type createLinkPayload struct {
	AccountID string            `json:"account_id"`
	PageCode  string            `json:"page_code"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	NotifyURL string            `json:"notify_url"`
}

type createLinkResponse struct {
	TransactionCode string    `json:"transaction_code"`
	PaymentURL      string    `json:"payment_url"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// CreateLink opens a payment link with the gateway. Transient failures
// (network errors, 5xx) retry with capped exponential backoff; any definitive
// gateway answer is returned as-is without retry.
func (c *PaylinkClient) CreateLink(ctx context.Context, req gatewaytypes.CreateLinkRequest, creds gatewaytypes.TenantCredentials) (*gatewaytypes.LinkResult, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error(), errors.ErrCodeInvalidAmount)
	}

	body, err := json.Marshal(createLinkPayload{
		AccountID: creds.AccountID,
		PageCode:  creds.PageCode,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Metadata:  req.Metadata,
		NotifyURL: req.NotifyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal link request: %w", err)
	}

	url := c.baseURL + "/v1/payment-links"

	c.logger.Info("creating payment link",
		"url", url,
		"account_id", creds.AccountID,
		"amount", req.Amount.String(),
		"currency", req.Currency)

	var respBody []byte
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		respBody, err = c.post(ctx, url, body, creds)
		return err
	})
	if err != nil {
		return nil, err
	}

	var resp createLinkResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.NewGatewayError("gateway returned an unreadable link response", err)
	}
	if resp.TransactionCode == "" || resp.PaymentURL == "" {
		return nil, errors.NewGatewayError("gateway link response is missing transaction_code or payment_url", nil)
	}

	c.logger.Info("payment link created",
		"transaction_code", resp.TransactionCode,
		"expires_at", resp.ExpiresAt)

	return &gatewaytypes.LinkResult{
		ExternalCode: resp.TransactionCode,
		PaymentURL:   resp.PaymentURL,
		ExpiresAt:    resp.ExpiresAt,
	}, nil
}

// QueryStatus fetches the gateway's current view of a transaction. Read-only
// on the gateway side; used only by reconciliation.
func (c *PaylinkClient) QueryStatus(ctx context.Context, externalCode string, creds gatewaytypes.TenantCredentials) (*gatewaytypes.CallbackData, error) {
	url := fmt.Sprintf("%s/v1/payment-links/%s", c.baseURL, externalCode)

	var respBody []byte
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		respBody, err = c.get(ctx, url, externalCode, creds)
		return err
	})
	if err != nil {
		return nil, err
	}

	return c.ParseCallback(respBody)
}

func (c *PaylinkClient) post(ctx context.Context, url string, body []byte, creds gatewaytypes.TenantCredentials) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(accountHeader, creds.AccountID)
	httpReq.Header.Set(SignatureHeader, hex.EncodeToString(sign(body, creds.Secret)))

	return c.do(httpReq)
}

func (c *PaylinkClient) get(ctx context.Context, url, externalCode string, creds gatewaytypes.TenantCredentials) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	httpReq.Header.Set(accountHeader, creds.AccountID)
	httpReq.Header.Set(SignatureHeader, hex.EncodeToString(sign([]byte(externalCode), creds.Secret)))

	return c.do(httpReq)
}

func (c *PaylinkClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		// network-level failure, worth another attempt
		return nil, retry.RetryableError(errors.NewGatewayError("gateway request failed", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.RetryableError(errors.NewGatewayError("failed to read gateway response", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode >= 500:
		c.logger.Warn("gateway returned server error",
			"status", resp.StatusCode,
			"url", req.URL.String())
		return nil, retry.RetryableError(errors.NewGatewayError(
			fmt.Sprintf("gateway returned status %d", resp.StatusCode), nil))
	default:
		// definitive answer from the gateway, never retried
		return nil, errors.NewGatewayError(
			fmt.Sprintf("gateway rejected request with status %d: %s", resp.StatusCode, string(respBody)), nil)
	}
}
