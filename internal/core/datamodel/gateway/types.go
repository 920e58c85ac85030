package gateway

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the engine's canonical view of a gateway result code. Codes the
// adapter does not recognize map to OutcomeUnknown and are never treated as
// succeeded.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeDeclined  Outcome = "declined"
	OutcomeUnknown   Outcome = "unknown"
)

// TenantCredentials is the secret material for one tenant's gateway account.
// It is threaded explicitly through every verification and outbound call so
// multi-tenant callback routing never depends on ambient state.
type TenantCredentials struct {
	AccountID string
	PageCode  string
	Secret    []byte
}

type CreateLinkRequest struct {
	Amount    decimal.Decimal
	Currency  string
	Metadata  map[string]string
	NotifyURL string
}

func (r *CreateLinkRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	if r.NotifyURL == "" {
		return errors.New("notify url is required")
	}
	return nil
}

// LinkResult is what a successful create_link call yields. ExpiresAt is the
// gateway's advertised expiry; callers must not assume it is honored exactly.
type LinkResult struct {
	ExternalCode string
	PaymentURL   string
	ExpiresAt    time.Time
}

// CallbackData is the normalized form of a gateway notification, produced by
// parse_callback and by query_status. Raw holds the bytes the data was parsed
// from so the pipeline can digest them for the audit trail.
type CallbackData struct {
	ExternalCode   string
	Outcome        Outcome
	RawOutcomeCode int
	Amount         decimal.Decimal
	OccurredAt     time.Time
	FailureDetail  string
	Metadata       map[string]string
	Raw            []byte `json:"-"`
}
