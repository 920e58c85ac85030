package payment

import (
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payment-lifecycle/internal"
	"github.com/frahmantamala/payment-lifecycle/internal/core/common/validation"
	datamodel "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/payment"
)

// CreateLinkRequest is the collaborator-facing request to open a payment
// link for a payable unit. Amount accepts a JSON string or number and is
// carried as a fixed-point decimal, never a float.
type CreateLinkRequest struct {
	SubjectID string            `json:"subject_id"`
	Tenant    string            `json:"tenant"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (r *CreateLinkRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("subject_id", r.SubjectID).Required()
	validator.Field("tenant", r.Tenant).Required()
	validator.Field("amount", r.Amount).Required().PositiveDecimal(errors.ErrCodeInvalidAmount)
	validator.Field("currency", r.Currency).Required().ExactLength(3, errors.ErrCodeInvalidCurrency)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// SubjectRequest identifies a record by the surrounding system's payable
// unit for the manual waive and refund operations.
type SubjectRequest struct {
	SubjectID string `json:"subject_id"`
}

func (r *SubjectRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("subject_id", r.SubjectID).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// PaymentView is the read model returned to collaborators.
type PaymentView struct {
	ID            int64      `json:"id"`
	SubjectID     string     `json:"subject_id"`
	Status        string     `json:"status"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	ExternalCode  *string    `json:"external_code,omitempty"`
	LinkURL       *string    `json:"link_url,omitempty"`
	LinkExpiresAt *time.Time `json:"link_expires_at,omitempty"`
	RequestedAt   *time.Time `json:"requested_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
}

func ToView(rec *datamodel.PaymentRecord) *PaymentView {
	if rec == nil {
		return nil
	}
	return &PaymentView{
		ID:            rec.ID,
		SubjectID:     rec.SubjectID,
		Status:        string(rec.Status),
		Amount:        rec.Amount.StringFixed(2),
		Currency:      rec.Currency,
		ExternalCode:  rec.ExternalCode,
		LinkURL:       rec.LinkURL,
		LinkExpiresAt: rec.LinkExpiresAt,
		RequestedAt:   rec.RequestedAt,
		CompletedAt:   rec.CompletedAt,
		FailedAt:      rec.FailedAt,
		FailureReason: rec.FailureReason,
	}
}
