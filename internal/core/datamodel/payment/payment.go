package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusUnpaid   Status = "unpaid"
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
	StatusWaived   Status = "waived"
)

// Terminal reports whether no further automatic transition can occur.
// Paid is semi-terminal: a manual refund is still possible.
func (s Status) Terminal() bool {
	return s == StatusRefunded || s == StatusWaived
}

// CarriesExternalCode reports whether the status implies a gateway-assigned
// transaction code. Unpaid and waived records never carry one.
func (s Status) CarriesExternalCode() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// PaymentRecord holds the mutable lifecycle state for one payable unit. The
// subject ID is owned by the surrounding system and never interpreted here.
type PaymentRecord struct {
	ID            int64           `json:"id" gorm:"primaryKey"`
	SubjectID     string          `json:"subject_id" gorm:"column:subject_id;not null;index"`
	TenantName    string          `json:"tenant_name" gorm:"column:tenant_name;not null"`
	ExternalCode  *string         `json:"external_code,omitempty" gorm:"column:external_code;uniqueIndex"`
	Status        Status          `json:"status" gorm:"column:status;default:unpaid"`
	Amount        decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(20,2);not null"`
	Currency      string          `json:"currency" gorm:"column:currency;not null"`
	LinkURL       *string         `json:"link_url,omitempty" gorm:"column:link_url"`
	LinkExpiresAt *time.Time      `json:"link_expires_at,omitempty" gorm:"column:link_expires_at"`
	RequestedAt   *time.Time      `json:"requested_at,omitempty" gorm:"column:requested_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" gorm:"column:completed_at"`
	FailedAt      *time.Time      `json:"failed_at,omitempty" gorm:"column:failed_at"`
	FailureReason *string         `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	CreatedAt     time.Time       `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"column:updated_at"`
}

func (PaymentRecord) TableName() string {
	return "payment_records"
}

// CanRequestLink reports whether a (new) payment link may be created. Failed
// is retriable: the fresh link supersedes the old transaction code and the
// superseded code survives in the audit history.
func (p *PaymentRecord) CanRequestLink() bool {
	return p.Status == StatusUnpaid || p.Status == StatusFailed
}

type AuditSource string

const (
	SourceWebhook        AuditSource = "webhook"
	SourceReconciliation AuditSource = "reconciliation"
	SourceManual         AuditSource = "manual"
)

type AuditOutcome string

const (
	OutcomeApplied           AuditOutcome = "applied"
	OutcomeRejectedDuplicate AuditOutcome = "rejected-duplicate"
	OutcomeRejectedInvalid   AuditOutcome = "rejected-invalid"
)

// AuditEntry is the append-only record of one transition attempt, including
// rejected and duplicate attempts. RecordID is nil for orphan entries written
// before a record could be resolved (failed verification, unparseable body).
// PayloadDigest holds a hex SHA-256 of the raw callback bytes for forensic
// replay; the payload itself is never stored.
type AuditEntry struct {
	ID            string       `json:"id" gorm:"primaryKey"`
	RecordID      *int64       `json:"record_id,omitempty" gorm:"column:record_id;index"`
	ExternalCode  string       `json:"external_code" gorm:"column:external_code;index"`
	FromStatus    Status       `json:"from_status" gorm:"column:from_status"`
	ToStatus      Status       `json:"to_status" gorm:"column:to_status"`
	Source        AuditSource  `json:"source" gorm:"column:source;not null"`
	Outcome       AuditOutcome `json:"outcome" gorm:"column:outcome;not null"`
	PayloadDigest string       `json:"payload_digest" gorm:"column:payload_digest"`
	Detail        string       `json:"detail,omitempty" gorm:"column:detail"`
	OccurredAt    time.Time    `json:"occurred_at" gorm:"column:occurred_at;not null"`
}

func (AuditEntry) TableName() string {
	return "payment_audit_entries"
}
