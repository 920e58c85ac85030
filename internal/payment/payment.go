package payment

import (
	"context"
	"net/http"
	"time"

	gatewaytypes "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/gateway"
	datamodel "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/payment"
)

// RepositoryAPI is the persistence contract for payment records and their
// append-only audit trail. ApplyTransition must persist the record mutation
// and its audit entry in one atomic unit.
type RepositoryAPI interface {
	Create(rec *datamodel.PaymentRecord) error
	GetByID(id int64) (*datamodel.PaymentRecord, error)
	GetByExternalCode(code string) (*datamodel.PaymentRecord, error)
	GetLatestBySubjectID(subjectID string) (*datamodel.PaymentRecord, error)
	ApplyTransition(rec *datamodel.PaymentRecord, entry *datamodel.AuditEntry) error
	AppendAudit(entry *datamodel.AuditEntry) error
	ListStalePending(olderThan time.Time, limit int) ([]*datamodel.PaymentRecord, error)
	ListAuditForRecord(recordID int64) ([]*datamodel.AuditEntry, error)
}

// GatewayAPI is the provider capability set the lifecycle service consumes,
// declared here so the service depends on behavior, not on the adapter
// package.
type GatewayAPI interface {
	CreateLink(ctx context.Context, req gatewaytypes.CreateLinkRequest, creds gatewaytypes.TenantCredentials) (*gatewaytypes.LinkResult, error)
	VerifyCallback(rawBody []byte, headers http.Header, creds gatewaytypes.TenantCredentials) bool
	ParseCallback(rawBody []byte) (*gatewaytypes.CallbackData, error)
	QueryStatus(ctx context.Context, externalCode string, creds gatewaytypes.TenantCredentials) (*gatewaytypes.CallbackData, error)
}

// TenantDirectory resolves per-tenant gateway credentials and the callback
// token used to build notify targets.
type TenantDirectory interface {
	CredentialsFor(name string) (gatewaytypes.TenantCredentials, error)
	CallbackTokenFor(name string) (string, error)
}

// TransitionResult reports what one transition attempt did. Rejections are
// results, not errors: the record is returned unchanged alongside the audit
// entry that recorded the rejection.
type TransitionResult struct {
	Record  *datamodel.PaymentRecord
	Entry   *datamodel.AuditEntry
	Outcome datamodel.AuditOutcome
}

// ServiceAPI is the lifecycle surface consumed by the HTTP handlers and the
// reconciliation worker.
type ServiceAPI interface {
	CreatePaymentLink(ctx context.Context, req *CreateLinkRequest) (*datamodel.PaymentRecord, error)
	Waive(ctx context.Context, subjectID string) (*datamodel.PaymentRecord, error)
	Refund(ctx context.Context, subjectID string) (*datamodel.PaymentRecord, error)
	GetBySubjectID(subjectID string) (*datamodel.PaymentRecord, error)
	ApplyCallback(ctx context.Context, data *gatewaytypes.CallbackData) (*TransitionResult, error)
	RecordOrphanCallback(externalCode string, rawBody []byte, detail string)
	StalePending(olderThan time.Time, limit int) ([]*datamodel.PaymentRecord, error)
	ReconcileRecord(ctx context.Context, rec *datamodel.PaymentRecord) (*TransitionResult, error)
}
