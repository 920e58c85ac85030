package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	errors "github.com/frahmantamala/payment-lifecycle/internal"
	gatewaytypes "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/gateway"
	datamodel "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-lifecycle/internal/core/events"
)

// Service owns the payment lifecycle. All mutation funnels through one
// locked transition path; network calls to the gateway happen strictly
// outside the per-record critical section.
type Service struct {
	repo     RepositoryAPI
	gateway  GatewayAPI
	tenants  TenantDirectory
	eventBus *events.EventBus
	locks    *recordLocks
	baseURL  string
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo RepositoryAPI, gateway GatewayAPI, tenants TenantDirectory, eventBus *events.EventBus, baseURL string, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		gateway:  gateway,
		tenants:  tenants,
		eventBus: eventBus,
		locks:    newRecordLocks(),
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func payloadDigest(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (s *Service) newAuditEntry(rec *datamodel.PaymentRecord, decision Decision, source datamodel.AuditSource, digest, detail string) *datamodel.AuditEntry {
	entry := &datamodel.AuditEntry{
		ID:            uuid.New().String(),
		FromStatus:    rec.Status,
		ToStatus:      decision.Target,
		Source:        source,
		Outcome:       decision.Outcome,
		PayloadDigest: digest,
		Detail:        detail,
		OccurredAt:    s.now(),
	}
	entry.RecordID = &rec.ID
	if rec.ExternalCode != nil {
		entry.ExternalCode = *rec.ExternalCode
	}
	return entry
}

// CreatePaymentLink opens a gateway link for a payable unit and moves the
// record to pending. Legal from unpaid and from failed; a retry supersedes
// the previous transaction code. The gateway call happens before the
// per-record lock is taken.
func (s *Service) CreatePaymentLink(ctx context.Context, req *CreateLinkRequest) (*datamodel.PaymentRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rec, err := s.repo.GetLatestBySubjectID(req.SubjectID)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); !ok || appErr.Code != errors.ErrCodeRecordNotFound {
			return nil, fmt.Errorf("failed to load payment record: %w", err)
		}
		rec = &datamodel.PaymentRecord{
			SubjectID:  req.SubjectID,
			TenantName: req.Tenant,
			Status:     datamodel.StatusUnpaid,
			Amount:     req.Amount,
			Currency:   req.Currency,
		}
		if err := s.repo.Create(rec); err != nil {
			return nil, fmt.Errorf("failed to create payment record: %w", err)
		}
		s.logger.Info("payment record created",
			"record_id", rec.ID,
			"subject_id", rec.SubjectID,
			"tenant", rec.TenantName)
	}

	if !rec.CanRequestLink() {
		s.logger.Warn("link requested for record in non-linkable status",
			"record_id", rec.ID,
			"status", rec.Status)
		return nil, errors.ErrInvalidTransition
	}

	creds, err := s.tenants.CredentialsFor(rec.TenantName)
	if err != nil {
		return nil, err
	}
	token, err := s.tenants.CallbackTokenFor(rec.TenantName)
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["subject_id"] = rec.SubjectID

	// network call before lock acquisition, never inside it
	link, err := s.gateway.CreateLink(ctx, gatewaytypes.CreateLinkRequest{
		Amount:    rec.Amount,
		Currency:  rec.Currency,
		Metadata:  metadata,
		NotifyURL: s.baseURL + "/api/v1/payments/callback/" + token,
	}, creds)
	if err != nil {
		s.logger.Error("link creation failed",
			"error", err,
			"record_id", rec.ID,
			"subject_id", rec.SubjectID)
		return nil, err
	}

	release := s.locks.Acquire(rec.ID)
	defer release()

	rec, err = s.repo.GetByID(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload payment record: %w", err)
	}

	decision := Decide(rec.Status, EventLinkCreated)
	entry := s.newAuditEntry(rec, decision, datamodel.SourceManual, "", "payment link created")
	entry.ExternalCode = link.ExternalCode

	if decision.Outcome != datamodel.OutcomeApplied {
		// lost a race between the gateway call and the lock
		if auditErr := s.repo.AppendAudit(entry); auditErr != nil {
			s.logger.Error("failed to append audit entry", "error", auditErr, "record_id", rec.ID)
		}
		return nil, errors.ErrInvalidTransition
	}

	rec.Status = decision.Next
	rec.ExternalCode = &link.ExternalCode
	rec.LinkURL = &link.PaymentURL
	if !link.ExpiresAt.IsZero() {
		expiresAt := link.ExpiresAt
		rec.LinkExpiresAt = &expiresAt
	}
	if rec.RequestedAt == nil {
		requestedAt := s.now()
		rec.RequestedAt = &requestedAt
	}

	if err := s.repo.ApplyTransition(rec, entry); err != nil {
		return nil, fmt.Errorf("failed to persist link transition: %w", err)
	}

	s.logger.Info("payment link created",
		"record_id", rec.ID,
		"subject_id", rec.SubjectID,
		"external_code", link.ExternalCode,
		"status", rec.Status)

	return rec, nil
}

// ApplyCallback runs one verified, parsed gateway notification through the
// transition engine. Duplicates and invalid transitions are normal results;
// the only error paths are an unknown transaction code and persistence
// failure.
func (s *Service) ApplyCallback(ctx context.Context, data *gatewaytypes.CallbackData) (*TransitionResult, error) {
	rec, err := s.repo.GetByExternalCode(data.ExternalCode)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeRecordNotFound {
			return nil, errors.ErrUnknownTransaction
		}
		return nil, fmt.Errorf("failed to look up payment record: %w", err)
	}

	return s.applyOutcome(ctx, rec.ID, data, datamodel.SourceWebhook)
}

// ReconcileRecord queries the gateway for one stale pending record and runs
// the answer through the same transition path as a webhook, with
// source=reconciliation. The status query happens before the per-record lock.
func (s *Service) ReconcileRecord(ctx context.Context, rec *datamodel.PaymentRecord) (*TransitionResult, error) {
	if rec.ExternalCode == nil {
		return nil, errors.ErrInvalidTransition
	}

	creds, err := s.tenants.CredentialsFor(rec.TenantName)
	if err != nil {
		return nil, err
	}

	data, err := s.gateway.QueryStatus(ctx, *rec.ExternalCode, creds)
	if err != nil {
		return nil, fmt.Errorf("status query failed for %s: %w", *rec.ExternalCode, err)
	}

	return s.applyOutcome(ctx, rec.ID, data, datamodel.SourceReconciliation)
}

func (s *Service) applyOutcome(ctx context.Context, recordID int64, data *gatewaytypes.CallbackData, source datamodel.AuditSource) (*TransitionResult, error) {
	release := s.locks.Acquire(recordID)
	defer release()

	rec, err := s.repo.GetByID(recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload payment record: %w", err)
	}

	event := EventFromOutcome(data.Outcome)
	decision := Decide(rec.Status, event)

	detail := data.FailureDetail
	if event == EventUnknown {
		detail = fmt.Sprintf("unrecognized gateway outcome code %d", data.RawOutcomeCode)
	}
	entry := s.newAuditEntry(rec, decision, source, payloadDigest(data.Raw), detail)
	entry.ExternalCode = data.ExternalCode

	switch decision.Outcome {
	case datamodel.OutcomeApplied:
		s.mutateForOutcome(rec, decision.Next, data)
		if err := s.repo.ApplyTransition(rec, entry); err != nil {
			return nil, fmt.Errorf("failed to persist transition: %w", err)
		}
		s.publishApplied(ctx, rec, source)
		s.logger.Info("transition applied",
			"record_id", rec.ID,
			"external_code", data.ExternalCode,
			"from", entry.FromStatus,
			"to", rec.Status,
			"source", source)

	case datamodel.OutcomeRejectedDuplicate:
		if err := s.repo.AppendAudit(entry); err != nil {
			return nil, fmt.Errorf("failed to append audit entry: %w", err)
		}
		s.logger.Info("duplicate event absorbed",
			"record_id", rec.ID,
			"external_code", data.ExternalCode,
			"status", rec.Status,
			"source", source)

	case datamodel.OutcomeRejectedInvalid:
		if err := s.repo.AppendAudit(entry); err != nil {
			return nil, fmt.Errorf("failed to append audit entry: %w", err)
		}
		s.eventBus.Publish(ctx, events.NewTransitionRejectedEvent(
			rec.ID, data.ExternalCode, string(rec.Status), string(event), string(source)))
		s.logger.Warn("invalid transition recorded",
			"record_id", rec.ID,
			"external_code", data.ExternalCode,
			"status", rec.Status,
			"event", event,
			"source", source)
	}

	return &TransitionResult{Record: rec, Entry: entry, Outcome: decision.Outcome}, nil
}

// mutateForOutcome stamps the timestamps exactly once. completedAt carries
// the gateway's occurred-at, not the local arrival time.
func (s *Service) mutateForOutcome(rec *datamodel.PaymentRecord, next datamodel.Status, data *gatewaytypes.CallbackData) {
	rec.Status = next

	occurredAt := data.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	// a record can never complete or fail before its link was requested
	if rec.RequestedAt != nil && occurredAt.Before(*rec.RequestedAt) {
		occurredAt = *rec.RequestedAt
	}

	switch next {
	case datamodel.StatusPaid:
		if rec.CompletedAt == nil {
			rec.CompletedAt = &occurredAt
		}
	case datamodel.StatusFailed:
		if rec.FailedAt == nil {
			rec.FailedAt = &occurredAt
		}
		if data.FailureDetail != "" {
			reason := data.FailureDetail
			rec.FailureReason = &reason
		}
	}
}

func (s *Service) publishApplied(ctx context.Context, rec *datamodel.PaymentRecord, source datamodel.AuditSource) {
	externalCode := ""
	if rec.ExternalCode != nil {
		externalCode = *rec.ExternalCode
	}

	switch rec.Status {
	case datamodel.StatusPaid:
		s.eventBus.Publish(ctx, events.NewPaymentCompletedEvent(
			rec.ID, rec.SubjectID, externalCode, rec.Amount.StringFixed(2), string(source)))
	case datamodel.StatusFailed:
		reason := ""
		if rec.FailureReason != nil {
			reason = *rec.FailureReason
		}
		s.eventBus.Publish(ctx, events.NewPaymentFailedEvent(
			rec.ID, rec.SubjectID, externalCode, reason, string(source)))
	}
}

// RecordOrphanCallback writes an audit entry for a callback rejected before
// any record could be resolved: failed verification or an unparseable body.
// The entry has no record reference, only the payload digest.
func (s *Service) RecordOrphanCallback(externalCode string, rawBody []byte, detail string) {
	entry := &datamodel.AuditEntry{
		ID:            uuid.New().String(),
		ExternalCode:  externalCode,
		Source:        datamodel.SourceWebhook,
		Outcome:       datamodel.OutcomeRejectedInvalid,
		PayloadDigest: payloadDigest(rawBody),
		Detail:        detail,
		OccurredAt:    s.now(),
	}

	if err := s.repo.AppendAudit(entry); err != nil {
		s.logger.Error("failed to append orphan audit entry", "error", err, "detail", detail)
	}
}

// Waive marks an unpaid record as waived. Manual, fully terminal, never
// carries a transaction code.
func (s *Service) Waive(ctx context.Context, subjectID string) (*datamodel.PaymentRecord, error) {
	return s.manualTransition(ctx, subjectID, EventWaive, "payment waived")
}

// Refund marks a paid record as refunded. The gateway-side money movement is
// the surrounding system's concern; this records the local state change.
func (s *Service) Refund(ctx context.Context, subjectID string) (*datamodel.PaymentRecord, error) {
	return s.manualTransition(ctx, subjectID, EventRefund, "payment refunded")
}

func (s *Service) manualTransition(_ context.Context, subjectID string, event EventKind, detail string) (*datamodel.PaymentRecord, error) {
	rec, err := s.repo.GetLatestBySubjectID(subjectID)
	if err != nil {
		return nil, err
	}

	release := s.locks.Acquire(rec.ID)
	defer release()

	rec, err = s.repo.GetByID(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload payment record: %w", err)
	}

	decision := Decide(rec.Status, event)
	entry := s.newAuditEntry(rec, decision, datamodel.SourceManual, "", detail)

	if decision.Outcome != datamodel.OutcomeApplied {
		if auditErr := s.repo.AppendAudit(entry); auditErr != nil {
			s.logger.Error("failed to append audit entry", "error", auditErr, "record_id", rec.ID)
		}
		if decision.Outcome == datamodel.OutcomeRejectedDuplicate {
			return nil, errors.NewConflictError("event already applied", errors.ErrCodeDuplicateEvent)
		}
		return nil, errors.ErrInvalidTransition
	}

	rec.Status = decision.Next
	if err := s.repo.ApplyTransition(rec, entry); err != nil {
		return nil, fmt.Errorf("failed to persist transition: %w", err)
	}

	s.logger.Info("manual transition applied",
		"record_id", rec.ID,
		"subject_id", rec.SubjectID,
		"to", rec.Status)

	return rec, nil
}

// GetBySubjectID returns the latest payment record for a payable unit.
func (s *Service) GetBySubjectID(subjectID string) (*datamodel.PaymentRecord, error) {
	return s.repo.GetLatestBySubjectID(subjectID)
}

// StalePending lists pending records whose link was requested before the
// given cutoff, for the reconciliation sweep.
func (s *Service) StalePending(olderThan time.Time, limit int) ([]*datamodel.PaymentRecord, error) {
	return s.repo.ListStalePending(olderThan, limit)
}
