package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCompleted   = "payment.completed"
	EventTypePaymentFailed      = "payment.failed"
	EventTypeTransitionRejected = "payment.transition_rejected"
)

type PaymentCompletedEvent struct {
	BaseEvent
	RecordID     int64  `json:"record_id"`
	SubjectID    string `json:"subject_id"`
	ExternalCode string `json:"external_code"`
	Amount       string `json:"amount"`
	Source       string `json:"source"`
}

func NewPaymentCompletedEvent(recordID int64, subjectID, externalCode, amount, source string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"record_id":     recordID,
				"subject_id":    subjectID,
				"external_code": externalCode,
				"amount":        amount,
				"source":        source,
			},
		},
		RecordID:     recordID,
		SubjectID:    subjectID,
		ExternalCode: externalCode,
		Amount:       amount,
		Source:       source,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	RecordID      int64  `json:"record_id"`
	SubjectID     string `json:"subject_id"`
	ExternalCode  string `json:"external_code"`
	FailureReason string `json:"failure_reason"`
	Source        string `json:"source"`
}

func NewPaymentFailedEvent(recordID int64, subjectID, externalCode, failureReason, source string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"record_id":      recordID,
				"subject_id":     subjectID,
				"external_code":  externalCode,
				"failure_reason": failureReason,
				"source":         source,
			},
		},
		RecordID:      recordID,
		SubjectID:     subjectID,
		ExternalCode:  externalCode,
		FailureReason: failureReason,
		Source:        source,
	}
}

// TransitionRejectedEvent is the alerting hook for callbacks that were
// acknowledged to the gateway but conflict with the record's current state.
// Redelivery will not change the outcome, so the inconsistency surfaces here
// and in the audit trail instead of a retry-inducing response.
type TransitionRejectedEvent struct {
	BaseEvent
	RecordID     int64  `json:"record_id"`
	ExternalCode string `json:"external_code"`
	FromStatus   string `json:"from_status"`
	Attempted    string `json:"attempted"`
	Source       string `json:"source"`
}

func NewTransitionRejectedEvent(recordID int64, externalCode, fromStatus, attempted, source string) *TransitionRejectedEvent {
	return &TransitionRejectedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeTransitionRejected,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"record_id":     recordID,
				"external_code": externalCode,
				"from_status":   fromStatus,
				"attempted":     attempted,
				"source":        source,
			},
		},
		RecordID:     recordID,
		ExternalCode: externalCode,
		FromStatus:   fromStatus,
		Attempted:    attempted,
		Source:       source,
	}
}
