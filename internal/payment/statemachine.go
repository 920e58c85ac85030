package payment

import (
	gatewaytypes "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/gateway"
	datamodel "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/payment"
)

// EventKind is a lifecycle event applied to a payment record. Gateway
// outcomes arrive as succeeded/declined/unknown regardless of whether a
// webhook or a reconciliation query delivered them; the delivery source is
// recorded on the audit entry, not encoded in the event.
type EventKind string

const (
	EventLinkCreated EventKind = "link_created"
	EventSucceeded   EventKind = "succeeded"
	EventDeclined    EventKind = "declined"
	EventRefund      EventKind = "refund"
	EventWaive       EventKind = "waive"
	EventUnknown     EventKind = "unknown"
)

// EventFromOutcome maps a normalized gateway outcome onto a lifecycle event.
func EventFromOutcome(o gatewaytypes.Outcome) EventKind {
	switch o {
	case gatewaytypes.OutcomeSucceeded:
		return EventSucceeded
	case gatewaytypes.OutcomeDeclined:
		return EventDeclined
	default:
		return EventUnknown
	}
}

// targetStatus is the status an event drives toward, independent of the
// current status. EventUnknown has no target and can never be applied.
func targetStatus(ev EventKind) (datamodel.Status, bool) {
	switch ev {
	case EventLinkCreated:
		return datamodel.StatusPending, true
	case EventSucceeded:
		return datamodel.StatusPaid, true
	case EventDeclined:
		return datamodel.StatusFailed, true
	case EventRefund:
		return datamodel.StatusRefunded, true
	case EventWaive:
		return datamodel.StatusWaived, true
	}
	return "", false
}

// legal lists every (current, event) pair the lifecycle permits.
var legal = map[datamodel.Status]map[EventKind]datamodel.Status{
	datamodel.StatusUnpaid: {
		EventLinkCreated: datamodel.StatusPending,
		EventWaive:       datamodel.StatusWaived,
	},
	datamodel.StatusPending: {
		EventSucceeded: datamodel.StatusPaid,
		EventDeclined:  datamodel.StatusFailed,
	},
	datamodel.StatusFailed: {
		EventLinkCreated: datamodel.StatusPending,
	},
	datamodel.StatusPaid: {
		EventRefund: datamodel.StatusRefunded,
	},
}

// Decision classifies one transition attempt. Next is meaningful only when
// Outcome is applied. Target is the status the event was driving toward,
// empty for events with no target; it lands in the audit entry either way.
type Decision struct {
	Outcome datamodel.AuditOutcome
	Next    datamodel.Status
	Target  datamodel.Status
}

// Decide runs the transition table. Out-of-order and duplicate events are
// normal input here, never a fault: an event whose target equals the current
// status classifies as rejected-duplicate, any other illegal pair as
// rejected-invalid.
func Decide(current datamodel.Status, ev EventKind) Decision {
	if next, ok := legal[current][ev]; ok {
		return Decision{
			Outcome: datamodel.OutcomeApplied,
			Next:    next,
			Target:  next,
		}
	}

	target, hasTarget := targetStatus(ev)
	if hasTarget && target == current {
		return Decision{
			Outcome: datamodel.OutcomeRejectedDuplicate,
			Target:  target,
		}
	}

	return Decision{
		Outcome: datamodel.OutcomeRejectedInvalid,
		Target:  target,
	}
}
