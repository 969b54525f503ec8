package enums

import "fmt"

// OutboxAggregateType names the entity an outbox row is about.
type OutboxAggregateType string

const (
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateInvoice      OutboxAggregateType = "invoice"
	AggregateBooking      OutboxAggregateType = "booking"
	AggregatePayout       OutboxAggregateType = "payout"
	AggregateDispute      OutboxAggregateType = "dispute"
	AggregateOrganization OutboxAggregateType = "organization"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePayment,
	AggregateInvoice,
	AggregateBooking,
	AggregatePayout,
	AggregateDispute,
	AggregateOrganization,
}

func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the kind of outbound task an outbox row carries.
type OutboxEventType string

const (
	// EventNotificationRequested asks the push-notification callable to
	// notify a user.
	EventNotificationRequested OutboxEventType = "notification_requested"
	// EventWorkflowTriggered hands a domain trigger to the workflow
	// orchestrator callable.
	EventWorkflowTriggered OutboxEventType = "workflow_triggered"
)

var validOutboxEventTypes = []OutboxEventType{
	EventNotificationRequested,
	EventWorkflowTriggered,
}

func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
