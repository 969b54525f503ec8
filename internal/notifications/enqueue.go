package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/db"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/logger"
	"github.com/homebase-app/homebase-backend/pkg/outbox"
	"github.com/homebase-app/homebase-backend/pkg/outbox/payloads"
)

// Workflow triggers understood by the orchestrator.
const (
	TriggerPaymentReceived = "payment_received"
	TriggerInvoicePaid     = "invoice_paid"
	TriggerPaymentRefunded = "payment_refunded"
	TriggerDisputeOpened   = "dispute_opened"
)

// Notification categories shown in the provider app.
const (
	CategoryPaymentReceived = "payment_received"
	CategoryPaymentFailed   = "payment_failed"
	CategoryPaymentRefunded = "payment_refunded"
	CategoryDispute         = "dispute"
	CategoryPayout          = "payout"
	CategorySubscription    = "subscription"
)

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Target is the aggregate an outbound task refers to.
type Target struct {
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Source        *outbox.SourceRef
}

// Enqueuer writes notification and workflow tasks to the outbox. Every write
// runs in its own savepoint so a failure never aborts the caller's
// transaction.
type Enqueuer struct {
	outbox emitter
	logg   *logger.Logger
}

func NewEnqueuer(out emitter, logg *logger.Logger) (*Enqueuer, error) {
	if out == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Enqueuer{outbox: out, logg: logg}, nil
}

// Notify queues a push notification. Errors are logged and swallowed.
func (e *Enqueuer) Notify(ctx context.Context, tx *gorm.DB, target Target, n payloads.NotificationRequestedEvent) {
	e.emit(ctx, tx, "notify", target, enums.EventNotificationRequested, n)
}

// Trigger queues a workflow orchestrator task. Errors are logged and swallowed.
func (e *Enqueuer) Trigger(ctx context.Context, tx *gorm.DB, target Target, w payloads.WorkflowTriggeredEvent) {
	e.emit(ctx, tx, "workflow", target, enums.EventWorkflowTriggered, w)
}

func (e *Enqueuer) emit(ctx context.Context, tx *gorm.DB, savepoint string, target Target, eventType enums.OutboxEventType, data any) {
	if e == nil || tx == nil {
		return
	}
	err := db.BestEffort(tx, savepoint, func(tx *gorm.DB) error {
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: target.AggregateType,
			AggregateID:   target.AggregateID,
			Source:        target.Source,
			Data:          data,
		})
	})
	if err != nil {
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"outbox_event_type": eventType,
			"aggregate_type":    target.AggregateType,
			"aggregate_id":      target.AggregateID.String(),
		})
		e.logg.Warn(e.logg.WithField(logCtx, "error", err.Error()), "outbound task not queued")
	}
}
