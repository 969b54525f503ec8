package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/logger"
	"github.com/homebase-app/homebase-backend/pkg/outbox"
	"github.com/homebase-app/homebase-backend/pkg/outbox/payloads"
)

const consumerName = "notification-worker"

// Dispatcher delivers decoded outbound tasks.
type Dispatcher interface {
	SendPush(ctx context.Context, n payloads.NotificationRequestedEvent) error
	RunWorkflow(ctx context.Context, w payloads.WorkflowTriggeredEvent) error
}

type decoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error)
}

type processedTracker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type ConsumerParams struct {
	Subscription receiver
	Decoders     decoder
	Dispatcher   Dispatcher
	Idempotency  processedTracker
	Logger       *logger.Logger
}

// Consumer drains the notification subscription and calls the hosted
// functions for each outbox envelope.
type Consumer struct {
	subscription receiver
	decoders     decoder
	dispatcher   Dispatcher
	idempotency  processedTracker
	logg         *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if params.Decoders == nil {
		return nil, fmt.Errorf("decoder registry required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: params.Subscription,
		decoders:     params.Decoders,
		dispatcher:   params.Dispatcher,
		idempotency:  params.Idempotency,
		logg:         params.Logger,
	}, nil
}

// Run blocks until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.Handle(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Handle processes one message and reports whether it should be acked.
// Malformed messages are acked so they do not loop forever.
func (c *Consumer) Handle(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}
	if envelope.Source != nil {
		logCtx = c.logg.WithEvent(logCtx, envelope.Source.StripeEventID, envelope.Source.StripeEventType)
	}
	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		return true
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, consumerName, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return true
	}

	if err := c.dispatch(ctx, payload); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			c.logg.Error(logCtx, "function rejected outbound task", err)
			return true
		}
		c.logg.Error(logCtx, "outbound task failed", err)
		if delErr := c.idempotency.Delete(ctx, consumerName, envelope.EventID); delErr != nil {
			c.logg.Error(logCtx, "failed to clear idempotency mark", delErr)
		}
		return false
	}
	c.logg.Info(logCtx, "outbound task delivered")
	return true
}

func (c *Consumer) dispatch(ctx context.Context, payload any) error {
	switch p := payload.(type) {
	case *payloads.NotificationRequestedEvent:
		return c.dispatcher.SendPush(ctx, *p)
	case *payloads.WorkflowTriggeredEvent:
		return c.dispatcher.RunWorkflow(ctx, *p)
	default:
		return fmt.Errorf("unsupported payload %T", payload)
	}
}
