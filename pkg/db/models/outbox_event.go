package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/enums"
)

// OutboxEvent is an outbound task written in the same transaction as the
// state change that caused it. FailedAt marks rows the publisher gave up on.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       datatypes.JSON            `gorm:"column:payload;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	FailedAt      *time.Time                `gorm:"column:failed_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// All lists every model for AutoMigrate in tests and dev tooling.
func All() []any {
	return []any{
		&Organization{},
		&Profile{},
		&ProviderSubscription{},
		&Payment{},
		&Invoice{},
		&Booking{},
		&Dispute{},
		&LedgerEntry{},
		&StripeEvent{},
		&OutboxEvent{},
	}
}
