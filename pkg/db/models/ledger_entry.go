package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/enums"
)

// LedgerEntry is an append-only money movement. (StripeRef, Type) is unique;
// entries without a Stripe reference are never deduplicated.
type LedgerEntry struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OccurredAt  time.Time             `gorm:"column:occurred_at;not null"`
	Type        enums.LedgerEntryType `gorm:"column:type;type:text;not null;uniqueIndex:ux_ledger_entries_ref_type,priority:2"`
	Direction   enums.LedgerDirection `gorm:"column:direction;type:text;not null"`
	AmountCents int64                 `gorm:"column:amount_cents;not null"`
	Currency    string                `gorm:"column:currency;not null;default:'usd'"`
	StripeRef   *string               `gorm:"column:stripe_ref;uniqueIndex:ux_ledger_entries_ref_type,priority:1"`
	Party       enums.LedgerParty     `gorm:"column:party;type:text;not null"`
	ProviderID  *uuid.UUID            `gorm:"column:provider_id;type:uuid;index"`
	HomeownerID *uuid.UUID            `gorm:"column:homeowner_id;type:uuid"`
	JobID       *uuid.UUID            `gorm:"column:job_id;type:uuid"`
	Metadata    datatypes.JSON        `gorm:"column:metadata"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
