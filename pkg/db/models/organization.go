package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/enums"
)

// Organization is a provider business. TransactionFeePct is an admin override
// of the plan's fee rate; when null the plan table applies.
type Organization struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Name                 string              `gorm:"column:name;not null;default:''"`
	OwnerID              *uuid.UUID          `gorm:"column:owner_id;type:uuid"`
	Plan                 enums.Plan          `gorm:"column:plan;type:text;not null;default:'free'"`
	TransactionFeePct    decimal.NullDecimal `gorm:"column:transaction_fee_pct;type:numeric(6,4)"`
	TeamLimit            int                 `gorm:"column:team_limit;not null;default:1"`
	StripeAccountID      *string             `gorm:"column:stripe_account_id;index"`
	PaymentsReady        bool                `gorm:"column:payments_ready;not null;default:false"`
	ChargesEnabled       bool                `gorm:"column:charges_enabled;not null;default:false"`
	PayoutsEnabled       bool                `gorm:"column:payouts_enabled;not null;default:false"`
	StripeAvailableCents int64               `gorm:"column:stripe_available_cents;not null;default:0"`
	StripePendingCents   int64               `gorm:"column:stripe_pending_cents;not null;default:0"`
	BalanceSyncedAt      *time.Time          `gorm:"column:balance_synced_at"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Organization) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// Profile is a HomeBase user. Plan mirrors the owning organization's plan for
// clients that read it from the profile.
type Profile struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrgID     *uuid.UUID `gorm:"column:org_id;type:uuid;index"`
	Email     string     `gorm:"column:email;not null;default:''"`
	Plan      enums.Plan `gorm:"column:plan;type:text;not null;default:'free'"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Profile) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProviderSubscription is the local copy of a provider's Stripe subscription.
// ProviderID is the organization id.
type ProviderSubscription struct {
	ID                   uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	ProviderID           uuid.UUID                `gorm:"column:provider_id;type:uuid;not null;index"`
	UserID               *uuid.UUID               `gorm:"column:user_id;type:uuid"`
	Plan                 enums.Plan               `gorm:"column:plan;type:text;not null"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:text;not null"`
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;not null;uniqueIndex"`
	StripeCustomerID     *string                  `gorm:"column:stripe_customer_id"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *ProviderSubscription) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
