package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/enums"
)

// Payment is one settled or in-flight customer payment. Amounts are cents and
// satisfy Amount - FeeAmount - ApplicationFeeCents == NetAmount at creation.
// StripeID holds the charge id, StripePaymentIntentID the intent id; either
// one identifies the row.
type Payment struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrgID                 *uuid.UUID          `gorm:"column:org_id;type:uuid;index"`
	JobID                 *uuid.UUID          `gorm:"column:job_id;type:uuid"`
	InvoiceID             *uuid.UUID          `gorm:"column:invoice_id;type:uuid"`
	HomeownerID           *uuid.UUID          `gorm:"column:homeowner_id;type:uuid"`
	StripeID              *string             `gorm:"column:stripe_id;uniqueIndex"`
	StripePaymentIntentID *string             `gorm:"column:stripe_payment_intent_id;uniqueIndex"`
	Amount                int64               `gorm:"column:amount;not null"`
	FeeAmount             int64               `gorm:"column:fee_amount;not null;default:0"`
	ApplicationFeeCents   int64               `gorm:"column:application_fee_cents;not null;default:0"`
	NetAmount             int64               `gorm:"column:net_amount;not null"`
	Currency              string              `gorm:"column:currency;not null;default:'usd'"`
	Status                enums.PaymentStatus `gorm:"column:status;type:text;not null"`
	Captured              bool                `gorm:"column:captured;not null;default:false"`
	PaidAt                *time.Time          `gorm:"column:paid_at"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Invoice is a HomeBase invoice sent to a client. PaidAt is set iff the
// status is paid.
type Invoice struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrgID           uuid.UUID           `gorm:"column:org_id;type:uuid;not null;index"`
	ClientID        *uuid.UUID          `gorm:"column:client_id;type:uuid"`
	JobID           *uuid.UUID          `gorm:"column:job_id;type:uuid"`
	Amount          int64               `gorm:"column:amount;not null"`
	Currency        string              `gorm:"column:currency;not null;default:'usd'"`
	Status          enums.InvoiceStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	StripeInvoiceID *string             `gorm:"column:stripe_invoice_id;index"`
	StripeSessionID *string             `gorm:"column:stripe_session_id;index"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// Booking is a scheduled job; the table keeps its historical name.
type Booking struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrgID           uuid.UUID           `gorm:"column:org_id;type:uuid;not null;index"`
	ClientID        *uuid.UUID          `gorm:"column:client_id;type:uuid"`
	Title           string              `gorm:"column:title;not null;default:''"`
	Status          enums.BookingStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentCaptured bool                `gorm:"column:payment_captured;not null;default:false"`
	DepositPaid     bool                `gorm:"column:deposit_paid;not null;default:false"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Booking) TableName() string {
	return "jobs"
}

func (b *Booking) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// Dispute mirrors a Stripe dispute against one of our payments.
type Dispute struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	StripeDisputeID string              `gorm:"column:stripe_dispute_id;not null;uniqueIndex"`
	ChargeID        string              `gorm:"column:charge_id;not null;index"`
	PaymentIntentID *string             `gorm:"column:payment_intent_id"`
	PaymentID       *uuid.UUID          `gorm:"column:payment_id;type:uuid"`
	OrgID           *uuid.UUID          `gorm:"column:org_id;type:uuid"`
	Amount          int64               `gorm:"column:amount;not null"`
	Currency        string              `gorm:"column:currency;not null;default:'usd'"`
	Reason          string              `gorm:"column:reason;not null;default:''"`
	Status          enums.DisputeStatus `gorm:"column:status;type:text;not null"`
	EvidenceDueBy   *time.Time          `gorm:"column:evidence_due_by"`
	ResolvedAt      *time.Time          `gorm:"column:resolved_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *Dispute) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
