// Package payments records customer payments and moves them through the
// payment status lattice. The webhook handlers and the reconciliation jobs
// share Recorder so both paths converge on the same rows.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/internal/fees"
	"github.com/homebase-app/homebase-backend/internal/ledger"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

// SettledInput describes a captured payment as seen on a Stripe object.
type SettledInput struct {
	ChargeID        string
	PaymentIntentID string
	OrgID           *uuid.UUID
	JobID           *uuid.UUID
	InvoiceID       *uuid.UUID
	HomeownerID     *uuid.UUID
	AmountCents     int64
	StripeFeeCents  int64
	// ApplicationFeeCents is the fee stamped on the Stripe object when it was
	// created. Nil means no snapshot exists and the fee is resolved now.
	ApplicationFeeCents *int64
	Currency            string
	PaidAt              time.Time
	Source              string
}

// StripeRef is the key shared by the payment's ledger pair.
func (in SettledInput) StripeRef() string {
	if in.PaymentIntentID != "" {
		return in.PaymentIntentID
	}
	return in.ChargeID
}

// RecordResult reports what RecordSettled changed.
type RecordResult struct {
	Payment    *models.Payment
	Created    bool
	Settlement ledger.SettlementResult
}

// PendingInput describes a payment intent that has not settled yet.
type PendingInput struct {
	PaymentIntentID string
	OrgID           *uuid.UUID
	JobID           *uuid.UUID
	InvoiceID       *uuid.UUID
	HomeownerID     *uuid.UUID
	AmountCents     int64
	ApplicationFee  int64
	Currency        string
}

// Lookup identifies a payment by either Stripe id.
type Lookup struct {
	ChargeID        string
	PaymentIntentID string
}

type Recorder struct {
	repo     Repository
	ledger   *ledger.Writer
	resolver *fees.Resolver
	logg     *logger.Logger
}

type RecorderParams struct {
	Repo     Repository
	Ledger   *ledger.Writer
	Resolver *fees.Resolver
	Logger   *logger.Logger
}

func NewRecorder(params RecorderParams) (*Recorder, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger writer required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("fee resolver required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Recorder{
		repo:     params.Repo,
		ledger:   params.Ledger,
		resolver: params.Resolver,
		logg:     params.Logger,
	}, nil
}

// WithTx returns a recorder whose reads and writes, ledger included, join tx.
func (r *Recorder) WithTx(tx *gorm.DB) *Recorder {
	return &Recorder{
		repo:     r.repo.WithTx(tx),
		ledger:   r.ledger.WithTx(tx),
		resolver: r.resolver.WithTx(tx),
		logg:     r.logg,
	}
}

// RecordSettled makes sure a paid payments row and its fee/transfer ledger
// pair exist. Calling it again for the same Stripe objects changes nothing.
func (r *Recorder) RecordSettled(ctx context.Context, in SettledInput) (RecordResult, error) {
	if in.StripeRef() == "" {
		return RecordResult{}, fmt.Errorf("charge id or payment intent id required")
	}
	if in.AmountCents <= 0 {
		return RecordResult{}, fmt.Errorf("settled amount must be positive, got %d", in.AmountCents)
	}
	if in.PaidAt.IsZero() {
		in.PaidAt = time.Now().UTC()
	}

	appFee, err := r.applicationFee(ctx, in)
	if err != nil {
		return RecordResult{}, err
	}

	existing, err := r.repo.FindByStripeRefs(ctx, in.ChargeID, in.PaymentIntentID)
	if err != nil {
		return RecordResult{}, fmt.Errorf("find payment %s: %w", in.StripeRef(), err)
	}

	result := RecordResult{}
	if existing == nil {
		payment := &models.Payment{
			OrgID:                 in.OrgID,
			JobID:                 in.JobID,
			InvoiceID:             in.InvoiceID,
			HomeownerID:           in.HomeownerID,
			StripeID:              optional(in.ChargeID),
			StripePaymentIntentID: optional(in.PaymentIntentID),
			Amount:                in.AmountCents,
			FeeAmount:             in.StripeFeeCents,
			ApplicationFeeCents:   appFee,
			NetAmount:             in.AmountCents - in.StripeFeeCents - appFee,
			Currency:              currencyOrDefault(in.Currency),
			Status:                enums.PaymentStatusPaid,
			Captured:              true,
			PaidAt:                &in.PaidAt,
		}
		created, err := r.repo.Create(ctx, payment)
		if err != nil {
			return RecordResult{}, fmt.Errorf("create payment %s: %w", in.StripeRef(), err)
		}
		result.Created = created
		if created {
			result.Payment = payment
		} else if result.Payment, err = r.repo.FindByStripeRefs(ctx, in.ChargeID, in.PaymentIntentID); err != nil {
			return RecordResult{}, err
		}
	} else {
		if err := r.settleExisting(ctx, existing, in, appFee); err != nil {
			return RecordResult{}, err
		}
		result.Payment = existing
	}

	settlement, err := r.ledger.RecordSettlement(ctx, ledger.SettlementInput{
		StripeRef:   in.StripeRef(),
		OccurredAt:  in.PaidAt,
		GrossCents:  in.AmountCents,
		FeeCents:    appFee,
		Currency:    in.Currency,
		ProviderID:  in.OrgID,
		HomeownerID: in.HomeownerID,
		JobID:       in.JobID,
		Metadata: map[string]any{
			"charge_id":         in.ChargeID,
			"payment_intent_id": in.PaymentIntentID,
			"source":            in.Source,
		},
	})
	if err != nil {
		return RecordResult{}, err
	}
	result.Settlement = settlement
	return result, nil
}

func (r *Recorder) settleExisting(ctx context.Context, existing *models.Payment, in SettledInput, appFee int64) error {
	fields := map[string]any{}
	if existing.StripeID == nil && in.ChargeID != "" {
		fields["stripe_id"] = in.ChargeID
	}
	if existing.StripePaymentIntentID == nil && in.PaymentIntentID != "" {
		fields["stripe_payment_intent_id"] = in.PaymentIntentID
	}
	if existing.Status != enums.PaymentStatusPaid && existing.Status.CanTransition(enums.PaymentStatusPaid) {
		fields["status"] = enums.PaymentStatusPaid
		fields["captured"] = true
		fields["paid_at"] = in.PaidAt
		fields["amount"] = in.AmountCents
		fields["fee_amount"] = in.StripeFeeCents
		fields["application_fee_cents"] = appFee
		fields["net_amount"] = in.AmountCents - in.StripeFeeCents - appFee
		existing.Status = enums.PaymentStatusPaid
		existing.Captured = true
		existing.PaidAt = &in.PaidAt
	} else if existing.Status != enums.PaymentStatusPaid {
		logCtx := r.logg.WithFields(ctx, map[string]any{"payment_id": existing.ID.String(), "status": existing.Status})
		r.logg.Warn(logCtx, "payment not moved to paid from current status")
	}
	if len(fields) == 0 {
		return nil
	}
	if err := r.repo.Update(ctx, existing.ID, fields); err != nil {
		return fmt.Errorf("update payment %s: %w", existing.ID, err)
	}
	return nil
}

func (r *Recorder) applicationFee(ctx context.Context, in SettledInput) (int64, error) {
	if in.ApplicationFeeCents != nil {
		fee := *in.ApplicationFeeCents
		if fee < 0 || fee > in.AmountCents {
			return 0, fmt.Errorf("application fee %d outside [0, %d]", fee, in.AmountCents)
		}
		return fee, nil
	}
	if in.OrgID == nil {
		return 0, nil
	}
	rate, err := r.resolver.ResolveRate(ctx, *in.OrgID)
	if err != nil {
		return 0, err
	}
	fee, _ := fees.Split(in.AmountCents, rate.Value)
	return fee, nil
}

// UpsertPending creates a pending payment for an intent that has no row yet.
func (r *Recorder) UpsertPending(ctx context.Context, in PendingInput) (*models.Payment, bool, error) {
	if in.PaymentIntentID == "" {
		return nil, false, fmt.Errorf("payment intent id required")
	}
	existing, err := r.repo.FindByStripeRefs(ctx, "", in.PaymentIntentID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	payment := &models.Payment{
		OrgID:                 in.OrgID,
		JobID:                 in.JobID,
		InvoiceID:             in.InvoiceID,
		HomeownerID:           in.HomeownerID,
		StripePaymentIntentID: optional(in.PaymentIntentID),
		Amount:                in.AmountCents,
		ApplicationFeeCents:   in.ApplicationFee,
		NetAmount:             in.AmountCents - in.ApplicationFee,
		Currency:              currencyOrDefault(in.Currency),
		Status:                enums.PaymentStatusPending,
	}
	created, err := r.repo.Create(ctx, payment)
	if err != nil {
		return nil, false, fmt.Errorf("create pending payment %s: %w", in.PaymentIntentID, err)
	}
	return payment, created, nil
}

// Transition moves the identified payment to next when the lattice allows it.
// It returns the payment (nil when none matches) and whether it changed.
func (r *Recorder) Transition(ctx context.Context, lookup Lookup, next enums.PaymentStatus) (*models.Payment, bool, error) {
	payment, err := r.repo.FindByStripeRefs(ctx, lookup.ChargeID, lookup.PaymentIntentID)
	if err != nil {
		return nil, false, err
	}
	if payment == nil {
		return nil, false, nil
	}
	if payment.Status == next {
		return payment, false, nil
	}
	if !payment.Status.CanTransition(next) {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"payment_id": payment.ID.String(),
			"from":       payment.Status,
			"to":         next,
		})
		r.logg.Warn(logCtx, "skipping disallowed payment transition")
		return payment, false, nil
	}
	if err := r.repo.Update(ctx, payment.ID, map[string]any{"status": next}); err != nil {
		return nil, false, fmt.Errorf("transition payment %s: %w", payment.ID, err)
	}
	payment.Status = next
	return payment, true, nil
}

// Find returns the payment for lookup, or nil.
func (r *Recorder) Find(ctx context.Context, lookup Lookup) (*models.Payment, error) {
	return r.repo.FindByStripeRefs(ctx, lookup.ChargeID, lookup.PaymentIntentID)
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return "usd"
	}
	return currency
}
