// Package fees resolves the platform fee rate charged on a provider's
// payments and the plan limits that come with a subscription tier.
package fees

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/enums"
)

// RateSource records which precedence level produced a rate.
type RateSource string

const (
	RateSourceOverride RateSource = "override"
	RateSourcePlan     RateSource = "plan"
	RateSourceDefault  RateSource = "default"
)

// Rate is a resolved fee fraction, e.g. 0.025 for 2.5%.
type Rate struct {
	Value  decimal.Decimal
	Source RateSource
	Plan   enums.Plan
}

type Resolver struct {
	repo        Repository
	plans       PlanTable
	defaultRate decimal.Decimal
}

func NewResolver(repo Repository, plans PlanTable, defaultRate decimal.Decimal) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("fees repository required")
	}
	if plans == nil {
		plans = DefaultPlanTable()
	}
	return &Resolver{repo: repo, plans: plans, defaultRate: defaultRate}, nil
}

// WithTx returns a resolver that reads through tx.
func (r *Resolver) WithTx(tx *gorm.DB) *Resolver {
	clone := *r
	clone.repo = r.repo.WithTx(tx)
	return &clone
}

// Plans exposes the plan table the resolver was built with.
func (r *Resolver) Plans() PlanTable {
	return r.plans
}

// ResolveRate applies the precedence: the organization's explicit override,
// then the plan of an active or trialing subscription, then the default.
func (r *Resolver) ResolveRate(ctx context.Context, providerID uuid.UUID) (Rate, error) {
	org, err := r.repo.FindOrganization(ctx, providerID)
	if err != nil {
		return Rate{}, fmt.Errorf("load organization %s: %w", providerID, err)
	}
	if org != nil && org.TransactionFeePct.Valid {
		return Rate{Value: org.TransactionFeePct.Decimal, Source: RateSourceOverride, Plan: org.Plan}, nil
	}

	sub, err := r.repo.FindActiveSubscription(ctx, providerID)
	if err != nil {
		return Rate{}, fmt.Errorf("load subscription for %s: %w", providerID, err)
	}
	if sub != nil {
		if cfg, ok := r.plans.Lookup(sub.Plan); ok {
			return Rate{Value: cfg.FeeRate, Source: RateSourcePlan, Plan: sub.Plan}, nil
		}
	}

	return Rate{Value: r.defaultRate, Source: RateSourceDefault}, nil
}

// PlanConfig returns the limits and fee rate for plan. Unknown plans fall back
// to the free tier.
func (r *Resolver) PlanConfig(plan enums.Plan) PlanConfig {
	if cfg, ok := r.plans.Lookup(plan); ok {
		return cfg
	}
	return r.plans[enums.PlanFree]
}

// ApplicationFeeCents is amount*rate rounded half-up to whole cents.
func ApplicationFeeCents(amountCents int64, rate decimal.Decimal) int64 {
	if amountCents <= 0 || rate.IsNegative() {
		return 0
	}
	return decimal.NewFromInt(amountCents).Mul(rate).Round(0).IntPart()
}

// Split divides gross into the platform fee and the provider transfer so
// that fee + transfer == gross.
func Split(grossCents int64, rate decimal.Decimal) (feeCents, transferCents int64) {
	feeCents = ApplicationFeeCents(grossCents, rate)
	if feeCents > grossCents {
		feeCents = grossCents
	}
	return feeCents, grossCents - feeCents
}
