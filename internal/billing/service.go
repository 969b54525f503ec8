// Package billing tracks provider subscriptions and applies the plan they
// grant to the provider's organization.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/internal/fees"
	"github.com/homebase-app/homebase-backend/internal/organizations"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

// SubscriptionState is a subscription as reported by Stripe. OrgID, UserID
// and Plan come from the metadata written when the checkout was created and
// may be empty on events for subscriptions created elsewhere.
type SubscriptionState struct {
	StripeSubscriptionID string
	StripeCustomerID     string
	OrgID                *uuid.UUID
	UserID               *uuid.UUID
	Plan                 enums.Plan
	Status               enums.SubscriptionStatus
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
	Deleted              bool
	// EventAt is when Stripe created the event carrying this state.
	EventAt time.Time
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo          Repository
	Organizations *organizations.Service
	Resolver      *fees.Resolver
	Logger        *logger.Logger
}

// Service orchestrates subscription lifecycle changes.
type Service struct {
	repo     Repository
	orgs     *organizations.Service
	resolver *fees.Resolver
	logg     *logger.Logger
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Organizations == nil {
		return nil, errors.New("organizations service is required")
	}
	if params.Resolver == nil {
		return nil, errors.New("fee resolver is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{repo: params.Repo, orgs: params.Organizations, resolver: params.Resolver, logg: params.Logger}, nil
}

func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{
		repo:     s.repo.WithTx(tx),
		orgs:     s.orgs.WithTx(tx),
		resolver: s.resolver.WithTx(tx),
		logg:     s.logg,
	}
}

// Activate records a subscription started through checkout and applies its
// plan to the organization.
func (s *Service) Activate(ctx context.Context, state SubscriptionState) (*models.ProviderSubscription, error) {
	if state.StripeSubscriptionID == "" {
		return nil, errors.New("stripe subscription id is required")
	}
	if state.OrgID == nil {
		return nil, errors.New("org id is required to activate a subscription")
	}
	if !state.Plan.IsValid() {
		return nil, fmt.Errorf("invalid plan %q", state.Plan)
	}
	if state.Status == "" {
		state.Status = enums.SubscriptionStatusActive
	}

	existing, err := s.repo.FindByStripeID(ctx, state.StripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription %s: %w", state.StripeSubscriptionID, err)
	}
	if s.staleAfterCancel(ctx, existing, state) {
		return existing, nil
	}

	sub := &models.ProviderSubscription{
		ProviderID:           *state.OrgID,
		UserID:               state.UserID,
		Plan:                 state.Plan,
		Status:               state.Status,
		StripeSubscriptionID: state.StripeSubscriptionID,
		StripeCustomerID:     optional(state.StripeCustomerID),
		CurrentPeriodEnd:     state.CurrentPeriodEnd,
		CancelAtPeriodEnd:    state.CancelAtPeriodEnd,
	}
	if err := s.repo.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("upsert subscription %s: %w", state.StripeSubscriptionID, err)
	}

	if err := s.applyFor(ctx, *state.OrgID, state.UserID, state.Plan, state.Status); err != nil {
		return nil, err
	}
	return sub, nil
}

// Sync applies a subscription update or deletion. Unknown subscriptions with
// enough metadata are created; others are logged and ignored.
func (s *Service) Sync(ctx context.Context, state SubscriptionState) (*models.ProviderSubscription, error) {
	if state.Deleted {
		state.Status = enums.SubscriptionStatusCanceled
	}

	existing, err := s.repo.FindByStripeID(ctx, state.StripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription %s: %w", state.StripeSubscriptionID, err)
	}
	if existing == nil {
		if state.OrgID == nil || !state.Plan.IsValid() {
			s.logg.Warn(s.logg.WithField(ctx, "stripe_subscription_id", state.StripeSubscriptionID), "unknown subscription without org metadata")
			return nil, nil
		}
		return s.Activate(ctx, state)
	}
	if s.staleAfterCancel(ctx, existing, state) {
		return existing, nil
	}

	plan := existing.Plan
	if state.Plan.IsValid() {
		plan = state.Plan
	}
	fields := map[string]any{
		"status":               state.Status,
		"plan":                 plan,
		"cancel_at_period_end": state.CancelAtPeriodEnd,
	}
	if state.CurrentPeriodEnd != nil {
		fields["current_period_end"] = *state.CurrentPeriodEnd
	}
	if state.Status.Terminal() && existing.CanceledAt == nil {
		canceledAt := state.EventAt
		if canceledAt.IsZero() {
			canceledAt = time.Now().UTC()
		}
		fields["canceled_at"] = canceledAt
		existing.CanceledAt = &canceledAt
	}
	if _, err := s.repo.UpdateByStripeID(ctx, state.StripeSubscriptionID, fields); err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", state.StripeSubscriptionID, err)
	}
	existing.Status = state.Status
	existing.Plan = plan
	existing.CancelAtPeriodEnd = state.CancelAtPeriodEnd

	if err := s.applyFor(ctx, existing.ProviderID, existing.UserID, plan, state.Status); err != nil {
		return nil, err
	}
	return existing, nil
}

// MarkPastDue flags a subscription whose renewal invoice failed. The plan is
// kept until Stripe ends the subscription.
func (s *Service) MarkPastDue(ctx context.Context, stripeSubscriptionID string) (*models.ProviderSubscription, error) {
	existing, err := s.repo.FindByStripeID(ctx, stripeSubscriptionID)
	if err != nil || existing == nil {
		return existing, err
	}
	if _, err := s.repo.UpdateByStripeID(ctx, stripeSubscriptionID, map[string]any{"status": enums.SubscriptionStatusPastDue}); err != nil {
		return nil, fmt.Errorf("mark subscription %s past due: %w", stripeSubscriptionID, err)
	}
	existing.Status = enums.SubscriptionStatusPastDue
	return existing, nil
}

// FindByStripeID returns the local subscription row, or nil.
func (s *Service) FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.ProviderSubscription, error) {
	return s.repo.FindByStripeID(ctx, stripeSubscriptionID)
}

// staleAfterCancel reports whether state would revive a subscription that
// already ended. Only events newer than the cancellation may change it.
func (s *Service) staleAfterCancel(ctx context.Context, existing *models.ProviderSubscription, state SubscriptionState) bool {
	if existing == nil || !existing.Status.Terminal() || state.Status.Terminal() {
		return false
	}
	if existing.CanceledAt != nil && !state.EventAt.IsZero() && state.EventAt.After(*existing.CanceledAt) {
		return false
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"stripe_subscription_id": state.StripeSubscriptionID,
		"stored_status":          existing.Status,
		"incoming_status":        state.Status,
	})
	s.logg.Info(logCtx, "ignoring subscription update older than cancellation")
	return true
}

// applyFor grants plan while the status entitles it and downgrades to free
// once the subscription has ended. Other statuses leave the organization
// as is.
func (s *Service) applyFor(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, plan enums.Plan, status enums.SubscriptionStatus) error {
	target := plan
	switch {
	case status.GrantsPlan():
	case status.Terminal():
		target = enums.PlanFree
	default:
		return nil
	}
	if _, err := s.orgs.ApplyPlan(ctx, orgID, userID, target, s.resolver.PlanConfig(target)); err != nil {
		return err
	}
	return nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
