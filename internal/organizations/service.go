// Package organizations keeps provider organizations in step with their
// Stripe Connect account and subscription plan.
package organizations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/internal/fees"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

// AccountState is the subset of a Connect account the platform mirrors.
type AccountState struct {
	AccountID        string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// PaymentsReady is true once the account can both take charges and pay out
// and onboarding details are complete.
func (a AccountState) PaymentsReady() bool {
	return a.ChargesEnabled && a.PayoutsEnabled && a.DetailsSubmitted
}

// Balance is a snapshot of a connected account's Stripe balance.
type Balance struct {
	AvailableCents int64
	PendingCents   int64
	SyncedAt       time.Time
}

type Service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("organizations repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg}, nil
}

func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{repo: s.repo.WithTx(tx), logg: s.logg}
}

func (s *Service) Find(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) FindByStripeAccount(ctx context.Context, accountID string) (*models.Organization, error) {
	return s.repo.FindByStripeAccount(ctx, accountID)
}

func (s *Service) ListConnected(ctx context.Context, orgID *uuid.UUID) ([]models.Organization, error) {
	return s.repo.ListConnected(ctx, orgID)
}

// SyncAccount copies the Connect account flags onto the owning organization.
// An account with no organization is logged and ignored.
func (s *Service) SyncAccount(ctx context.Context, state AccountState) (*models.Organization, error) {
	org, err := s.repo.FindByStripeAccount(ctx, state.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load organization for %s: %w", state.AccountID, err)
	}
	if org == nil {
		s.logg.Warn(s.logg.WithField(ctx, "stripe_account_id", state.AccountID), "no organization for connect account")
		return nil, nil
	}

	fields := map[string]any{
		"charges_enabled": state.ChargesEnabled,
		"payouts_enabled": state.PayoutsEnabled,
		"payments_ready":  state.PaymentsReady(),
	}
	if err := s.repo.Update(ctx, org.ID, fields); err != nil {
		return nil, fmt.Errorf("sync account %s: %w", state.AccountID, err)
	}
	org.ChargesEnabled = state.ChargesEnabled
	org.PayoutsEnabled = state.PayoutsEnabled
	org.PaymentsReady = state.PaymentsReady()
	return org, nil
}

// ApplyPlan writes the plan, its team limit and its fee rate to the
// organization and mirrors the plan onto member profiles. Callers run it in
// the same transaction as the subscription row change.
func (s *Service) ApplyPlan(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, plan enums.Plan, cfg fees.PlanConfig) (*models.Organization, error) {
	org, err := s.repo.FindByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization %s: %w", orgID, err)
	}
	if org == nil {
		s.logg.Warn(s.logg.WithOrgID(ctx, orgID.String()), "organization not found for plan change")
		return nil, nil
	}

	if err := s.repo.Update(ctx, orgID, map[string]any{
		"plan":                plan,
		"team_limit":          cfg.TeamLimit,
		"transaction_fee_pct": cfg.FeeRate,
	}); err != nil {
		return nil, fmt.Errorf("apply plan %s to %s: %w", plan, orgID, err)
	}
	if _, err := s.repo.UpdateProfilePlans(ctx, orgID, userID, map[string]any{"plan": plan}); err != nil {
		return nil, fmt.Errorf("mirror plan onto profiles for %s: %w", orgID, err)
	}

	org.Plan = plan
	org.TeamLimit = cfg.TeamLimit
	org.TransactionFeePct.Decimal = cfg.FeeRate
	org.TransactionFeePct.Valid = true
	return org, nil
}

// RecordBalance stores the connected account's latest balance snapshot.
func (s *Service) RecordBalance(ctx context.Context, orgID uuid.UUID, balance Balance) error {
	if balance.SyncedAt.IsZero() {
		balance.SyncedAt = time.Now().UTC()
	}
	return s.repo.Update(ctx, orgID, map[string]any{
		"stripe_available_cents": balance.AvailableCents,
		"stripe_pending_cents":   balance.PendingCents,
		"balance_synced_at":      balance.SyncedAt,
	})
}
