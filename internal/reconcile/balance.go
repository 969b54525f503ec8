package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/internal/organizations"
	"github.com/homebase-app/homebase-backend/internal/settlement"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/metrics"
	stripeapi "github.com/homebase-app/homebase-backend/pkg/stripe"
)

const balanceCurrency = "usd"

// syncBalance refreshes each connected organization's account flags and
// balance snapshot, and records paid payouts in the window.
func (s *Service) syncBalance(ctx context.Context, opts Options, report *Report) error {
	orgs, err := s.orgs.ListConnected(ctx, opts.OrgID)
	if err != nil {
		return fmt.Errorf("list connected organizations: %w", err)
	}
	for i := range orgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		org := &orgs[i]
		if err := s.syncOrganization(s.logg.WithOrgID(ctx, org.ID.String()), org, report); err != nil {
			s.record(report, metrics.ItemFailed, fmt.Errorf("organization %s: %w", org.ID, err))
		}
	}
	return nil
}

func (s *Service) syncOrganization(ctx context.Context, org *models.Organization, report *Report) error {
	if org.StripeAccountID == nil || *org.StripeAccountID == "" {
		return nil
	}
	accountID := *org.StripeAccountID

	account, err := s.stripe.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if _, err := s.mutator.ApplyAccount(ctx, organizations.AccountState{
		AccountID:        accountID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	}); err != nil {
		return fmt.Errorf("apply account: %w", err)
	}

	balance, err := s.stripe.GetBalance(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	if err := s.orgs.RecordBalance(ctx, org.ID, organizations.Balance{
		AvailableCents: sumAmounts(balance.Available),
		PendingCents:   sumAmounts(balance.Pending),
		SyncedAt:       s.now(),
	}); err != nil {
		return fmt.Errorf("record balance: %w", err)
	}

	params := stripeapi.ListParams{
		Account:    accountID,
		CreatedGTE: report.Since,
		Status:     string(stripe.PayoutStatusPaid),
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.stripe.ListPayouts(ctx, params)
		if err != nil {
			return fmt.Errorf("list payouts: %w", err)
		}
		report.Pages++
		s.metrics.Page(report.Job)
		for _, payout := range page.Data {
			if payout == nil {
				continue
			}
			report.Scanned++
			outcome, err := s.applyPayout(ctx, org, payout)
			if err != nil {
				err = fmt.Errorf("payout %s: %w", payout.ID, err)
				outcome = metrics.ItemFailed
			}
			s.record(report, outcome, err)
		}
		if !page.HasMore || len(page.Data) == 0 {
			return nil
		}
		params.StartingAfter = page.Data[len(page.Data)-1].ID
	}
}

func (s *Service) applyPayout(ctx context.Context, org *models.Organization, payout *stripe.Payout) (string, error) {
	if payout.Status != "" && payout.Status != stripe.PayoutStatusPaid {
		return metrics.ItemSkipped, nil
	}
	orgID := org.ID
	in := settlement.PayoutInput{
		PayoutID:    payout.ID,
		AccountID:   *org.StripeAccountID,
		OrgID:       &orgID,
		AmountCents: payout.Amount,
		Currency:    string(payout.Currency),
		ArrivedAt:   unixTime(payout.ArrivalDate, payout.Created),
		Quiet:       true,
	}
	var written bool
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		written, err = s.mutator.WithTx(tx).ApplyPayout(ctx, in)
		return err
	})
	if err != nil {
		return "", err
	}
	if !written {
		return metrics.ItemSkipped, nil
	}
	return metrics.ItemApplied, nil
}

func sumAmounts(amounts []*stripe.BalanceAmount) int64 {
	var total int64
	for _, amount := range amounts {
		if amount != nil && strings.EqualFold(string(amount.Currency), balanceCurrency) {
			total += amount.Amount
		}
	}
	return total
}
