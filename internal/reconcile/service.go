// Package reconcile replays historical Stripe data through the same
// settlement paths the webhook uses, so missed or failed deliveries
// converge on the same payments and ledger rows.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/internal/organizations"
	"github.com/homebase-app/homebase-backend/internal/payments"
	"github.com/homebase-app/homebase-backend/internal/settlement"
	"github.com/homebase-app/homebase-backend/pkg/config"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/logger"
	"github.com/homebase-app/homebase-backend/pkg/metrics"
	stripeapi "github.com/homebase-app/homebase-backend/pkg/stripe"
)

// Job names, shared by the cron worker and the admin endpoint.
const (
	JobBackfillPayments = "backfill-payments"
	JobSyncTransactions = "sync-stripe-transactions"
	JobSyncBalance      = "sync-stripe-balance"
)

// Jobs lists every job name in a stable order.
func Jobs() []string {
	return []string{JobBackfillPayments, JobSyncTransactions, JobSyncBalance}
}

const (
	maxDaysBack     = 365
	maxReportErrors = 50
)

type stripeAPI interface {
	ListBalanceTransactions(ctx context.Context, p stripeapi.ListParams) (*stripe.BalanceTransactionList, error)
	ListPayouts(ctx context.Context, p stripeapi.ListParams) (*stripe.PayoutList, error)
	GetBalance(ctx context.Context, account string) (*stripe.Balance, error)
	GetAccount(ctx context.Context, accountID string) (*stripe.Account, error)
	GetCharge(ctx context.Context, chargeID string) (*stripe.Charge, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Params struct {
	Stripe            stripeAPI
	TransactionRunner txRunner
	Settlement        *settlement.Mutator
	Payments          *payments.Recorder
	Organizations     *organizations.Service
	Config            config.ReconcileConfig
	Metrics           *metrics.ReconcileMetrics
	Logger            *logger.Logger
}

type Service struct {
	stripe   stripeAPI
	txRunner txRunner
	mutator  *settlement.Mutator
	payments *payments.Recorder
	orgs     *organizations.Service
	cfg      config.ReconcileConfig
	metrics  *metrics.ReconcileMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params Params) (*Service, error) {
	switch {
	case params.Stripe == nil:
		return nil, fmt.Errorf("stripe client required")
	case params.TransactionRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Settlement == nil:
		return nil, fmt.Errorf("settlement mutator required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payments recorder required")
	case params.Organizations == nil:
		return nil, fmt.Errorf("organizations service required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		stripe:   params.Stripe,
		txRunner: params.TransactionRunner,
		mutator:  params.Settlement,
		payments: params.Payments,
		orgs:     params.Organizations,
		cfg:      params.Config,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Options narrow a run. Zero DaysBack uses the job's configured window.
type Options struct {
	OrgID    *uuid.UUID `json:"org_id,omitempty"`
	DaysBack int        `json:"days_back,omitempty"`
}

// Report summarizes one run. Failed items are listed in Errors, capped.
type Report struct {
	Job        string    `json:"job"`
	Since      time.Time `json:"since"`
	Pages      int       `json:"pages"`
	Scanned    int       `json:"scanned"`
	Applied    int       `json:"applied"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Errors     []string  `json:"errors,omitempty"`
	DurationMS int64     `json:"duration_ms"`

	errs error
}

// Err combines every item failure of the run.
func (r *Report) Err() error {
	return r.errs
}

func (r *Report) fail(err error) {
	r.Failed++
	r.errs = multierr.Append(r.errs, err)
	if len(r.Errors) < maxReportErrors {
		r.Errors = append(r.Errors, err.Error())
	}
}

// Run executes job within the configured wall-clock limit. The returned
// error combines a fatal listing error, if any, with every item failure;
// the report is filled in either way.
func (s *Service) Run(ctx context.Context, job string, opts Options) (Report, error) {
	if opts.DaysBack < 0 || opts.DaysBack > maxDaysBack {
		return Report{Job: job}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("days_back must be within 1..%d", maxDaysBack))
	}
	var run func(context.Context, Options, *Report) error
	switch job {
	case JobBackfillPayments:
		run = s.backfillPayments
	case JobSyncTransactions:
		run = s.syncTransactions
	case JobSyncBalance:
		run = s.syncBalance
	default:
		return Report{Job: job}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown reconcile job %q", job))
	}

	if opts.DaysBack == 0 {
		opts.DaysBack = s.defaultDaysBack(job)
	}
	if s.cfg.MaxRun > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MaxRun)
		defer cancel()
	}

	started := time.Now()
	report := Report{Job: job, Since: s.now().AddDate(0, 0, -opts.DaysBack)}
	logCtx := s.logg.WithJob(ctx, job)
	if opts.OrgID != nil {
		logCtx = s.logg.WithOrgID(logCtx, opts.OrgID.String())
	}

	fatal := run(logCtx, opts, &report)
	report.DurationMS = time.Since(started).Milliseconds()

	summary := s.logg.WithFields(logCtx, map[string]any{
		"pages":       report.Pages,
		"scanned":     report.Scanned,
		"applied":     report.Applied,
		"skipped":     report.Skipped,
		"failed":      report.Failed,
		"duration_ms": report.DurationMS,
	})
	if fatal != nil {
		s.logg.Error(summary, "reconcile run aborted", fatal)
		return report, multierr.Append(pkgerrors.Wrap(pkgerrors.CodeDependency, fatal, job+" aborted"), report.errs)
	}
	s.logg.Info(summary, "reconcile run complete")
	return report, report.errs
}

func (s *Service) defaultDaysBack(job string) int {
	var days int
	switch job {
	case JobBackfillPayments:
		days = s.cfg.PaymentsDaysBack
		if days <= 0 {
			days = 90
		}
	case JobSyncTransactions:
		days = s.cfg.TransactionsDaysBack
		if days <= 0 {
			days = 7
		}
	case JobSyncBalance:
		days = s.cfg.BalanceDaysBack
		if days <= 0 {
			days = 30
		}
	}
	return days
}

func (s *Service) record(report *Report, outcome string, err error) {
	switch outcome {
	case metrics.ItemApplied:
		report.Applied++
	case metrics.ItemSkipped:
		report.Skipped++
	case metrics.ItemFailed:
		report.fail(err)
	}
	s.metrics.Item(report.Job, outcome)
}

// eachBalanceTransaction pages through balance transactions until has_more
// is false. fn failures are recorded on the report and never stop paging.
func (s *Service) eachBalanceTransaction(ctx context.Context, params stripeapi.ListParams, report *Report, fn func(context.Context, *stripe.BalanceTransaction) (string, error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.stripe.ListBalanceTransactions(ctx, params)
		if err != nil {
			return err
		}
		report.Pages++
		s.metrics.Page(report.Job)
		for _, txn := range page.Data {
			if txn == nil {
				continue
			}
			report.Scanned++
			outcome, err := fn(ctx, txn)
			if err != nil {
				err = fmt.Errorf("balance transaction %s: %w", txn.ID, err)
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
