package cron

import (
	"context"
	"fmt"

	"github.com/homebase-app/homebase-backend/internal/reconcile"
	"github.com/homebase-app/homebase-backend/pkg/config"
)

type reconcileRunner interface {
	Run(ctx context.Context, job string, opts reconcile.Options) (reconcile.Report, error)
}

// ReconcileJobs builds one scheduled job per reconcile job using the
// configured windows and schedules.
func ReconcileJobs(runner reconcileRunner, cfg config.ReconcileConfig) ([]Job, error) {
	if runner == nil {
		return nil, fmt.Errorf("reconcile runner required")
	}
	schedules := map[string]string{
		reconcile.JobBackfillPayments: cfg.PaymentsSchedule,
		reconcile.JobSyncTransactions: cfg.TransactionsSchedule,
		reconcile.JobSyncBalance:      cfg.BalanceSchedule,
	}
	jobs := make([]Job, 0, len(schedules))
	for _, name := range reconcile.Jobs() {
		schedule := schedules[name]
		if schedule == "" {
			continue
		}
		jobs = append(jobs, &reconcileJob{name: name, schedule: schedule, runner: runner})
	}
	return jobs, nil
}

type reconcileJob struct {
	name     string
	schedule string
	runner   reconcileRunner
}

func (j *reconcileJob) Name() string     { return j.name }
func (j *reconcileJob) Schedule() string { return j.schedule }

// Run executes one scheduled pass. Item failures fail the job so they show
// up in the failure counter; the report has already been logged.
func (j *reconcileJob) Run(ctx context.Context) error {
	report, err := j.runner.Run(ctx, j.name, reconcile.Options{})
	if err != nil {
		return fmt.Errorf("%s: %d of %d items failed: %w", j.name, report.Failed, report.Scanned, err)
	}
	return nil
}
