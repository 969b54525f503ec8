package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/homebase-app/homebase-backend/internal/reconcile"
	"github.com/homebase-app/homebase-backend/pkg/config"
)

type fakeRunner struct {
	jobs []string
	err  error
}

func (f *fakeRunner) Run(_ context.Context, job string, opts reconcile.Options) (reconcile.Report, error) {
	f.jobs = append(f.jobs, job)
	if opts.OrgID != nil || opts.DaysBack != 0 {
		return reconcile.Report{}, errors.New("scheduled runs use configured windows")
	}
	return reconcile.Report{Job: job, Scanned: 4, Failed: 1}, f.err
}

func TestReconcileJobsFollowConfig(t *testing.T) {
	runner := &fakeRunner{}
	jobs, err := ReconcileJobs(runner, config.ReconcileConfig{
		PaymentsSchedule:     "0 3 * * *",
		TransactionsSchedule: "*/30 * * * *",
	})
	if err != nil {
		t.Fatalf("ReconcileJobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected unscheduled balance sync to be omitted, got %d jobs", len(jobs))
	}
	if jobs[0].Name() != reconcile.JobBackfillPayments || jobs[0].Schedule() != "0 3 * * *" {
		t.Fatalf("unexpected first job %s %q", jobs[0].Name(), jobs[0].Schedule())
	}
	if err := jobs[1].Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(runner.jobs) != 1 || runner.jobs[0] != reconcile.JobSyncTransactions {
		t.Fatalf("unexpected runs %v", runner.jobs)
	}

	runner.err = errors.New("charge ch_1 failed")
	if err := jobs[0].Run(context.Background()); err == nil {
		t.Fatal("expected item failures to fail the job")
	}

	if _, err := ReconcileJobs(nil, config.ReconcileConfig{}); err == nil {
		t.Fatal("expected runner required")
	}
}
