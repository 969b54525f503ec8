package admin

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/homebase-app/homebase-backend/api/responses"
	"github.com/homebase-app/homebase-backend/api/validators"
	"github.com/homebase-app/homebase-backend/internal/reconcile"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

type ReconcileRunner interface {
	Run(ctx context.Context, job string, opts reconcile.Options) (reconcile.Report, error)
}

type reconcileRequest struct {
	OrgID    *uuid.UUID `json:"org_id"`
	DaysBack int        `json:"days_back" validate:"omitempty,min=1,max=365"`
}

type reconcileResponse struct {
	OK     bool             `json:"ok"`
	Report reconcile.Report `json:"report"`
}

type reconcileJobsResponse struct {
	Jobs []string `json:"jobs"`
}

// ReconcileJobs lists the jobs the run endpoint accepts.
func ReconcileJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, reconcileJobsResponse{Jobs: reconcile.Jobs()})
	}
}

// RunReconcile runs a backfill or sync job synchronously. Item failures do
// not fail the request; the report lists them and ok is false.
func RunReconcile(runner ReconcileRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if runner == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}

		var body reconcileRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		job := chi.URLParam(r, "job")
		report, err := runner.Run(ctx, job, reconcile.Options{OrgID: body.OrgID, DaysBack: body.DaysBack})
		if err != nil {
			switch pkgerrors.CodeOf(err) {
			case pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if report.Scanned == 0 && report.Failed == 0 {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{"job": job, "error": err.Error()}), "reconcile run finished with failures")
			}
		}
		responses.WriteSuccess(w, reconcileResponse{OK: err == nil, Report: report})
	}
}
