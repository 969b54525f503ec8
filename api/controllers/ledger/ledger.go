package ledger

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/homebase-app/homebase-backend/api/middleware"
	"github.com/homebase-app/homebase-backend/api/responses"
	"github.com/homebase-app/homebase-backend/api/validators"
	ledgersvc "github.com/homebase-app/homebase-backend/internal/ledger"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/logger"
	"github.com/homebase-app/homebase-backend/pkg/pagination"
)

type Lister interface {
	ListForProvider(ctx context.Context, providerID uuid.UUID, params pagination.Params) (ledgersvc.Page, error)
}

// ProviderLedger lists the caller organization's ledger entries.
func ProviderLedger(svc Lister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := uuid.Parse(middleware.OrgIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "organization scope required"))
			return
		}
		list(w, r, svc, orgID, logg)
	}
}

// OrganizationLedger lists any organization's entries for admins.
func OrganizationLedger(svc Lister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := uuid.Parse(chi.URLParam(r, "orgId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid organization id"))
			return
		}
		list(w, r, svc, orgID, logg)
	}
}

func list(w http.ResponseWriter, r *http.Request, svc Lister, orgID uuid.UUID, logg *logger.Logger) {
	ctx := r.Context()
	if svc == nil {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
		return
	}
	params, err := validators.ParsePageParams(r)
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	page, err := svc.ListForProvider(ctx, orgID, params)
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	responses.WriteSuccess(w, page)
}
