package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/internal/stripeevents"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

const leaseScope = "stripe_event"

// LeaseStore claims short-lived in-flight leases. The Redis client satisfies it.
type LeaseStore interface {
	AcquireLease(ctx context.Context, scope, id, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, scope, id, owner string) error
}

// Guard makes sure each Stripe event is applied once. The stripe_events row
// is the durable record; the optional lease keeps two concurrent deliveries
// of one event from routing at the same time.
type Guard struct {
	repo     stripeevents.Repository
	leases   LeaseStore
	leaseTTL time.Duration
	now      func() time.Time
	logg     *logger.Logger
}

type GuardParams struct {
	Repo     stripeevents.Repository
	Leases   LeaseStore
	LeaseTTL time.Duration
	Logger   *logger.Logger
}

func NewGuard(params GuardParams) (*Guard, error) {
	if params.Repo == nil {
		return nil, errors.New("stripe events repository required")
	}
	if params.LeaseTTL <= 0 {
		params.LeaseTTL = 2 * time.Minute
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Guard{
		repo:     params.Repo,
		leases:   params.Leases,
		leaseTTL: params.LeaseTTL,
		now:      func() time.Time { return time.Now().UTC() },
		logg:     params.Logger,
	}, nil
}

// Ticket is the guard's answer for one delivery. Release must be called once
// routing has finished, whatever the outcome.
type Ticket struct {
	Duplicate bool
	eventID   string
	owner     string
}

// Begin records the delivery and reports whether it was already processed.
// A delivery whose row exists but was never marked processed is routed
// again. A held lease yields CodeEventInFlight.
func (g *Guard) Begin(ctx context.Context, event *stripe.Event, source enums.WebhookSource, raw []byte) (Ticket, error) {
	if event == nil || event.ID == "" {
		return Ticket{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event id required")
	}
	row := &models.StripeEvent{
		StripeEventID: event.ID,
		EventType:     string(event.Type),
		WebhookSource: source,
		Livemode:      event.Livemode,
		RawEvent:      datatypes.JSON(raw),
	}
	if event.Account != "" {
		account := event.Account
		row.Account = &account
	}
	inserted, err := g.repo.Insert(ctx, row)
	if err != nil {
		return Ticket{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stripe event")
	}
	if !inserted {
		stored, err := g.repo.FindByStripeID(ctx, event.ID)
		if err != nil {
			return Ticket{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stripe event")
		}
		if stored != nil && stored.ProcessedAt != nil {
			return Ticket{Duplicate: true, eventID: event.ID}, nil
		}
	}

	ticket := Ticket{eventID: event.ID}
	if g.leases == nil {
		return ticket, nil
	}
	owner := uuid.NewString()
	acquired, err := g.leases.AcquireLease(ctx, leaseScope, event.ID, owner, g.leaseTTL)
	if err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "in-flight lease unavailable, relying on durable guard")
		return ticket, nil
	}
	if !acquired {
		return Ticket{}, pkgerrors.New(pkgerrors.CodeEventInFlight, fmt.Sprintf("event %s is being processed", event.ID))
	}
	ticket.owner = owner
	return ticket, nil
}

// Release drops the ticket's lease, if it holds one.
func (g *Guard) Release(ctx context.Context, ticket Ticket) {
	if g.leases == nil || ticket.owner == "" {
		return
	}
	if err := g.leases.ReleaseLease(ctx, leaseScope, ticket.eventID, ticket.owner); err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "failed to release in-flight lease")
	}
}

// MarkProcessed stamps processed_at. Passing the branch transaction makes
// the stamp commit together with the side effects.
func (g *Guard) MarkProcessed(ctx context.Context, tx *gorm.DB, eventID string) error {
	if _, err := g.repo.WithTx(tx).MarkProcessed(ctx, eventID, g.now()); err != nil {
		return fmt.Errorf("mark stripe event %s processed: %w", eventID, err)
	}
	return nil
}

// RecordFailure keeps the last error on the unprocessed row for operators.
func (g *Guard) RecordFailure(ctx context.Context, eventID string, cause error) {
	if err := g.repo.RecordFailure(ctx, eventID, cause); err != nil {
		g.logg.Error(ctx, "failed to record stripe event failure", err)
	}
}
