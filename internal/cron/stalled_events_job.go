package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

const (
	stalledEventsAfter    = time.Hour
	stalledEventsSchedule = "*/15 * * * *"
	stalledEventsLimit    = 100
)

type unprocessedLister interface {
	ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]models.StripeEvent, error)
}

type stalledGauge interface {
	SetStalled(n int)
}

type StalledEventsJobParams struct {
	Logger   *logger.Logger
	Events   unprocessedLister
	Gauge    stalledGauge
	After    time.Duration
	Schedule string
}

// NewStalledEventsJob reports Stripe events that were received but never
// marked processed. Stripe stops redelivering after a few days, so these
// need an operator or a reconcile run.
func NewStalledEventsJob(params StalledEventsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("stripe events repository required")
	}
	after := params.After
	if after <= 0 {
		after = stalledEventsAfter
	}
	schedule := params.Schedule
	if schedule == "" {
		schedule = stalledEventsSchedule
	}
	return &stalledEventsJob{
		logg:     params.Logger,
		events:   params.Events,
		gauge:    params.Gauge,
		after:    after,
		schedule: schedule,
		now:      time.Now,
	}, nil
}

type stalledEventsJob struct {
	logg     *logger.Logger
	events   unprocessedLister
	gauge    stalledGauge
	after    time.Duration
	schedule string
	now      func() time.Time
}

func (j *stalledEventsJob) Name() string     { return "stripe-events-stalled" }
func (j *stalledEventsJob) Schedule() string { return j.schedule }

func (j *stalledEventsJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	rows, err := j.events.ListUnprocessed(ctx, cutoff, stalledEventsLimit)
	if err != nil {
		return fmt.Errorf("list unprocessed stripe events: %w", err)
	}
	if j.gauge != nil {
		j.gauge.SetStalled(len(rows))
	}
	for _, row := range rows {
		fields := map[string]any{
			"stripe_event_id":   row.StripeEventID,
			"stripe_event_type": row.EventType,
			"webhook_source":    row.WebhookSource.String(),
			"attempt_count":     row.AttemptCount,
			"received_at":       row.CreatedAt,
		}
		if row.LastError != nil {
			fields["last_error"] = *row.LastError
		}
		j.logg.Warn(j.logg.WithFields(ctx, fields), "stripe event still unprocessed")
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "stalled": len(rows)})
	j.logg.Info(logCtx, "stalled stripe event sweep complete")
	return nil
}
