package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/homebase-app/homebase-backend/pkg/db/dbtest"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	aggregateID := uuid.New()

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregatePayment,
		AggregateID:   aggregateID,
		Source:        &SourceRef{StripeEventID: "evt_123", StripeEventType: "payment_intent.succeeded"},
		Data:          map[string]string{"category": "payment_received"},
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, aggregateID, rows[0].AggregateID)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	require.Equal(t, 1, env.Version)
	require.Equal(t, "evt_123", env.Source.StripeEventID)
	require.JSONEq(t, `{"category":"payment_received"}`, string(env.Data))
}

func TestEmitValidatesEvent(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     "order_created",
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
	}))
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventWorkflowTriggered,
		AggregateType: enums.AggregateBooking,
	}))
}

func TestRepositoryLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Emit(ctx, conn, DomainEvent{
			EventType:     enums.EventWorkflowTriggered,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   uuid.New(),
			Data:          map[string]int{"n": i},
		}))
	}
	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 2)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[1].ID, errors.New("bad payload")))
	require.NoError(t, repo.MarkFailedTx(conn, rows[2].ID, errors.New("timeout")))

	pending, err := repo.FetchUnpublishedForPublish(conn, 10, 2)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, rows[2].ID, pending[0].ID)
	require.Equal(t, 1, pending[0].AttemptCount)

	require.NoError(t, repo.MarkFailedTx(conn, rows[2].ID, errors.New("timeout")))
	pending, err = repo.FetchUnpublishedForPublish(conn, 10, 2)
	require.NoError(t, err)
	require.Empty(t, pending, "rows at max attempts are skipped")

	var terminal models.OutboxEvent
	require.NoError(t, conn.First(&terminal, "id = ?", rows[1].ID).Error)
	require.NotNil(t, terminal.FailedAt)
	require.Equal(t, "bad payload", *terminal.LastError)

	deleted, err := repo.DeletePublishedBefore(conn, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}
