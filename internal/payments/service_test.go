package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/internal/fees"
	"github.com/homebase-app/homebase-backend/internal/ledger"
	"github.com/homebase-app/homebase-backend/pkg/db/dbtest"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
)

func newRecorder(t *testing.T) (*Recorder, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	writer, err := ledger.NewWriter(ledger.NewRepository(conn), nil)
	require.NoError(t, err)
	resolver, err := fees.NewResolver(fees.NewRepository(conn), nil, decimal.RequireFromString("0.05"))
	require.NoError(t, err)
	rec, err := NewRecorder(RecorderParams{
		Repo:     NewRepository(conn),
		Ledger:   writer,
		Resolver: resolver,
	})
	require.NoError(t, err)
	return rec, conn
}

func seedOrg(t *testing.T, conn *gorm.DB, override string) uuid.UUID {
	t.Helper()
	org := models.Organization{Name: "Acme Plumbing"}
	if override != "" {
		org.TransactionFeePct = decimal.NewNullDecimal(decimal.RequireFromString(override))
	}
	require.NoError(t, conn.Create(&org).Error)
	return org.ID
}

func ledgerFor(t *testing.T, conn *gorm.DB, ref string) map[enums.LedgerEntryType]int64 {
	t.Helper()
	var entries []models.LedgerEntry
	require.NoError(t, conn.Where("stripe_ref = ?", ref).Find(&entries).Error)
	out := map[enums.LedgerEntryType]int64{}
	for _, e := range entries {
		out[e.Type] += e.AmountCents
	}
	return out
}

func TestRecordSettled_ResolvesFeeAndIsIdempotent(t *testing.T) {
	rec, conn := newRecorder(t)
	ctx := context.Background()
	orgID := seedOrg(t, conn, "0.03")
	in := SettledInput{
		ChargeID:        "ch_1",
		PaymentIntentID: "pi_1",
		OrgID:           &orgID,
		AmountCents:     10000,
		StripeFeeCents:  320,
		Currency:        "usd",
		PaidAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Source:          "webhook",
	}

	res, err := rec.RecordSettled(ctx, in)
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, enums.PaymentStatusPaid, res.Payment.Status)
	assert.Equal(t, int64(300), res.Payment.ApplicationFeeCents)
	assert.Equal(t, int64(10000-320-300), res.Payment.NetAmount)
	assert.Equal(t, map[enums.LedgerEntryType]int64{
		enums.LedgerEntryFee:      300,
		enums.LedgerEntryTransfer: 9700,
	}, ledgerFor(t, conn, "pi_1"))

	again, err := rec.RecordSettled(ctx, in)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.False(t, again.Settlement.FeeInserted)
	assert.False(t, again.Settlement.TransferInserted)
	assert.Equal(t, res.Payment.ID, again.Payment.ID)

	var count int64
	require.NoError(t, conn.Model(&models.Payment{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, map[enums.LedgerEntryType]int64{
		enums.LedgerEntryFee:      300,
		enums.LedgerEntryTransfer: 9700,
	}, ledgerFor(t, conn, "pi_1"))
}

func TestRecordSettled_SnapshotFeeWins(t *testing.T) {
	rec, conn := newRecorder(t)
	orgID := seedOrg(t, conn, "0.10")
	snapshot := int64(250)

	res, err := rec.RecordSettled(context.Background(), SettledInput{
		PaymentIntentID:     "pi_snap",
		OrgID:               &orgID,
		AmountCents:         10000,
		ApplicationFeeCents: &snapshot,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(250), res.Settlement.FeeCents)
	assert.Equal(t, int64(9750), res.Settlement.TransferCents)

	bad := int64(20000)
	_, err = rec.RecordSettled(context.Background(), SettledInput{
		PaymentIntentID:     "pi_bad",
		AmountCents:         10000,
		ApplicationFeeCents: &bad,
	})
	require.Error(t, err)
}

func TestRecordSettled_SettlesPendingIntent(t *testing.T) {
	rec, conn := newRecorder(t)
	ctx := context.Background()
	orgID := seedOrg(t, conn, "")

	pending, created, err := rec.UpsertPending(ctx, PendingInput{PaymentIntentID: "pi_2", OrgID: &orgID, AmountCents: 5000})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, enums.PaymentStatusPending, pending.Status)

	_, created, err = rec.UpsertPending(ctx, PendingInput{PaymentIntentID: "pi_2", AmountCents: 5000})
	require.NoError(t, err)
	assert.False(t, created)

	res, err := rec.RecordSettled(ctx, SettledInput{ChargeID: "ch_2", PaymentIntentID: "pi_2", OrgID: &orgID, AmountCents: 5000})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, pending.ID, res.Payment.ID)

	var stored models.Payment
	require.NoError(t, conn.First(&stored, "id = ?", pending.ID).Error)
	assert.Equal(t, enums.PaymentStatusPaid, stored.Status)
	require.NotNil(t, stored.StripeID)
	assert.Equal(t, "ch_2", *stored.StripeID)
	assert.Equal(t, int64(250), stored.ApplicationFeeCents, "default rate applies without plan or override")
}

func TestRecordSettled_Validation(t *testing.T) {
	rec, _ := newRecorder(t)
	_, err := rec.RecordSettled(context.Background(), SettledInput{AmountCents: 100})
	require.Error(t, err)
	_, err = rec.RecordSettled(context.Background(), SettledInput{ChargeID: "ch_0"})
	require.Error(t, err)
}

func TestTransitionFollowsLattice(t *testing.T) {
	rec, _ := newRecorder(t)
	ctx := context.Background()
	_, err := rec.RecordSettled(ctx, SettledInput{ChargeID: "ch_3", PaymentIntentID: "pi_3", AmountCents: 4000})
	require.NoError(t, err)

	payment, changed, err := rec.Transition(ctx, Lookup{ChargeID: "ch_3"}, enums.PaymentStatusDisputed)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, enums.PaymentStatusDisputed, payment.Status)

	_, changed, err = rec.Transition(ctx, Lookup{PaymentIntentID: "pi_3"}, enums.PaymentStatusRefunded)
	require.NoError(t, err)
	assert.True(t, changed)

	payment, changed, err = rec.Transition(ctx, Lookup{ChargeID: "ch_3"}, enums.PaymentStatusPaid)
	require.NoError(t, err)
	assert.False(t, changed, "refunded is terminal")
	assert.Equal(t, enums.PaymentStatusRefunded, payment.Status)

	missing, changed, err := rec.Transition(ctx, Lookup{ChargeID: "ch_missing"}, enums.PaymentStatusRefunded)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.False(t, changed)
}
