package invoices

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/db/dbtest"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
)

func setup(t *testing.T, status enums.InvoiceStatus) (*Service, *gorm.DB, uuid.UUID) {
	t.Helper()
	conn := dbtest.Open(t)
	invoice := models.Invoice{OrgID: uuid.New(), Amount: 10000, Status: status}
	require.NoError(t, conn.Create(&invoice).Error)
	svc, err := NewService(NewRepository(conn), nil)
	require.NoError(t, err)
	return svc, conn, invoice.ID
}

func load(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Invoice {
	t.Helper()
	var invoice models.Invoice
	require.NoError(t, conn.Take(&invoice, "id = ?", id).Error)
	return invoice
}

func TestMarkPaidSetsPaidAtAndSession(t *testing.T) {
	svc, conn, id := setup(t, enums.InvoiceStatusPending)
	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	out, err := svc.MarkPaid(context.Background(), id, PaidInput{SessionID: "cs_test_1", PaidAt: paidAt})
	require.NoError(t, err)
	assert.True(t, out.Changed)

	stored := load(t, conn, id)
	assert.Equal(t, enums.InvoiceStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	assert.True(t, stored.PaidAt.Equal(paidAt))
	require.NotNil(t, stored.StripeSessionID)
	assert.Equal(t, "cs_test_1", *stored.StripeSessionID)

	again, err := svc.MarkPaid(context.Background(), id, PaidInput{})
	require.NoError(t, err)
	assert.False(t, again.Changed)
}

func TestVoidKeepsPaidInvoices(t *testing.T) {
	svc, conn, id := setup(t, enums.InvoiceStatusPaid)

	out, err := svc.Void(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, enums.InvoiceStatusPaid, load(t, conn, id).Status)
}

func TestProcessingThenFailedReturnsToPending(t *testing.T) {
	svc, conn, id := setup(t, enums.InvoiceStatusPending)
	ctx := context.Background()

	_, err := svc.MarkProcessing(ctx, id, "cs_ach")
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusProcessing, load(t, conn, id).Status)

	_, err = svc.MarkPaymentFailed(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusPending, load(t, conn, id).Status)
}

func TestMarkRefundedClearsPaidAt(t *testing.T) {
	svc, conn, id := setup(t, enums.InvoiceStatusPending)
	ctx := context.Background()

	_, err := svc.MarkPaid(ctx, id, PaidInput{})
	require.NoError(t, err)
	out, err := svc.MarkRefunded(ctx, id)
	require.NoError(t, err)
	assert.True(t, out.Changed)

	stored := load(t, conn, id)
	assert.Equal(t, enums.InvoiceStatusRefunded, stored.Status)
	assert.Nil(t, stored.PaidAt)
}

func TestMissingInvoiceIsIgnored(t *testing.T) {
	svc, _, _ := setup(t, enums.InvoiceStatusPending)
	out, err := svc.MarkPaid(context.Background(), uuid.New(), PaidInput{})
	require.NoError(t, err)
	assert.Nil(t, out.Invoice)
}
