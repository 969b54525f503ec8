package bookings

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homebase-app/homebase-backend/pkg/db/dbtest"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
)

func TestApplyPayment(t *testing.T) {
	tests := []struct {
		name        string
		start       enums.BookingStatus
		kind        PaymentKind
		wantStatus  enums.BookingStatus
		wantDeposit bool
	}{
		{name: "full payment confirms pending", start: enums.BookingStatusPending, kind: PaymentKindFull, wantStatus: enums.BookingStatusConfirmed},
		{name: "full payment on completed job", start: enums.BookingStatusCompleted, kind: PaymentKindFull, wantStatus: enums.BookingStatusPaid},
		{name: "deposit confirms pending", start: enums.BookingStatusPending, kind: PaymentKindDeposit, wantStatus: enums.BookingStatusConfirmed, wantDeposit: true},
		{name: "deposit never moves backwards", start: enums.BookingStatusInProgress, kind: PaymentKindDeposit, wantStatus: enums.BookingStatusInProgress, wantDeposit: true},
		{name: "cancelled stays cancelled", start: enums.BookingStatusCancelled, kind: PaymentKindFull, wantStatus: enums.BookingStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dbtest.Open(t)
			job := models.Booking{OrgID: uuid.New(), Status: tt.start}
			require.NoError(t, conn.Create(&job).Error)

			got, err := NewService(conn, nil).ApplyPayment(context.Background(), job.ID, tt.kind)
			require.NoError(t, err)
			require.NotNil(t, got)

			var stored models.Booking
			require.NoError(t, conn.Take(&stored, "id = ?", job.ID).Error)
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.True(t, stored.PaymentCaptured)
			assert.Equal(t, tt.wantDeposit, stored.DepositPaid)
		})
	}
}

func TestApplyPaymentMissingJob(t *testing.T) {
	conn := dbtest.Open(t)
	got, err := NewService(conn, nil).ApplyPayment(context.Background(), uuid.New(), PaymentKindFull)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParsePaymentKind(t *testing.T) {
	assert.Equal(t, PaymentKindDeposit, ParsePaymentKind("deposit"))
	assert.Equal(t, PaymentKindFull, ParsePaymentKind(""))
	assert.Equal(t, PaymentKindFull, ParsePaymentKind("balance"))
}
