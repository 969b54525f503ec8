package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/internal/bookings"
	"github.com/homebase-app/homebase-backend/internal/fees"
	"github.com/homebase-app/homebase-backend/internal/invoices"
	"github.com/homebase-app/homebase-backend/internal/ledger"
	"github.com/homebase-app/homebase-backend/internal/notifications"
	"github.com/homebase-app/homebase-backend/internal/organizations"
	"github.com/homebase-app/homebase-backend/internal/payments"
	"github.com/homebase-app/homebase-backend/internal/settlement"
	"github.com/homebase-app/homebase-backend/pkg/config"
	"github.com/homebase-app/homebase-backend/pkg/db/dbtest"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/outbox"
	stripeapi "github.com/homebase-app/homebase-backend/pkg/stripe"
)

type fakeStripe struct {
	txnPages    [][]*stripe.BalanceTransaction
	payoutPages map[string][][]*stripe.Payout
	accounts    map[string]*stripe.Account
	balances    map[string]*stripe.Balance
	charges     map[string]*stripe.Charge
	listErr     error

	txnCalls []stripeapi.ListParams
}

func (f *fakeStripe) ListBalanceTransactions(_ context.Context, p stripeapi.ListParams) (*stripe.BalanceTransactionList, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	idx := len(f.txnCalls)
	f.txnCalls = append(f.txnCalls, p)
	if idx >= len(f.txnPages) {
		return &stripe.BalanceTransactionList{}, nil
	}
	var filtered []*stripe.BalanceTransaction
	for _, txn := range f.txnPages[idx] {
		if p.Type == "" || string(txn.Type) == p.Type {
			filtered = append(filtered, txn)
		}
	}
	return &stripe.BalanceTransactionList{
		ListMeta: stripe.ListMeta{HasMore: idx < len(f.txnPages)-1},
		Data:     filtered,
	}, nil
}

func (f *fakeStripe) ListPayouts(_ context.Context, p stripeapi.ListParams) (*stripe.PayoutList, error) {
	pages := f.payoutPages[p.Account]
	idx := 0
	if p.StartingAfter != "" {
		for i, page := range pages {
			if len(page) > 0 && page[len(page)-1].ID == p.StartingAfter {
				idx = i + 1
			}
		}
	}
	if idx >= len(pages) {
		return &stripe.PayoutList{}, nil
	}
	return &stripe.PayoutList{ListMeta: stripe.ListMeta{HasMore: idx < len(pages)-1}, Data: pages[idx]}, nil
}

func (f *fakeStripe) GetBalance(_ context.Context, account string) (*stripe.Balance, error) {
	if b, ok := f.balances[account]; ok {
		return b, nil
	}
	return nil, errors.New("no such account")
}

func (f *fakeStripe) GetAccount(_ context.Context, accountID string) (*stripe.Account, error) {
	if a, ok := f.accounts[accountID]; ok {
		return a, nil
	}
	return nil, errors.New("no such account")
}

func (f *fakeStripe) GetCharge(_ context.Context, chargeID string) (*stripe.Charge, error) {
	if c, ok := f.charges[chargeID]; ok {
		return c, nil
	}
	return nil, errors.New("no such charge")
}

type env struct {
	svc     *Service
	mutator *settlement.Mutator
	conn    *gorm.DB
	stripe  *fakeStripe
}

func newEnv(t *testing.T) *env {
	t.Helper()
	client, conn := dbtest.Client(t)
	resolver, err := fees.NewResolver(fees.NewRepository(conn), fees.DefaultPlanTable(), decimal.RequireFromString("0.05"))
	require.NoError(t, err)
	writer, err := ledger.NewWriter(ledger.NewRepository(conn), nil)
	require.NoError(t, err)
	recorder, err := payments.NewRecorder(payments.RecorderParams{Repo: payments.NewRepository(conn), Ledger: writer, Resolver: resolver})
	require.NoError(t, err)
	invoiceSvc, err := invoices.NewService(invoices.NewRepository(conn), nil)
	require.NoError(t, err)
	orgs, err := organizations.NewService(organizations.NewRepository(conn), nil)
	require.NoError(t, err)
	enqueuer, err := notifications.NewEnqueuer(outbox.NewService(outbox.NewRepository(conn), nil), nil)
	require.NoError(t, err)
	mutator, err := settlement.New(settlement.Params{
		Payments:      recorder,
		Ledger:        writer,
		Invoices:      invoiceSvc,
		Bookings:      bookings.NewService(conn, nil),
		Organizations: orgs,
		Notifications: enqueuer,
	})
	require.NoError(t, err)

	fake := &fakeStripe{payoutPages: map[string][][]*stripe.Payout{}, accounts: map[string]*stripe.Account{}, balances: map[string]*stripe.Balance{}}
	svc, err := NewService(Params{
		Stripe:            fake,
		TransactionRunner: client,
		Settlement:        mutator,
		Payments:          recorder,
		Organizations:     orgs,
		Config:            config.ReconcileConfig{MaxRun: time.Minute},
	})
	require.NoError(t, err)
	return &env{svc: svc, mutator: mutator, conn: conn, stripe: fake}
}

func (e *env) org(t *testing.T, account string, override string) models.Organization {
	t.Helper()
	org := models.Organization{Name: "Acme", StripeAccountID: &account}
	if override != "" {
		org.TransactionFeePct = decimal.NewNullDecimal(decimal.RequireFromString(override))
	}
	require.NoError(t, e.conn.Create(&org).Error)
	return org
}

func (e *env) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := e.conn.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func chargeTxn(id, chargeID, intentID, destination string, amount, stripeFee int64, meta map[string]string) *stripe.BalanceTransaction {
	charge := &stripe.Charge{
		ID:       chargeID,
		Amount:   amount,
		Currency: stripe.CurrencyUSD,
		Created:  time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC).Unix(),
		Metadata: meta,
	}
	if intentID != "" {
		charge.PaymentIntent = &stripe.PaymentIntent{ID: intentID}
	}
	if destination != "" {
		charge.TransferData = &stripe.ChargeTransferData{Destination: &stripe.Account{ID: destination}}
	}
	return &stripe.BalanceTransaction{
		ID:      id,
		Type:    stripe.BalanceTransactionTypeCharge,
		Amount:  amount,
		Fee:     stripeFee,
		Created: charge.Created,
		Source:  &stripe.BalanceTransactionSource{ID: chargeID, Charge: charge},
	}
}

func TestRunValidatesJobAndWindow(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Run(context.Background(), "rebuild-everything", Options{})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = e.svc.Run(context.Background(), JobBackfillPayments, Options{DaysBack: 400})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.Empty(t, e.stripe.txnCalls)
}

func TestBackfillRecordsMissingPaymentsAcrossPages(t *testing.T) {
	e := newEnv(t)
	org := e.org(t, "acct_a", "0.03")
	e.stripe.txnPages = [][]*stripe.BalanceTransaction{
		{chargeTxn("txn_1", "ch_1", "pi_1", "acct_a", 10000, 320, nil)},
		{
			chargeTxn("txn_2", "ch_2", "pi_2", "", 5000, 175, map[string]string{"org_id": org.ID.String(), "application_fee_cents": "200"}),
			chargeTxn("txn_3", "ch_3", "", "acct_unknown", 2000, 88, nil),
		},
	}

	report, err := e.svc.Run(context.Background(), JobBackfillPayments, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, "txn_1", e.stripe.txnCalls[1].StartingAfter)
	assert.Equal(t, "charge", e.stripe.txnCalls[0].Type)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -90), e.stripe.txnCalls[0].CreatedGTE, time.Minute)

	var first models.Payment
	require.NoError(t, e.conn.First(&first, "stripe_id = ?", "ch_1").Error)
	assert.Equal(t, org.ID, *first.OrgID)
	assert.EqualValues(t, 300, first.ApplicationFeeCents, "org override")
	assert.EqualValues(t, 320, first.FeeAmount)
	assert.EqualValues(t, 9380, first.NetAmount)

	var second models.Payment
	require.NoError(t, e.conn.First(&second, "stripe_id = ?", "ch_2").Error)
	assert.EqualValues(t, 200, second.ApplicationFeeCents, "metadata snapshot wins")

	assert.EqualValues(t, 4, e.count(t, &models.LedgerEntry{}, ""))
	assert.Zero(t, e.count(t, &models.OutboxEvent{}, ""), "backfills are quiet")

	// A second run converges without writing anything.
	e.stripe.txnCalls = nil
	report, err = e.svc.Run(context.Background(), JobBackfillPayments, Options{DaysBack: 30})
	require.NoError(t, err)
	assert.Zero(t, report.Applied)
	assert.EqualValues(t, 2, e.count(t, &models.Payment{}, ""))
	assert.EqualValues(t, 4, e.count(t, &models.LedgerEntry{}, ""))
}

func TestBackfillConvergesWithWebhookSettlement(t *testing.T) {
	e := newEnv(t)
	org := e.org(t, "acct_b", "0.03")
	orgID := org.ID

	// The webhook settled the intent before the charge id was known.
	_, err := e.mutator.ApplyPayment(context.Background(), settlement.PaymentInput{
		SettledInput: payments.SettledInput{PaymentIntentID: "pi_w", OrgID: &orgID, AmountCents: 10000, Currency: "usd"},
	})
	require.NoError(t, err)

	e.stripe.txnPages = [][]*stripe.BalanceTransaction{{chargeTxn("txn_w", "ch_w", "pi_w", "acct_b", 10000, 320, nil)}}
	report, err := e.svc.Run(context.Background(), JobBackfillPayments, Options{OrgID: &orgID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.EqualValues(t, 1, e.count(t, &models.Payment{}, ""))
	assert.EqualValues(t, 2, e.count(t, &models.LedgerEntry{}, "stripe_ref = ?", "pi_w"))
}

func TestBackfillFiltersByOrganization(t *testing.T) {
	e := newEnv(t)
	e.org(t, "acct_c", "")
	other := e.org(t, "acct_d", "")
	e.stripe.txnPages = [][]*stripe.BalanceTransaction{{chargeTxn("txn_c", "ch_c", "pi_c", "acct_c", 4000, 0, nil)}}

	report, err := e.svc.Run(context.Background(), JobBackfillPayments, Options{OrgID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, e.count(t, &models.Payment{}, ""))
}

func TestSyncTransactionsAppliesRefunds(t *testing.T) {
	e := newEnv(t)
	e.org(t, "acct_r", "0.03")
	created := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC).Unix()
	refundedCharge := &stripe.Charge{ID: "ch_r", Amount: 10000, AmountRefunded: 10000, Refunded: true, Currency: stripe.CurrencyUSD, PaymentIntent: &stripe.PaymentIntent{ID: "pi_r"}}
	e.stripe.txnPages = [][]*stripe.BalanceTransaction{{
		chargeTxn("txn_c", "ch_r", "pi_r", "acct_r", 10000, 320, nil),
		{ID: "txn_fee", Type: stripe.BalanceTransactionTypeStripeFee, Amount: -500},
		{
			ID:      "txn_re",
			Type:    stripe.BalanceTransactionTypeRefund,
			Amount:  -10000,
			Created: created,
			Source:  &stripe.BalanceTransactionSource{ID: "re_1", Refund: &stripe.Refund{ID: "re_1", Amount: 10000, Charge: refundedCharge, Created: created}},
		},
	}}

	report, err := e.svc.Run(context.Background(), JobSyncTransactions, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 1, report.Skipped)
	assert.Contains(t, e.stripe.txnCalls[0].Expand, "data.source.charge")

	var payment models.Payment
	require.NoError(t, e.conn.First(&payment, "stripe_id = ?", "ch_r").Error)
	assert.Equal(t, enums.PaymentStatusRefunded, payment.Status)
	assert.EqualValues(t, 1, e.count(t, &models.LedgerEntry{}, "type = ?", enums.LedgerEntryRefund))

	e.stripe.txnCalls = nil
	report, err = e.svc.Run(context.Background(), JobSyncTransactions, Options{})
	require.NoError(t, err)
	assert.Zero(t, report.Applied)
	assert.EqualValues(t, 1, e.count(t, &models.LedgerEntry{}, "type = ?", enums.LedgerEntryRefund))
}

func TestSyncTransactionsFetchesUnexpandedRefundCharge(t *testing.T) {
	e := newEnv(t)
	e.org(t, "acct_p", "0.03")
	created := time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC).Unix()
	e.stripe.charges = map[string]*stripe.Charge{
		"ch_p": {ID: "ch_p", Amount: 10000, AmountRefunded: 3500, Currency: stripe.CurrencyUSD, PaymentIntent: &stripe.PaymentIntent{ID: "pi_p"}},
	}
	refundTxn := func(id, refundID string, amount int64) *stripe.BalanceTransaction {
		return &stripe.BalanceTransaction{
			ID:      id,
			Type:    stripe.BalanceTransactionTypeRefund,
			Amount:  -amount,
			Created: created,
			Source: &stripe.BalanceTransactionSource{ID: refundID, Refund: &stripe.Refund{
				ID: refundID, Amount: amount, Charge: &stripe.Charge{ID: "ch_p"}, Created: created,
			}},
		}
	}
	e.stripe.txnPages = [][]*stripe.BalanceTransaction{{
		chargeTxn("txn_c", "ch_p", "pi_p", "acct_p", 10000, 320, nil),
		refundTxn("txn_re1", "re_1", 1500),
		refundTxn("txn_re2", "re_2", 2000),
	}}

	_, err := e.svc.Run(context.Background(), JobSyncTransactions, Options{})
	require.NoError(t, err)

	var refunded int64
	require.NoError(t, e.conn.Model(&models.LedgerEntry{}).
		Where("type = ?", enums.LedgerEntryRefund).
		Select("COALESCE(SUM(amount_cents), 0)").Scan(&refunded).Error)
	assert.EqualValues(t, 3500, refunded)
}

func TestSyncTransactionsAbortsOnListingError(t *testing.T) {
	e := newEnv(t)
	e.stripe.listErr = errors.New("stripe unavailable")
	report, err := e.svc.Run(context.Background(), JobSyncTransactions, Options{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
	assert.Zero(t, report.Pages)
}

func TestSyncBalanceRefreshesOrganizations(t *testing.T) {
	e := newEnv(t)
	healthy := e.org(t, "acct_ok", "")
	broken := e.org(t, "acct_broken", "")
	e.stripe.accounts["acct_ok"] = &stripe.Account{ID: "acct_ok", ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}
	e.stripe.balances["acct_ok"] = &stripe.Balance{
		Available: []*stripe.BalanceAmount{{Amount: 1500, Currency: stripe.CurrencyUSD}, {Amount: 999, Currency: stripe.CurrencyEUR}},
		Pending:   []*stripe.BalanceAmount{{Amount: 700, Currency: stripe.CurrencyUSD}},
	}
	arrival := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	e.stripe.payoutPages["acct_ok"] = [][]*stripe.Payout{
		{{ID: "po_1", Amount: 4000, Currency: stripe.CurrencyUSD, Status: stripe.PayoutStatusPaid, ArrivalDate: arrival}},
		{{ID: "po_2", Amount: 2500, Currency: stripe.CurrencyUSD, Status: stripe.PayoutStatusPaid, ArrivalDate: arrival}},
	}

	report, err := e.svc.Run(context.Background(), JobSyncBalance, Options{})
	require.Error(t, err, "the broken account is reported")
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Applied)
	assert.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], broken.ID.String())

	var stored models.Organization
	require.NoError(t, e.conn.First(&stored, "id = ?", healthy.ID).Error)
	assert.True(t, stored.PaymentsReady)
	assert.EqualValues(t, 1500, stored.StripeAvailableCents)
	assert.EqualValues(t, 700, stored.StripePendingCents)
	assert.NotNil(t, stored.BalanceSyncedAt)

	var payouts []models.LedgerEntry
	require.NoError(t, e.conn.Where("type = ?", enums.LedgerEntryPayout).Order("stripe_ref").Find(&payouts).Error)
	require.Len(t, payouts, 2)
	assert.Equal(t, healthy.ID, *payouts[0].ProviderID)

	report, err = e.svc.Run(context.Background(), JobSyncBalance, Options{OrgID: &healthy.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
}

func TestRunStopsAtDeadline(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.svc.Run(ctx, JobBackfillPayments, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
