package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/homebase-app/homebase-backend/pkg/enums"
)

const refundRefSeparator = "#refund@"

// Movement is a single-line money movement keyed by a Stripe object id.
type Movement struct {
	StripeRef   string
	OccurredAt  time.Time
	AmountCents int64
	Currency    string
	ProviderID  *uuid.UUID
	HomeownerID *uuid.UUID
	JobID       *uuid.UUID
	Metadata    map[string]any
}

func (m Movement) entry(entryType enums.LedgerEntryType, direction enums.LedgerDirection, party enums.LedgerParty) EntryInput {
	return EntryInput{
		OccurredAt:  m.OccurredAt,
		Type:        entryType,
		Direction:   direction,
		AmountCents: m.AmountCents,
		Currency:    m.Currency,
		StripeRef:   m.StripeRef,
		Party:       party,
		ProviderID:  m.ProviderID,
		HomeownerID: m.HomeownerID,
		JobID:       m.JobID,
		Metadata:    m.Metadata,
	}
}

// RecordRefund debits the provider for money returned to the customer.
// Stripe reports refunds as a cumulative amount on the charge, so the entry
// carries only the part not already recorded and is keyed by the charge id
// plus that cumulative total. m.StripeRef is the charge id.
func (w *Writer) RecordRefund(ctx context.Context, m Movement, cumulativeRefunded int64) (bool, error) {
	if m.StripeRef == "" {
		return false, fmt.Errorf("refund charge id is required")
	}
	prefix := m.StripeRef + refundRefSeparator
	recorded, err := w.repo.SumByRefPrefix(ctx, prefix, enums.LedgerEntryRefund)
	if err != nil {
		return false, fmt.Errorf("sum refunds for %s: %w", m.StripeRef, err)
	}
	delta := cumulativeRefunded - recorded
	if delta <= 0 {
		return false, nil
	}
	line := m
	line.StripeRef = fmt.Sprintf("%s%d", prefix, cumulativeRefunded)
	line.AmountCents = delta
	return w.Insert(ctx, line.entry(enums.LedgerEntryRefund, enums.LedgerDebit, enums.PartyProvider))
}

// RecordDisputeLoss debits the provider for funds Stripe withdrew on a lost
// dispute. StripeRef is the dispute id.
func (w *Writer) RecordDisputeLoss(ctx context.Context, m Movement) (bool, error) {
	return w.Insert(ctx, m.entry(enums.LedgerEntryDispute, enums.LedgerDebit, enums.PartyProvider))
}

// RecordPayout debits the provider's Stripe balance for a paid-out amount.
// StripeRef is the payout id.
func (w *Writer) RecordPayout(ctx context.Context, m Movement) (bool, error) {
	return w.Insert(ctx, m.entry(enums.LedgerEntryPayout, enums.LedgerDebit, enums.PartyProvider))
}

// RecordSubscriptionInvoice credits the platform with a provider's
// subscription payment. StripeRef is the Stripe invoice id.
func (w *Writer) RecordSubscriptionInvoice(ctx context.Context, m Movement) (bool, error) {
	return w.Insert(ctx, m.entry(enums.LedgerEntrySubscriptionInvoice, enums.LedgerCredit, enums.PartyPlatform))
}

// RecordTransfer credits the provider for a standalone transfer that is not
// part of a destination charge. StripeRef is the transfer id.
func (w *Writer) RecordTransfer(ctx context.Context, m Movement) (bool, error) {
	return w.Insert(ctx, m.entry(enums.LedgerEntryTransfer, enums.LedgerCredit, enums.PartyProvider))
}
