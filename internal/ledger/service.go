// Package ledger writes the append-only double-entry record of money moving
// between customers, providers, the platform and Stripe.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "github.com/homebase-app/homebase-backend/pkg/db"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/logger"
	"github.com/homebase-app/homebase-backend/pkg/pagination"
)

// EntryInput is one ledger line. StripeRef plus Type is the natural key;
// leave StripeRef empty only for entries that must never be deduplicated.
type EntryInput struct {
	OccurredAt  time.Time
	Type        enums.LedgerEntryType
	Direction   enums.LedgerDirection
	AmountCents int64
	Currency    string
	StripeRef   string
	Party       enums.LedgerParty
	ProviderID  *uuid.UUID
	HomeownerID *uuid.UUID
	JobID       *uuid.UUID
	Metadata    map[string]any
}

// SettlementInput describes a captured customer payment that splits into a
// platform fee and a provider transfer.
type SettlementInput struct {
	StripeRef   string
	OccurredAt  time.Time
	GrossCents  int64
	FeeCents    int64
	Currency    string
	ProviderID  *uuid.UUID
	HomeownerID *uuid.UUID
	JobID       *uuid.UUID
	Metadata    map[string]any
}

// SettlementResult reports which halves of the pair were newly written.
type SettlementResult struct {
	FeeCents         int64
	TransferCents    int64
	FeeInserted      bool
	TransferInserted bool
}

type Writer struct {
	repo Repository
	logg *logger.Logger
}

func NewWriter(repo Repository, logg *logger.Logger) (*Writer, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Writer{repo: repo, logg: logg}, nil
}

// WithTx returns a writer whose inserts join tx.
func (w *Writer) WithTx(tx *gorm.DB) *Writer {
	return &Writer{repo: w.repo.WithTx(tx), logg: w.logg}
}

// Insert writes one entry. It returns false without error when an entry with
// the same (stripe_ref, type) exists, whether found up front or lost to a
// concurrent insert.
func (w *Writer) Insert(ctx context.Context, input EntryInput) (bool, error) {
	if err := validateEntry(input); err != nil {
		return false, err
	}

	if input.StripeRef != "" {
		exists, err := w.repo.Exists(ctx, input.StripeRef, input.Type)
		if err != nil {
			return false, fmt.Errorf("check ledger entry %s/%s: %w", input.StripeRef, input.Type, err)
		}
		if exists {
			w.skip(ctx, input)
			return false, nil
		}
	}

	entry, err := buildEntry(input)
	if err != nil {
		return false, err
	}
	inserted, err := w.repo.Insert(ctx, entry)
	if err != nil {
		if dbpkg.IsUniqueViolation(err) {
			w.skip(ctx, input)
			return false, nil
		}
		return false, fmt.Errorf("insert ledger entry %s/%s: %w", input.StripeRef, input.Type, err)
	}
	if !inserted {
		w.skip(ctx, input)
	}
	return inserted, nil
}

// RecordSettlement writes the fee (platform credit) and transfer (provider
// credit) pair for a captured payment. Both lines share StripeRef and always
// sum to the gross amount. A zero-value half is not written.
func (w *Writer) RecordSettlement(ctx context.Context, input SettlementInput) (SettlementResult, error) {
	if input.StripeRef == "" {
		return SettlementResult{}, fmt.Errorf("settlement stripe ref is required")
	}
	if input.GrossCents <= 0 {
		return SettlementResult{}, fmt.Errorf("settlement gross must be positive, got %d", input.GrossCents)
	}
	if input.FeeCents < 0 || input.FeeCents > input.GrossCents {
		return SettlementResult{}, fmt.Errorf("settlement fee %d outside [0, %d]", input.FeeCents, input.GrossCents)
	}
	if input.OccurredAt.IsZero() {
		input.OccurredAt = time.Now().UTC()
	}

	result := SettlementResult{
		FeeCents:      input.FeeCents,
		TransferCents: input.GrossCents - input.FeeCents,
	}

	base := EntryInput{
		OccurredAt:  input.OccurredAt,
		Direction:   enums.LedgerCredit,
		Currency:    input.Currency,
		StripeRef:   input.StripeRef,
		ProviderID:  input.ProviderID,
		HomeownerID: input.HomeownerID,
		JobID:       input.JobID,
		Metadata:    withGross(input.Metadata, input.GrossCents),
	}

	if result.FeeCents > 0 {
		fee := base
		fee.Type = enums.LedgerEntryFee
		fee.Party = enums.PartyPlatform
		fee.AmountCents = result.FeeCents
		inserted, err := w.Insert(ctx, fee)
		if err != nil {
			return result, err
		}
		result.FeeInserted = inserted
	}

	if result.TransferCents > 0 {
		transfer := base
		transfer.Type = enums.LedgerEntryTransfer
		transfer.Party = enums.PartyProvider
		transfer.AmountCents = result.TransferCents
		inserted, err := w.Insert(ctx, transfer)
		if err != nil {
			return result, err
		}
		result.TransferInserted = inserted
	}

	return result, nil
}

// Page is one slice of a provider's ledger. NextCursor is empty on the last
// page.
type Page struct {
	Entries    []models.LedgerEntry `json:"entries"`
	NextCursor string               `json:"next_cursor"`
}

// ListForProvider pages through a provider's entries newest first.
func (w *Writer) ListForProvider(ctx context.Context, providerID uuid.UUID, params pagination.Params) (Page, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	entries, err := w.repo.ListByProvider(ctx, providerID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	var page Page
	page.Entries, page.NextCursor = pagination.Trim(entries, params.Limit, func(e models.LedgerEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return page, nil
}

// ListByStripeRef returns every entry written for a Stripe object.
func (w *Writer) ListByStripeRef(ctx context.Context, stripeRef string) ([]models.LedgerEntry, error) {
	return w.repo.ListByStripeRef(ctx, stripeRef)
}

func (w *Writer) skip(ctx context.Context, input EntryInput) {
	logCtx := w.logg.WithFields(ctx, map[string]any{
		"stripe_ref": input.StripeRef,
		"entry_type": input.Type,
	})
	w.logg.Debug(logCtx, "ledger entry already recorded")
}

func validateEntry(input EntryInput) error {
	if !input.Type.IsValid() {
		return fmt.Errorf("invalid ledger entry type %q", input.Type)
	}
	if !input.Direction.IsValid() {
		return fmt.Errorf("invalid ledger direction %q", input.Direction)
	}
	if !input.Party.IsValid() {
		return fmt.Errorf("invalid ledger party %q", input.Party)
	}
	if input.AmountCents <= 0 {
		return fmt.Errorf("ledger amount must be positive, got %d", input.AmountCents)
	}
	return nil
}

func buildEntry(input EntryInput) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{
		OccurredAt:  input.OccurredAt,
		Type:        input.Type,
		Direction:   input.Direction,
		AmountCents: input.AmountCents,
		Currency:    normalizeCurrency(input.Currency),
		Party:       input.Party,
		ProviderID:  input.ProviderID,
		HomeownerID: input.HomeownerID,
		JobID:       input.JobID,
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if input.StripeRef != "" {
		ref := input.StripeRef
		entry.StripeRef = &ref
	}
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal ledger metadata: %w", err)
		}
		entry.Metadata = datatypes.JSON(raw)
	}
	return entry, nil
}

func withGross(meta map[string]any, gross int64) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["gross_cents"] = gross
	return out
}

func normalizeCurrency(currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return "usd"
	}
	return currency
}
