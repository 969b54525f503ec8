package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/pagination"
)

// Repository manages persistence for ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Exists(ctx context.Context, stripeRef string, entryType enums.LedgerEntryType) (bool, error)
	// Insert writes entry unless a row with the same (stripe_ref, type)
	// already exists. It reports whether a row was written.
	Insert(ctx context.Context, entry *models.LedgerEntry) (bool, error)
	ListByStripeRef(ctx context.Context, stripeRef string) ([]models.LedgerEntry, error)
	SumByRefPrefix(ctx context.Context, prefix string, entryType enums.LedgerEntryType) (int64, error)
	// ListByProvider returns up to limit entries newest first, strictly
	// after cursor when one is given.
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Exists(ctx context.Context, stripeRef string, entryType enums.LedgerEntryType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("stripe_ref = ? AND type = ?", stripeRef, entryType).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) Insert(ctx context.Context, entry *models.LedgerEntry) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListByStripeRef(ctx context.Context, stripeRef string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("stripe_ref = ?", stripeRef).
		Order("occurred_at ASC").
		Order("type ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SumByRefPrefix(ctx context.Context, prefix string, entryType enums.LedgerEntryType) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where(`stripe_ref LIKE ? ESCAPE '\' AND type = ?`, escapeLike(prefix)+"%", entryType).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes the LIKE wildcards in s. Stripe ids contain underscores.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *repository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerEntry, error) {
	q := r.db.WithContext(ctx).Where("provider_id = ?", providerID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var entries []models.LedgerEntry
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
