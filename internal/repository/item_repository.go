package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-inventory/internal/database"
	"github.com/pesio-ai/be-inventory/internal/errors"
)

// ItemRepository handles inventory item data operations
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `
	id, supplier_id, sku, name, quantity, unit_price, currency,
	created_by, created_at, updated_by, updated_at
`

// Create inserts an item
func (r *ItemRepository) Create(ctx context.Context, item *Item) error {
	query := `
		INSERT INTO items (supplier_id, sku, name, quantity, unit_price, currency, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		item.SupplierID,
		item.SKU,
		item.Name,
		item.Quantity,
		item.UnitPrice,
		item.Currency,
		item.CreatedBy,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if isPgCode(err, pgForeignKeyViolation) {
		return errors.NotFound("supplier", item.SupplierID)
	}
	if isPgCode(err, pgUniqueViolation) {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("sku '%s' already exists for this supplier", item.SKU))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create item")
	}
	return nil
}

// GetByID retrieves an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	item, err := scanItem(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("item", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get item")
	}
	return item, nil
}

// ListBySupplier retrieves a supplier's items with pagination
func (r *ItemRepository) ListBySupplier(ctx context.Context, supplierID string, limit, offset int) ([]*Item, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM items WHERE supplier_id = $1`, supplierID).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count items")
	}

	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE supplier_id = $1
		ORDER BY name, sku
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, supplierID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list items")
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Search finds a supplier's items whose name or SKU contains term
func (r *ItemRepository) Search(ctx context.Context, supplierID, term string, limit int) ([]*Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE supplier_id = $1
		  AND (name ILIKE $2 OR sku ILIKE $2)
		ORDER BY name
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, supplierID, likePattern(term), limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to search items")
	}
	defer rows.Close()

	return scanItems(rows)
}

// CountBySupplier returns how many items reference a supplier
func (r *ItemRepository) CountBySupplier(ctx context.Context, supplierID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM items WHERE supplier_id = $1`, supplierID).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count supplier items")
	}
	return count, nil
}

// AdjustQuantity adds delta to an item's quantity and returns the new value.
// The row is only touched when the result stays non-negative.
func (r *ItemRepository) AdjustQuantity(ctx context.Context, id string, delta int64, updatedBy string) (int64, error) {
	query := `
		UPDATE items
		SET quantity   = quantity + $2,
		    updated_by = $3,
		    updated_at = NOW()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING quantity
	`

	var quantity int64
	err := r.db.QueryRow(ctx, query, id, delta, updatedBy).Scan(&quantity)
	if err == pgx.ErrNoRows {
		// Either the item is gone or the adjustment would go negative.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return 0, getErr
		}
		return 0, errors.InvalidInput("delta", "adjustment would make quantity negative")
	}
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to adjust quantity")
	}
	return quantity, nil
}

// DeleteEmpty deletes an item only while its quantity is zero. It reports
// false when the row exists but still holds stock.
func (r *ItemRepository) DeleteEmpty(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM items WHERE id = $1 AND quantity = 0`, id)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to delete item")
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return false, getErr
		}
		return false, nil
	}
	return true, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanItem(row rowScanner) (*Item, error) {
	item := &Item{}
	err := row.Scan(
		&item.ID,
		&item.SupplierID,
		&item.SKU,
		&item.Name,
		&item.Quantity,
		&item.UnitPrice,
		&item.Currency,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedBy,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func scanItems(rows pgx.Rows) ([]*Item, error) {
	items := make([]*Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read items")
	}
	return items, nil
}
