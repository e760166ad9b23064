package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-inventory/internal/database"
	"github.com/pesio-ai/be-inventory/internal/errors"
)

// pgForeignKeyViolation is the SQLSTATE raised when a delete would orphan rows
const pgForeignKeyViolation = "23503"

// pgUniqueViolation is the SQLSTATE raised on duplicate keys
const pgUniqueViolation = "23505"

// SupplierRepository handles supplier data operations
type SupplierRepository struct {
	db *database.DB
}

// NewSupplierRepository creates a new supplier repository
func NewSupplierRepository(db *database.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

const supplierColumns = `
	s.id, s.supplier_code, s.name, s.contact_name, s.email, s.phone,
	(SELECT COUNT(*) FROM items i WHERE i.supplier_id = s.id) AS item_count,
	s.created_by, s.created_at, s.updated_by, s.updated_at
`

// Create inserts a supplier
func (r *SupplierRepository) Create(ctx context.Context, supplier *Supplier) error {
	query := `
		INSERT INTO suppliers (supplier_code, name, contact_name, email, phone, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		supplier.SupplierCode,
		supplier.Name,
		supplier.ContactName,
		supplier.Email,
		supplier.Phone,
		supplier.CreatedBy,
	).Scan(&supplier.ID, &supplier.CreatedAt, &supplier.UpdatedAt)
	if isPgCode(err, pgUniqueViolation) {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("supplier code '%s' already exists", supplier.SupplierCode))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create supplier")
	}

	return nil
}

// GetByID retrieves a supplier by ID
func (r *SupplierRepository) GetByID(ctx context.Context, id string) (*Supplier, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers s WHERE s.id = $1`

	supplier, err := scanSupplier(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("supplier", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get supplier")
	}
	return supplier, nil
}

// List retrieves suppliers ordered by name with pagination
func (r *SupplierRepository) List(ctx context.Context, limit, offset int) ([]*Supplier, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count suppliers")
	}

	query := `SELECT ` + supplierColumns + `
		FROM suppliers s
		ORDER BY s.name, s.supplier_code
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list suppliers")
	}
	defer rows.Close()

	suppliers, err := scanSuppliers(rows)
	if err != nil {
		return nil, 0, err
	}
	return suppliers, total, nil
}

// Search finds suppliers whose name or code contains term (case-insensitive)
func (r *SupplierRepository) Search(ctx context.Context, term string, limit int) ([]*Supplier, error) {
	query := `SELECT ` + supplierColumns + `
		FROM suppliers s
		WHERE s.name ILIKE $1 OR s.supplier_code ILIKE $1
		ORDER BY s.name
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, likePattern(term), limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to search suppliers")
	}
	defer rows.Close()

	return scanSuppliers(rows)
}

// Update applies the non-nil fields of upd
func (r *SupplierRepository) Update(ctx context.Context, id string, upd *SupplierUpdate) error {
	query := `
		UPDATE suppliers
		SET name         = COALESCE($2, name),
		    contact_name = COALESCE($3, contact_name),
		    email        = COALESCE($4, email),
		    phone        = COALESCE($5, phone),
		    updated_by   = $6,
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id,
		upd.Name, upd.ContactName, upd.Email, upd.Phone, upd.UpdatedBy,
	).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("supplier", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update supplier")
	}
	return nil
}

// Delete removes a supplier. Linked items make the foreign key fail, which is
// reported as a conflict.
func (r *SupplierRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if isPgCode(err, pgForeignKeyViolation) {
		return errors.New(errors.ErrCodeConflict,
			"cannot delete supplier: linked items still reference it")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete supplier")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("supplier", id)
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSupplier(row rowScanner) (*Supplier, error) {
	s := &Supplier{}
	err := row.Scan(
		&s.ID,
		&s.SupplierCode,
		&s.Name,
		&s.ContactName,
		&s.Email,
		&s.Phone,
		&s.ItemCount,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedBy,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanSuppliers(rows pgx.Rows) ([]*Supplier, error) {
	suppliers := make([]*Supplier, 0)
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan supplier")
		}
		suppliers = append(suppliers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read suppliers")
	}
	return suppliers, nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == code
}

// likePattern escapes LIKE metacharacters and wraps term in wildcards
func likePattern(term string) string {
	escaped := make([]rune, 0, len(term)+2)
	for _, r := range term {
		if r == '%' || r == '_' || r == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, r)
	}
	return "%" + string(escaped) + "%"
}
