package repository

import "time"

// ── Domain types for inventory ───────────────────────────────────────────────

// Supplier is a vendor that items are sourced from.
type Supplier struct {
	ID           string    `json:"id"`
	SupplierCode string    `json:"supplier_code"`
	Name         string    `json:"name"`
	ContactName  *string   `json:"contact_name,omitempty"`
	Email        *string   `json:"email,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	ItemCount    int64     `json:"item_count"` // derived; populated by reads that join items
	CreatedBy    *string   `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedBy    *string   `json:"updated_by,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Item is a stocked inventory line owned by exactly one supplier.
type Item struct {
	ID         string    `json:"id"`
	SupplierID string    `json:"supplier_id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	Quantity   int64     `json:"quantity"`
	UnitPrice  int64     `json:"unit_price"` // cents
	Currency   string    `json:"currency"`
	CreatedBy  *string   `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedBy  *string   `json:"updated_by,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SupplierUpdate holds the editable supplier columns. Nil fields are left
// unchanged.
type SupplierUpdate struct {
	Name        *string
	ContactName *string
	Email       *string
	Phone       *string
	UpdatedBy   string
}

// AuditEntry is one immutable record in the inventory audit log.
type AuditEntry struct {
	ID          string                 `json:"id"`
	EntityType  string                 `json:"entity_type"` // supplier | item
	EntityID    string                 `json:"entity_id"`
	Action      string                 `json:"action"` // created | updated | deleted | quantity_adjusted
	PerformedBy string                 `json:"performed_by"`
	PerformedAt time.Time              `json:"performed_at"`
	Reason      *string                `json:"reason,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
