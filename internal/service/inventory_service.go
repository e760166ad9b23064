package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/pesio-ai/be-inventory/internal/errors"
	"github.com/pesio-ai/be-inventory/internal/logger"
	"github.com/pesio-ai/be-inventory/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// SupplierStore is the supplier persistence the service depends on
type SupplierStore interface {
	Create(ctx context.Context, supplier *repository.Supplier) error
	GetByID(ctx context.Context, id string) (*repository.Supplier, error)
	List(ctx context.Context, limit, offset int) ([]*repository.Supplier, int64, error)
	Search(ctx context.Context, term string, limit int) ([]*repository.Supplier, error)
	Update(ctx context.Context, id string, upd *repository.SupplierUpdate) error
	Delete(ctx context.Context, id string) error
}

// ItemStore is the item persistence the service depends on
type ItemStore interface {
	Create(ctx context.Context, item *repository.Item) error
	GetByID(ctx context.Context, id string) (*repository.Item, error)
	ListBySupplier(ctx context.Context, supplierID string, limit, offset int) ([]*repository.Item, int64, error)
	Search(ctx context.Context, supplierID, term string, limit int) ([]*repository.Item, error)
	CountBySupplier(ctx context.Context, supplierID string) (int64, error)
	AdjustQuantity(ctx context.Context, id string, delta int64, updatedBy string) (int64, error)
	DeleteEmpty(ctx context.Context, id string) (bool, error)
}

// AuditStore is the append-only audit log
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByEntity(ctx context.Context, entityType, entityID string) ([]*repository.AuditEntry, error)
}

// InventoryService handles supplier and item business logic
type InventoryService struct {
	suppliers SupplierStore
	items     ItemStore
	audit     AuditStore
	log       *logger.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	suppliers SupplierStore,
	items ItemStore,
	audit AuditStore,
	log *logger.Logger,
) *InventoryService {
	return &InventoryService{
		suppliers: suppliers,
		items:     items,
		audit:     audit,
		log:       log,
	}
}

// CreateSupplierRequest represents a create supplier request
type CreateSupplierRequest struct {
	SupplierCode string
	Name         string
	ContactName  *string
	Email        *string
	Phone        *string
	CreatedBy    string
}

// UpdateSupplierRequest represents a supplier edit. Nil fields stay unchanged.
type UpdateSupplierRequest struct {
	ID          string
	Name        *string
	ContactName *string
	Email       *string
	Phone       *string
	UpdatedBy   string
	IsAdmin     bool
}

// DeleteSupplierRequest represents a delete supplier request
type DeleteSupplierRequest struct {
	ID        string
	DeletedBy string
	IsAdmin   bool
}

// CreateItemRequest represents a create item request
type CreateItemRequest struct {
	SupplierID string
	SKU        string
	Name       string
	Quantity   int64
	UnitPrice  int64
	Currency   string
	CreatedBy  string
}

// AdjustQuantityRequest represents a stock adjustment
type AdjustQuantityRequest struct {
	ID        string
	Delta     int64
	Reason    string
	UpdatedBy string
}

// DeleteItemRequest represents a delete item request. SupplierID, when set,
// must match the item's supplier.
type DeleteItemRequest struct {
	ID         string
	SupplierID string
	Reason     string
	DeletedBy  string
}

// ── suppliers ─────────────────────────────────────────────────────────────────

// CreateSupplier creates a new supplier
func (s *InventoryService) CreateSupplier(ctx context.Context, req *CreateSupplierRequest) (*repository.Supplier, error) {
	code := strings.TrimSpace(req.SupplierCode)
	if code == "" {
		return nil, errors.InvalidInput("supplier_code", "supplier code is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}

	supplier := &repository.Supplier{
		SupplierCode: strings.ToUpper(code),
		Name:         name,
		ContactName:  req.ContactName,
		Email:        req.Email,
		Phone:        req.Phone,
		CreatedBy:    optional(req.CreatedBy),
	}
	if err := s.suppliers.Create(ctx, supplier); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("supplier_id", supplier.ID).
		Str("supplier_code", supplier.SupplierCode).
		Str("created_by", req.CreatedBy).
		Msg("Supplier created")

	return supplier, nil
}

// GetSupplier retrieves a supplier by ID
func (s *InventoryService) GetSupplier(ctx context.Context, id string) (*repository.Supplier, error) {
	return s.suppliers.GetByID(ctx, id)
}

// ListSuppliers lists suppliers with pagination
func (s *InventoryService) ListSuppliers(ctx context.Context, limit, offset int) ([]*repository.Supplier, int64, error) {
	limit, offset = page(limit, offset)
	return s.suppliers.List(ctx, limit, offset)
}

// SearchSuppliers finds suppliers by name or code
func (s *InventoryService) SearchSuppliers(ctx context.Context, term string, limit int) ([]*repository.Supplier, error) {
	limit, _ = page(limit, 0)
	return s.suppliers.Search(ctx, strings.TrimSpace(term), limit)
}

// UpdateSupplier edits a supplier. Only administrators may edit.
func (s *InventoryService) UpdateSupplier(ctx context.Context, req *UpdateSupplierRequest) (*repository.Supplier, error) {
	if !req.IsAdmin {
		return nil, errors.Forbidden("admin role required to edit suppliers")
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return nil, errors.InvalidInput("name", "name cannot be empty")
		}
		req.Name = &trimmed
	}
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}

	upd := &repository.SupplierUpdate{
		Name:        req.Name,
		ContactName: req.ContactName,
		Email:       req.Email,
		Phone:       req.Phone,
		UpdatedBy:   req.UpdatedBy,
	}
	if err := s.suppliers.Update(ctx, req.ID, upd); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		EntityType:  "supplier",
		EntityID:    req.ID,
		Action:      "updated",
		PerformedBy: req.UpdatedBy,
		Metadata:    changedFields(upd),
	})

	s.log.Info().
		Str("supplier_id", req.ID).
		Str("updated_by", req.UpdatedBy).
		Msg("Supplier updated")

	return s.suppliers.GetByID(ctx, req.ID)
}

// DeleteSupplier deletes a supplier that no item references. Only
// administrators may delete.
func (s *InventoryService) DeleteSupplier(ctx context.Context, req *DeleteSupplierRequest) error {
	if !req.IsAdmin {
		return errors.Forbidden("admin role required to delete suppliers")
	}

	supplier, err := s.suppliers.GetByID(ctx, req.ID)
	if err != nil {
		return err
	}

	linked, err := s.items.CountBySupplier(ctx, req.ID)
	if err != nil {
		return err
	}
	if linked > 0 {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot delete supplier %s: %d linked items still reference it", supplier.Name, linked))
	}

	if err := s.suppliers.Delete(ctx, req.ID); err != nil {
		return err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		EntityType:  "supplier",
		EntityID:    req.ID,
		Action:      "deleted",
		PerformedBy: req.DeletedBy,
		Metadata: map[string]interface{}{
			"supplier_code": supplier.SupplierCode,
			"name":          supplier.Name,
		},
	})

	s.log.Info().
		Str("supplier_id", req.ID).
		Str("supplier_code", supplier.SupplierCode).
		Str("deleted_by", req.DeletedBy).
		Msg("Supplier deleted")

	return nil
}

// ── items ─────────────────────────────────────────────────────────────────────

// CreateItem creates an item under an existing supplier
func (s *InventoryService) CreateItem(ctx context.Context, req *CreateItemRequest) (*repository.Item, error) {
	if req.SupplierID == "" {
		return nil, errors.InvalidInput("supplier_id", "supplier is required")
	}
	sku := strings.TrimSpace(req.SKU)
	if sku == "" {
		return nil, errors.InvalidInput("sku", "sku is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	if req.Quantity < 0 {
		return nil, errors.InvalidInput("quantity", "quantity cannot be negative")
	}
	if req.UnitPrice < 0 {
		return nil, errors.InvalidInput("unit_price", "unit price cannot be negative")
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, errors.InvalidInput("currency", "currency must be 3-letter ISO code")
	}

	item := &repository.Item{
		SupplierID: req.SupplierID,
		SKU:        strings.ToUpper(sku),
		Name:       name,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
		Currency:   currency,
		CreatedBy:  optional(req.CreatedBy),
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("item_id", item.ID).
		Str("supplier_id", item.SupplierID).
		Str("sku", item.SKU).
		Int64("quantity", item.Quantity).
		Msg("Item created")

	return item, nil
}

// GetItem retrieves an item by ID
func (s *InventoryService) GetItem(ctx context.Context, id string) (*repository.Item, error) {
	return s.items.GetByID(ctx, id)
}

// ListItems lists a supplier's items with pagination
func (s *InventoryService) ListItems(ctx context.Context, supplierID string, limit, offset int) ([]*repository.Item, int64, error) {
	if supplierID == "" {
		return nil, 0, errors.InvalidInput("supplier_id", "supplier is required")
	}
	limit, offset = page(limit, offset)
	return s.items.ListBySupplier(ctx, supplierID, limit, offset)
}

// SearchItems finds a supplier's items by name or SKU
func (s *InventoryService) SearchItems(ctx context.Context, supplierID, term string, limit int) ([]*repository.Item, error) {
	if supplierID == "" {
		return nil, errors.InvalidInput("supplier_id", "supplier is required")
	}
	limit, _ = page(limit, 0)
	return s.items.Search(ctx, supplierID, strings.TrimSpace(term), limit)
}

// AdjustQuantity adds a signed delta to an item's stock
func (s *InventoryService) AdjustQuantity(ctx context.Context, req *AdjustQuantityRequest) (int64, error) {
	if req.Delta == 0 {
		return 0, errors.InvalidInput("delta", "delta must be non-zero")
	}

	quantity, err := s.items.AdjustQuantity(ctx, req.ID, req.Delta, req.UpdatedBy)
	if err != nil {
		return 0, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		EntityType:  "item",
		EntityID:    req.ID,
		Action:      "quantity_adjusted",
		PerformedBy: req.UpdatedBy,
		Reason:      optional(req.Reason),
		Metadata: map[string]interface{}{
			"delta":    req.Delta,
			"quantity": quantity,
		},
	})

	s.log.Info().
		Str("item_id", req.ID).
		Int64("delta", req.Delta).
		Int64("quantity", quantity).
		Msg("Item quantity adjusted")

	return quantity, nil
}

// DeleteItem deletes an item whose stock has been reduced to zero
func (s *InventoryService) DeleteItem(ctx context.Context, req *DeleteItemRequest) error {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return errors.InvalidInput("reason", "a deletion reason is required")
	}

	item, err := s.items.GetByID(ctx, req.ID)
	if err != nil {
		return err
	}
	// An item under a different supplier is not visible from the caller's scope.
	if req.SupplierID != "" && item.SupplierID != req.SupplierID {
		return errors.NotFound("item", req.ID)
	}
	if item.Quantity != 0 {
		return stockRemaining(item.SKU, item.Quantity)
	}

	deleted, err := s.items.DeleteEmpty(ctx, req.ID)
	if err != nil {
		return err
	}
	if !deleted {
		// Stock arrived between the read and the delete.
		current, err := s.items.GetByID(ctx, req.ID)
		if err != nil {
			return err
		}
		return stockRemaining(current.SKU, current.Quantity)
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		EntityType:  "item",
		EntityID:    req.ID,
		Action:      "deleted",
		PerformedBy: req.DeletedBy,
		Reason:      &reason,
		Metadata: map[string]interface{}{
			"supplier_id": item.SupplierID,
			"sku":         item.SKU,
		},
	})

	s.log.Info().
		Str("item_id", req.ID).
		Str("sku", item.SKU).
		Str("reason", reason).
		Str("deleted_by", req.DeletedBy).
		Msg("Item deleted")

	return nil
}

// History returns the audit trail of one supplier or item
func (s *InventoryService) History(ctx context.Context, entityType, entityID string) ([]*repository.AuditEntry, error) {
	switch entityType {
	case "supplier", "item":
	default:
		return nil, errors.InvalidInput("entity_type", "must be supplier or item")
	}
	return s.audit.GetByEntity(ctx, entityType, entityID)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// appendAudit records an entry after the mutation has committed. A failure is
// logged and does not undo the mutation.
func (s *InventoryService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("entity_type", entry.EntityType).
			Str("entity_id", entry.EntityID).
			Str("action", entry.Action).
			Msg("Failed to append audit entry")
	}
}

func stockRemaining(sku string, quantity int64) error {
	return errors.New(errors.ErrCodeStockRemaining,
		fmt.Sprintf("cannot delete item %s: still have stock allocated (quantity %d)", sku, quantity))
}

func validateEmail(email *string) error {
	if email == nil || *email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(*email); err != nil {
		return errors.InvalidInput("email", "not a valid email address")
	}
	return nil
}

func changedFields(upd *repository.SupplierUpdate) map[string]interface{} {
	fields := map[string]interface{}{}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.ContactName != nil {
		fields["contact_name"] = *upd.ContactName
	}
	if upd.Email != nil {
		fields["email"] = *upd.Email
	}
	if upd.Phone != nil {
		fields["phone"] = *upd.Phone
	}
	return fields
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
