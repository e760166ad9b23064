package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pesio-ai/be-inventory/internal/errors"
	"github.com/pesio-ai/be-inventory/internal/repository"
	"github.com/pesio-ai/be-inventory/internal/service"
)

// fakeService is an in-memory InventoryService with the same business rules
// the real service enforces on deletion
type fakeService struct {
	mu        sync.Mutex
	suppliers map[string]*repository.Supplier
	items     map[string]*repository.Item
	audit     []*repository.AuditEntry
	lastActor string
	panicOn   string
}

func newFakeService() *fakeService {
	return &fakeService{
		suppliers: map[string]*repository.Supplier{
			"s1": {ID: "s1", SupplierCode: "ACME", Name: "Acme Corp", ItemCount: 2},
			"s2": {ID: "s2", SupplierCode: "BETA", Name: "Beta Supply"},
		},
		items: map[string]*repository.Item{
			"i1": {ID: "i1", SupplierID: "s1", SKU: "W-1", Name: "Widget", Quantity: 0, UnitPrice: 1250, Currency: "USD"},
			"i2": {ID: "i2", SupplierID: "s1", SKU: "W-2", Name: "Widget Pro", Quantity: 4, UnitPrice: 2500, Currency: "USD"},
		},
	}
}

func (f *fakeService) CreateSupplier(ctx context.Context, req *service.CreateSupplierRequest) (*repository.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	s := &repository.Supplier{
		ID:           fmt.Sprintf("s%d", len(f.suppliers)+1),
		SupplierCode: strings.ToUpper(req.SupplierCode),
		Name:         req.Name,
	}
	f.suppliers[s.ID] = s
	f.lastActor = req.CreatedBy
	return s, nil
}

func (f *fakeService) GetSupplier(ctx context.Context, id string) (*repository.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.panicOn {
		panic("corrupt supplier row")
	}
	if s, ok := f.suppliers[id]; ok {
		return s, nil
	}
	return nil, errors.NotFound("supplier", id)
}

func (f *fakeService) ListSuppliers(ctx context.Context, limit, offset int) ([]*repository.Supplier, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.Supplier, 0, len(f.suppliers))
	for _, s := range f.suppliers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (f *fakeService) SearchSuppliers(ctx context.Context, term string, limit int) ([]*repository.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Supplier
	for _, s := range f.suppliers {
		if strings.Contains(strings.ToLower(s.Name), strings.ToLower(term)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeService) UpdateSupplier(ctx context.Context, req *service.UpdateSupplierRequest) (*repository.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !req.IsAdmin {
		return nil, errors.Forbidden("admin role required to edit suppliers")
	}
	s, ok := f.suppliers[req.ID]
	if !ok {
		return nil, errors.NotFound("supplier", req.ID)
	}
	if req.Name != nil {
		s.Name = *req.Name
	}
	if req.Email != nil {
		s.Email = req.Email
	}
	return s, nil
}

func (f *fakeService) DeleteSupplier(ctx context.Context, req *service.DeleteSupplierRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !req.IsAdmin {
		return errors.Forbidden("admin role required to delete suppliers")
	}
	s, ok := f.suppliers[req.ID]
	if !ok {
		return errors.NotFound("supplier", req.ID)
	}
	if s.ItemCount > 0 {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot delete supplier %s: %d linked items still reference it", s.SupplierCode, s.ItemCount))
	}
	delete(f.suppliers, req.ID)
	return nil
}

func (f *fakeService) CreateItem(ctx context.Context, req *service.CreateItemRequest) (*repository.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.suppliers[req.SupplierID]; !ok {
		return nil, errors.NotFound("supplier", req.SupplierID)
	}
	item := &repository.Item{
		ID:         fmt.Sprintf("i%d", len(f.items)+1),
		SupplierID: req.SupplierID,
		SKU:        req.SKU,
		Name:       req.Name,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
		Currency:   "USD",
	}
	f.items[item.ID] = item
	return item, nil
}

func (f *fakeService) GetItem(ctx context.Context, id string) (*repository.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item, ok := f.items[id]; ok {
		return item, nil
	}
	return nil, errors.NotFound("item", id)
}

func (f *fakeService) ListItems(ctx context.Context, supplierID string, limit, offset int) ([]*repository.Item, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if supplierID == "" {
		return nil, 0, errors.InvalidInput("supplier_id", "supplier is required")
	}
	var out []*repository.Item
	for _, item := range f.items {
		if item.SupplierID == supplierID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (f *fakeService) SearchItems(ctx context.Context, supplierID, term string, limit int) ([]*repository.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Item
	for _, item := range f.items {
		if item.SupplierID == supplierID && strings.Contains(strings.ToLower(item.Name), strings.ToLower(term)) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeService) AdjustQuantity(ctx context.Context, req *service.AdjustQuantityRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Delta == 0 {
		return 0, errors.InvalidInput("delta", "delta must be non-zero")
	}
	item, ok := f.items[req.ID]
	if !ok {
		return 0, errors.NotFound("item", req.ID)
	}
	if item.Quantity+req.Delta < 0 {
		return 0, errors.InvalidInput("delta", "adjustment would make quantity negative")
	}
	item.Quantity += req.Delta
	f.lastActor = req.UpdatedBy
	return item.Quantity, nil
}

func (f *fakeService) DeleteItem(ctx context.Context, req *service.DeleteItemRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(req.Reason) == "" {
		return errors.InvalidInput("reason", "a deletion reason is required")
	}
	item, ok := f.items[req.ID]
	if !ok || (req.SupplierID != "" && item.SupplierID != req.SupplierID) {
		return errors.NotFound("item", req.ID)
	}
	if item.Quantity != 0 {
		return errors.New(errors.ErrCodeStockRemaining,
			fmt.Sprintf("cannot delete item %s: still have stock allocated (quantity %d)", item.SKU, item.Quantity))
	}
	delete(f.items, req.ID)
	f.lastActor = req.DeletedBy
	return nil
}

func (f *fakeService) History(ctx context.Context, entityType, entityID string) ([]*repository.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entityType != "supplier" && entityType != "item" {
		return nil, errors.InvalidInput("entity_type", "must be supplier or item")
	}
	var out []*repository.AuditEntry
	for _, e := range f.audit {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeService) actor() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActor
}
