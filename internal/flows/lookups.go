package flows

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-inventory/internal/repository"
	"github.com/pesio-ai/be-inventory/internal/workflow"
)

// maxScopes bounds the supplier list offered as a scope
const maxScopes = 200

// supplierLookup serves suppliers as both scopes and targets
type supplierLookup struct {
	svc InventoryService
}

func (l *supplierLookup) Scopes(ctx context.Context) ([]workflow.Option, error) {
	suppliers, _, err := l.svc.ListSuppliers(ctx, maxScopes, 0)
	if err != nil {
		return nil, err
	}
	return supplierOptions(suppliers), nil
}

func (l *supplierLookup) Search(ctx context.Context, _ string, query string, limit int) ([]workflow.Option, error) {
	suppliers, err := l.svc.SearchSuppliers(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return supplierOptions(suppliers), nil
}

// Details reports the number of linked items as the snapshot quantity
func (l *supplierLookup) Details(ctx context.Context, id string) (*workflow.Option, error) {
	s, err := l.svc.GetSupplier(ctx, id)
	if err != nil {
		return nil, err
	}
	opt := supplierOption(s)
	count := s.ItemCount
	opt.Quantity = &count
	return &opt, nil
}

// itemLookup serves suppliers as scopes and their items as targets
type itemLookup struct {
	supplierLookup
}

func (l *itemLookup) Search(ctx context.Context, scopeID, query string, limit int) ([]workflow.Option, error) {
	items, err := l.svc.SearchItems(ctx, scopeID, query, limit)
	if err != nil {
		return nil, err
	}
	opts := make([]workflow.Option, 0, len(items))
	for _, item := range items {
		opts = append(opts, itemOption(item))
	}
	return opts, nil
}

func (l *itemLookup) Details(ctx context.Context, id string) (*workflow.Option, error) {
	item, err := l.svc.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	opt := itemOption(item)
	return &opt, nil
}

// ── option mapping ────────────────────────────────────────────────────────────

func supplierOptions(suppliers []*repository.Supplier) []workflow.Option {
	opts := make([]workflow.Option, 0, len(suppliers))
	for _, s := range suppliers {
		opts = append(opts, supplierOption(s))
	}
	return opts
}

func supplierOption(s *repository.Supplier) workflow.Option {
	return workflow.Option{
		ID:    s.ID,
		Label: fmt.Sprintf("%s (%s)", s.Name, s.SupplierCode),
	}
}

func itemOption(item *repository.Item) workflow.Option {
	qty, price := item.Quantity, item.UnitPrice
	return workflow.Option{
		ID:       item.ID,
		Label:    fmt.Sprintf("%s [%s]", item.Name, item.SKU),
		Quantity: &qty,
		Price:    &price,
	}
}
