package flows

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-inventory/internal/errors"
	"github.com/pesio-ai/be-inventory/internal/repository"
	"github.com/pesio-ai/be-inventory/internal/service"
	"github.com/pesio-ai/be-inventory/internal/workflow"
)

// fakeService keeps one supplier with two items in memory
type fakeService struct {
	mu        sync.Mutex
	suppliers map[string]*repository.Supplier
	items     map[string]*repository.Item
	deleteErr error
	deleted   []*service.DeleteItemRequest
	updates   []*service.UpdateSupplierRequest
}

func newFakeService() *fakeService {
	return &fakeService{
		suppliers: map[string]*repository.Supplier{
			"s1": {ID: "s1", SupplierCode: "ACME", Name: "Acme Corp", ItemCount: 2},
		},
		items: map[string]*repository.Item{
			"i1": {ID: "i1", SupplierID: "s1", SKU: "W-1", Name: "Widget", Quantity: 0, UnitPrice: 1250},
			"i2": {ID: "i2", SupplierID: "s1", SKU: "W-2", Name: "Widget Pro", Quantity: 4, UnitPrice: 2500},
		},
	}
}

func (f *fakeService) GetSupplier(ctx context.Context, id string) (*repository.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.suppliers[id]; ok {
		return s, nil
	}
	return nil, errors.NotFound("supplier", id)
}

func (f *fakeService) ListSuppliers(ctx context.Context, limit, offset int) ([]*repository.Supplier, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Supplier
	for _, s := range f.suppliers {
		out = append(out, s)
	}
	return out, int64(len(out)), nil
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
	f.updates = append(f.updates, req)
	if !req.IsAdmin {
		return nil, errors.Forbidden("admin role required to edit suppliers")
	}
	return f.suppliers[req.ID], nil
}

func (f *fakeService) DeleteSupplier(ctx context.Context, req *service.DeleteSupplierRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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

func (f *fakeService) GetItem(ctx context.Context, id string) (*repository.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item, ok := f.items[id]; ok {
		return item, nil
	}
	return nil, errors.NotFound("item", id)
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
	return out, nil
}

func (f *fakeService) DeleteItem(ctx context.Context, req *service.DeleteItemRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, req)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	item, ok := f.items[req.ID]
	if !ok {
		return errors.NotFound("item", req.ID)
	}
	if item.Quantity != 0 {
		return errors.New(errors.ErrCodeStockRemaining,
			fmt.Sprintf("cannot delete item %s: still have stock allocated (quantity %d)", item.SKU, item.Quantity))
	}
	delete(f.items, req.ID)
	return nil
}

func newTestRegistry(t *testing.T, svc InventoryService) *Registry {
	t.Helper()
	r, err := NewRegistry(svc, Config{MinSearchLength: 2, SearchLimit: 10, Debounce: time.Millisecond})
	require.NoError(t, err)
	return r
}

func TestNewRegistry(t *testing.T) {
	r := newTestRegistry(t, newFakeService())

	assert.Equal(t, []string{ItemDeletion, SupplierDeletion, SupplierEdit}, r.Names())

	item, ok := r.Get(ItemDeletion)
	require.True(t, ok)
	assert.True(t, item.RequiresScope)
	assert.True(t, item.RequiresReason)
	assert.Contains(t, item.Reasons, "DAMAGED")
	assert.Equal(t, 10, item.SearchLimit)

	edit, ok := r.Get(SupplierEdit)
	require.True(t, ok)
	assert.True(t, edit.RequiresPayload)
	assert.True(t, edit.RequiresAdmin)

	_, ok = r.Get("invoice-approval")
	assert.False(t, ok)
}

func TestLoadReasons(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"valid", "item-deletion: [DAMAGED, LOST]\n", false},
		{"duplicate", "item-deletion: [LOST, LOST]\n", true},
		{"blank", "item-deletion: ['  ']\n", true},
		{"malformed", "item-deletion: [DAMAGED\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadReasons([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSupplierPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]string
		want    string
	}{
		{"name only", map[string]string{"name": "Acme Holdings"}, ""},
		{"all fields", map[string]string{"name": "Acme", "contact_name": "Jo", "email": "jo@acme.test", "phone": "555"}, ""},
		{"blank name", map[string]string{"name": "  "}, "name cannot be empty"},
		{"bad email", map[string]string{"email": "not-an-address"}, "email is not a valid address"},
		{"unknown field", map[string]string{"supplier_code": "NEW"}, "supplier_code cannot be edited"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateSupplierPayload(tt.payload))
		})
	}
}

func TestToFailure(t *testing.T) {
	assert.NoError(t, toFailure(nil))

	err := toFailure(errors.New(errors.ErrCodeStockRemaining, "still have stock allocated"))
	var f *workflow.Failure
	require.True(t, stderrors.As(err, &f))
	assert.Equal(t, "STOCK_REMAINING", f.Code)
	assert.Equal(t, 409, f.Status)

	internal := errors.Wrap(stderrors.New("conn reset"), errors.ErrCodeInternal, "failed to delete item")
	assert.Same(t, internal, toFailure(internal))

	raw := stderrors.New("dial tcp: timeout")
	assert.Same(t, raw, toFailure(raw))
}

func TestCommitters(t *testing.T) {
	svc := newFakeService()
	r := newTestRegistry(t, svc)

	t.Run("item deletion passes scope and reason", func(t *testing.T) {
		flow, _ := r.Get(ItemDeletion)
		err := flow.Committer.Commit(context.Background(), workflow.Command{
			ScopeID: "s1", TargetID: "i1", Reason: "DAMAGED", Actor: "u1",
		})
		require.NoError(t, err)
		require.Len(t, svc.deleted, 1)
		assert.Equal(t, &service.DeleteItemRequest{ID: "i1", SupplierID: "s1", Reason: "DAMAGED", DeletedBy: "u1"}, svc.deleted[0])
	})

	t.Run("item deletion with stock is a classified failure", func(t *testing.T) {
		flow, _ := r.Get(ItemDeletion)
		err := flow.Committer.Commit(context.Background(), workflow.Command{ScopeID: "s1", TargetID: "i2", Reason: "LOST"})
		ce := workflow.Classify(nil, asFailure(t, err))
		assert.Equal(t, workflow.CategoryBusinessRule, ce.Category)
	})

	t.Run("supplier deletion with linked items is a conflict", func(t *testing.T) {
		flow, _ := r.Get(SupplierDeletion)
		err := flow.Committer.Commit(context.Background(), workflow.Command{TargetID: "s1", IsAdmin: true})
		ce := workflow.Classify(nil, asFailure(t, err))
		assert.Equal(t, workflow.CategoryConflict, ce.Category)
	})

	t.Run("supplier edit maps payload fields", func(t *testing.T) {
		flow, _ := r.Get(SupplierEdit)
		err := flow.Committer.Commit(context.Background(), workflow.Command{
			TargetID: "s1", IsAdmin: true, Actor: "admin",
			Payload: map[string]string{"name": "Acme Holdings", "email": "ops@acme.test"},
		})
		require.NoError(t, err)
		req := svc.updates[len(svc.updates)-1]
		require.NotNil(t, req.Name)
		assert.Equal(t, "Acme Holdings", *req.Name)
		require.NotNil(t, req.Email)
		assert.Nil(t, req.Phone)
		assert.Nil(t, req.ContactName)
	})
}

func asFailure(t *testing.T, err error) *workflow.Failure {
	t.Helper()
	var f *workflow.Failure
	require.True(t, stderrors.As(err, &f), "expected *workflow.Failure, got %v", err)
	return f
}

func TestLookups(t *testing.T) {
	svc := newFakeService()
	r := newTestRegistry(t, svc)
	ctx := context.Background()

	flow, _ := r.Get(ItemDeletion)
	scopes, err := flow.Lookup.Scopes(ctx)
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, "Acme Corp (ACME)", scopes[0].Label)

	opts, err := flow.Lookup.Search(ctx, "s1", "pro", 10)
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, "Widget Pro [W-2]", opts[0].Label)

	detail, err := flow.Lookup.Details(ctx, "i2")
	require.NoError(t, err)
	assert.Equal(t, int64(4), *detail.Quantity)
	assert.Equal(t, int64(2500), *detail.Price)

	supplierFlow, _ := r.Get(SupplierDeletion)
	sd, err := supplierFlow.Lookup.Details(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), *sd.Quantity)

	_, err = flow.Lookup.Details(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestItemDeletionDialog(t *testing.T) {
	svc := newFakeService()
	r := newTestRegistry(t, svc)
	flow, _ := r.Get(ItemDeletion)
	orch := workflow.NewOrchestrator(workflow.Dependencies{})

	s, err := workflow.NewSession("d1", flow, orch, workflow.SessionConfig{})
	require.NoError(t, err)
	ctx := context.Background()
	s.Open()
	require.NoError(t, s.Wait(ctx))

	require.NoError(t, s.SetScope("s1"))
	require.NoError(t, s.SetSearchText("widget"))
	require.NoError(t, s.Wait(ctx))
	assert.Len(t, s.View().Options, 2)

	// a stocked item is rejected with the stock message
	require.NoError(t, s.SelectTarget("i2"))
	require.NoError(t, s.SetReason("DAMAGED"))
	require.NoError(t, s.Submit())
	require.NoError(t, s.Confirm(ctx, workflow.Capabilities{Actor: "u1"}))
	v := s.View()
	assert.Equal(t, workflow.StateRecoverableError, v.State)
	require.NotNil(t, v.Error)
	assert.Equal(t, "must reduce quantity to zero before deletion.", v.Error.Message)

	// retry on an empty item succeeds
	require.NoError(t, s.SelectTarget("i1"))
	require.NoError(t, s.SetReason("EXPIRED"))
	require.NoError(t, s.Submit())
	require.NoError(t, s.Confirm(ctx, workflow.Capabilities{Actor: "u1"}))
	assert.Equal(t, workflow.StateSucceeded, s.View().State)

	_, err = svc.GetItem(ctx, "i1")
	assert.True(t, errors.IsNotFound(err))
}
