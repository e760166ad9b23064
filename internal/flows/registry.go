// Package flows instantiates the generic mutation workflow for each inventory
// operation and binds it to the inventory service.
package flows

import (
	"context"
	_ "embed"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-inventory/internal/repository"
	"github.com/pesio-ai/be-inventory/internal/service"
	"github.com/pesio-ai/be-inventory/internal/workflow"
)

// Flow names
const (
	ItemDeletion     = "item-deletion"
	SupplierDeletion = "supplier-deletion"
	SupplierEdit     = "supplier-edit"
)

//go:embed reasons.yaml
var reasonsYAML []byte

// InventoryService is the subset of the service the flows read and mutate through
type InventoryService interface {
	GetSupplier(ctx context.Context, id string) (*repository.Supplier, error)
	ListSuppliers(ctx context.Context, limit, offset int) ([]*repository.Supplier, int64, error)
	SearchSuppliers(ctx context.Context, term string, limit int) ([]*repository.Supplier, error)
	UpdateSupplier(ctx context.Context, req *service.UpdateSupplierRequest) (*repository.Supplier, error)
	DeleteSupplier(ctx context.Context, req *service.DeleteSupplierRequest) error
	GetItem(ctx context.Context, id string) (*repository.Item, error)
	SearchItems(ctx context.Context, supplierID, term string, limit int) ([]*repository.Item, error)
	DeleteItem(ctx context.Context, req *service.DeleteItemRequest) error
}

// Config tunes every registered flow
type Config struct {
	MinSearchLength int
	SearchLimit     int
	Debounce        time.Duration
}

// Registry holds the configured flows by name
type Registry struct {
	flows map[string]workflow.Flow
}

// NewRegistry builds the item-deletion, supplier-deletion and supplier-edit flows
func NewRegistry(svc InventoryService, cfg Config) (*Registry, error) {
	reasons, err := LoadReasons(reasonsYAML)
	if err != nil {
		return nil, err
	}

	suppliers := &supplierLookup{svc: svc}
	items := &itemLookup{supplierLookup: supplierLookup{svc: svc}}

	defs := []workflow.Flow{
		{
			Name:           ItemDeletion,
			Title:          "Delete inventory item",
			RequiresScope:  true,
			RequiresReason: true,
			Reasons:        reasons[ItemDeletion],
			Lookup:         items,
			Committer:      workflow.CommitFunc(deleteItem(svc)),
			SuccessMessage: "Item deleted",
		},
		{
			Name:           SupplierDeletion,
			Title:          "Delete supplier",
			RequiresAdmin:  true,
			Reasons:        reasons[SupplierDeletion],
			Lookup:         suppliers,
			Committer:      workflow.CommitFunc(deleteSupplier(svc)),
			SuccessMessage: "Supplier deleted",
		},
		{
			Name:            SupplierEdit,
			Title:           "Edit supplier",
			RequiresPayload: true,
			RequiresAdmin:   true,
			ValidatePayload: ValidateSupplierPayload,
			Lookup:          suppliers,
			Committer:       workflow.CommitFunc(editSupplier(svc)),
			SuccessMessage:  "Supplier updated",
		},
	}

	r := &Registry{flows: make(map[string]workflow.Flow, len(defs))}
	for _, f := range defs {
		f.MinSearchLength = cfg.MinSearchLength
		f.SearchLimit = cfg.SearchLimit
		f.Debounce = cfg.Debounce
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("flow %s: %w", f.Name, err)
		}
		r.flows[f.Name] = f
	}
	return r, nil
}

// Get returns the flow registered under name
func (r *Registry) Get(name string) (workflow.Flow, bool) {
	f, ok := r.flows[name]
	return f, ok
}

// Names lists the registered flows in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.flows))
	for name := range r.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadReasons parses a reason catalog keyed by flow name
func LoadReasons(data []byte) (map[string][]string, error) {
	var catalog map[string][]string
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse reason catalog: %w", err)
	}
	for flow, reasons := range catalog {
		seen := make(map[string]bool, len(reasons))
		for _, r := range reasons {
			if strings.TrimSpace(r) == "" {
				return nil, fmt.Errorf("flow %s: empty reason in catalog", flow)
			}
			if seen[r] {
				return nil, fmt.Errorf("flow %s: duplicate reason %s", flow, r)
			}
			seen[r] = true
		}
	}
	return catalog, nil
}

// editableSupplierFields are the payload keys supplier-edit accepts
var editableSupplierFields = map[string]bool{
	"name":         true,
	"contact_name": true,
	"email":        true,
	"phone":        true,
}

// ValidateSupplierPayload checks a supplier-edit payload
func ValidateSupplierPayload(payload map[string]string) string {
	for key := range payload {
		if !editableSupplierFields[key] {
			return fmt.Sprintf("%s cannot be edited", key)
		}
	}
	if name, ok := payload["name"]; ok && strings.TrimSpace(name) == "" {
		return "name cannot be empty"
	}
	if email := payload["email"]; email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return "email is not a valid address"
		}
	}
	return ""
}
