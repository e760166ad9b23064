package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-inventory/internal/auth"
	"github.com/pesio-ai/be-inventory/internal/repository"
	"github.com/pesio-ai/be-inventory/internal/service"
)

// InventoryService is the service surface the HTTP and gRPC handlers expose
type InventoryService interface {
	CreateSupplier(ctx context.Context, req *service.CreateSupplierRequest) (*repository.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*repository.Supplier, error)
	ListSuppliers(ctx context.Context, limit, offset int) ([]*repository.Supplier, int64, error)
	SearchSuppliers(ctx context.Context, term string, limit int) ([]*repository.Supplier, error)
	UpdateSupplier(ctx context.Context, req *service.UpdateSupplierRequest) (*repository.Supplier, error)
	DeleteSupplier(ctx context.Context, req *service.DeleteSupplierRequest) error
	CreateItem(ctx context.Context, req *service.CreateItemRequest) (*repository.Item, error)
	GetItem(ctx context.Context, id string) (*repository.Item, error)
	ListItems(ctx context.Context, supplierID string, limit, offset int) ([]*repository.Item, int64, error)
	SearchItems(ctx context.Context, supplierID, term string, limit int) ([]*repository.Item, error)
	AdjustQuantity(ctx context.Context, req *service.AdjustQuantityRequest) (int64, error)
	DeleteItem(ctx context.Context, req *service.DeleteItemRequest) error
	History(ctx context.Context, entityType, entityID string) ([]*repository.AuditEntry, error)
}

// HTTPHandler handles the supplier and item HTTP API
type HTTPHandler struct {
	service InventoryService
	log     zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(service InventoryService, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		log:     log.With().Str("handler", "http").Logger(),
	}
}

// Register mounts the routes on mux
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/suppliers", h.ListSuppliers)
	mux.HandleFunc("POST /api/v1/suppliers", h.CreateSupplier)
	mux.HandleFunc("GET /api/v1/suppliers/{id}", h.GetSupplier)
	mux.HandleFunc("PATCH /api/v1/suppliers/{id}", h.UpdateSupplier)
	mux.HandleFunc("DELETE /api/v1/suppliers/{id}", h.DeleteSupplier)
	mux.HandleFunc("GET /api/v1/suppliers/{id}/items", h.ListItems)
	mux.HandleFunc("POST /api/v1/suppliers/{id}/items", h.CreateItem)
	mux.HandleFunc("GET /api/v1/items/{id}", h.GetItem)
	mux.HandleFunc("POST /api/v1/items/{id}/adjust", h.AdjustQuantity)
	mux.HandleFunc("DELETE /api/v1/items/{id}", h.DeleteItem)
	mux.HandleFunc("GET /api/v1/history/{type}/{id}", h.History)
}

// ── suppliers ─────────────────────────────────────────────────────────────────

type supplierBody struct {
	SupplierCode string  `json:"supplier_code"`
	Name         string  `json:"name"`
	ContactName  *string `json:"contact_name"`
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
}

// CreateSupplier handles create supplier HTTP requests
func (h *HTTPHandler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var body supplierBody
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	supplier, err := h.service.CreateSupplier(r.Context(), &service.CreateSupplierRequest{
		SupplierCode: body.SupplierCode,
		Name:         body.Name,
		ContactName:  body.ContactName,
		Email:        body.Email,
		Phone:        body.Phone,
		CreatedBy:    auth.FromContext(r.Context()).Actor,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, supplier)
}

// GetSupplier handles get supplier HTTP requests
func (h *HTTPHandler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	supplier, err := h.service.GetSupplier(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, supplier)
}

// ListSuppliers lists suppliers, or searches them when q is set
func (h *HTTPHandler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	page, pageSize, offset := pageParams(r)

	if q := r.URL.Query().Get("q"); q != "" {
		suppliers, err := h.service.SearchSuppliers(r.Context(), q, pageSize)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"suppliers": suppliers,
			"total":     len(suppliers),
		})
		return
	}

	suppliers, total, err := h.service.ListSuppliers(r.Context(), pageSize, offset)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suppliers": suppliers,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// UpdateSupplier handles supplier edit HTTP requests
func (h *HTTPHandler) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        *string `json:"name"`
		ContactName *string `json:"contact_name"`
		Email       *string `json:"email"`
		Phone       *string `json:"phone"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	caps := auth.FromContext(r.Context())
	supplier, err := h.service.UpdateSupplier(r.Context(), &service.UpdateSupplierRequest{
		ID:          r.PathValue("id"),
		Name:        body.Name,
		ContactName: body.ContactName,
		Email:       body.Email,
		Phone:       body.Phone,
		UpdatedBy:   caps.Actor,
		IsAdmin:     caps.IsAdmin,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, supplier)
}

// DeleteSupplier handles delete supplier HTTP requests
func (h *HTTPHandler) DeleteSupplier(w http.ResponseWriter, r *http.Request) {
	caps := auth.FromContext(r.Context())
	err := h.service.DeleteSupplier(r.Context(), &service.DeleteSupplierRequest{
		ID:        r.PathValue("id"),
		DeletedBy: caps.Actor,
		IsAdmin:   caps.IsAdmin,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── items ─────────────────────────────────────────────────────────────────────

// CreateItem handles create item HTTP requests under a supplier
func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SKU       string `json:"sku"`
		Name      string `json:"name"`
		Quantity  int64  `json:"quantity"`
		UnitPrice int64  `json:"unit_price"`
		Currency  string `json:"currency"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	item, err := h.service.CreateItem(r.Context(), &service.CreateItemRequest{
		SupplierID: r.PathValue("id"),
		SKU:        body.SKU,
		Name:       body.Name,
		Quantity:   body.Quantity,
		UnitPrice:  body.UnitPrice,
		Currency:   body.Currency,
		CreatedBy:  auth.FromContext(r.Context()).Actor,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// GetItem handles get item HTTP requests
func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ListItems lists a supplier's items, or searches them when q is set
func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	supplierID := r.PathValue("id")
	page, pageSize, offset := pageParams(r)

	if q := r.URL.Query().Get("q"); q != "" {
		items, err := h.service.SearchItems(r.Context(), supplierID, q, pageSize)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"items": items,
			"total": len(items),
		})
		return
	}

	items, total, err := h.service.ListItems(r.Context(), supplierID, pageSize, offset)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// AdjustQuantity handles stock adjustment HTTP requests
func (h *HTTPHandler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delta  int64  `json:"delta"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	id := r.PathValue("id")
	quantity, err := h.service.AdjustQuantity(r.Context(), &service.AdjustQuantityRequest{
		ID:        id,
		Delta:     body.Delta,
		Reason:    body.Reason,
		UpdatedBy: auth.FromContext(r.Context()).Actor,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       id,
		"quantity": quantity,
	})
}

// DeleteItem handles delete item HTTP requests. The reason is passed as a
// query parameter; supplier_id, when given, must own the item.
func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	err := h.service.DeleteItem(r.Context(), &service.DeleteItemRequest{
		ID:         r.PathValue("id"),
		SupplierID: q.Get("supplier_id"),
		Reason:     q.Get("reason"),
		DeletedBy:  auth.FromContext(r.Context()).Actor,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History handles audit trail HTTP requests
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.History(r.Context(), r.PathValue("type"), r.PathValue("id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}
