package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-inventory/internal/auth"
	"github.com/pesio-ai/be-inventory/internal/errors"
	"github.com/pesio-ai/be-inventory/internal/repository"
	"github.com/pesio-ai/be-inventory/internal/service"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "inventory.v1.InventoryService"

// JSONCodecName is the content subtype clients select with
// grpc.CallContentSubtype(JSONCodecName)
const JSONCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries the inventory messages as JSON over gRPC
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return JSONCodecName }

// ── messages ──────────────────────────────────────────────────────────────────

// GetRequest addresses one entity by ID
type GetRequest struct {
	ID string `json:"id"`
}

// ListSuppliersRequest pages or searches suppliers
type ListSuppliersRequest struct {
	Query    string `json:"query,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

// ListSuppliersResponse is one page of suppliers
type ListSuppliersResponse struct {
	Suppliers []*repository.Supplier `json:"suppliers"`
	Total     int64                  `json:"total"`
}

// ListItemsRequest pages or searches a supplier's items
type ListItemsRequest struct {
	SupplierID string `json:"supplier_id"`
	Query      string `json:"query,omitempty"`
	Page       int    `json:"page,omitempty"`
	PageSize   int    `json:"page_size,omitempty"`
}

// ListItemsResponse is one page of items
type ListItemsResponse struct {
	Items []*repository.Item `json:"items"`
	Total int64              `json:"total"`
}

// AdjustQuantityRequest adds a signed delta to an item's stock
type AdjustQuantityRequest struct {
	ID     string `json:"id"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

// AdjustQuantityResponse carries the resulting stock
type AdjustQuantityResponse struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
}

// DeleteItemRequest deletes an empty item
type DeleteItemRequest struct {
	ID         string `json:"id"`
	SupplierID string `json:"supplier_id,omitempty"`
	Reason     string `json:"reason"`
}

// HistoryRequest addresses one audited entity
type HistoryRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// HistoryResponse is an entity's audit trail
type HistoryResponse struct {
	Entries []*repository.AuditEntry `json:"entries"`
}

// Response acknowledges a mutation
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ── service ───────────────────────────────────────────────────────────────────

// InventoryServer is the gRPC surface of the inventory service
type InventoryServer interface {
	GetSupplier(ctx context.Context, req *GetRequest) (*repository.Supplier, error)
	ListSuppliers(ctx context.Context, req *ListSuppliersRequest) (*ListSuppliersResponse, error)
	GetItem(ctx context.Context, req *GetRequest) (*repository.Item, error)
	ListItems(ctx context.Context, req *ListItemsRequest) (*ListItemsResponse, error)
	AdjustQuantity(ctx context.Context, req *AdjustQuantityRequest) (*AdjustQuantityResponse, error)
	DeleteItem(ctx context.Context, req *DeleteItemRequest) (*Response, error)
	History(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error)
}

// RegisterInventoryServer registers srv on s
func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&inventoryServiceDesc, srv)
}

var inventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetSupplier", InventoryServer.GetSupplier),
		unary("ListSuppliers", InventoryServer.ListSuppliers),
		unary("GetItem", InventoryServer.GetItem),
		unary("ListItems", InventoryServer.ListItems),
		unary("AdjustQuantity", InventoryServer.AdjustQuantity),
		unary("DeleteItem", InventoryServer.DeleteItem),
		unary("History", InventoryServer.History),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventory/v1/inventory.json",
}

// unary builds a method descriptor for one request/response call
func unary[Req, Resp any](name string, call func(InventoryServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InventoryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(InventoryServer), ctx, req.(*Req))
			})
		},
	}
}

// GRPCHandler implements InventoryServer
type GRPCHandler struct {
	service InventoryService
	logger  zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(service InventoryService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		service: service,
		logger:  logger.With().Str("handler", "grpc").Logger(),
	}
}

// GetSupplier retrieves a supplier
func (h *GRPCHandler) GetSupplier(ctx context.Context, req *GetRequest) (*repository.Supplier, error) {
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	supplier, err := h.service.GetSupplier(ctx, req.ID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return supplier, nil
}

// ListSuppliers lists or searches suppliers
func (h *GRPCHandler) ListSuppliers(ctx context.Context, req *ListSuppliersRequest) (*ListSuppliersResponse, error) {
	limit, offset := grpcPage(req.Page, req.PageSize)
	if req.Query != "" {
		suppliers, err := h.service.SearchSuppliers(ctx, req.Query, limit)
		if err != nil {
			return nil, mapErrorToGRPC(err)
		}
		return &ListSuppliersResponse{Suppliers: suppliers, Total: int64(len(suppliers))}, nil
	}
	suppliers, total, err := h.service.ListSuppliers(ctx, limit, offset)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return &ListSuppliersResponse{Suppliers: suppliers, Total: total}, nil
}

// GetItem retrieves an item
func (h *GRPCHandler) GetItem(ctx context.Context, req *GetRequest) (*repository.Item, error) {
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	item, err := h.service.GetItem(ctx, req.ID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return item, nil
}

// ListItems lists or searches a supplier's items
func (h *GRPCHandler) ListItems(ctx context.Context, req *ListItemsRequest) (*ListItemsResponse, error) {
	limit, offset := grpcPage(req.Page, req.PageSize)
	if req.Query != "" {
		items, err := h.service.SearchItems(ctx, req.SupplierID, req.Query, limit)
		if err != nil {
			return nil, mapErrorToGRPC(err)
		}
		return &ListItemsResponse{Items: items, Total: int64(len(items))}, nil
	}
	items, total, err := h.service.ListItems(ctx, req.SupplierID, limit, offset)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return &ListItemsResponse{Items: items, Total: total}, nil
}

// AdjustQuantity changes an item's stock
func (h *GRPCHandler) AdjustQuantity(ctx context.Context, req *AdjustQuantityRequest) (*AdjustQuantityResponse, error) {
	h.logger.Info().
		Str("item_id", req.ID).
		Int64("delta", req.Delta).
		Msg("gRPC AdjustQuantity called")

	quantity, err := h.service.AdjustQuantity(ctx, &service.AdjustQuantityRequest{
		ID:        req.ID,
		Delta:     req.Delta,
		Reason:    req.Reason,
		UpdatedBy: auth.FromContext(ctx).Actor,
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return &AdjustQuantityResponse{ID: req.ID, Quantity: quantity}, nil
}

// DeleteItem deletes an empty item
func (h *GRPCHandler) DeleteItem(ctx context.Context, req *DeleteItemRequest) (*Response, error) {
	h.logger.Info().
		Str("item_id", req.ID).
		Str("reason", req.Reason).
		Msg("gRPC DeleteItem called")

	err := h.service.DeleteItem(ctx, &service.DeleteItemRequest{
		ID:         req.ID,
		SupplierID: req.SupplierID,
		Reason:     req.Reason,
		DeletedBy:  auth.FromContext(ctx).Actor,
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return &Response{Success: true, Message: "item deleted"}, nil
}

// History returns an entity's audit trail
func (h *GRPCHandler) History(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	entries, err := h.service.History(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return &HistoryResponse{Entries: entries}, nil
}

func grpcPage(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return pageSize, (page - 1) * pageSize
}

// mapErrorToGRPC converts an application error to a gRPC status. Errors that
// already carry a status pass through; unknown errors become Internal without
// their text.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	appErr, ok := errors.As(err)
	if !ok {
		return status.Error(codes.Internal, "internal error")
	}
	switch appErr.Code {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, appErr.Message)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, appErr.Message)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, appErr.Message)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, appErr.Message)
	case errors.ErrCodeConflict, errors.ErrCodeStockRemaining:
		return status.Error(codes.FailedPrecondition, appErr.Message)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
