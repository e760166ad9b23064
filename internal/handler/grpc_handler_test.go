package handler

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	apperrors "github.com/pesio-ai/be-inventory/internal/errors"
	"github.com/pesio-ai/be-inventory/internal/repository"
)

func startGRPC(t *testing.T, svc *fakeService) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, _ := NewGRPCServer(NewGRPCHandler(svc, zerolog.Nop()), GRPCOptions{}, zerolog.Nop())
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(JSONCodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, req, resp interface{}) error {
	return conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp)
}

func TestGRPCHandler_GetSupplier(t *testing.T) {
	conn := startGRPC(t, newFakeService())

	var supplier repository.Supplier
	require.NoError(t, invoke(context.Background(), conn, "GetSupplier", &GetRequest{ID: "s1"}, &supplier))
	assert.Equal(t, "ACME", supplier.SupplierCode)

	err := invoke(context.Background(), conn, "GetSupplier", &GetRequest{ID: "nope"}, &supplier)
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = invoke(context.Background(), conn, "GetSupplier", &GetRequest{}, &supplier)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCHandler_DeleteItemUsesMetadataActor(t *testing.T) {
	svc := newFakeService()
	conn := startGRPC(t, svc)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-user-id", "u-7")

	var resp Response
	err := invoke(ctx, conn, "DeleteItem", &DeleteItemRequest{ID: "i2", Reason: "LOST"}, &resp)
	st, _ := status.FromError(err)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Contains(t, st.Message(), "still have stock allocated")

	require.NoError(t, invoke(ctx, conn, "DeleteItem", &DeleteItemRequest{ID: "i1", Reason: "LOST"}, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "u-7", svc.actor())
}

func TestGRPCHandler_ListAndAdjust(t *testing.T) {
	conn := startGRPC(t, newFakeService())
	ctx := context.Background()

	var items ListItemsResponse
	require.NoError(t, invoke(ctx, conn, "ListItems", &ListItemsRequest{SupplierID: "s1"}, &items))
	assert.Equal(t, int64(2), items.Total)

	var suppliers ListSuppliersResponse
	require.NoError(t, invoke(ctx, conn, "ListSuppliers", &ListSuppliersRequest{Query: "acme"}, &suppliers))
	require.Len(t, suppliers.Suppliers, 1)

	var adjusted AdjustQuantityResponse
	require.NoError(t, invoke(ctx, conn, "AdjustQuantity", &AdjustQuantityRequest{ID: "i2", Delta: 6}, &adjusted))
	assert.Equal(t, int64(10), adjusted.Quantity)

	var history HistoryResponse
	err := invoke(ctx, conn, "History", &HistoryRequest{EntityType: "invoice", EntityID: "x"}, &history)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCHandler_RecoversPanics(t *testing.T) {
	svc := newFakeService()
	svc.panicOn = "s1"
	conn := startGRPC(t, svc)

	var supplier repository.Supplier
	err := invoke(context.Background(), conn, "GetSupplier", &GetRequest{ID: "s1"}, &supplier)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestGRPCHealth(t *testing.T) {
	conn := startGRPC(t, newFakeService())
	client := healthpb.NewHealthClient(conn)

	// health uses the proto codec regardless of the default subtype
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName},
		grpc.CallContentSubtype("proto"))
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

type flakyPinger struct{ down atomic.Bool }

func (p *flakyPinger) Ping(ctx context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestWatchHealth(t *testing.T) {
	_, hs := NewGRPCServer(NewGRPCHandler(newFakeService(), zerolog.Nop()), GRPCOptions{}, zerolog.Nop())
	p := &flakyPinger{}
	p.down.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go WatchHealth(ctx, hs, p, 5*time.Millisecond, zerolog.Nop())

	statusOf := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.Status
	}

	require.Eventually(t, func() bool {
		return statusOf() == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	p.down.Store(false)
	require.Eventually(t, func() bool {
		return statusOf() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)
}

func TestMapErrorToGRPC(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"nil", nil, codes.OK},
		{"not found", apperrors.NotFound("item", "x"), codes.NotFound},
		{"invalid", apperrors.InvalidInput("delta", "bad"), codes.InvalidArgument},
		{"forbidden", apperrors.Forbidden("admin role required"), codes.PermissionDenied},
		{"stock", apperrors.New(apperrors.ErrCodeStockRemaining, "still have stock"), codes.FailedPrecondition},
		{"conflict", apperrors.New(apperrors.ErrCodeConflict, "linked items"), codes.FailedPrecondition},
		{"internal", apperrors.Wrap(errors.New("conn reset"), apperrors.ErrCodeInternal, "failed"), codes.Internal},
		{"plain", errors.New("boom"), codes.Internal},
		{"status passthrough", status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(mapErrorToGRPC(tt.err)))
		})
	}

	assert.NotContains(t, mapErrorToGRPC(errors.New("dial 10.0.0.1")).Error(), "10.0.0.1")
}
