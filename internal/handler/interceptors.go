package handler

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-inventory/internal/auth"
	"github.com/pesio-ai/be-inventory/internal/middleware"
)

// Incoming metadata keys. gRPC lowercases header names.
const (
	mdRequestID = "x-request-id"
	mdUserID    = "x-user-id"
	mdUserRole  = "x-user-role"
)

// contextInterceptor lifts the request id and the gateway's user headers out
// of incoming metadata into the context, mirroring the HTTP middleware
func contextInterceptor(demoMode bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		requestID := first(md, mdRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = middleware.WithRequestID(ctx, requestID)

		caps := auth.Parse(first(md, mdUserID), strings.Join(md.Get(mdUserRole), ","), demoMode)
		ctx = auth.WithCapabilities(ctx, caps)

		_ = grpc.SetHeader(ctx, metadata.Pairs(mdRequestID, requestID))
		return handler(ctx, req)
	}
}

// loggingInterceptor logs one line per call with its status code
func loggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		ev := log.Info()
		if code == codes.Internal || code == codes.Unknown {
			ev = log.Error().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.RequestIDFromContext(ctx)).
			Msg("gRPC request")
		return resp, err
	}
}

// recoveryInterceptor turns a handler panic into codes.Internal
func recoveryInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Str("method", info.FullMethod).
					Msg("Recovered from panic")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// errorInterceptor guarantees every returned error carries a gRPC status
func errorInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	return resp, mapErrorToGRPC(err)
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
