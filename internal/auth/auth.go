// Package auth derives the caller's capabilities from trusted gateway headers.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/pesio-ai/be-inventory/internal/workflow"
)

// Headers set by the API gateway after authenticating the user
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// RoleAdmin grants supplier maintenance
const RoleAdmin = "admin"

type ctxKey int

const capsKey ctxKey = iota

// WithCapabilities stores caps in ctx
func WithCapabilities(ctx context.Context, caps workflow.Capabilities) context.Context {
	return context.WithValue(ctx, capsKey, caps)
}

// FromContext returns the caller's capabilities. Requests that did not pass
// through Middleware get the zero value: anonymous, writable, not admin.
func FromContext(ctx context.Context) workflow.Capabilities {
	caps, _ := ctx.Value(capsKey).(workflow.Capabilities)
	return caps
}

// FromRequest reads capabilities from the gateway headers
func FromRequest(r *http.Request, demoMode bool) workflow.Capabilities {
	return Parse(r.Header.Get(HeaderUserID), r.Header.Get(HeaderUserRole), demoMode)
}

// Parse builds capabilities from a user id and a comma separated role list
func Parse(userID, roles string, demoMode bool) workflow.Capabilities {
	caps := workflow.Capabilities{
		Actor:    strings.TrimSpace(userID),
		ReadOnly: demoMode,
	}
	for _, role := range strings.Split(roles, ",") {
		if strings.EqualFold(strings.TrimSpace(role), RoleAdmin) {
			caps.IsAdmin = true
		}
	}
	return caps
}

// Middleware attaches the caller's capabilities to every request context
func Middleware(demoMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithCapabilities(r.Context(), FromRequest(r, demoMode))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
