package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-inventory/internal/auth"
)

func newHTTPServer(svc *fakeService) http.Handler {
	mux := http.NewServeMux()
	NewHTTPHandler(svc, zerolog.Nop()).Register(mux)
	return auth.Middleware(false)(mux)
}

func do(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var admin = map[string]string{auth.HeaderUserID: "admin-1", auth.HeaderUserRole: "admin"}
var clerk = map[string]string{auth.HeaderUserID: "clerk-1", auth.HeaderUserRole: "clerk"}

func TestHTTPHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		headers    map[string]string
		wantStatus int
		wantCode   string
	}{
		{"get supplier", http.MethodGet, "/api/v1/suppliers/s1", "", nil, http.StatusOK, ""},
		{"missing supplier", http.MethodGet, "/api/v1/suppliers/nope", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"create supplier", http.MethodPost, "/api/v1/suppliers", `{"supplier_code":"gam","name":"Gamma"}`, clerk, http.StatusCreated, ""},
		{"create supplier invalid", http.MethodPost, "/api/v1/suppliers", `{"supplier_code":"gam","name":""}`, clerk, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown field", http.MethodPost, "/api/v1/suppliers", `{"vendor":"x"}`, clerk, http.StatusBadRequest, "INVALID_INPUT"},
		{"edit as clerk", http.MethodPatch, "/api/v1/suppliers/s1", `{"name":"Acme 2"}`, clerk, http.StatusForbidden, "FORBIDDEN"},
		{"edit as admin", http.MethodPatch, "/api/v1/suppliers/s1", `{"name":"Acme 2"}`, admin, http.StatusOK, ""},
		{"delete linked supplier", http.MethodDelete, "/api/v1/suppliers/s1", "", admin, http.StatusConflict, "CONFLICT"},
		{"delete empty supplier", http.MethodDelete, "/api/v1/suppliers/s2", "", admin, http.StatusNoContent, ""},
		{"delete stocked item", http.MethodDelete, "/api/v1/items/i2?reason=LOST", "", clerk, http.StatusConflict, "STOCK_REMAINING"},
		{"delete item without reason", http.MethodDelete, "/api/v1/items/i1", "", clerk, http.StatusBadRequest, "INVALID_INPUT"},
		{"delete item wrong scope", http.MethodDelete, "/api/v1/items/i1?reason=LOST&supplier_id=s2", "", clerk, http.StatusNotFound, "NOT_FOUND"},
		{"delete empty item", http.MethodDelete, "/api/v1/items/i1?reason=LOST", "", clerk, http.StatusNoContent, ""},
		{"adjust below zero", http.MethodPost, "/api/v1/items/i2/adjust", `{"delta":-5}`, clerk, http.StatusBadRequest, "INVALID_INPUT"},
		{"history bad type", http.MethodGet, "/api/v1/history/invoice/x", "", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"wrong method", http.MethodPut, "/api/v1/suppliers/s1", "", nil, http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newHTTPServer(newFakeService()), tt.method, tt.target, tt.body, tt.headers)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decode(t, rec)["code"])
			}
		})
	}
}

func TestHTTPHandler_ListSuppliers(t *testing.T) {
	h := newHTTPServer(newFakeService())

	rec := do(t, h, http.MethodGet, "/api/v1/suppliers?page=1&page_size=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["total"])
	assert.Len(t, body["suppliers"], 1)
	assert.Equal(t, float64(1), body["page_size"])

	rec = do(t, h, http.MethodGet, "/api/v1/suppliers?q=beta", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	suppliers := decode(t, rec)["suppliers"].([]interface{})
	require.Len(t, suppliers, 1)
	assert.Equal(t, "BETA", suppliers[0].(map[string]interface{})["supplier_code"])
}

func TestHTTPHandler_Items(t *testing.T) {
	svc := newFakeService()
	h := newHTTPServer(svc)

	rec := do(t, h, http.MethodGet, "/api/v1/suppliers/s1/items?q=pro", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)

	rec = do(t, h, http.MethodPost, "/api/v1/suppliers/s2/items", `{"sku":"B-1","name":"Bolt","quantity":3,"unit_price":10}`, clerk)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "s2", decode(t, rec)["supplier_id"])

	rec = do(t, h, http.MethodPost, "/api/v1/items/i2/adjust", `{"delta":-4,"reason":"count"}`, clerk)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["quantity"])
	assert.Equal(t, "clerk-1", svc.actor())

	rec = do(t, h, http.MethodDelete, "/api/v1/items/i2?reason=OBSOLETE", "", clerk)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/items/i2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
