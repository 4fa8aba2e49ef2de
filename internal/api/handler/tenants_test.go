package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftline/tenantd/internal/api/handler"
	mw "github.com/craftline/tenantd/internal/api/middleware"
	"github.com/craftline/tenantd/internal/store"
	"github.com/craftline/tenantd/pkg/models"
	"github.com/craftline/tenantd/pkg/schemaname"
)

// mockRegistry implements handler.TenantRegistry with overridable functions.
type mockRegistry struct {
	initFunc   func(ctx context.Context) error
	createFunc func(ctx context.Context, entityID, entityName string) (*models.Tenant, bool, error)
	getFunc    func(ctx context.Context, entityID string) (*models.Tenant, error)
	listFunc   func(ctx context.Context) ([]*models.Tenant, error)
	updateFunc func(ctx context.Context, entityID string, opts ...store.TenantUpdateOption) (*models.Tenant, error)
	deleteFunc func(ctx context.Context, entityID string) (bool, error)
	repairFunc func(ctx context.Context) (*store.RepairReport, error)
}

func (m *mockRegistry) Init(ctx context.Context) error {
	if m.initFunc != nil {
		return m.initFunc(ctx)
	}
	return nil
}

func (m *mockRegistry) Create(ctx context.Context, entityID, entityName string) (*models.Tenant, bool, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, entityID, entityName)
	}
	return nil, false, errors.New("not implemented")
}

func (m *mockRegistry) GetByEntityID(ctx context.Context, entityID string) (*models.Tenant, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, entityID)
	}
	return nil, store.ErrNotFound
}

func (m *mockRegistry) List(ctx context.Context) ([]*models.Tenant, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockRegistry) Update(ctx context.Context, entityID string, opts ...store.TenantUpdateOption) (*models.Tenant, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, entityID, opts...)
	}
	return nil, store.ErrNotFound
}

func (m *mockRegistry) Delete(ctx context.Context, entityID string) (bool, error) {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, entityID)
	}
	return false, nil
}

func (m *mockRegistry) Repair(ctx context.Context) (*store.RepairReport, error) {
	if m.repairFunc != nil {
		return m.repairFunc(ctx)
	}
	return &store.RepairReport{}, nil
}

func testTenant() *models.Tenant {
	now := time.Now().UTC()
	return &models.Tenant{
		ID:         "tenant_acme-1",
		EntityID:   "acme-1",
		EntityName: "Acme Co",
		SchemaName: "tenant_entity_acme_1",
		Status:     models.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// serveWithParam routes the request through chi so URL parameters resolve.
func serveWithParam(h http.HandlerFunc, method, pattern string, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "expected data envelope, got %s", w.Body.String())
	return data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", w.Body.String())
	return errObj
}

// ========================================
// Create Handler Tests
// ========================================

func TestCreateHandler_NewTenant(t *testing.T) {
	reg := &mockRegistry{
		createFunc: func(_ context.Context, entityID, entityName string) (*models.Tenant, bool, error) {
			assert.Equal(t, "acme-1", entityID)
			assert.Equal(t, "Acme Co", entityName)
			return testTenant(), true, nil
		},
	}
	h := handler.NewCreateHandler(reg)

	body := bytes.NewBufferString(`{"entity_id": "acme-1", "entity_name": "Acme Co"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "acme-1", data["entity_id"])
	assert.Equal(t, "tenant_entity_acme_1", data["schema_name"])
	assert.Equal(t, "active", data["status"])
}

func TestCreateHandler_ExistingTenantReturns200(t *testing.T) {
	reg := &mockRegistry{
		createFunc: func(context.Context, string, string) (*models.Tenant, bool, error) {
			return testTenant(), false, nil
		},
	}
	h := handler.NewCreateHandler(reg)

	body := bytes.NewBufferString(`{"entity_id": "acme-1", "entity_name": "Acme Two"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "Acme Co", data["entity_name"])
}

func TestCreateHandler_InvalidJSON(t *testing.T) {
	h := handler.NewCreateHandler(&mockRegistry{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w)["code"])
}

func TestCreateHandler_MissingFields(t *testing.T) {
	h := handler.NewCreateHandler(&mockRegistry{})

	tests := []struct {
		name string
		body string
	}{
		{"missing entity_id", `{"entity_name": "Acme Co"}`},
		{"missing entity_name", `{"entity_id": "acme-1"}`},
		{"empty body", `{}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants", bytes.NewBufferString(tc.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreateHandler_InvalidEntityID(t *testing.T) {
	reg := &mockRegistry{
		createFunc: func(context.Context, string, string) (*models.Tenant, bool, error) {
			return nil, false, schemaname.ErrInvalidEntityID
		},
	}
	h := handler.NewCreateHandler(reg)

	body := bytes.NewBufferString(`{"entity_id": "bad;id", "entity_name": "Acme Co"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w)["code"])
}

// ========================================
// Get Handler Tests
// ========================================

func TestGetHandler_Found(t *testing.T) {
	reg := &mockRegistry{
		getFunc: func(_ context.Context, entityID string) (*models.Tenant, error) {
			assert.Equal(t, "acme-1", entityID)
			return testTenant(), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/acme-1", nil)
	w := serveWithParam(handler.NewGetHandler(reg), http.MethodGet, "/api/v1/tenants/{entityID}", req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "tenant_acme-1", data["id"])
}

func TestGetHandler_NotFound(t *testing.T) {
	reg := &mockRegistry{}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/ghost", nil)
	w := serveWithParam(handler.NewGetHandler(reg), http.MethodGet, "/api/v1/tenants/{entityID}", req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "TENANT_NOT_FOUND", decodeError(t, w)["code"])
}

// ========================================
// List Handler Tests
// ========================================

func TestListHandler_ReturnsTenants(t *testing.T) {
	reg := &mockRegistry{
		listFunc: func(context.Context) ([]*models.Tenant, error) {
			return []*models.Tenant{testTenant()}, nil
		},
	}
	h := handler.NewListHandler(reg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	tenants := data["tenants"].([]any)
	assert.Len(t, tenants, 1)
}

func TestListHandler_EmptyIsArrayNotNull(t *testing.T) {
	h := handler.NewListHandler(&mockRegistry{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	tenants, ok := data["tenants"].([]any)
	require.True(t, ok, "tenants must be an array, got %s", w.Body.String())
	assert.Empty(t, tenants)
}

// ========================================
// Update Handler Tests
// ========================================

func TestUpdateHandler_ChangesStatus(t *testing.T) {
	reg := &mockRegistry{
		updateFunc: func(_ context.Context, entityID string, opts ...store.TenantUpdateOption) (*models.Tenant, error) {
			assert.Equal(t, "acme-1", entityID)
			assert.Len(t, opts, 1)
			tenant := testTenant()
			tenant.Status = models.StatusInactive
			return tenant, nil
		},
	}

	body := bytes.NewBufferString(`{"status": "inactive"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/tenants/acme-1", body)
	w := serveWithParam(handler.NewUpdateHandler(reg), http.MethodPatch, "/api/v1/tenants/{entityID}", req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "inactive", data["status"])
}

func TestUpdateHandler_NoFields(t *testing.T) {
	body := bytes.NewBufferString(`{}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/tenants/acme-1", body)
	w := serveWithParam(handler.NewUpdateHandler(&mockRegistry{}), http.MethodPatch, "/api/v1/tenants/{entityID}", req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateHandler_EmptyName(t *testing.T) {
	body := bytes.NewBufferString(`{"entity_name": ""}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/tenants/acme-1", body)
	w := serveWithParam(handler.NewUpdateHandler(&mockRegistry{}), http.MethodPatch, "/api/v1/tenants/{entityID}", req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateHandler_RejectsPendingStatus(t *testing.T) {
	body := bytes.NewBufferString(`{"status": "pending"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/tenants/acme-1", body)
	w := serveWithParam(handler.NewUpdateHandler(&mockRegistry{}), http.MethodPatch, "/api/v1/tenants/{entityID}", req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w)["code"])
}

func TestUpdateHandler_NotFound(t *testing.T) {
	body := bytes.NewBufferString(`{"status": "inactive"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/tenants/ghost", body)
	w := serveWithParam(handler.NewUpdateHandler(&mockRegistry{}), http.MethodPatch, "/api/v1/tenants/{entityID}", req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ========================================
// Delete Handler Tests
// ========================================

func TestDeleteHandler_Deleted(t *testing.T) {
	reg := &mockRegistry{
		deleteFunc: func(_ context.Context, entityID string) (bool, error) {
			assert.Equal(t, "acme-1", entityID)
			return true, nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/acme-1", nil)
	w := serveWithParam(handler.NewDeleteHandler(reg), http.MethodDelete, "/api/v1/tenants/{entityID}", req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["deleted"])
}

func TestDeleteHandler_NotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/ghost", nil)
	w := serveWithParam(handler.NewDeleteHandler(&mockRegistry{}), http.MethodDelete, "/api/v1/tenants/{entityID}", req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "TENANT_NOT_FOUND", decodeError(t, w)["code"])
}

// ========================================
// Init / Repair Handler Tests
// ========================================

func TestInitHandler_OK(t *testing.T) {
	h := handler.NewInitHandler(&mockRegistry{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/init", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, true, data["initialized"])
}

func TestInitHandler_Error(t *testing.T) {
	reg := &mockRegistry{
		initFunc: func(context.Context) error { return errors.New("db down") },
	}
	h := handler.NewInitHandler(reg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/init", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, w)["code"])
}

func TestRepairHandler_EmptyReportHasArrays(t *testing.T) {
	h := handler.NewRepairHandler(&mockRegistry{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/repair", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	for _, field := range []string{"recreated", "leaked", "corrupt"} {
		arr, ok := data[field].([]any)
		require.True(t, ok, "%s must be an array, got %s", field, w.Body.String())
		assert.Empty(t, arr)
	}
}

func TestRepairHandler_ReportsFindings(t *testing.T) {
	reg := &mockRegistry{
		repairFunc: func(context.Context) (*store.RepairReport, error) {
			return &store.RepairReport{
				Recreated: []string{"tenant_entity_acme_1"},
				Leaked:    []string{"tenant_entity_orphan"},
			}, nil
		},
	}
	h := handler.NewRepairHandler(reg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/repair", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, []any{"tenant_entity_acme_1"}, data["recreated"])
	assert.Equal(t, []any{"tenant_entity_orphan"}, data["leaked"])
}

// ========================================
// Context Handler Tests
// ========================================

func TestContextHandler_Unbound(t *testing.T) {
	h := handler.NewContextHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/context", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Nil(t, data["tenant"])
	assert.Equal(t, "public", data["schema"])
}

func TestContextHandler_Bound(t *testing.T) {
	h := handler.NewContextHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/context", nil)
	req = req.WithContext(mw.SetTenant(req.Context(), testTenant()))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	require.NotNil(t, data["tenant"])
	tenant := data["tenant"].(map[string]any)
	assert.Equal(t, "acme-1", tenant["entity_id"])
	assert.Equal(t, "tenant_entity_acme_1", data["schema"])
}
