// Package v1 provides the REST handlers of the sync server: change
// notifications, tenant administration and health endpoints.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/crmsync/internal/api/common"
	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/service"
	"github.com/stacklok/crmsync/internal/validators"
)

// maxConfigSize bounds tenant configuration documents
const maxConfigSize = 64 << 10

// Routes holds dependencies for the tenant administration handlers
type Routes struct {
	service service.SyncService
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc service.SyncService) *Routes {
	return &Routes{service: svc}
}

// AdminRouter creates the router for tenant administration
func AdminRouter(svc service.SyncService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.Get("/tenants", routes.listTenants)
	r.Get("/status/{tenantId}", routes.getStatus)
	r.Route("/tenant/{tenantId}", func(r chi.Router) {
		r.Get("/config", routes.getConfig)
		r.Post("/config", routes.putConfig)
		r.Post("/pause", routes.pauseTenant)
		r.Post("/resume", routes.resumeTenant)
		r.Post("/sync", routes.triggerSync)
		r.Delete("/", routes.deleteTenant)
	})

	return r
}

// listTenants handles GET /sync/tenants
func (rr *Routes) listTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := rr.service.ListTenants(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, tenants, http.StatusOK)
}

// getStatus handles GET /sync/status/{tenantId}
func (rr *Routes) getStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.TenantIDParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := rr.service.GetStatus(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, st, http.StatusOK)
}

// getConfig handles GET /sync/tenant/{tenantId}/config
func (rr *Routes) getConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.TenantIDParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg, err := rr.service.GetTenantConfig(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, cfg, http.StatusOK)
}

// putConfig handles POST /sync/tenant/{tenantId}/config
func (rr *Routes) putConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.TenantIDParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Body == nil {
		common.WriteErrorResponse(w, "Request body is required", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigSize+1))
	if err != nil {
		common.WriteErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if err := validators.ValidateTenantConfig(body, maxConfigSize); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	var cfg config.TenantConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		common.WriteErrorResponse(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	switch cfg.TenantID {
	case "":
		cfg.TenantID = tenantID
	case tenantID:
	default:
		common.WriteErrorResponse(w,
			fmt.Sprintf("tenantId %q in body does not match path", cfg.TenantID), http.StatusBadRequest)
		return
	}

	saved, err := rr.service.PutTenantConfig(r.Context(), cfg)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, saved, http.StatusOK)
}

// pauseTenant handles POST /sync/tenant/{tenantId}/pause
func (rr *Routes) pauseTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.TenantIDParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := rr.service.PauseTenant(r.Context(), tenantID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resumeTenant handles POST /sync/tenant/{tenantId}/resume
func (rr *Routes) resumeTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.TenantIDParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := rr.service.ResumeTenant(r.Context(), tenantID, r.URL.Query().Get("adapter"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

// triggerSync handles POST /sync/tenant/{tenantId}/sync
func (rr *Routes) triggerSync(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.TenantIDParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := rr.service.TriggerSync(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

// deleteTenant handles DELETE /sync/tenant/{tenantId}
func (rr *Routes) deleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := common.TenantIDParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := rr.service.DeleteTenant(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrTenantNotFound):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidConfig), errors.Is(err, service.ErrAdapterNotEnabled):
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrConfigManaged):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("Admin request failed", "error", err)
		common.WriteErrorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}
