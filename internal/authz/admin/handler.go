// Package admin exposes the JSON administrative API: role and permission
// management, bindings, user assignments, resource access entries, and the
// check endpoint. Mutations require an X-Acting-User header for audit
// attribution.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-authz/authzd/internal/authz"
	"github.com/odyssey-authz/authzd/internal/authz/assignments"
	"github.com/odyssey-authz/authzd/internal/authz/audit"
	"github.com/odyssey-authz/authzd/internal/authz/bindings"
	"github.com/odyssey-authz/authzd/internal/authz/engine"
	"github.com/odyssey-authz/authzd/internal/authz/permissions"
	"github.com/odyssey-authz/authzd/internal/authz/resourceaccess"
	"github.com/odyssey-authz/authzd/internal/authz/roles"
	"github.com/odyssey-authz/authzd/internal/platform/httpx"
)

// ActingUserHeader names the authenticated administrator performing a
// mutation. Authentication itself happens upstream; the engine only needs the
// id for audit attribution.
const ActingUserHeader = "X-Acting-User"

// Handler wires the administrative endpoints.
type Handler struct {
	logger         *slog.Logger
	roles          *roles.Service
	permissions    *permissions.Service
	bindings       *bindings.Service
	assignments    *assignments.Service
	resourceAccess *resourceaccess.Service
	engine         *engine.Engine
	sink           audit.Recorder
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance. Sink may be nil in tests.
func NewHandler(
	logger *slog.Logger,
	roleSvc *roles.Service,
	permSvc *permissions.Service,
	bindSvc *bindings.Service,
	assignSvc *assignments.Service,
	accessSvc *resourceaccess.Service,
	eng *engine.Engine,
	sink audit.Recorder,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		roles:          roleSvc,
		permissions:    permSvc,
		bindings:       bindSvc,
		assignments:    assignSvc,
		resourceAccess: accessSvc,
		engine:         eng,
		sink:           sink,
		validator:      validator.New(),
	}
}

// MountRoutes registers the administrative routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.Post("/", h.handleCreateRole)
		r.Get("/", h.handleListRoles)
		r.Get("/hierarchy", h.handleRoleHierarchy)
		r.Get("/{id}", h.handleGetRole)
		r.Patch("/{id}", h.handleUpdateRole)
		r.Delete("/{id}", h.handleDeleteRole)
		r.Put("/{id}/permissions", h.handleBindPermissions)
		r.Get("/{id}/permissions", h.handleListRolePermissions)
		r.Delete("/{id}/permissions", h.handleUnbindPermissions)
	})
	r.Route("/permissions", func(r chi.Router) {
		r.Post("/", h.handleCreatePermission)
		r.Get("/", h.handleListPermissions)
		r.Get("/{id}", h.handleGetPermission)
		r.Patch("/{id}", h.handleUpdatePermission)
		r.Delete("/{id}", h.handleDeletePermission)
	})
	r.Route("/users/{id}", func(r chi.Router) {
		r.Post("/roles", h.handleAssignRole)
		r.Delete("/roles/{roleId}", h.handleRevokeRole)
		r.Post("/permissions", h.handleGrantPermission)
		r.Delete("/permissions/{permId}", h.handleRevokePermission)
		r.Get("/access", h.handleUserAccess)
	})
	r.Put("/resource-access", h.handleUpsertResourceAccess)
	r.Delete("/resource-access", h.handleRevokeResourceAccess)
	r.Post("/check", h.handleCheck)
}

// actingUser extracts the administrator id from the request header. Mutating
// handlers refuse to proceed without one.
func (h *Handler) actingUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get(ActingUserHeader)
	if raw == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing "+ActingUserHeader+" header")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "malformed "+ActingUserHeader+" header")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, authz.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, authz.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, authz.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	default:
		h.logger.Error("admin request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return false
	}
	return true
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, authz.ErrInvalidInput
	}
	return id, nil
}

// emit records an administrative mutation in the audit trail.
func (h *Handler) emit(actorID int64, action, resourceType, resourceID string, details map[string]any) {
	if h.sink == nil {
		return
	}
	h.sink.Emit(audit.Event{
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	})
}
