package admin

import (
	"net/http"
	"strconv"

	"github.com/odyssey-authz/authzd/internal/authz/roles"
	"github.com/odyssey-authz/authzd/internal/platform/httpx"
)

func (h *Handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	var req createRoleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	role, err := h.roles.Create(r.Context(), roles.CreateInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		ParentID:    req.ParentID,
		Priority:    req.Priority,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "role.created", "role", strconv.FormatInt(role.ID, 10), map[string]any{"name": role.Name})
	h.engine.InvalidateAll(r.Context())
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req updateRoleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	role, err := h.roles.Update(r.Context(), id, roles.UpdateInput{
		DisplayName: req.DisplayName,
		Description: req.Description,
		IsActive:    req.IsActive,
		Priority:    req.Priority,
		Metadata:    req.Metadata,
		SetParent:   req.SetParent,
		ParentID:    req.ParentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "role.updated", "role", strconv.FormatInt(role.ID, 10), nil)
	h.engine.InvalidateAll(r.Context())
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.roles.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "role.deleted", "role", strconv.FormatInt(id, 10), nil)
	h.engine.InvalidateAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	role, err := h.roles.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	list, err := h.roles.List(r.Context(), includeInactive)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(list))
	for _, role := range list {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleRoleHierarchy(w http.ResponseWriter, r *http.Request) {
	forest, err := h.roles.Hierarchy(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toHierarchy(forest))
}

func (h *Handler) handleBindPermissions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	roleID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req bindPermissionsRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if err := h.bindings.Bind(r.Context(), roleID, req.PermissionIDs, actorID); err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "role.permissions_bound", "role", strconv.FormatInt(roleID, 10),
		map[string]any{"permission_ids": req.PermissionIDs})
	h.engine.InvalidateAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnbindPermissions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	roleID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req bindPermissionsRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if err := h.bindings.Unbind(r.Context(), roleID, req.PermissionIDs); err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "role.permissions_unbound", "role", strconv.FormatInt(roleID, 10),
		map[string]any{"permission_ids": req.PermissionIDs})
	h.engine.InvalidateAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	perms, err := h.bindings.ListForRole(r.Context(), roleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponses(perms))
}
