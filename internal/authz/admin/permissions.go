package admin

import (
	"net/http"
	"strconv"

	"github.com/odyssey-authz/authzd/internal/authz/permissions"
	"github.com/odyssey-authz/authzd/internal/platform/httpx"
)

func (h *Handler) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	var req createPermissionRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	perm, err := h.permissions.Create(r.Context(), permissions.CreateInput{
		Name:       req.Name,
		Resource:   req.Resource,
		Action:     req.Action,
		Scope:      req.Scope,
		Category:   req.Category,
		Conditions: req.Conditions,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "permission.created", "permission", strconv.FormatInt(perm.ID, 10), map[string]any{"name": perm.Name})
	h.engine.InvalidateAll(r.Context())
	httpx.JSON(w, http.StatusCreated, toPermissionResponse(perm))
}

func (h *Handler) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req updatePermissionRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	perm, err := h.permissions.Update(r.Context(), id, permissions.UpdateInput{
		Scope:      req.Scope,
		SetScope:   req.SetScope,
		Category:   req.Category,
		IsActive:   req.IsActive,
		Conditions: req.Conditions,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "permission.updated", "permission", strconv.FormatInt(perm.ID, 10), nil)
	h.engine.InvalidateAll(r.Context())
	httpx.JSON(w, http.StatusOK, toPermissionResponse(perm))
}

func (h *Handler) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.permissions.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "permission.deleted", "permission", strconv.FormatInt(id, 10), nil)
	h.engine.InvalidateAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	perm, err := h.permissions.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponse(perm))
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	filters := permissions.ListFilters{
		Category: r.URL.Query().Get("category"),
		Resource: r.URL.Query().Get("resource"),
	}
	list, err := h.permissions.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponses(list))
}
