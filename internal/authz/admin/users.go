package admin

import (
	"net/http"
	"strconv"

	"github.com/odyssey-authz/authzd/internal/authz"
	"github.com/odyssey-authz/authzd/internal/authz/assignments"
	"github.com/odyssey-authz/authzd/internal/authz/engine"
	"github.com/odyssey-authz/authzd/internal/authz/resourceaccess"
	"github.com/odyssey-authz/authzd/internal/platform/httpx"
)

func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req assignRoleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	assignment, err := h.assignments.AssignRole(r.Context(), assignments.AssignRoleInput{
		UserID:     userID,
		RoleID:     req.RoleID,
		Scope:      req.Scope,
		Effect:     authz.Effect(req.Effect),
		ExpiresAt:  req.ExpiresAt,
		Conditions: req.Conditions,
		AssignedBy: actorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "user.role_assigned", "user", strconv.FormatInt(userID, 10),
		map[string]any{"role_id": req.RoleID})
	h.engine.InvalidateUser(r.Context(), userID)
	httpx.JSON(w, http.StatusCreated, toAssignmentResponse(assignment))
}

func (h *Handler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	roleID, err := pathID(r, "roleId")
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.assignments.RevokeRole(r.Context(), userID, roleID); err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "user.role_revoked", "user", strconv.FormatInt(userID, 10),
		map[string]any{"role_id": roleID})
	h.engine.InvalidateUser(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req grantPermissionRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	grant, err := h.assignments.GrantPermission(r.Context(), assignments.GrantPermissionInput{
		UserID:       userID,
		PermissionID: req.PermissionID,
		Scope:        req.Scope,
		Effect:       authz.Effect(req.Effect),
		ExpiresAt:    req.ExpiresAt,
		Reason:       req.Reason,
		GrantedBy:    actorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "user.permission_granted", "user", strconv.FormatInt(userID, 10),
		map[string]any{"permission_id": req.PermissionID})
	h.engine.InvalidateUser(r.Context(), userID)
	httpx.JSON(w, http.StatusCreated, toGrantResponse(grant))
}

func (h *Handler) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	permID, err := pathID(r, "permId")
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.assignments.RevokePermission(r.Context(), userID, permID); err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "user.permission_revoked", "user", strconv.FormatInt(userID, 10),
		map[string]any{"permission_id": permID})
	h.engine.InvalidateUser(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpsertResourceAccess(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	var req resourceAccessRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	entry, err := h.resourceAccess.Upsert(r.Context(), resourceaccess.UpsertInput{
		UserID:       req.UserID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Permissions:  req.Permissions,
		ExpiresAt:    req.ExpiresAt,
		GrantedBy:    actorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "resource_access.upserted", entry.ResourceType, entry.ResourceID,
		map[string]any{"user_id": entry.UserID})
	h.engine.InvalidateUser(r.Context(), entry.UserID)
	httpx.JSON(w, http.StatusOK, toResourceAccessResponse(entry))
}

func (h *Handler) handleRevokeResourceAccess(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actingUser(w, r)
	if !ok {
		return
	}
	var req revokeResourceAccessRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if err := h.resourceAccess.Revoke(r.Context(), req.UserID, req.ResourceType, req.ResourceID); err != nil {
		h.respondError(w, err)
		return
	}
	h.emit(actorID, "resource_access.revoked", req.ResourceType, req.ResourceID,
		map[string]any{"user_id": req.UserID})
	h.engine.InvalidateUser(r.Context(), req.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUserAccess(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}
	info, err := h.engine.UserRoleInfo(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserAccessResponse(info))
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	allowed := h.engine.Check(r.Context(), engine.CheckRequest{
		UserID:     req.UserID,
		Resource:   req.Resource,
		Action:     req.Action,
		Scope:      req.Scope,
		ResourceID: req.ResourceID,
		Context:    req.Context,
	})
	httpx.JSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}
