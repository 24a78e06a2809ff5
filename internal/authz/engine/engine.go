// Package engine implements the permission resolution algorithm: given a
// principal, a resource and an action it computes an allow/deny decision from
// role assignments (with hierarchy inheritance), direct grants and per-instance
// resource access entries. Checks are read-only and fail closed.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-authz/authzd/internal/authz"
	"github.com/odyssey-authz/authzd/internal/authz/audit"
)

// directGrantPriority ranks direct user grants above any role-derived grant.
// Role priorities are validated non-negative int32, so MaxInt32 sits strictly
// above all of them.
const directGrantPriority = int64(math.MaxInt32)

// CheckRequest describes one authorization question.
type CheckRequest struct {
	UserID     int64
	Resource   string
	Action     string
	Scope      string
	ResourceID string
	// Context is accepted for forward compatibility with condition evaluation
	// and is not interpreted.
	Context map[string]any
}

// Engine answers permission checks against a Store.
type Engine struct {
	store   Store
	cache   *DecisionCache
	sink    audit.Recorder
	logger  *slog.Logger
	now     func() time.Time
	observe func(allowed bool)
	group   singleflight.Group
}

// New constructs an Engine. Cache and sink may be nil; a nil cache disables
// decision caching and a nil sink disables audit emission.
func New(store Store, cache *DecisionCache, sink audit.Recorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, cache: cache, sink: sink, logger: logger, now: time.Now}
}

// WithDecisionObserver registers a callback invoked with every check outcome,
// typically a metrics counter.
func (e *Engine) WithDecisionObserver(fn func(allowed bool)) {
	e.observe = fn
}

func (e *Engine) observeDecision(allowed bool) {
	if e.observe != nil {
		e.observe(allowed)
	}
}

// candidate is one grant competing for the decision.
type candidate struct {
	resource string
	action   string
	scope    *string
	effect   authz.Effect
	priority int64
}

// Check answers the request. It never returns an error: any failure while
// resolving, including a panic from malformed stored data, is logged, audited
// and resolved as deny.
func (e *Engine) Check(ctx context.Context, req CheckRequest) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("authz check panic",
				slog.Int64("user_id", req.UserID),
				slog.String("resource", req.Resource),
				slog.String("action", req.Action),
				slog.Any("panic", r))
			e.emitFailure(req, fmt.Sprintf("panic: %v", r))
			allowed = false
			e.observeDecision(false)
		}
	}()

	if cached, ok := e.cacheGet(ctx, req); ok {
		e.observeDecision(cached)
		return cached
	}

	allowed, err := e.resolveShared(ctx, req)
	if err != nil {
		e.logger.Error("authz resolution failed",
			slog.Int64("user_id", req.UserID),
			slog.String("resource", req.Resource),
			slog.String("action", req.Action),
			slog.Any("error", err))
		e.emitFailure(req, err.Error())
		e.observeDecision(false)
		return false
	}

	e.observeDecision(allowed)
	e.cacheSet(ctx, req, allowed)
	if allowed {
		e.logger.Debug("authz allowed",
			slog.Int64("user_id", req.UserID),
			slog.String("resource", req.Resource),
			slog.String("action", req.Action))
	} else {
		e.emitDeny(req)
	}
	return allowed
}

// resolveShared collapses concurrent identical checks into a single
// resolution pass shared by all waiters. The shared fn recovers its own
// panics: singleflight would otherwise crash the process instead of letting
// Check fail closed.
func (e *Engine) resolveShared(ctx context.Context, req CheckRequest) (bool, error) {
	key := fmt.Sprintf("%d:%s:%s:%s:%s", req.UserID, req.Resource, req.Action, req.Scope, req.ResourceID)
	ch := e.group.DoChan(key, func() (v interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return e.resolve(ctx, req)
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

func (e *Engine) resolve(ctx context.Context, req CheckRequest) (bool, error) {
	now := e.now()
	var decision bool
	err := e.store.View(ctx, func(ctx context.Context, s Snapshot) error {
		candidates, err := e.collect(ctx, s, req.UserID, now)
		if err != nil {
			return err
		}
		var matched []candidate
		for _, c := range candidates {
			if c.resource != req.Resource || c.action != req.Action {
				continue
			}
			if !authz.ScopeMatches(c.scope, req.Scope) {
				continue
			}
			matched = append(matched, c)
		}
		if len(matched) > 0 {
			decision = resolveConflicts(matched)
			return nil
		}
		if req.ResourceID == "" {
			return nil
		}
		entry, found, err := s.ResourceAccess(ctx, req.UserID, req.Resource, req.ResourceID)
		if err != nil {
			return err
		}
		if found && entry.ActiveAt(now) && entry.Permissions[req.Action] {
			decision = true
		}
		return nil
	})
	return decision, err
}

// resolveConflicts applies the precedence rule: the numerically highest
// priority subset decides, and within it any deny wins.
func resolveConflicts(matched []candidate) bool {
	top := matched[0].priority
	for _, c := range matched[1:] {
		if c.priority > top {
			top = c.priority
		}
	}
	for _, c := range matched {
		if c.priority == top && c.effect == authz.EffectDeny {
			return false
		}
	}
	return true
}

// collect gathers every candidate grant of the user: bound permissions of each
// actively assigned role and all its ancestors, plus direct grants.
func (e *Engine) collect(ctx context.Context, s Snapshot, userID int64, now time.Time) ([]candidate, error) {
	var candidates []candidate

	assignments, err := s.Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, assignment := range assignments {
		if !assignment.ActiveAt(now) {
			continue
		}
		effect := assignment.Effect
		if effect == "" {
			effect = authz.EffectAllow
		}
		cursor := assignment.RoleID
		seen := make(map[int64]bool, 4)
		for depth := 0; depth < authz.MaxHierarchyDepth; depth++ {
			if seen[cursor] {
				e.logger.Warn("role hierarchy cycle during walk", slog.Int64("role_id", cursor))
				break
			}
			seen[cursor] = true
			role, err := s.Role(ctx, cursor)
			if err != nil {
				return nil, err
			}
			if role.IsActive {
				perms, err := s.RolePermissions(ctx, role.ID)
				if err != nil {
					return nil, err
				}
				for _, perm := range perms {
					if !perm.IsActive {
						continue
					}
					candidates = append(candidates, candidate{
						resource: perm.Resource,
						action:   perm.Action,
						scope:    narrowScope(assignment.Scope, perm.Scope),
						effect:   effect,
						priority: int64(role.Priority),
					})
				}
			}
			if role.ParentID == nil {
				break
			}
			cursor = *role.ParentID
		}
	}

	grants, err := s.DirectGrants(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, dg := range grants {
		if !dg.Grant.ActiveAt(now) || !dg.Permission.IsActive {
			continue
		}
		effect := dg.Grant.Effect
		if effect == "" {
			effect = authz.EffectAllow
		}
		candidates = append(candidates, candidate{
			resource: dg.Permission.Resource,
			action:   dg.Permission.Action,
			scope:    narrowScope(dg.Grant.Scope, dg.Permission.Scope),
			effect:   effect,
			priority: directGrantPriority,
		})
	}
	return candidates, nil
}

// narrowScope prefers the grant's own scope over the permission's default.
func narrowScope(grantScope, permScope *string) *string {
	if grantScope != nil && *grantScope != "" {
		return grantScope
	}
	return permScope
}

func (e *Engine) cacheGet(ctx context.Context, req CheckRequest) (bool, bool) {
	if e.cache == nil {
		return false, false
	}
	allowed, ok, err := e.cache.Get(ctx, req)
	if err != nil {
		e.logger.Warn("authz cache get", slog.Any("error", err))
		return false, false
	}
	return allowed, ok
}

func (e *Engine) cacheSet(ctx context.Context, req CheckRequest, allowed bool) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, req, allowed); err != nil {
		e.logger.Warn("authz cache set", slog.Any("error", err))
	}
}

// InvalidateUser drops cached decisions of one user after a mutation that
// could change their answers.
func (e *Engine) InvalidateUser(ctx context.Context, userID int64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.BumpUser(ctx, userID); err != nil {
		e.logger.Warn("authz cache bump user", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// InvalidateAll drops every cached decision; used after role or permission
// edits whose blast radius spans users.
func (e *Engine) InvalidateAll(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.BumpAll(ctx); err != nil {
		e.logger.Warn("authz cache bump all", slog.Any("error", err))
	}
}

func (e *Engine) emitDeny(req CheckRequest) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(audit.Event{
		ActorID:      req.UserID,
		Action:       "check.denied",
		ResourceType: req.Resource,
		ResourceID:   req.ResourceID,
		Details: map[string]any{
			"action": req.Action,
			"scope":  req.Scope,
		},
	})
}

func (e *Engine) emitFailure(req CheckRequest, reason string) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(audit.Event{
		ActorID:      req.UserID,
		Action:       "check.resolution_failed",
		ResourceType: req.Resource,
		ResourceID:   req.ResourceID,
		Details: map[string]any{
			"action": req.Action,
			"scope":  req.Scope,
			"reason": reason,
		},
	})
}
