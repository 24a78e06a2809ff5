// Package resourceaccess manages per-resource-instance ACL entries. Entries
// grant a user specific actions on one concrete resource independent of the
// role/permission model; the resolution engine reads them as a fallback.
package resourceaccess

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-authz/authzd/internal/authz"
)

// UpsertInput carries the fields accepted when granting instance access.
type UpsertInput struct {
	UserID       int64
	ResourceType string
	ResourceID   string
	Permissions  map[string]bool
	ExpiresAt    *time.Time
	GrantedBy    int64
}

// RepositoryPort defines data access methods for resource access entries.
type RepositoryPort interface {
	Upsert(ctx context.Context, entry authz.ResourceAccess) (authz.ResourceAccess, error)
	Delete(ctx context.Context, userID int64, resourceType, resourceID string) (int64, error)
	Get(ctx context.Context, userID int64, resourceType, resourceID string) (authz.ResourceAccess, error)
	ListForUser(ctx context.Context, userID int64) ([]authz.ResourceAccess, error)
}

// Service handles resource access business logic.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Upsert creates or replaces the entry for (user, resourceType, resourceID).
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (authz.ResourceAccess, error) {
	resourceType := strings.TrimSpace(input.ResourceType)
	resourceID := strings.TrimSpace(input.ResourceID)
	if resourceType == "" || resourceID == "" {
		return authz.ResourceAccess{}, fmt.Errorf("%w: resource type and id required", authz.ErrInvalidInput)
	}
	if len(input.Permissions) == 0 {
		return authz.ResourceAccess{}, fmt.Errorf("%w: at least one action required", authz.ErrInvalidInput)
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return authz.ResourceAccess{}, fmt.Errorf("%w: expiry is in the past", authz.ErrInvalidInput)
	}
	return s.repo.Upsert(ctx, authz.ResourceAccess{
		UserID:       input.UserID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Permissions:  input.Permissions,
		IsActive:     true,
		ExpiresAt:    input.ExpiresAt,
		GrantedBy:    input.GrantedBy,
	})
}

// Revoke removes the entry for (user, resourceType, resourceID).
func (s *Service) Revoke(ctx context.Context, userID int64, resourceType, resourceID string) error {
	removed, err := s.repo.Delete(ctx, userID, resourceType, resourceID)
	if err != nil {
		return err
	}
	if removed == 0 {
		return fmt.Errorf("%w: no access entry for user %d on %s/%s", authz.ErrNotFound, userID, resourceType, resourceID)
	}
	return nil
}

// Get fetches the entry for (user, resourceType, resourceID).
func (s *Service) Get(ctx context.Context, userID int64, resourceType, resourceID string) (authz.ResourceAccess, error) {
	return s.repo.Get(ctx, userID, resourceType, resourceID)
}

// ListForUser returns all entries of the user.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]authz.ResourceAccess, error) {
	return s.repo.ListForUser(ctx, userID)
}
