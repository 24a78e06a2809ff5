package resourceaccess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-authz/authzd/internal/authz"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accessColumns = `id, user_id, resource_type, resource_id, permissions, is_active, expires_at, granted_by, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccess(row rowScanner) (authz.ResourceAccess, error) {
	var (
		entry authz.ResourceAccess
		perms []byte
	)
	err := row.Scan(&entry.ID, &entry.UserID, &entry.ResourceType, &entry.ResourceID,
		&perms, &entry.IsActive, &entry.ExpiresAt, &entry.GrantedBy, &entry.CreatedAt)
	if err != nil {
		return authz.ResourceAccess{}, err
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &entry.Permissions); err != nil {
			return authz.ResourceAccess{}, fmt.Errorf("resourceaccess: decode permissions: %w", err)
		}
	}
	return entry, nil
}

// Upsert creates or replaces the entry keyed by (user, resource_type, resource_id).
func (r *Repository) Upsert(ctx context.Context, entry authz.ResourceAccess) (authz.ResourceAccess, error) {
	perms, err := json.Marshal(entry.Permissions)
	if err != nil {
		return authz.ResourceAccess{}, fmt.Errorf("resourceaccess: encode permissions: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO resource_access (user_id, resource_type, resource_id, permissions, is_active, expires_at, granted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, resource_type, resource_id)
		DO UPDATE SET permissions = EXCLUDED.permissions, is_active = EXCLUDED.is_active,
			expires_at = EXCLUDED.expires_at, granted_by = EXCLUDED.granted_by
		RETURNING `+accessColumns,
		entry.UserID, entry.ResourceType, entry.ResourceID, perms, entry.IsActive, entry.ExpiresAt, entry.GrantedBy)
	return scanAccess(row)
}

// Delete removes the entry for (user, resource_type, resource_id).
func (r *Repository) Delete(ctx context.Context, userID int64, resourceType, resourceID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM resource_access WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3`,
		userID, resourceType, resourceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Get fetches the entry for (user, resource_type, resource_id).
func (r *Repository) Get(ctx context.Context, userID int64, resourceType, resourceID string) (authz.ResourceAccess, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accessColumns+` FROM resource_access WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3`,
		userID, resourceType, resourceID)
	entry, err := scanAccess(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.ResourceAccess{}, fmt.Errorf("%w: access entry", authz.ErrNotFound)
		}
		return authz.ResourceAccess{}, err
	}
	return entry, nil
}

// ListForUser returns all entries of the user.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]authz.ResourceAccess, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+accessColumns+` FROM resource_access WHERE user_id = $1 ORDER BY resource_type, resource_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []authz.ResourceAccess
	for rows.Next() {
		entry, err := scanAccess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
