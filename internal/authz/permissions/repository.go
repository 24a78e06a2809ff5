package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const permColumns = `id, name, resource, action, scope, category, is_system_perm, conditions, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermission(row rowScanner) (authz.Permission, error) {
	var (
		perm authz.Permission
		cond []byte
	)
	err := row.Scan(&perm.ID, &perm.Name, &perm.Resource, &perm.Action, &perm.Scope,
		&perm.Category, &perm.IsSystemPerm, &cond, &perm.IsActive, &perm.CreatedAt, &perm.UpdatedAt)
	if err != nil {
		return authz.Permission{}, err
	}
	if len(cond) > 0 {
		if err := json.Unmarshal(cond, &perm.Conditions); err != nil {
			return authz.Permission{}, fmt.Errorf("permissions: decode conditions: %w", err)
		}
	}
	return perm, nil
}

// Insert persists a new permission. A duplicate name maps to authz.ErrConflict.
func (r *Repository) Insert(ctx context.Context, perm authz.Permission) (authz.Permission, error) {
	cond, err := json.Marshal(perm.Conditions)
	if err != nil {
		return authz.Permission{}, fmt.Errorf("permissions: encode conditions: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, resource, action, scope, category, is_system_perm, conditions, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+permColumns,
		perm.Name, perm.Resource, perm.Action, perm.Scope, perm.Category,
		perm.IsSystemPerm, cond, perm.IsActive)
	created, err := scanPermission(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return authz.Permission{}, fmt.Errorf("%w: permission name %q already exists", authz.ErrConflict, perm.Name)
		}
		return authz.Permission{}, err
	}
	return created, nil
}

// Get fetches a permission by id.
func (r *Repository) Get(ctx context.Context, id int64) (authz.Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permColumns+` FROM permissions WHERE id = $1`, id)
	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Permission{}, fmt.Errorf("%w: permission %d", authz.ErrNotFound, id)
		}
		return authz.Permission{}, err
	}
	return perm, nil
}

// Update persists a full permission record.
func (r *Repository) Update(ctx context.Context, perm authz.Permission) (authz.Permission, error) {
	cond, err := json.Marshal(perm.Conditions)
	if err != nil {
		return authz.Permission{}, fmt.Errorf("permissions: encode conditions: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE permissions
		SET scope = $2, category = $3, conditions = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+permColumns,
		perm.ID, perm.Scope, perm.Category, cond, perm.IsActive)
	updated, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Permission{}, fmt.Errorf("%w: permission %d", authz.ErrNotFound, perm.ID)
		}
		return authz.Permission{}, err
	}
	return updated, nil
}

// List returns permissions matching the filters, ordered by name.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]authz.Permission, error) {
	query := `SELECT ` + permColumns + ` FROM permissions WHERE ($1 = '' OR category = $1) AND ($2 = '' OR resource = $2) ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query, filters.Category, filters.Resource)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []authz.Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// DeleteCascade removes the permission and its bindings in one transaction.
func (r *Repository) DeleteCascade(ctx context.Context, id int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM user_permissions WHERE permission_id = $1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: permission %d", authz.ErrNotFound, id)
	}
	return tx.Commit(ctx)
}
