package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-authz/authzd/internal/authz"
)

// hierarchyLockID keys the advisory lock serializing reparent operations.
const hierarchyLockID = 815001

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, display_name, description, parent_id, is_system_role, is_active, priority, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (authz.Role, error) {
	var (
		role authz.Role
		meta []byte
	)
	err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description, &role.ParentID,
		&role.IsSystemRole, &role.IsActive, &role.Priority, &meta, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return authz.Role{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &role.Metadata); err != nil {
			return authz.Role{}, fmt.Errorf("roles: decode metadata: %w", err)
		}
	}
	return role, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Insert persists a new role. A duplicate name maps to authz.ErrConflict.
func (r *Repository) Insert(ctx context.Context, role authz.Role) (authz.Role, error) {
	meta, err := json.Marshal(role.Metadata)
	if err != nil {
		return authz.Role{}, fmt.Errorf("roles: encode metadata: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, display_name, description, parent_id, is_system_role, is_active, priority, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+roleColumns,
		role.Name, role.DisplayName, role.Description, role.ParentID,
		role.IsSystemRole, role.IsActive, role.Priority, meta)
	created, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return authz.Role{}, fmt.Errorf("%w: role name %q already exists", authz.ErrConflict, role.Name)
		}
		return authz.Role{}, err
	}
	return created, nil
}

// Get fetches a role by id.
func (r *Repository) Get(ctx context.Context, id int64) (authz.Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Role{}, fmt.Errorf("%w: role %d", authz.ErrNotFound, id)
		}
		return authz.Role{}, err
	}
	return role, nil
}

// List returns roles ordered by priority descending then name.
func (r *Repository) List(ctx context.Context, includeInactive bool) ([]authz.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles`
	if !includeInactive {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY priority DESC, name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []authz.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Delete removes a role by id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %d", authz.ErrNotFound, id)
	}
	return nil
}

// CountChildren counts roles whose parent is the given role.
func (r *Repository) CountChildren(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE parent_id = $1`, id).Scan(&count)
	return count, err
}

// CountActiveAssignments counts non-expired user assignments referencing the role.
func (r *Repository) CountActiveAssignments(ctx context.Context, roleID int64, now time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_role_assignments WHERE role_id = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		roleID, now).Scan(&count)
	return count, err
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// LockHierarchy takes the transaction-scoped advisory lock covering the role tree.
func (t *txRepo) LockHierarchy(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, hierarchyLockID)
	return err
}

func (t *txRepo) Get(ctx context.Context, id int64) (authz.Role, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Role{}, fmt.Errorf("%w: role %d", authz.ErrNotFound, id)
		}
		return authz.Role{}, err
	}
	return role, nil
}

func (t *txRepo) Update(ctx context.Context, role authz.Role) (authz.Role, error) {
	meta, err := json.Marshal(role.Metadata)
	if err != nil {
		return authz.Role{}, fmt.Errorf("roles: encode metadata: %w", err)
	}
	row := t.tx.QueryRow(ctx, `
		UPDATE roles
		SET display_name = $2, description = $3, parent_id = $4, is_active = $5, priority = $6, metadata = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns,
		role.ID, role.DisplayName, role.Description, role.ParentID, role.IsActive, role.Priority, meta)
	updated, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Role{}, fmt.Errorf("%w: role %d", authz.ErrNotFound, role.ID)
		}
		return authz.Role{}, err
	}
	return updated, nil
}
