package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hongminglow/rdbs-admin-be/internal/models"
	"github.com/hongminglow/rdbs-admin-be/internal/storage"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

// Store provides Postgres-backed persistence for the role catalogue and the
// authentication audit trail.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, runs migrations and seeds the default role table.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.seedRoles(ctx, models.DefaultRoles()); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS role (
			id BIGSERIAL PRIMARY KEY,
			role_name TEXT UNIQUE NOT NULL,
			role_description TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS permission (
			id BIGSERIAL PRIMARY KEY,
			permission_name TEXT UNIQUE NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS role_permissions (
			role_id BIGINT NOT NULL REFERENCES role(id) ON DELETE CASCADE,
			permission_id BIGINT NOT NULL REFERENCES permission(id) ON DELETE CASCADE,
			PRIMARY KEY (role_id, permission_id)
		);`,
		`CREATE TABLE IF NOT EXISTS auth_events (
			id BIGSERIAL PRIMARY KEY,
			event_type TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			remote_addr TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS auth_events_occurred_at_idx ON auth_events (occurred_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) seedRoles(ctx context.Context, roles []models.Role) error {
	batch := &pgx.Batch{}
	for _, perm := range models.AllPermissions {
		batch.Queue(`INSERT INTO permission (permission_name) VALUES ($1) ON CONFLICT (permission_name) DO NOTHING`, perm)
	}
	for _, role := range roles {
		batch.Queue(`INSERT INTO role (role_name, role_description) VALUES ($1, $2)
			ON CONFLICT (role_name) DO UPDATE SET role_description = EXCLUDED.role_description`, role.Name, role.Description)
		for _, perm := range role.Permissions {
			batch.Queue(`INSERT INTO role_permissions (role_id, permission_id)
				SELECT r.id, p.id FROM role r, permission p
				WHERE r.role_name = $1 AND p.permission_name = $2
				ON CONFLICT DO NOTHING`, role.Name, perm)
		}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("seed roles: %w", err)
		}
		return nil
	})
}

// ListRoles returns every role with its default permissions, sorted by name.
func (s *Store) ListRoles(ctx context.Context) ([]models.Role, error) {
	const query = `
	SELECT r.role_name, r.role_description,
	(
		SELECT COALESCE(array_agg(p.permission_name ORDER BY p.permission_name), '{}')
		FROM role_permissions rp
		JOIN permission p ON rp.permission_id = p.id
		WHERE rp.role_id = r.id
	)
	FROM role r
	ORDER BY r.role_name;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, scanRole)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

// RecordAuthEvent appends an event to the audit trail.
func (s *Store) RecordAuthEvent(ctx context.Context, event models.AuthEvent) error {
	const query = `
	INSERT INTO auth_events (event_type, email, user_id, category, remote_addr, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6);
	`
	if _, err := s.pool.Exec(ctx, query, event.Type, event.Email, event.UserID, event.Category, event.RemoteAddr, event.OccurredAt); err != nil {
		return fmt.Errorf("record auth event: %w", err)
	}
	return nil
}

func scanRole(row pgx.CollectableRow) (models.Role, error) {
	var role models.Role
	if err := row.Scan(&role.Name, &role.Description, &role.Permissions); err != nil {
		return models.Role{}, err
	}
	return role, nil
}
