// Package db provides the persistent credential store for Gatehouse.
// It wraps bun over SQLite (default) or PostgreSQL and exposes the
// lookups the identity resolver depends on: by provider identity, by
// email, and by role name.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"
)

// ctx returns a background context for bun queries.
func ctx() context.Context { return context.Background() }

// DB wraps the bun.DB connection.
type DB struct {
	bun    *bun.DB
	dbType string
}

// DBType returns the database type ("sqlite" or "postgres").
func (db *DB) DBType() string {
	return db.dbType
}

// sqliteDSN normalizes a SQLite path or DSN into a file: URI carrying
// the connection pragmas. busy_timeout waits up to 5 seconds for locks
// to clear and WAL mode allows concurrent reads while writing.
func sqliteDSN(dsn string) string {
	const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	if dsn == ":memory:" {
		// Shared cache so that the migration connection (opened
		// separately by golang-migrate) sees the same database.
		return "file::memory:?cache=shared&" + pragmas
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	return dsn + "?" + pragmas
}

// OpenDB opens a database connection for the given type and DSN,
// runs any pending migrations, and returns the DB handle.
func OpenDB(dbType, dsn string) (*DB, error) {
	var driverName string
	switch dbType {
	case "sqlite":
		driverName = "sqlite"
	case "postgres":
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	// Pragmas go in the DSN so that every connection in the pool gets
	// them. Applying them with Exec would only configure whichever
	// connection the pool handed out for that statement.
	if dbType == "sqlite" {
		dsn = sqliteDSN(dsn)
	}
	migrateDSN := dsn

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbType == "sqlite" {
		// Keep at least one connection open to prevent in-memory databases
		// from being destroyed when all connections close.
		conn.SetMaxIdleConns(1)
	}

	// Run all pending migrations (uses its own connection to avoid
	// m.Close() side effects on the application connection).
	if err := runMigrations(dbType, migrateDSN); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	var bunDB *bun.DB
	switch dbType {
	case "sqlite":
		bunDB = bun.NewDB(conn, sqlitedialect.New())
	case "postgres":
		bunDB = bun.NewDB(conn, pgdialect.New())
	}

	return &DB{bun: bunDB, dbType: dbType}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.bun.Close()
}

// Ping verifies the database connection is alive.
func (db *DB) Ping() error {
	return db.bun.PingContext(ctx())
}

// IsUniqueViolation reports whether err is a unique-constraint violation
// from either backend. The resolver uses this to converge concurrent
// first-time logins for the same identity onto a single user row.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Roles ---

// GetRoleByName returns the role with the given name, or nil if absent.
func (db *DB) GetRoleByName(name string) (*Role, error) {
	var role Role
	err := db.bun.NewSelect().Model(&role).Where("name = ?", name).Scan(ctx())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}


// SeedRoles creates any of the given roles that do not exist yet.
// Existing roles are left untouched, so the call is idempotent.
func (db *DB) SeedRoles(roles ...Role) error {
	for _, role := range roles {
		existing, err := db.GetRoleByName(role.Name)
		if err != nil {
			return fmt.Errorf("failed to check for existing role %q: %w", role.Name, err)
		}
		if existing != nil {
			continue
		}
		now := time.Now()
		role.CreatedAt = now
		role.UpdatedAt = now
		if _, err := db.bun.NewInsert().Model(&role).Exec(ctx()); err != nil {
			return fmt.Errorf("failed to seed role %q: %w", role.Name, err)
		}
	}
	return nil
}

// --- Users ---

// userQuery builds a select that loads a user with its role and provider
// identities populated. Providers are ordered by insertion.
func (db *DB) userQuery(user *User) *bun.SelectQuery {
	return db.bun.NewSelect().Model(user).
		Relation("Role").
		Relation("Providers", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("id ASC")
		})
}

// GetUserByID retrieves a user with role and providers populated,
// or nil if no such user exists.
func (db *DB) GetUserByID(id string) (*User, error) {
	var user User
	err := db.userQuery(&user).Where("?TableAlias.id = ?", id).Scan(ctx())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by their top-level email address,
// or nil if no such user exists.
func (db *DB) GetUserByEmail(email string) (*User, error) {
	var user User
	err := db.userQuery(&user).Where("?TableAlias.email = ?", email).Scan(ctx())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByProviderIdentity retrieves the user owning an identity with the
// given provider and provider subject id, or nil if no such user exists.
// The (provider, provider_id) pair is unique across the whole store.
func (db *DB) GetUserByProviderIdentity(provider Provider, providerID string) (*User, error) {
	var ident ProviderIdentity
	err := db.bun.NewSelect().Model(&ident).
		Where("provider = ?", provider).
		Where("provider_id = ?", providerID).
		Scan(ctx())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return db.GetUserByID(ident.UserID)
}

// CreateUserWithIdentity inserts a new user and its first provider identity
// in a single transaction. A unique-constraint violation surfaces to the
// caller so it can fall back to re-resolving the identity.
func (db *DB) CreateUserWithIdentity(user *User, ident *ProviderIdentity) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	ident.CreatedAt = now
	ident.UpdatedAt = now

	return db.bun.RunInTx(ctx(), nil, func(txCtx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(user).Exec(txCtx); err != nil {
			return err
		}
		ident.UserID = user.ID
		_, err := tx.NewInsert().Model(ident).Exec(txCtx)
		return err
	})
}

// AddProviderIdentity appends a new identity to an existing user.
func (db *DB) AddProviderIdentity(ident *ProviderIdentity) error {
	now := time.Now()
	ident.CreatedAt = now
	ident.UpdatedAt = now
	_, err := db.bun.NewInsert().Model(ident).Exec(ctx())
	return err
}

// UpdateProviderIdentity persists changes to an existing identity.
func (db *DB) UpdateProviderIdentity(ident *ProviderIdentity) error {
	ident.UpdatedAt = time.Now()
	result, err := db.bun.NewUpdate().Model(ident).WherePK().Exec(ctx())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListUsers returns all users with roles populated, newest first.
func (db *DB) ListUsers() ([]User, error) {
	var users []User
	err := db.bun.NewSelect().Model(&users).
		Relation("Role").
		OrderExpr("?TableAlias.created_at DESC").
		Scan(ctx())
	return users, err
}

// TruncateTable removes all rows from a table. Used by test helpers to
// reset shared Postgres databases between tests.
func (db *DB) TruncateTable(table string) error {
	var query string
	switch db.dbType {
	case "postgres":
		query = fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)
	default:
		query = fmt.Sprintf("DELETE FROM %s", table)
	}
	_, err := db.bun.ExecContext(ctx(), query)
	return err
}

// --- OAuth state ---

// SaveOAuthState stores a CSRF state token for an in-flight OAuth flow.
func (db *DB) SaveOAuthState(state, redirectURL string, expiresAt time.Time) error {
	entry := OAuthState{
		State:       state,
		RedirectURL: redirectURL,
		ExpiresAt:   expiresAt,
	}
	_, err := db.bun.NewInsert().Model(&entry).Exec(ctx())
	return err
}

// ConsumeOAuthState atomically loads and deletes an OAuth state token.
func (db *DB) ConsumeOAuthState(state string) (redirectURL string, expiresAt time.Time, err error) {
	err = db.bun.RunInTx(ctx(), nil, func(txCtx context.Context, tx bun.Tx) error {
		var entry OAuthState
		if err := tx.NewSelect().Model(&entry).Where("state = ?", state).Scan(txCtx); err != nil {
			return err
		}
		redirectURL = entry.RedirectURL
		expiresAt = entry.ExpiresAt

		_, err := tx.NewDelete().Model((*OAuthState)(nil)).Where("state = ?", state).Exec(txCtx)
		return err
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return redirectURL, expiresAt, nil
}

// CleanupExpiredOAuthStates removes expired OAuth state tokens.
func (db *DB) CleanupExpiredOAuthStates() error {
	_, err := db.bun.NewDelete().Model((*OAuthState)(nil)).
		Where("expires_at < ?", time.Now()).
		Exec(ctx())
	return err
}
