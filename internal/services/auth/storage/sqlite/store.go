// Package sqlite implements auth persistence over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/realmgate/realmgate/internal/platform/storage/sqlitemigrate"
	"github.com/realmgate/realmgate/internal/services/auth/flow"
	"github.com/realmgate/realmgate/internal/services/auth/realm"
	"github.com/realmgate/realmgate/internal/services/auth/storage"
	"github.com/realmgate/realmgate/internal/services/auth/storage/sqlite/migrations"
	"github.com/realmgate/realmgate/internal/services/auth/webauthnpolicy"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store backs realms, users, authentication sessions, and WebAuthn policies
// with a single SQLite file, so the whole auth flow shares one transaction
// and visibility boundary.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the auth SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutRealm inserts or updates a realm record by name.
func (s *Store) PutRealm(ctx context.Context, r realm.Realm) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO realms (name, display_name, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
    display_name = excluded.display_name,
    updated_at = excluded.updated_at
`, r.Name, r.DisplayName, toMillis(r.CreatedAt), toMillis(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put realm: %w", err)
	}
	return nil
}

// GetRealm returns a realm by name.
func (s *Store) GetRealm(ctx context.Context, name string) (realm.Realm, error) {
	var r realm.Realm
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT name, display_name, created_at, updated_at
FROM realms
WHERE name = ?
`, name).Scan(&r.Name, &r.DisplayName, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return realm.Realm{}, storage.ErrNotFound
	}
	if err != nil {
		return realm.Realm{}, fmt.Errorf("get realm: %w", err)
	}
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return r, nil
}

// ListRealms returns every realm ordered by name.
func (s *Store) ListRealms(ctx context.Context) ([]realm.Realm, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT name, display_name, created_at, updated_at
FROM realms
ORDER BY name
`)
	if err != nil {
		return nil, fmt.Errorf("list realms: %w", err)
	}
	defer rows.Close()

	var realms []realm.Realm
	for rows.Next() {
		var r realm.Realm
		var createdAt, updatedAt int64
		if err := rows.Scan(&r.Name, &r.DisplayName, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan realm: %w", err)
		}
		r.CreatedAt = fromMillis(createdAt)
		r.UpdatedAt = fromMillis(updatedAt)
		realms = append(realms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate realms: %w", err)
	}
	return realms, nil
}

// PutUser inserts or updates a user record by id.
func (s *Store) PutUser(ctx context.Context, u storage.User) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, realm_name, username, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    realm_name = excluded.realm_name,
    username = excluded.username,
    password_hash = excluded.password_hash,
    updated_at = excluded.updated_at
`, u.ID, u.RealmName, u.Username, u.PasswordHash, toMillis(u.CreatedAt), toMillis(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUserByUsername returns a realm's user by login name.
func (s *Store) GetUserByUsername(ctx context.Context, realmName, username string) (storage.User, error) {
	var u storage.User
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, realm_name, username, password_hash, created_at, updated_at
FROM users
WHERE realm_name = ? AND username = ?
`, realmName, username).Scan(&u.ID, &u.RealmName, &u.Username, &u.PasswordHash, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return storage.User{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

// LookupCredential adapts the user table to the login flow's user source.
func (s *Store) LookupCredential(ctx context.Context, realmName, username string) (*flow.Credential, error) {
	u, err := s.GetUserByUsername(ctx, realmName, username)
	if err != nil {
		return nil, err
	}
	return &flow.Credential{UserID: u.ID, PasswordHash: u.PasswordHash}, nil
}

// CreateAuthSession persists a new authentication session.
func (s *Store) CreateAuthSession(ctx context.Context, session *flow.Session) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO auth_sessions (id, realm_name, state, user_id, redirect_uri, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, session.ID, session.RealmName, string(session.State), session.UserID, session.RedirectURI,
		toMillis(session.CreatedAt), toMillis(session.ExpiresAt))
	if err != nil {
		return fmt.Errorf("create auth session: %w", err)
	}
	return nil
}

// GetAuthSession returns an authentication session by id.
func (s *Store) GetAuthSession(ctx context.Context, id string) (*flow.Session, error) {
	var session flow.Session
	var state string
	var createdAt, expiresAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, realm_name, state, user_id, redirect_uri, created_at, expires_at
FROM auth_sessions
WHERE id = ?
`, id).Scan(&session.ID, &session.RealmName, &state, &session.UserID, &session.RedirectURI, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auth session: %w", err)
	}
	session.State = flow.State(state)
	session.CreatedAt = fromMillis(createdAt)
	session.ExpiresAt = fromMillis(expiresAt)
	return &session, nil
}

// UpdateAuthSessionState moves a session to a new state.
func (s *Store) UpdateAuthSessionState(ctx context.Context, id string, state flow.State, userID string) error {
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE auth_sessions
SET state = ?, user_id = ?
WHERE id = ?
`, string(state), userID, id)
	if err != nil {
		return fmt.Errorf("update auth session state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update auth session state: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteAuthSession removes a session by id.
func (s *Store) DeleteAuthSession(ctx context.Context, id string) error {
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM auth_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete auth session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete auth session: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteExpiredAuthSessions removes sessions whose expiry is at or before
// the given time and reports how many were removed.
func (s *Store) DeleteExpiredAuthSessions(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at <= ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("delete expired auth sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired auth sessions: %w", err)
	}
	return affected, nil
}

// PutWebAuthnPolicy stores a realm's policy for one namespace as JSON.
func (s *Store) PutWebAuthnPolicy(ctx context.Context, realmName string, kind webauthnpolicy.Kind, policy webauthnpolicy.Policy) error {
	encoded, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("encode webauthn policy: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO webauthn_policies (realm_name, kind, policy_json, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (realm_name, kind) DO UPDATE SET
    policy_json = excluded.policy_json,
    updated_at = excluded.updated_at
`, realmName, string(kind), string(encoded), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("put webauthn policy: %w", err)
	}
	return nil
}

// GetWebAuthnPolicy returns a realm's policy for one namespace, or the
// default policy when none was stored yet.
func (s *Store) GetWebAuthnPolicy(ctx context.Context, realmName string, kind webauthnpolicy.Kind) (webauthnpolicy.Policy, error) {
	var encoded string
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT policy_json
FROM webauthn_policies
WHERE realm_name = ? AND kind = ?
`, realmName, string(kind)).Scan(&encoded)
	if err == sql.ErrNoRows {
		return webauthnpolicy.Default(), nil
	}
	if err != nil {
		return webauthnpolicy.Policy{}, fmt.Errorf("get webauthn policy: %w", err)
	}
	var policy webauthnpolicy.Policy
	if err := json.Unmarshal([]byte(encoded), &policy); err != nil {
		return webauthnpolicy.Policy{}, fmt.Errorf("decode webauthn policy: %w", err)
	}
	return policy, nil
}
