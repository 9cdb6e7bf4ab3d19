// Package storage defines the persistence contracts for the auth service.
package storage

import (
	"context"
	"time"

	"github.com/realmgate/realmgate/internal/platform/errors"
	"github.com/realmgate/realmgate/internal/services/auth/realm"
	"github.com/realmgate/realmgate/internal/services/auth/webauthnpolicy"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.ErrNotFound

// User is a login identity inside one realm.
type User struct {
	ID           string
	RealmName    string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RealmStore persists realm records.
type RealmStore interface {
	PutRealm(ctx context.Context, r realm.Realm) error
	GetRealm(ctx context.Context, name string) (realm.Realm, error)
	ListRealms(ctx context.Context) ([]realm.Realm, error)
}

// UserStore persists user records, unique by username within a realm.
type UserStore interface {
	PutUser(ctx context.Context, u User) error
	GetUserByUsername(ctx context.Context, realmName, username string) (User, error)
}

// PolicyStore persists per-realm WebAuthn policies.
type PolicyStore interface {
	PutWebAuthnPolicy(ctx context.Context, realmName string, kind webauthnpolicy.Kind, policy webauthnpolicy.Policy) error
	GetWebAuthnPolicy(ctx context.Context, realmName string, kind webauthnpolicy.Kind) (webauthnpolicy.Policy, error)
}
