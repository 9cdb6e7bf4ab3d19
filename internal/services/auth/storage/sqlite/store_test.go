package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/realmgate/realmgate/internal/services/auth/flow"
	"github.com/realmgate/realmgate/internal/services/auth/realm"
	"github.com/realmgate/realmgate/internal/services/auth/storage"
	"github.com/realmgate/realmgate/internal/services/auth/webauthnpolicy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func putTestRealm(t *testing.T, store *Store, name string) realm.Realm {
	t.Helper()
	r, err := realm.New(name, "", nil)
	if err != nil {
		t.Fatalf("new realm: %v", err)
	}
	if err := store.PutRealm(context.Background(), r); err != nil {
		t.Fatalf("put realm: %v", err)
	}
	return r
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	putTestRealm(t, store, "foo")
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// Reopening the same file reapplies nothing and keeps the data.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetRealm(context.Background(), "foo"); err != nil {
		t.Fatalf("get realm after reopen: %v", err)
	}
}

func TestRealmRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	putTestRealm(t, store, "foo")
	putTestRealm(t, store, "foobar")

	r, err := store.GetRealm(ctx, "foo")
	if err != nil {
		t.Fatalf("get realm: %v", err)
	}
	if r.Name != "foo" || r.DisplayName != "foo" {
		t.Fatalf("realm = %+v", r)
	}

	realms, err := store.ListRealms(ctx)
	if err != nil {
		t.Fatalf("list realms: %v", err)
	}
	if len(realms) != 2 || realms[0].Name != "foo" || realms[1].Name != "foobar" {
		t.Fatalf("realms = %+v", realms)
	}

	if _, err := store.GetRealm(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	putTestRealm(t, store, "foo")

	now := time.Now().UTC().Truncate(time.Millisecond)
	user := storage.User{
		ID:           "user-1",
		RealmName:    "foo",
		Username:     "foo",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.PutUser(ctx, user); err != nil {
		t.Fatalf("put user: %v", err)
	}

	got, err := store.GetUserByUsername(ctx, "foo", "foo")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.ID != "user-1" || got.PasswordHash != "$2a$10$hash" {
		t.Fatalf("user = %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created at = %v, want %v", got.CreatedAt, now)
	}

	// Same username in a different realm is a different user.
	if _, err := store.GetUserByUsername(ctx, "foobar", "foo"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	credential, err := store.LookupCredential(ctx, "foo", "foo")
	if err != nil {
		t.Fatalf("lookup credential: %v", err)
	}
	if credential.UserID != "user-1" || credential.PasswordHash != "$2a$10$hash" {
		t.Fatalf("credential = %+v", credential)
	}
}

func TestAuthSessionLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	session := &flow.Session{
		ID:          "session-1",
		RealmName:   "foo",
		State:       flow.StateChallenged,
		RedirectURI: "/auth/realms/foo/account",
		CreatedAt:   now,
		ExpiresAt:   now.Add(30 * time.Minute),
	}
	if err := store.CreateAuthSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := store.GetAuthSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.State != flow.StateChallenged || got.RealmName != "foo" {
		t.Fatalf("session = %+v", got)
	}
	if got.RedirectURI != "/auth/realms/foo/account" {
		t.Fatalf("redirect uri = %q", got.RedirectURI)
	}
	if !got.ExpiresAt.Equal(session.ExpiresAt) {
		t.Fatalf("expires at = %v, want %v", got.ExpiresAt, session.ExpiresAt)
	}

	if err := store.UpdateAuthSessionState(ctx, "session-1", flow.StateAuthenticated, "user-1"); err != nil {
		t.Fatalf("update session: %v", err)
	}
	got, err = store.GetAuthSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.State != flow.StateAuthenticated || got.UserID != "user-1" {
		t.Fatalf("session = %+v", got)
	}

	if err := store.DeleteAuthSession(ctx, "session-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.GetAuthSession(ctx, "session-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteAuthSession(ctx, "session-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
	if err := store.UpdateAuthSessionState(ctx, "session-1", flow.StateTerminated, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestDeleteExpiredAuthSessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	sessions := []*flow.Session{
		{ID: "old-1", RealmName: "foo", State: flow.StateChallenged, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-30 * time.Minute)},
		{ID: "old-2", RealmName: "foobar", State: flow.StateFailed, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)},
		{ID: "live", RealmName: "foo", State: flow.StateChallenged, CreatedAt: now, ExpiresAt: now.Add(30 * time.Minute)},
	}
	for _, session := range sessions {
		if err := store.CreateAuthSession(ctx, session); err != nil {
			t.Fatalf("create session %s: %v", session.ID, err)
		}
	}

	removed, err := store.DeleteExpiredAuthSessions(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if _, err := store.GetAuthSession(ctx, "live"); err != nil {
		t.Fatalf("live session should survive: %v", err)
	}
}

func TestWebAuthnPolicyRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	putTestRealm(t, store, "foo")

	// Unstored policy reads as the default.
	policy, err := store.GetWebAuthnPolicy(ctx, "foo", webauthnpolicy.KindTwoFactor)
	if err != nil {
		t.Fatalf("get default policy: %v", err)
	}
	if policy.RPEntityName != webauthnpolicy.Default().RPEntityName {
		t.Fatalf("policy = %+v", policy)
	}

	updated := webauthnpolicy.Policy{
		RPEntityName:                    "example",
		SignatureAlgorithms:             []string{"ES256", "RS256"},
		RPID:                            "example.test",
		AttestationConveyancePreference: "direct",
		UserVerificationRequirement:     "required",
		CreateTimeout:                   120,
	}
	if err := store.PutWebAuthnPolicy(ctx, "foo", webauthnpolicy.KindTwoFactor, updated); err != nil {
		t.Fatalf("put policy: %v", err)
	}

	got, err := store.GetWebAuthnPolicy(ctx, "foo", webauthnpolicy.KindTwoFactor)
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	if got.RPID != "example.test" || got.CreateTimeout != 120 {
		t.Fatalf("policy = %+v", got)
	}

	// The passwordless namespace is independent.
	passwordless, err := store.GetWebAuthnPolicy(ctx, "foo", webauthnpolicy.KindPasswordless)
	if err != nil {
		t.Fatalf("get passwordless policy: %v", err)
	}
	if passwordless.RPID == "example.test" {
		t.Fatal("passwordless namespace leaked the two-factor policy")
	}
}
