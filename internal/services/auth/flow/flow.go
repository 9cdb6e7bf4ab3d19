// Package flow drives the lifecycle of a browser authentication attempt.
//
// A session starts when a realm's login endpoint issues a challenge, moves
// through credential submission, and ends authenticated, failed, or
// terminated. Lookup-and-transition is atomic per session; unrelated
// sessions proceed in parallel.
package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/realmgate/realmgate/internal/platform/errors"
	"github.com/realmgate/realmgate/internal/platform/id"
)

// State is the lifecycle phase of an authentication session.
type State string

const (
	// StateChallenged means a login form was issued and credentials are awaited.
	StateChallenged State = "challenged"
	// StateSubmitted means credentials arrived and are being verified.
	StateSubmitted State = "submitted"
	// StateAuthenticated means the user proved their identity.
	StateAuthenticated State = "authenticated"
	// StateFailed means the last submission was rejected. The session stays
	// re-presentable: the same form can be submitted again.
	StateFailed State = "failed"
	// StateTerminated means the session ended by logout or expiry.
	StateTerminated State = "terminated"
)

// transitions lists the permitted state changes.
var transitions = map[State][]State{
	StateChallenged:    {StateSubmitted, StateTerminated},
	StateSubmitted:     {StateAuthenticated, StateFailed, StateTerminated},
	StateFailed:        {StateSubmitted, StateTerminated},
	StateAuthenticated: {StateTerminated},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is one in-progress login attempt, referenced by the
// AUTH_SESSION_ID cookie.
type Session struct {
	ID          string
	RealmName   string
	State       State
	UserID      string
	RedirectURI string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the session's TTL has elapsed at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

var (
	// ErrSessionMismatch reports a session cookie that does not resolve to a
	// live, re-presentable session for the target realm. Handlers recover by
	// issuing a fresh challenge.
	ErrSessionMismatch = &apperrors.Error{
		Code:    apperrors.CodeSessionMismatch,
		Message: "authentication session does not match the request",
	}

	// ErrInvalidCredentials reports a rejected username/password pair. The
	// session stays re-presentable.
	ErrInvalidCredentials = &apperrors.Error{
		Code:    apperrors.CodeInvalidCredentials,
		Message: "invalid username or password",
	}

	// ErrUserStoreTimeout reports that the user store did not answer within
	// the request deadline, after one immediate retry.
	ErrUserStoreTimeout = &apperrors.Error{
		Code:    apperrors.CodeUserStoreTimeout,
		Message: "user store did not respond in time",
	}
)

// Store persists authentication sessions.
type Store interface {
	CreateAuthSession(ctx context.Context, session *Session) error
	GetAuthSession(ctx context.Context, id string) (*Session, error)
	UpdateAuthSessionState(ctx context.Context, id string, state State, userID string) error
	DeleteAuthSession(ctx context.Context, id string) error
	DeleteExpiredAuthSessions(ctx context.Context, before time.Time) (int64, error)
}

// Credential is what the user store knows about one login name in a realm.
type Credential struct {
	UserID       string
	PasswordHash string
}

// UserSource looks up login credentials for a realm.
type UserSource interface {
	LookupCredential(ctx context.Context, realmName, username string) (*Credential, error)
}

// Manager coordinates session transitions over a store and a user source.
type Manager struct {
	store Store
	users UserSource
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a session manager. ttl bounds how long a challenge may
// stay open before it expires.
func NewManager(store Store, users UserSource, ttl time.Duration, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store: store,
		users: users,
		ttl:   ttl,
		now:   now,
		locks: make(map[string]*sessionLock),
	}
}

// lock acquires the per-session mutex and returns its release func. Locks
// are refcounted so the map does not grow with dead session IDs.
func (m *Manager) lock(sessionID string) func() {
	m.mu.Lock()
	entry, ok := m.locks[sessionID]
	if !ok {
		entry = &sessionLock{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	m.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		m.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.locks, sessionID)
		}
		m.mu.Unlock()
	}
}

// Begin allocates a fresh challenged session bound to a realm.
func (m *Manager) Begin(ctx context.Context, realmName, redirectURI string) (*Session, error) {
	sessionID, err := id.NewID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "generate session id", err)
	}
	now := m.now().UTC()
	session := &Session{
		ID:          sessionID,
		RealmName:   realmName,
		State:       StateChallenged,
		RedirectURI: redirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := m.store.CreateAuthSession(ctx, session); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "create auth session", err)
	}
	return session, nil
}

// Resolve looks up a session for a submission against a target realm.
//
// A missing, expired, foreign-realm, or non-re-presentable session returns
// ErrSessionMismatch so the caller can issue a fresh challenge instead of a
// hard failure.
func (m *Manager) Resolve(ctx context.Context, sessionID, realmName string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionMismatch
	}
	session, err := m.store.GetAuthSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrSessionMismatch
		}
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "get auth session", err)
	}
	if session.RealmName != realmName {
		return nil, ErrSessionMismatch
	}
	if session.Expired(m.now().UTC()) {
		return nil, ErrSessionMismatch
	}
	if session.State != StateChallenged && session.State != StateFailed {
		return nil, ErrSessionMismatch
	}
	return session, nil
}

// Authenticate runs a credentials submission through the session's
// transitions: submitted, then authenticated or failed.
//
// On invalid credentials the session ends in StateFailed, which the
// transition table keeps re-presentable. The user-store lookup is retried
// once when it exceeds the request deadline; a second timeout surfaces as
// ErrUserStoreTimeout with the session failed.
func (m *Manager) Authenticate(ctx context.Context, sessionID, realmName, username, password string) (*Session, error) {
	unlock := m.lock(sessionID)
	defer unlock()

	session, err := m.Resolve(ctx, sessionID, realmName)
	if err != nil {
		return nil, err
	}
	if err := m.transition(ctx, session, StateSubmitted); err != nil {
		return nil, err
	}

	credential, err := m.lookupWithRetry(ctx, realmName, username)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		// The deadline that killed the lookup would also kill the state
		// write; record the failure on a detached context.
		if ferr := m.transition(context.WithoutCancel(ctx), session, StateFailed); ferr != nil {
			return nil, ferr
		}
		return session, ErrUserStoreTimeout
	case errors.Is(err, apperrors.ErrNotFound):
		credential = nil
	case err != nil:
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "lookup credential", err)
	}

	if credential == nil || bcrypt.CompareHashAndPassword([]byte(credential.PasswordHash), []byte(password)) != nil {
		if ferr := m.transition(ctx, session, StateFailed); ferr != nil {
			return nil, ferr
		}
		return session, ErrInvalidCredentials
	}

	session.UserID = credential.UserID
	if err := m.transition(ctx, session, StateAuthenticated); err != nil {
		return nil, err
	}
	return session, nil
}

// lookupWithRetry queries the user source, retrying once on deadline expiry.
func (m *Manager) lookupWithRetry(ctx context.Context, realmName, username string) (*Credential, error) {
	credential, err := m.users.LookupCredential(ctx, realmName, username)
	if errors.Is(err, context.DeadlineExceeded) {
		credential, err = m.users.LookupCredential(ctx, realmName, username)
	}
	return credential, err
}

// Terminate ends a session on logout. Unknown session IDs are a no-op since
// logout must succeed regardless of cookie state.
func (m *Manager) Terminate(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	unlock := m.lock(sessionID)
	defer unlock()

	if err := m.store.DeleteAuthSession(ctx, sessionID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.Wrap(apperrors.CodeUnknown, "delete auth session", err)
	}
	return nil
}

// CleanupExpired removes sessions whose TTL elapsed. Expiry is advisory;
// Resolve already rejects expired sessions, so this only reclaims storage.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpiredAuthSessions(ctx, m.now().UTC())
}

func (m *Manager) transition(ctx context.Context, session *Session, to State) error {
	if !canTransition(session.State, to) {
		return apperrors.WithMetadata(apperrors.CodeSessionInvalidTransition, "invalid session transition", map[string]string{
			"from": string(session.State),
			"to":   string(to),
		})
	}
	if err := m.store.UpdateAuthSessionState(ctx, session.ID, to, session.UserID); err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "update auth session state", err)
	}
	session.State = to
	return nil
}
