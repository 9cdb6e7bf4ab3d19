// Package auth is the identity boundary of the server.
//
// It owns realms, their users, the browser login flow, and the cookies that
// carry login state, so nothing outside this tree has to reason about how a
// session is scoped or proven.
//
// Subpackages:
//   - app: auth server wiring and lifecycle
//   - realm: realm model and cookie-path derivation
//   - realmcookie: realm-scoped cookie issuing and parsing
//   - flow: the authentication session state machine
//   - identity: signed identity and restart tokens
//   - webauthnpolicy: per-realm WebAuthn policy data and validation
//   - storage: persistence interfaces and the SQLite implementation
//   - web: HTTP handlers for the login flow and the admin policy API
package auth
