// Package realmcookie centralizes realm-scoped session cookie behavior.
//
// Every cookie the login flow emits carries the Path derived from its
// session's realm, so the browser never attaches one realm's cookies to
// another realm's requests, even when the realm names overlap textually.
package realmcookie

import (
	"net/http"
	"strings"

	"github.com/realmgate/realmgate/internal/services/auth/realm"
)

// Cookie names carried by a browser authentication flow.
const (
	AuthSessionID = "AUTH_SESSION_ID"
	Restart       = "KC_RESTART"
	Identity      = "KEYCLOAK_IDENTITY"
	Session       = "KEYCLOAK_SESSION"
)

// Names lists every cookie name the login flow may emit.
var Names = []string{AuthSessionID, Restart, Identity, Session}

// Recognized reports whether name is one of the flow's cookie names.
func Recognized(name string) bool {
	for _, known := range Names {
		if name == known {
			return true
		}
	}
	return false
}

// Issuer writes realm-scoped cookies for one auth server deployment.
type Issuer struct {
	// BasePath is the auth server root path, e.g. "/auth".
	BasePath string
	// Domain is the auth server host, set verbatim on emitted cookies.
	Domain string
	// Secure marks emitted cookies as HTTPS-only.
	Secure bool
}

// Set writes a named cookie scoped to the realm's cookie path.
func (i Issuer) Set(w http.ResponseWriter, realmName, name, value string, maxAge int) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    strings.TrimSpace(value),
		Path:     realm.CookiePath(i.BasePath, realmName),
		Domain:   i.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   i.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires a named cookie at the realm's cookie path.
func (i Issuer) Clear(w http.ResponseWriter, realmName, name string) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     realm.CookiePath(i.BasePath, realmName),
		Domain:   i.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   i.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAll expires every flow cookie at the realm's cookie path.
func (i Issuer) ClearAll(w http.ResponseWriter, realmName string) {
	for _, name := range Names {
		i.Clear(w, realmName, name)
	}
}

// Read returns the trimmed value of a named cookie when present.
//
// A malformed or empty cookie reads as absent; the flow treats that as a
// missing session and re-challenges rather than failing the request.
func Read(r *http.Request, name string) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(name)
	if err != nil || cookie == nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return "", false
	}
	return value, true
}
