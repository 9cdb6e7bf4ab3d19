package realm

import "strings"

// CookiePath derives the cookie Path attribute for a realm.
//
// The result is always "<root>/realms/<name>/" with a trailing slash. The
// trailing slash is load-bearing: browsers match cookie paths by string
// prefix at directory boundaries, so without it a cookie scoped to realm
// "foo" would also be sent to realm "foobar". The realm name is used
// verbatim as a path segment; see ValidateName for what is accepted.
func CookiePath(authServerRoot, name string) string {
	root := strings.TrimRight(authServerRoot, "/")
	return root + "/realms/" + name + "/"
}

// LoginPath returns the realm's login endpoint path under the server root.
func LoginPath(authServerRoot, name string) string {
	return CookiePath(authServerRoot, name) + "login"
}

// AuthenticatePath returns the realm's credential submission path.
func AuthenticatePath(authServerRoot, name string) string {
	return CookiePath(authServerRoot, name) + "login-actions/authenticate"
}

// AccountPath returns the realm's protected account page path.
func AccountPath(authServerRoot, name string) string {
	return CookiePath(authServerRoot, name) + "account"
}

// LogoutPath returns the realm's logout endpoint path.
func LogoutPath(authServerRoot, name string) string {
	return CookiePath(authServerRoot, name) + "logout"
}
