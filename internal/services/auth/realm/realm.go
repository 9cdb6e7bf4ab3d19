// Package realm provides realm management for the authentication server.
//
// A realm is a tenant namespace with its own users and login endpoint. Realm
// names become literal path segments in login URLs and cookie paths, so the
// validation here is what keeps the cookie scoping in cookiepath.go sound.
package realm

import (
	"regexp"
	"strings"
	"time"

	apperrors "github.com/realmgate/realmgate/internal/platform/errors"
)

var (
	// ErrEmptyName indicates a missing realm name.
	ErrEmptyName = apperrors.New(apperrors.CodeRealmNameEmpty, "realm name is required")
	// ErrInvalidName indicates a realm name that is not a valid path segment.
	ErrInvalidName = apperrors.New(apperrors.CodeRealmNameInvalid, "realm name must be 1-64 alphanumeric, dot, dash, or underscore characters")
	// ErrNotFound indicates the requested realm does not exist.
	ErrNotFound = apperrors.New(apperrors.CodeRealmNotFound, "realm not found")

	namePattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{1,64}$`)
)

// Realm represents a tenant namespace within the authentication server.
type Realm struct {
	Name        string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidateName enforces that a realm name is usable as a literal URL path
// segment. Names are never escaped downstream, so anything that could alter
// path interpretation is rejected here.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	// "." and ".." pass the character class but are relative path segments.
	if name == "." || name == ".." {
		return ErrInvalidName
	}
	return nil
}

// New creates a realm from a validated name.
func New(name, displayName string, now func() time.Time) (Realm, error) {
	if now == nil {
		now = time.Now
	}
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return Realm{}, err
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = name
	}
	createdAt := now().UTC()
	return Realm{
		Name:        name,
		DisplayName: displayName,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}
