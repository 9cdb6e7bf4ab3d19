// Package identity mints and verifies the signed tokens carried by the
// KEYCLOAK_IDENTITY and KC_RESTART cookies.
//
// The identity token proves who logged in; the restart token snapshots the
// parameters a login flow started with so an interrupted flow can resume
// from a known checkpoint. Both are realm-bound: a token minted for one
// realm never verifies against another.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates a token that failed signature, expiry, or
// realm-binding checks. Callers treat it as an absent cookie.
var ErrInvalidToken = errors.New("invalid identity token")

const (
	typeIdentity = "identity"
	typeRestart  = "restart"
)

type claims struct {
	jwt.RegisteredClaims
	TokenType   string `json:"typ"`
	Realm       string `json:"realm"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// Minter signs and verifies realm-bound tokens with a shared HMAC key.
type Minter struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewMinter creates a minter for the given signing key and issuer URL.
func NewMinter(key []byte, issuer string, now func() time.Time) (*Minter, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Minter{
		key:    key,
		issuer: strings.TrimRight(issuer, "/"),
		now:    now,
	}, nil
}

// MintIdentity creates the signed token carried by the KEYCLOAK_IDENTITY
// cookie after a successful authentication.
func (m *Minter) MintIdentity(realmName, userID string, ttl time.Duration) (string, error) {
	return m.mint(claims{
		TokenType: typeIdentity,
		Realm:     realmName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	}, ttl)
}

// MintRestart creates the signed flow snapshot carried by the KC_RESTART
// cookie when a login challenge is issued.
func (m *Minter) MintRestart(realmName, redirectURI string, ttl time.Duration) (string, error) {
	return m.mint(claims{
		TokenType:   typeRestart,
		Realm:       realmName,
		RedirectURI: redirectURI,
	}, ttl)
}

func (m *Minter) mint(c claims, ttl time.Duration) (string, error) {
	issuedAt := m.now().UTC()
	c.Issuer = m.issuer + "/realms/" + c.Realm
	c.IssuedAt = jwt.NewNumericDate(issuedAt)
	c.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyIdentity validates an identity token against a realm and returns the
// authenticated user ID.
func (m *Minter) VerifyIdentity(tokenString, realmName string) (string, error) {
	c, err := m.verify(tokenString, realmName, typeIdentity)
	if err != nil {
		return "", err
	}
	if c.Subject == "" {
		return "", ErrInvalidToken
	}
	return c.Subject, nil
}

// VerifyRestart validates a restart token against a realm and returns the
// redirect URI the flow started with.
func (m *Minter) VerifyRestart(tokenString, realmName string) (string, error) {
	c, err := m.verify(tokenString, realmName, typeRestart)
	if err != nil {
		return "", err
	}
	return c.RedirectURI, nil
}

func (m *Minter) verify(tokenString, realmName, wantType string) (*claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.key, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if c.TokenType != wantType || c.Realm != realmName {
		return nil, ErrInvalidToken
	}
	return c, nil
}
