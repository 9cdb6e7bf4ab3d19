// Package web hosts the browser-facing login endpoints and the admin policy
// API.
//
// Every route is realm-scoped under {base}/realms/{realm}/ and every cookie
// it emits carries that realm's derived path, which is what keeps two realms
// with overlapping names from seeing each other's session state.
package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/realmgate/realmgate/internal/services/auth/flow"
	"github.com/realmgate/realmgate/internal/services/auth/identity"
	"github.com/realmgate/realmgate/internal/services/auth/realmcookie"
	"github.com/realmgate/realmgate/internal/services/auth/storage"
	"github.com/realmgate/realmgate/internal/services/auth/webauthnpolicy"
)

// Config carries the web server's tunables.
type Config struct {
	// BasePath is the auth server root path, e.g. "/auth".
	BasePath string
	// CookieDomain is set verbatim on emitted cookies.
	CookieDomain string
	// SecureCookies marks emitted cookies HTTPS-only.
	SecureCookies bool
	// SessionTTL bounds how long a login challenge stays open.
	SessionTTL time.Duration
	// IdentityTTL bounds how long a signed identity cookie stays valid.
	IdentityTTL time.Duration
	// UserStoreTimeout bounds each credential check.
	UserStoreTimeout time.Duration
}

// Server wires the login flow, stores, and cookie issuer behind HTTP routes.
type Server struct {
	config   Config
	realms   storage.RealmStore
	policies storage.PolicyStore
	sessions *flow.Manager
	tokens   *identity.Minter
	cookies  realmcookie.Issuer
	tracer   trace.Tracer
	clock    func() time.Time
}

// NewServer builds a web server over the given stores and session manager.
func NewServer(config Config, realms storage.RealmStore, policies storage.PolicyStore, sessions *flow.Manager, tokens *identity.Minter) *Server {
	return &Server{
		config:   config,
		realms:   realms,
		policies: policies,
		sessions: sessions,
		tokens:   tokens,
		cookies: realmcookie.Issuer{
			BasePath: config.BasePath,
			Domain:   config.CookieDomain,
			Secure:   config.SecureCookies,
		},
		tracer: otel.Tracer("realmgate/auth/web"),
		clock:  time.Now,
	}
}

// RegisterRoutes registers the login flow and admin endpoints on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	base := s.config.BasePath

	mux.HandleFunc(http.MethodGet+" "+base+"/realms/{realm}/login", s.handleLogin)
	mux.HandleFunc(http.MethodPost+" "+base+"/realms/{realm}/login-actions/authenticate", s.handleAuthenticate)
	mux.HandleFunc(http.MethodGet+" "+base+"/realms/{realm}/account", s.handleAccount)
	mux.HandleFunc(http.MethodGet+" "+base+"/realms/{realm}/logout", s.handleLogout)

	mux.HandleFunc(http.MethodGet+" "+base+"/admin/realms/{realm}/webauthn-policy", s.handlePolicyGet(webauthnpolicy.KindTwoFactor))
	mux.HandleFunc(http.MethodPut+" "+base+"/admin/realms/{realm}/webauthn-policy", s.handlePolicyPut(webauthnpolicy.KindTwoFactor))
	mux.HandleFunc(http.MethodGet+" "+base+"/admin/realms/{realm}/webauthn-policy-passwordless", s.handlePolicyGet(webauthnpolicy.KindPasswordless))
	mux.HandleFunc(http.MethodPut+" "+base+"/admin/realms/{realm}/webauthn-policy-passwordless", s.handlePolicyPut(webauthnpolicy.KindPasswordless))

	mux.HandleFunc(http.MethodGet+" "+base+"/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// StartCleanup starts periodic expiry cleanup for abandoned login sessions.
func (s *Server) StartCleanup(ctx context.Context, interval time.Duration) {
	if s == nil || s.sessions == nil || interval <= 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed, err := s.sessions.CleanupExpired(ctx); err != nil {
					log.Printf("auth session cleanup: %v", err)
				} else if removed > 0 {
					log.Printf("auth session cleanup removed %d sessions", removed)
				}
			}
		}
	}()
}
