package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/realmgate/realmgate/internal/platform/id"
	"github.com/realmgate/realmgate/internal/services/auth/flow"
	"github.com/realmgate/realmgate/internal/services/auth/identity"
	"github.com/realmgate/realmgate/internal/services/auth/realm"
	"github.com/realmgate/realmgate/internal/services/auth/storage"
	authsqlite "github.com/realmgate/realmgate/internal/services/auth/storage/sqlite"
	"github.com/realmgate/realmgate/internal/services/auth/web"
)

// Server hosts the auth service.
type Server struct {
	config     Config
	listener   net.Listener
	httpServer *http.Server
	store      *authsqlite.Store
	webServer  *web.Server
}

// New creates a configured auth server listening on the configured address.
func New(cfg Config) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	secret := []byte(cfg.IdentitySecret)
	if len(secret) == 0 {
		// Without a configured secret, identity cookies do not survive a
		// restart. Fine for development, logged so it is not a surprise.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			_ = listener.Close()
			_ = store.Close()
			return nil, fmt.Errorf("generate identity secret: %w", err)
		}
		log.Printf("REALMGATE_IDENTITY_SECRET not set; using an ephemeral signing key")
	}

	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer(cfg.HTTPAddr) + cfg.BasePath
	}
	minter, err := identity.NewMinter(secret, issuer, nil)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("create token minter: %w", err)
	}

	if err := bootstrap(store, cfg); err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}

	manager := flow.NewManager(store, store, cfg.SessionTTL, nil)
	webServer := web.NewServer(web.Config{
		BasePath:         cfg.BasePath,
		CookieDomain:     cfg.CookieDomain,
		SecureCookies:    cfg.SecureCookies,
		SessionTTL:       cfg.SessionTTL,
		IdentityTTL:      cfg.IdentityTTL,
		UserStoreTimeout: cfg.UserStoreTimeout,
	}, store, store, manager, minter)

	mux := http.NewServeMux()
	webServer.RegisterRoutes(mux)

	return &Server{
		config:     cfg,
		listener:   listener,
		httpServer: &http.Server{Handler: mux},
		store:      store,
		webServer:  webServer,
	}, nil
}

// Addr returns the listener address for the auth server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an auth server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the auth server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.webServer.StartCleanup(serverCtx, s.config.CleanupInterval)

	log.Printf("auth server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func openStore(path string) (*authsqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "auth.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := authsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open auth sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close auth store: %v", err)
	}
}

func defaultIssuer(httpAddr string) string {
	addr := strings.TrimSpace(httpAddr)
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

// bootstrap seeds realms and users from configuration. Existing users keep
// their stored password hash; seeding is idempotent across restarts.
func bootstrap(store *authsqlite.Store, cfg Config) error {
	realms, err := cfg.BootstrapRealms()
	if err != nil {
		return fmt.Errorf("decode bootstrap realms: %w", err)
	}
	ctx := context.Background()
	for _, seed := range realms {
		rlm, err := realm.New(seed.Name, seed.DisplayName, nil)
		if err != nil {
			return fmt.Errorf("bootstrap realm %q: %w", seed.Name, err)
		}
		if _, err := store.GetRealm(ctx, rlm.Name); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("lookup bootstrap realm %q: %w", rlm.Name, err)
		}
		if err := store.PutRealm(ctx, rlm); err != nil {
			return fmt.Errorf("store bootstrap realm %q: %w", rlm.Name, err)
		}
		for _, seedUser := range seed.Users {
			username := strings.TrimSpace(seedUser.Username)
			password := strings.TrimSpace(seedUser.Password)
			if username == "" || password == "" {
				continue
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash bootstrap password: %w", err)
			}
			userID, err := id.NewID()
			if err != nil {
				return fmt.Errorf("generate user id: %w", err)
			}
			now := time.Now().UTC()
			if err := store.PutUser(ctx, storage.User{
				ID:           userID,
				RealmName:    rlm.Name,
				Username:     username,
				PasswordHash: string(hash),
				CreatedAt:    now,
				UpdatedAt:    now,
			}); err != nil {
				return fmt.Errorf("store bootstrap user %q: %w", username, err)
			}
		}
	}
	return nil
}
