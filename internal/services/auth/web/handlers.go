package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"

	apperrors "github.com/realmgate/realmgate/internal/platform/errors"
	"github.com/realmgate/realmgate/internal/services/auth/flow"
	"github.com/realmgate/realmgate/internal/services/auth/realm"
	"github.com/realmgate/realmgate/internal/services/auth/realmcookie"
	"github.com/realmgate/realmgate/internal/services/auth/storage"
	"github.com/realmgate/realmgate/internal/services/auth/webauthnpolicy"
)

type loginView struct {
	RealmDisplayName string
	ActionURL        string
	RedirectURI      string
	Error            string
}

type accountView struct {
	RealmDisplayName string
	UserID           string
	LogoutURL        string
}

type errorView struct {
	Message string
}

// lookupRealm resolves the {realm} path segment against the realm store.
func (s *Server) lookupRealm(ctx context.Context, r *http.Request) (realm.Realm, error) {
	name := r.PathValue("realm")
	if err := realm.ValidateName(name); err != nil {
		return realm.Realm{}, realm.ErrNotFound
	}
	rlm, err := s.realms.GetRealm(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return realm.Realm{}, realm.ErrNotFound
	}
	return rlm, err
}

func errorStatus(err error) int {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.Code.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func (s *Server) renderError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = templates.ExecuteTemplate(w, "error.html", errorView{Message: message})
}

func (s *Server) renderLogin(w http.ResponseWriter, rlm realm.Realm, redirectURI, errorMessage string, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = templates.ExecuteTemplate(w, "login.html", loginView{
		RealmDisplayName: rlm.DisplayName,
		ActionURL:        realm.AuthenticatePath(s.config.BasePath, rlm.Name),
		RedirectURI:      redirectURI,
		Error:            errorMessage,
	})
}

func (s *Server) renderAccount(w http.ResponseWriter, rlm realm.Realm, userID string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = templates.ExecuteTemplate(w, "account.html", accountView{
		RealmDisplayName: rlm.DisplayName,
		UserID:           userID,
		LogoutURL:        realm.LogoutPath(s.config.BasePath, rlm.Name),
	})
}

// challenge allocates a fresh session and serves the login form. The
// AUTH_SESSION_ID and KC_RESTART cookies it sets are scoped to the realm's
// cookie path, never wider.
func (s *Server) challenge(ctx context.Context, w http.ResponseWriter, rlm realm.Realm, redirectURI string, status int) {
	session, err := s.sessions.Begin(ctx, rlm.Name, redirectURI)
	if err != nil {
		log.Printf("begin auth session: %v", err)
		s.renderError(w, http.StatusInternalServerError, "Could not start a login session.")
		return
	}
	restart, err := s.tokens.MintRestart(rlm.Name, redirectURI, s.config.SessionTTL)
	if err != nil {
		log.Printf("mint restart token: %v", err)
		s.renderError(w, http.StatusInternalServerError, "Could not start a login session.")
		return
	}
	maxAge := int(s.config.SessionTTL.Seconds())
	s.cookies.Set(w, rlm.Name, realmcookie.AuthSessionID, session.ID, maxAge)
	s.cookies.Set(w, rlm.Name, realmcookie.Restart, restart, maxAge)
	s.renderLogin(w, rlm, redirectURI, "", status)
}

// authenticatedUser returns the user ID carried by a valid identity cookie.
// An invalid or foreign-realm token reads as not signed in.
func (s *Server) authenticatedUser(r *http.Request, realmName string) (string, bool) {
	token, ok := realmcookie.Read(r, realmcookie.Identity)
	if !ok {
		return "", false
	}
	userID, err := s.tokens.VerifyIdentity(token, realmName)
	if err != nil {
		return "", false
	}
	return userID, true
}

// handleLogin serves the login challenge for one realm.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "auth.login")
	defer span.End()

	rlm, err := s.lookupRealm(ctx, r)
	if err != nil {
		s.renderError(w, errorStatus(err), "Realm not found.")
		return
	}
	redirectURI := r.URL.Query().Get("redirect_uri")

	// A valid identity cookie short-circuits the challenge: the browser is
	// already signed in to this realm.
	if userID, ok := s.authenticatedUser(r, rlm.Name); ok {
		if redirectURI != "" {
			http.Redirect(w, r, redirectURI, http.StatusFound)
			return
		}
		s.renderAccount(w, rlm, userID)
		return
	}

	s.challenge(ctx, w, rlm, redirectURI, http.StatusOK)
}

// handleAuthenticate consumes a credentials submission for one realm.
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "auth.authenticate")
	defer span.End()

	rlm, err := s.lookupRealm(ctx, r)
	if err != nil {
		s.renderError(w, errorStatus(err), "Realm not found.")
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	redirectURI := r.PostFormValue("redirect_uri")
	sessionID, _ := realmcookie.Read(r, realmcookie.AuthSessionID)

	authCtx, cancel := context.WithTimeout(ctx, s.config.UserStoreTimeout)
	defer cancel()
	session, err := s.sessions.Authenticate(authCtx, sessionID, rlm.Name, username, password)
	switch {
	case errors.Is(err, flow.ErrSessionMismatch):
		// The cookie did not resolve to a live challenge for this realm.
		// Recover with a fresh challenge instead of a hard error, keeping the
		// redirect target from the restart checkpoint when the form lost it.
		if redirectURI == "" {
			if restart, ok := realmcookie.Read(r, realmcookie.Restart); ok {
				if uri, verr := s.tokens.VerifyRestart(restart, rlm.Name); verr == nil {
					redirectURI = uri
				}
			}
		}
		s.challenge(ctx, w, rlm, redirectURI, http.StatusOK)
		return
	case errors.Is(err, flow.ErrInvalidCredentials):
		s.renderLogin(w, rlm, redirectURI, "Invalid username or password.", http.StatusUnauthorized)
		return
	case errors.Is(err, flow.ErrUserStoreTimeout):
		s.renderError(w, http.StatusServiceUnavailable, "Could not verify your credentials. Please try again.")
		return
	case err != nil:
		log.Printf("authenticate: %v", err)
		s.renderError(w, http.StatusInternalServerError, "Could not complete the login.")
		return
	}

	token, err := s.tokens.MintIdentity(rlm.Name, session.UserID, s.config.IdentityTTL)
	if err != nil {
		log.Printf("mint identity token: %v", err)
		s.renderError(w, http.StatusInternalServerError, "Could not complete the login.")
		return
	}
	maxAge := int(s.config.IdentityTTL.Seconds())
	s.cookies.Set(w, rlm.Name, realmcookie.Identity, token, maxAge)
	s.cookies.Set(w, rlm.Name, realmcookie.Session, rlm.Name+"/"+session.UserID+"/"+session.ID, maxAge)
	// The flow completed; the restart checkpoint is spent.
	s.cookies.Clear(w, rlm.Name, realmcookie.Restart)

	if redirectURI == "" {
		redirectURI = session.RedirectURI
	}
	if redirectURI != "" {
		http.Redirect(w, r, redirectURI, http.StatusFound)
		return
	}
	s.renderAccount(w, rlm, session.UserID)
}

// handleAccount serves the realm's protected account page.
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "auth.account")
	defer span.End()

	rlm, err := s.lookupRealm(ctx, r)
	if err != nil {
		s.renderError(w, errorStatus(err), "Realm not found.")
		return
	}

	userID, ok := s.authenticatedUser(r, rlm.Name)
	if !ok {
		target := realm.LoginPath(s.config.BasePath, rlm.Name) +
			"?redirect_uri=" + url.QueryEscape(realm.AccountPath(s.config.BasePath, rlm.Name))
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	s.renderAccount(w, rlm, userID)
}

// handleLogout terminates the session and clears every flow cookie at the
// realm's path.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "auth.logout")
	defer span.End()

	rlm, err := s.lookupRealm(ctx, r)
	if err != nil {
		s.renderError(w, errorStatus(err), "Realm not found.")
		return
	}

	if sessionID, ok := realmcookie.Read(r, realmcookie.AuthSessionID); ok {
		if err := s.sessions.Terminate(ctx, sessionID); err != nil {
			log.Printf("terminate auth session: %v", err)
		}
	}
	s.cookies.ClearAll(w, rlm.Name)
	http.Redirect(w, r, realm.LoginPath(s.config.BasePath, rlm.Name), http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type jsonError struct {
	Error string `json:"error"`
}

// handlePolicyGet reads a realm's WebAuthn policy for one namespace.
func (s *Server) handlePolicyGet(kind webauthnpolicy.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), "auth.webauthn_policy.get")
		defer span.End()

		rlm, err := s.lookupRealm(ctx, r)
		if err != nil {
			writeJSON(w, errorStatus(err), jsonError{Error: "realm not found"})
			return
		}
		policy, err := s.policies.GetWebAuthnPolicy(ctx, rlm.Name, kind)
		if err != nil {
			log.Printf("get webauthn policy: %v", err)
			writeJSON(w, http.StatusInternalServerError, jsonError{Error: "could not load policy"})
			return
		}
		writeJSON(w, http.StatusOK, policy)
	}
}

// handlePolicyPut validates and stores a realm's WebAuthn policy.
func (s *Server) handlePolicyPut(kind webauthnpolicy.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), "auth.webauthn_policy.put")
		defer span.End()

		rlm, err := s.lookupRealm(ctx, r)
		if err != nil {
			writeJSON(w, errorStatus(err), jsonError{Error: "realm not found"})
			return
		}
		var policy webauthnpolicy.Policy
		if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
			writeJSON(w, http.StatusBadRequest, jsonError{Error: "invalid policy document"})
			return
		}
		if err := policy.Validate(); err != nil {
			writeJSON(w, errorStatus(err), jsonError{Error: err.Error()})
			return
		}
		if err := s.policies.PutWebAuthnPolicy(ctx, rlm.Name, kind, policy); err != nil {
			log.Printf("put webauthn policy: %v", err)
			writeJSON(w, http.StatusInternalServerError, jsonError{Error: "could not store policy"})
			return
		}
		writeJSON(w, http.StatusOK, policy)
	}
}
