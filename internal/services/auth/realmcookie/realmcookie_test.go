package realmcookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSetScopesCookieToRealmPath(t *testing.T) {
	issuer := Issuer{BasePath: "/auth", Domain: "auth.example.test"}
	w := httptest.NewRecorder()

	issuer.Set(w, "foo", AuthSessionID, " session-1 ", 0)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != AuthSessionID {
		t.Fatalf("name = %q", c.Name)
	}
	if c.Value != "session-1" {
		t.Fatalf("value = %q, want trimmed %q", c.Value, "session-1")
	}
	if c.Path != "/auth/realms/foo/" {
		t.Fatalf("path = %q, want %q", c.Path, "/auth/realms/foo/")
	}
	if c.Domain != "auth.example.test" {
		t.Fatalf("domain = %q", c.Domain)
	}
	if !c.HttpOnly {
		t.Fatal("expected HttpOnly cookie")
	}
}

func TestClearExpiresCookieAtRealmPath(t *testing.T) {
	issuer := Issuer{BasePath: "/auth"}
	w := httptest.NewRecorder()

	issuer.Clear(w, "foobar", Restart)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.MaxAge != -1 {
		t.Fatalf("max age = %d, want -1", c.MaxAge)
	}
	if c.Path != "/auth/realms/foobar/" {
		t.Fatalf("path = %q, want %q", c.Path, "/auth/realms/foobar/")
	}
}

func TestClearAllCoversEveryFlowCookie(t *testing.T) {
	issuer := Issuer{BasePath: "/auth"}
	w := httptest.NewRecorder()

	issuer.ClearAll(w, "foo")

	cookies := w.Result().Cookies()
	if len(cookies) != len(Names) {
		t.Fatalf("expected %d cookies, got %d", len(Names), len(cookies))
	}
	seen := map[string]bool{}
	for _, c := range cookies {
		seen[c.Name] = true
		if c.Path != "/auth/realms/foo/" {
			t.Errorf("cookie %s path = %q", c.Name, c.Path)
		}
	}
	for _, name := range Names {
		if !seen[name] {
			t.Errorf("cookie %s was not cleared", name)
		}
	}
}

func TestReadTreatsEmptyValueAsAbsent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/auth/realms/foo/login", nil)
	r.AddCookie(&http.Cookie{Name: AuthSessionID, Value: "   "})

	if _, ok := Read(r, AuthSessionID); ok {
		t.Fatal("whitespace-only cookie should read as absent")
	}
	if _, ok := Read(r, Identity); ok {
		t.Fatal("missing cookie should read as absent")
	}
}

func TestReadReturnsTrimmedValue(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/auth/realms/foo/login", nil)
	r.AddCookie(&http.Cookie{Name: Session, Value: "abc123"})

	value, ok := Read(r, Session)
	if !ok || value != "abc123" {
		t.Fatalf("Read = %q, %v", value, ok)
	}
}

func TestParseSetCookie(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		cookie   string
		wantOK   bool
		wantVal  string
		wantPath string
	}{
		{
			name:     "attributes after value",
			line:     "AUTH_SESSION_ID=abc123; Path=/auth/realms/foo/; HttpOnly; SameSite=Lax",
			cookie:   "AUTH_SESSION_ID",
			wantOK:   true,
			wantVal:  "abc123",
			wantPath: "/auth/realms/foo/",
		},
		{
			name:     "path before value is tolerated",
			line:     "Path=/auth/realms/foobar/; KC_RESTART=tok; Secure",
			cookie:   "KC_RESTART",
			wantOK:   true,
			wantVal:  "tok",
			wantPath: "/auth/realms/foobar/",
		},
		{
			name:   "wrong cookie name",
			line:   "OTHER=abc; Path=/",
			cookie: "AUTH_SESSION_ID",
			wantOK: false,
		},
		{
			name:   "malformed line",
			line:   "garbage without equals; ;;",
			cookie: "AUTH_SESSION_ID",
			wantOK: false,
		},
		{
			name:   "empty value reads as absent",
			line:   "AUTH_SESSION_ID=; Path=/auth/realms/foo/",
			cookie: "AUTH_SESSION_ID",
			wantOK: false,
		},
		{
			name:     "lowercase path attribute",
			line:     "KEYCLOAK_IDENTITY=jwt.value.here; path=/auth/realms/foo/",
			cookie:   "KEYCLOAK_IDENTITY",
			wantOK:   true,
			wantVal:  "jwt.value.here",
			wantPath: "/auth/realms/foo/",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, ok := ParseSetCookie(tc.line, tc.cookie)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if parsed.Value != tc.wantVal {
				t.Errorf("value = %q, want %q", parsed.Value, tc.wantVal)
			}
			if parsed.Path != tc.wantPath {
				t.Errorf("path = %q, want %q", parsed.Path, tc.wantPath)
			}
		})
	}
}

func TestRecognized(t *testing.T) {
	for _, name := range Names {
		if !Recognized(name) {
			t.Errorf("expected %s to be recognized", name)
		}
	}
	if Recognized("JSESSIONID") {
		t.Error("unexpected recognition of foreign cookie")
	}
}
