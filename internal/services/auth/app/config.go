package server

import (
	"encoding/json"
	"time"

	platformconfig "github.com/realmgate/realmgate/internal/platform/config"
)

// Config holds the auth server configuration.
type Config struct {
	HTTPAddr         string        `env:"REALMGATE_HTTP_ADDR"          envDefault:"localhost:8080"`
	BasePath         string        `env:"REALMGATE_BASE_PATH"          envDefault:"/auth"`
	DBPath           string        `env:"REALMGATE_DB_PATH"            envDefault:"data/auth.db"`
	Issuer           string        `env:"REALMGATE_ISSUER"`
	IdentitySecret   string        `env:"REALMGATE_IDENTITY_SECRET"`
	CookieDomain     string        `env:"REALMGATE_COOKIE_DOMAIN"`
	SecureCookies    bool          `env:"REALMGATE_SECURE_COOKIES"     envDefault:"false"`
	SessionTTL       time.Duration `env:"REALMGATE_SESSION_TTL"        envDefault:"30m"`
	IdentityTTL      time.Duration `env:"REALMGATE_IDENTITY_TTL"       envDefault:"10h"`
	UserStoreTimeout time.Duration `env:"REALMGATE_USER_STORE_TIMEOUT" envDefault:"5s"`
	CleanupInterval  time.Duration `env:"REALMGATE_CLEANUP_INTERVAL"   envDefault:"5m"`
	BootstrapJSON    string        `env:"REALMGATE_BOOTSTRAP_REALMS"`
}

// BootstrapRealm seeds one realm and its users at startup.
type BootstrapRealm struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"displayName"`
	Users       []BootstrapUser `json:"users"`
}

// BootstrapUser seeds one login inside a bootstrap realm.
type BootstrapUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoadConfigFromEnv reads the server configuration from the environment.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := platformconfig.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BootstrapRealms decodes the bootstrap JSON, if any.
func (c Config) BootstrapRealms() ([]BootstrapRealm, error) {
	if c.BootstrapJSON == "" {
		return nil, nil
	}
	var realms []BootstrapRealm
	if err := json.Unmarshal([]byte(c.BootstrapJSON), &realms); err != nil {
		return nil, err
	}
	return realms, nil
}
