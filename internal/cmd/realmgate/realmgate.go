// Package realmgate parses configuration for the realmgate command.
package realmgate

import (
	"context"
	"flag"
	"log"
	"strings"

	platformotel "github.com/realmgate/realmgate/internal/platform/otel"
	server "github.com/realmgate/realmgate/internal/services/auth/app"
)

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig loads the server configuration from the environment and lets
// flags override the common knobs.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (server.Config, error) {
	cfg, err := server.LoadConfigFromEnv()
	if err != nil {
		return server.Config{}, err
	}
	cfg.HTTPAddr = envOrDefault(lookup, "REALMGATE_HTTP_ADDR", cfg.HTTPAddr)

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The auth HTTP server address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the SQLite database file")
	fs.StringVar(&cfg.BasePath, "base-path", cfg.BasePath, "Auth server root path")
	if err := fs.Parse(args); err != nil {
		return server.Config{}, err
	}
	return cfg, nil
}

// Run starts the auth server with tracing wired up.
func Run(ctx context.Context, cfg server.Config) error {
	shutdown, err := platformotel.Setup(ctx, "realmgate")
	if err != nil {
		log.Printf("otel setup: %v", err)
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Printf("otel shutdown: %v", err)
			}
		}()
	}
	return server.Run(ctx, cfg)
}

func envOrDefault(lookup EnvLookup, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	if value, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
