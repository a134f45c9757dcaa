package config

import (
	"fmt"
	"os"
)

// IdentityScope selects how long a persisted identity selection survives.
type IdentityScope string

const (
	// ScopeCrossSession keeps identity selections until explicit logout.
	ScopeCrossSession IdentityScope = "cross_session"
	// ScopeTabOnly expires identity selections with the client session TTL.
	ScopeTabOnly IdentityScope = "tab_only"
)

// Config holds process configuration sourced from the environment.
type Config struct {
	AppPort string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	JWTSecret string

	// IdentityScope is a single policy applied to all identity kinds.
	IdentityScope IdentityScope
}

// Load reads configuration from environment variables, applying defaults
// where a value is optional.
func Load() (Config, error) {
	cfg := Config{
		AppPort:       os.Getenv("APP_PORT"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		IdentityScope: IdentityScope(os.Getenv("IDENTITY_SCOPE")),
	}

	if cfg.AppPort == "" {
		cfg.AppPort = "8080"
	}
	if cfg.IdentityScope == "" {
		cfg.IdentityScope = ScopeCrossSession
	}

	switch cfg.IdentityScope {
	case ScopeCrossSession, ScopeTabOnly:
	default:
		return Config{}, fmt.Errorf("config: invalid IDENTITY_SCOPE %q", cfg.IdentityScope)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}

	return cfg, nil
}
