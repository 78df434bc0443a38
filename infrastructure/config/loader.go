// Package config provides unified configuration loading for the
// transactional core: environment/.env variables, struct-tag decoding, and
// per-tenant YAML settings overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file if present. Missing files are not an error —
// production deployments set real environment variables instead.
func LoadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// EnvOrDefault returns the trimmed environment variable, or defaultValue if unset/empty.
func EnvOrDefault(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// RequireEnv returns the trimmed environment variable, erroring if unset/empty.
func RequireEnv(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%s is required but not configured", key)
	}
	return v, nil
}

// Decode populates target's struct fields tagged `env:"..."` from the
// process environment, applying any `default:"..."` tags for unset keys.
func Decode(target any) error {
	return envdecode.Decode(target)
}
