package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLength = 16

var ErrMissingSecret = errors.New("ANIME_JWT_SECRET is not set")

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration
}

type ServerConfig struct {
	HTTPAddr    string
	TCPAddr     string
	CORSOrigins []string
	LogLevel    string
	Development bool
}

type RateLimitConfig struct {
	RedisAddr string
	PerMinute int
}

// LoadEnvFile loads variables from a .env file when one exists. Variables
// already present in the environment win.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// LoadAuthConfig refuses to produce a config without a signing secret.
func LoadAuthConfig() (AuthConfig, error) {
	secret := strings.TrimSpace(os.Getenv("ANIME_JWT_SECRET"))
	if secret == "" {
		return AuthConfig{}, ErrMissingSecret
	}
	if len(secret) < minSecretLength {
		return AuthConfig{}, fmt.Errorf("ANIME_JWT_SECRET must be at least %d bytes", minSecretLength)
	}

	hours := 7 * 24
	if raw := strings.TrimSpace(os.Getenv("ANIME_JWT_TTL_HOURS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return AuthConfig{}, fmt.Errorf("ANIME_JWT_TTL_HOURS must be a positive integer, got %q", raw)
		}
		hours = n
	}

	return AuthConfig{
		JWTSecret:   secret,
		JWTIssuer:   getEnv("ANIME_JWT_ISSUER", "anime-reviews"),
		JWTDuration: time.Duration(hours) * time.Hour,
	}, nil
}

func LoadServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:    getEnv("ANIME_HTTP_ADDR", ":8080"),
		TCPAddr:     tcpAddr(),
		CORSOrigins: splitList(getEnv("ANIME_CORS_ORIGINS", "*")),
		LogLevel:    getEnv("ANIME_LOG_LEVEL", "info"),
		Development: strings.EqualFold(os.Getenv("ANIME_ENV"), "development"),
	}
}

func LoadRateLimitConfig() RateLimitConfig {
	perMinute := 60
	if raw := strings.TrimSpace(os.Getenv("ANIME_RATE_LIMIT")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			perMinute = n
		}
	}
	return RateLimitConfig{
		RedisAddr: strings.TrimSpace(os.Getenv("ANIME_REDIS_ADDR")),
		PerMinute: perMinute,
	}
}

// DefaultDBPath is ~/.anime/data.db unless ANIME_DB_PATH is set.
func DefaultDBPath() string {
	if p := os.Getenv("ANIME_DB_PATH"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".anime", "data.db")
}

// tcpAddr defaults to :7070; setting ANIME_TCP_ADDR to an empty value
// turns the TCP activity feed off.
func tcpAddr() string {
	v, ok := os.LookupEnv("ANIME_TCP_ADDR")
	if !ok {
		return ":7070"
	}
	return strings.TrimSpace(v)
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
