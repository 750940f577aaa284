package config

import (
	"errors"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs     LogConfig
	Supabase SupabaseConfig

	Port          string
	Env           string
	AllowedOrigin string

	// Signs the token cookies when set. Empty keeps raw token values.
	CookieHashKey string

	// Guest storage backend. Empty uses in-process memory.
	RedisURL string
}

type LogConfig struct {
	Style string
	Level string
}

type SupabaseConfig struct {
	URL        string
	ProjectRef string
	AnonKey    string
	SecretKey  string
	Timeout    time.Duration
}

// Production reports whether cookies must carry the Secure flag.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// AuthURL is the GoTrue base URL for the configured project.
func (c *Config) AuthURL() string {
	return strings.TrimRight(c.Supabase.URL, "/") + "/auth/v1"
}

// RestURL is the PostgREST base URL for the configured project.
func (c *Config) RestURL() string {
	return strings.TrimRight(c.Supabase.URL, "/") + "/rest/v1"
}

func LoadConfig() (*Config, error) {
	key := os.Getenv("SUPABASE_ANON_KEY")
	if key == "" {
		key = os.Getenv("SUPABASE_KEY")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	if supabaseURL == "" {
		return nil, errors.New("SUPABASE_URL is not set")
	}
	if key == "" {
		return nil, errors.New("SUPABASE_ANON_KEY is not set")
	}

	timeout := 10 * time.Second
	if raw := os.Getenv("SUPABASE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, errors.New("SUPABASE_TIMEOUT is not a duration: " + raw)
		}
		timeout = d
	}

	cfg := &Config{
		Port:          getenvDefault("PORT", "8080"),
		Env:           getenvDefault("APP_ENV", "development"),
		AllowedOrigin: getenvDefault("ALLOWED_ORIGIN", "http://localhost:5173"),
		CookieHashKey: os.Getenv("COOKIE_HASH_KEY"),
		RedisURL:      os.Getenv("REDIS_URL"),
		Supabase: SupabaseConfig{
			URL:        supabaseURL,
			ProjectRef: projectRef(supabaseURL),
			AnonKey:    key,
			SecretKey:  os.Getenv("SUPABASE_SECRET_KEY"),
			Timeout:    timeout,
		},
		Logs: LogConfig{
			Style: getenvDefault("LOG_STYLE", "console"),
			Level: getenvDefault("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// Extract project ref from https://<ref>.supabase.co
func projectRef(supabaseURL string) string {
	ref := strings.TrimPrefix(supabaseURL, "https://")
	ref = strings.TrimPrefix(ref, "http://")
	if idx := strings.Index(ref, ".supabase.co"); idx != -1 {
		return ref[:idx]
	}
	return ref
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
