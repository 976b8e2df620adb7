package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	DatabaseURL string

	// TablePrefix is prepended to the events/contexts table names so
	// several installations can share one database.
	TablePrefix string

	// Timezone is the IANA zone used to expand bare YYYY-MM-DD date
	// filters into day boundaries.
	Timezone *time.Location

	// PageSize is the default pager size used when a query does not
	// specify one.
	PageSize int

	// RetentionDays is how long events are kept before the retention
	// worker purges them. 0 disables purging.
	RetentionDays int

	// CacheTTL bounds how long a cached query envelope may live even
	// without an epoch rotation.
	CacheTTL time.Duration

	ListenAddr string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		AdminUser:     getenv("APP_ADMIN_USER", "admin"),
		AdminPassword: getenv("APP_ADMIN_PASSWORD", "changeme"),
		DatabaseURL:   os.Getenv("APP_DATABASE_URL"),
		TablePrefix:   getenv("APP_TABLE_PREFIX", ""),
		Timezone:      time.Local,
		PageSize:      30,
		RetentionDays: 60,
		CacheTTL:      30 * time.Second,
		ListenAddr:    getenv("APP_LISTEN_ADDR", ":8080"),
	}

	if v := os.Getenv("APP_TIMEZONE"); v != "" {
		if loc, err := time.LoadLocation(v); err == nil {
			cfg.Timezone = loc
		} else {
			log.Printf("invalid APP_TIMEZONE %q, using local time: %v", v, err)
		}
	}
	if v := os.Getenv("APP_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PageSize = n
		}
	}
	if v := os.Getenv("APP_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days >= 0 {
			cfg.RetentionDays = days
		}
	}
	if v := os.Getenv("APP_CACHE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.CacheTTL = time.Duration(secs) * time.Second
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
