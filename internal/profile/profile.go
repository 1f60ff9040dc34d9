package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultTitleContextPattern matches the "[Context: ...]" block the chat UI
// prepends to a message when calls are attached, including the blank line
// that separates it from the user's text.
const DefaultTitleContextPattern = `^\[Context:[^\n]*\]\r?\n\r?\n`

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where callsight stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// JWTSecret verifies HS256 bearer tokens issued by the auth provider.
	JWTSecret string // CALLSIGHT_JWT_SECRET

	// Chat session configuration
	SessionCacheTTL      time.Duration // CALLSIGHT_SESSION_CACHE_TTL (default: 5m)
	SessionCacheCapacity int           // CALLSIGHT_SESSION_CACHE_CAPACITY (default: 1000)
	TitlePlaceholder     string        // CALLSIGHT_TITLE_PLACEHOLDER (default: New Chat)
	TitleMaxLength       int           // CALLSIGHT_TITLE_MAX_LENGTH (default: 50)
	TitleContextPattern  string        // CALLSIGHT_TITLE_CONTEXT_PATTERN (default: DefaultTitleContextPattern)
	ArchiveRetentionDays int           // CALLSIGHT_ARCHIVE_RETENTION_DAYS (default: 0, purging disabled)
	CleanupInterval      time.Duration // CALLSIGHT_CLEANUP_INTERVAL (default: 24h)

	// Rate limiting per authenticated user
	RateLimitPerSecond float64 // CALLSIGHT_RATE_LIMIT_RPS (default: 10)
	RateLimitBurst     int     // CALLSIGHT_RATE_LIMIT_BURST (default: 20)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		slog.Warn("ignoring invalid integer env value", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		slog.Warn("ignoring invalid float env value", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		slog.Warn("ignoring invalid duration env value", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

// FromEnv loads the chat and auth configuration from environment variables.
// Core server settings (mode, addr, port, driver, dsn, data) come from flags.
func (p *Profile) FromEnv() {
	p.JWTSecret = os.Getenv("CALLSIGHT_JWT_SECRET")

	p.SessionCacheTTL = getDurationEnvOrDefault("CALLSIGHT_SESSION_CACHE_TTL", 5*time.Minute)
	p.SessionCacheCapacity = getIntEnvOrDefault("CALLSIGHT_SESSION_CACHE_CAPACITY", 1000)
	p.TitlePlaceholder = getEnvOrDefault("CALLSIGHT_TITLE_PLACEHOLDER", "New Chat")
	p.TitleMaxLength = getIntEnvOrDefault("CALLSIGHT_TITLE_MAX_LENGTH", 50)
	p.TitleContextPattern = getEnvOrDefault("CALLSIGHT_TITLE_CONTEXT_PATTERN", DefaultTitleContextPattern)
	p.ArchiveRetentionDays = getIntEnvOrDefault("CALLSIGHT_ARCHIVE_RETENTION_DAYS", 0)
	p.CleanupInterval = getDurationEnvOrDefault("CALLSIGHT_CLEANUP_INTERVAL", 24*time.Hour)

	p.RateLimitPerSecond = getFloatEnvOrDefault("CALLSIGHT_RATE_LIMIT_RPS", 10)
	p.RateLimitBurst = getIntEnvOrDefault("CALLSIGHT_RATE_LIMIT_BURST", 20)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.JWTSecret == "" {
		return errors.New("CALLSIGHT_JWT_SECRET is required in prod mode")
	}

	if p.TitleContextPattern != "" {
		if _, err := regexp.Compile(p.TitleContextPattern); err != nil {
			return errors.Wrap(err, "invalid title context pattern")
		}
	}

	switch p.Driver {
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
		return nil
	case "sqlite", "":
		p.Driver = "sqlite"
	default:
		return errors.Errorf("unknown db driver %q", p.Driver)
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "callsight")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/callsight"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.DSN == "" {
		dbFile := fmt.Sprintf("callsight_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
