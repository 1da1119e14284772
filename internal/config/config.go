package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Run modes of the daemon.
const (
	ModeHTTP = "http"
	ModeMCP  = "mcp"
	ModeBoth = "both"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr          string
	Mode          string
	ShutdownGrace time.Duration
}

// ServiceConfig describes the upstream Task Management Service.
type ServiceConfig struct {
	URL              string
	Timeout          time.Duration
	Token            string
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// AuthConfig holds how callers' bearer tokens are located.
type AuthConfig struct {
	CookieName string
	LoginURL   string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// DraftConfig controls editing-session retention.
type DraftConfig struct {
	TTL           time.Duration
	PruneInterval time.Duration
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Service      ServiceConfig
	Auth         AuthConfig
	Log          LogConfig
	Drafts       DraftConfig
	Notification NotificationConfig

	StateDir string
	UseUTC   bool
}

const (
	defaultAddr             = "0.0.0.0:7080"
	defaultServiceURL       = "http://localhost:8081"
	defaultServiceTimeout   = 10 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultCookieName       = "auth_token"
	defaultLogLevel         = "info"
	defaultDraftTTL         = 24 * time.Hour
	defaultPruneInterval    = 10 * time.Minute
	defaultShutdownGrace    = 5 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse reads configuration from the process arguments and environment.
func Parse() (*Config, error) {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "taskdash", ".env"))
	}
	_ = godotenv.Load(envFiles...)
	return ParseArgs(os.Args[1:])
}

// ParseArgs builds the config from the environment and args.
// Priority: CLI flags > environment variables > .env file > defaults
func ParseArgs(args []string) (*Config, error) {
	serviceURL := getEnvString("TASKDASH_SERVICE_URL", getEnvString("TASK_MANAGEMENT_SERVICE_URL", defaultServiceURL))
	cfg := &Config{
		Server: ServerConfig{
			Addr:          getEnvString("TASKDASH_ADDR", defaultAddr),
			Mode:          getEnvString("TASKDASH_MODE", ModeHTTP),
			ShutdownGrace: getEnvDuration("TASKDASH_SHUTDOWN_GRACE", defaultShutdownGrace),
		},
		Service: ServiceConfig{
			URL:              serviceURL,
			Timeout:          getEnvDuration("TASKDASH_SERVICE_TIMEOUT", defaultServiceTimeout),
			Token:            getEnvString("TASKDASH_SERVICE_TOKEN", ""),
			BreakerThreshold: getEnvInt("TASKDASH_BREAKER_THRESHOLD", defaultBreakerThreshold),
			BreakerCooldown:  getEnvDuration("TASKDASH_BREAKER_COOLDOWN", defaultBreakerCooldown),
		},
		Auth: AuthConfig{
			CookieName: getEnvString("TASKDASH_COOKIE_NAME", defaultCookieName),
			LoginURL:   getEnvString("TASKDASH_LOGIN_URL", ""),
		},
		Log: LogConfig{
			Level: getEnvString("TASKDASH_LOG_LEVEL", defaultLogLevel),
		},
		Drafts: DraftConfig{
			TTL:           getEnvDuration("TASKDASH_DRAFT_TTL", defaultDraftTTL),
			PruneInterval: getEnvDuration("TASKDASH_DRAFT_PRUNE_INTERVAL", defaultPruneInterval),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("TASKDASH_BARK_URL", ""),
				Enabled: getEnvBool("TASKDASH_BARK_ENABLED", false),
			},
		},
		StateDir: getEnvString("TASKDASH_STATE_DIR", ""),
		UseUTC:   getEnvBool("TASKDASH_USE_UTC", false),
	}

	fs := flag.NewFlagSet("taskdashd", flag.ContinueOnError)
	var (
		addr, mode, logLevel, stateDir, serviceURLFlag, loginURL string
		useUTC                                                   bool
		shutdownGrace, serviceTimeout, draftTTL                  time.Duration
	)
	fs.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	fs.StringVar(&mode, "mode", "", "Run mode: http, mcp or both")
	fs.StringVar(&serviceURLFlag, "service-url", "", "Base URL of the Task Management Service")
	fs.DurationVar(&serviceTimeout, "service-timeout", 0, "Timeout of a single task service call")
	fs.StringVar(&loginURL, "login-url", "", "Where pages send callers without a token")
	fs.StringVar(&stateDir, "state-dir", "", "Directory holding the drafts database")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&useUTC, "use-utc", false, "Show cron previews in UTC instead of system local time")
	fs.DurationVar(&draftTTL, "draft-ttl", 0, "Discard editing drafts idle for longer than this")
	fs.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if mode != "" {
		cfg.Server.Mode = mode
	}
	if serviceURLFlag != "" {
		cfg.Service.URL = serviceURLFlag
	}
	if loginURL != "" {
		cfg.Auth.LoginURL = loginURL
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "use-utc":
			cfg.UseUTC = useUTC
		case "shutdown-grace":
			if shutdownGrace > 0 {
				cfg.Server.ShutdownGrace = shutdownGrace
			}
		case "service-timeout":
			cfg.Service.Timeout = serviceTimeout
		case "draft-ttl":
			cfg.Drafts.TTL = draftTTL
		}
	})

	cfg.Server.Mode = strings.ToLower(strings.TrimSpace(cfg.Server.Mode))
	switch cfg.Server.Mode {
	case "":
		cfg.Server.Mode = ModeHTTP
	case ModeHTTP, ModeMCP, ModeBoth:
	default:
		return nil, fmt.Errorf("invalid mode %q (want http, mcp or both)", cfg.Server.Mode)
	}
	cfg.Service.URL = strings.TrimRight(strings.TrimSpace(cfg.Service.URL), "/")
	if cfg.Service.URL == "" {
		return nil, fmt.Errorf("task service url is empty")
	}
	if cfg.Service.Timeout <= 0 {
		cfg.Service.Timeout = defaultServiceTimeout
	}
	if cfg.Service.BreakerThreshold < 1 {
		cfg.Service.BreakerThreshold = defaultBreakerThreshold
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = defaultCookieName
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}

	return cfg, nil
}

// Location is the zone cron previews are evaluated in and zone-less service
// date-times are read in.
func (c *Config) Location() *time.Location {
	if c.UseUTC {
		return time.UTC
	}
	return time.Local
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "taskdash")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
