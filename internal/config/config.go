package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	ListenPort      string        `validate:"required"` // ex: ":8080"
	ShutdownTimeout time.Duration `validate:"gt=0"`     // ex: 5s

	// "debug" | "info" | "warn" | "error"
	LogLevel string `validate:"oneof=debug info warn error"`
	// true => zap dev (color), false => zap prod (JSON)
	PrettyLog bool

	// Cluster management API, ignored when InventoryFile is set.
	APIURL      string        `validate:"omitempty,url"`
	APIToken    string        // bearer token
	APIAttempts uint          `validate:"gte=1,lte=10"` // attempts per idempotent GET
	APIRetry    time.Duration `validate:"gt=0"`         // initial wait between GET attempts

	// Offline inventory yaml (lab mode); empty = use the API.
	InventoryFile           string        `validate:"omitempty,file"`
	InventoryReloadInterval time.Duration `validate:"gt=0"`

	// Prometheus; an empty URL disables the capacity card.
	PrometheusURL string        `validate:"omitempty,url"`
	PollInterval  time.Duration `validate:"gte=1s"` // capacity poll interval
	FetchTimeout  time.Duration `validate:"gt=0"`   // per request timeout to the API and Prometheus

	ViewRefreshInterval time.Duration `validate:"gt=0"` // selector view refresh into the index
	GCInterval          time.Duration `validate:"gt=0"` // interval to prune idle per-group views
	GCThreshold         time.Duration `validate:"gt=0"` // idle time before a per-group view is pruned
	TaskHistory         int           `validate:"gte=1"`
	NotificationHistory int           `validate:"gte=1"`

	// Redis (optional, empty RedisAddr disables persistence)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	// Access restrictions, all optional.
	AllowedHosts []string `validate:"dive,required"` // restrict access to specific Host headers
	AllowedCIDRS []string `validate:"dive,cidr|ip"`  // e.g. "1.2.3.4, 10.0.0.0/8"
	CORSOrigins  []string `validate:"dive,required"` // origins allowed for cross-origin requests
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	MutationRPS  int      `validate:"gte=1"` // per-IP mutation requests per second
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("CLUSTERVIEW_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("CLUSTERVIEW_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("CLUSTERVIEW_LOG_LEVEL", "info"),
		PrettyLog: mustBool("CLUSTERVIEW_PRETTY_LOG", true),

		// Sources
		APIURL:                  getenv("CLUSTERVIEW_API_URL", ""),
		APIToken:                getenv("CLUSTERVIEW_API_TOKEN", ""),
		APIAttempts:             uint(getenvInt("CLUSTERVIEW_API_ATTEMPTS", 3)),
		APIRetry:                mustDuration("CLUSTERVIEW_API_RETRY_DELAY", 200*time.Millisecond),
		InventoryFile:           getenv("CLUSTERVIEW_INVENTORY_FILE", ""),
		InventoryReloadInterval: mustDuration("CLUSTERVIEW_INVENTORY_RELOAD_INTERVAL", time.Hour),
		PrometheusURL:           getenv("CLUSTERVIEW_PROMETHEUS_URL", ""),
		PollInterval:            mustDuration("CLUSTERVIEW_POLL_INTERVAL", 30*time.Second),
		FetchTimeout:            mustDuration("CLUSTERVIEW_FETCH_TIMEOUT", 15*time.Second),

		// Background jobs
		ViewRefreshInterval: mustDuration("CLUSTERVIEW_VIEW_REFRESH_INTERVAL", time.Minute),
		GCInterval:          mustDuration("CLUSTERVIEW_GC_INTERVAL", 5*time.Minute),
		GCThreshold:         mustDuration("CLUSTERVIEW_GC_THRESHOLD", 30*time.Minute),
		TaskHistory:         getenvInt("CLUSTERVIEW_TASK_HISTORY", 100),
		NotificationHistory: getenvInt("CLUSTERVIEW_NOTIFICATION_HISTORY", 50),

		// Redis settings
		RedisAddr:             getenv("CLUSTERVIEW_REDIS_ADDR", ""),
		RedisUser:             getenv("CLUSTERVIEW_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("CLUSTERVIEW_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("CLUSTERVIEW_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("CLUSTERVIEW_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("CLUSTERVIEW_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("CLUSTERVIEW_ALLOWED_CIDRS", "")),
		CORSOrigins:  splitAndTrim(getenv("CLUSTERVIEW_CORS_ORIGINS", "")),
		TrustProxy:   mustBool("CLUSTERVIEW_TRUST_PROXY", false),
		MutationRPS:  getenvInt("CLUSTERVIEW_MUTATION_RPS", 2),
	}

	if cfg.InventoryFile == "" {
		cfg.APIURL = requireEnv("CLUSTERVIEW_API_URL")
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: invalid configuration: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.APIURL == "" && c.InventoryFile == "" {
		return errors.New("one of CLUSTERVIEW_API_URL or CLUSTERVIEW_INVENTORY_FILE must be set")
	}
	if c.RedisAddr != "" && c.RedisPasswordRequired && c.RedisPassword == "" {
		return errors.New("CLUSTERVIEW_REDIS_PASSWORD is required when CLUSTERVIEW_REDIS_PASSWORD_REQUIRED=true")
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	if cp.RedisUser != "" {
		cp.RedisUser = "***REDACTED***"
	}
	if cp.APIToken != "" {
		cp.APIToken = "***REDACTED***"
	}
	return cp
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
