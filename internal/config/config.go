package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Platform     PlatformConfig
	Rating       RatingConfig
	Reconcile    ReconcileConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the durable document backend.
type StoreConfig struct {
	// Backend is "file" or "redis".
	Backend  string
	FilePath string
	RedisKey string
}

// PostgresConfig holds DB connection values for the transcript archive.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PlatformConfig points at the chat-platform bridge and workspace wiring.
type PlatformConfig struct {
	BridgeURL        string
	BridgeToken      string
	WorkspaceID      string
	StaffRoleID      string
	AdminRoleID      string
	ArchiveChannelID string
	LogChannelID     string
	// OpDelay is inserted between bulk channel/ACL mutations as a crude
	// rate-limit throttle.
	OpDelayMillis int
	// Categories maps category keys to display names, e.g.
	// "replaces:Replaces,support:Support Desk".
	Categories map[string]string
}

// RatingConfig parameterizes the two-step rating workflow.
type RatingConfig struct {
	TimeoutHours int
	// TimeoutDefaultScore is applied to missing ratings when the timeout
	// elapses. Defaulting to the maximum is inherited product behavior and
	// deliberately kept tunable.
	TimeoutDefaultScore int
	GraceMinSeconds     int
	GraceMaxSeconds     int
}

// ReconcileConfig controls the periodic reconciliation sweep.
type ReconcileConfig struct {
	IntervalMinutes int
	RunOnStart      bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters for the HTTP surface.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds the optional event mirror webhook.
type NotificationConfig struct {
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Backend:  getEnv("STORE_BACKEND", "file"),
			FilePath: getEnv("STORE_FILE_PATH", "data/tickets.json"),
			RedisKey: getEnv("STORE_REDIS_KEY", "ticket-engine:document"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Platform: PlatformConfig{
			BridgeURL:        getEnv("PLATFORM_BRIDGE_URL", "http://127.0.0.1:9090"),
			BridgeToken:      os.Getenv("PLATFORM_BRIDGE_TOKEN"),
			WorkspaceID:      os.Getenv("PLATFORM_WORKSPACE_ID"),
			StaffRoleID:      os.Getenv("PLATFORM_STAFF_ROLE_ID"),
			AdminRoleID:      os.Getenv("PLATFORM_ADMIN_ROLE_ID"),
			ArchiveChannelID: os.Getenv("PLATFORM_ARCHIVE_CHANNEL_ID"),
			LogChannelID:     os.Getenv("PLATFORM_LOG_CHANNEL_ID"),
			OpDelayMillis:    getEnvAsInt("PLATFORM_OP_DELAY_MILLIS", 300),
			Categories:       parseCategories(os.Getenv("TICKET_CATEGORIES")),
		},
		Rating: RatingConfig{
			TimeoutHours:        getEnvAsInt("RATING_TIMEOUT_HOURS", 24),
			TimeoutDefaultScore: getEnvAsInt("RATING_TIMEOUT_DEFAULT_SCORE", 5),
			GraceMinSeconds:     getEnvAsInt("CLOSE_GRACE_MIN_SECONDS", 3),
			GraceMaxSeconds:     getEnvAsInt("CLOSE_GRACE_MAX_SECONDS", 5),
		},
		Reconcile: ReconcileConfig{
			IntervalMinutes: getEnvAsInt("RECONCILE_INTERVAL_MINUTES", 60),
			RunOnStart:      getEnvAsBool("RECONCILE_RUN_ON_START", true),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// OpDelay returns the inter-operation throttle duration.
func (p PlatformConfig) OpDelay() time.Duration {
	if p.OpDelayMillis <= 0 {
		return 0
	}
	return time.Duration(p.OpDelayMillis) * time.Millisecond
}

// Timeout returns the rating escalation window.
func (r RatingConfig) Timeout() time.Duration {
	if r.TimeoutHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(r.TimeoutHours) * time.Hour
}

// GraceWindow returns the min/max close grace delay.
func (r RatingConfig) GraceWindow() (time.Duration, time.Duration) {
	minGrace := time.Duration(r.GraceMinSeconds) * time.Second
	maxGrace := time.Duration(r.GraceMaxSeconds) * time.Second
	if maxGrace < minGrace {
		maxGrace = minGrace
	}
	return minGrace, maxGrace
}

// Interval returns the reconciliation sweep interval.
func (r ReconcileConfig) Interval() time.Duration {
	if r.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(r.IntervalMinutes) * time.Minute
}

func parseCategories(raw string) map[string]string {
	categories := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, display, found := strings.Cut(pair, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		display = strings.TrimSpace(display)
		if key == "" || display == "" {
			continue
		}
		categories[key] = display
	}
	return categories
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
