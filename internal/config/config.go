// Package config loads application configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full application configuration.
type Config struct {
	DB      DBConfig
	Server  ServerConfig
	S3      S3Config
	Monitor MonitorConfig
	AI      AIConfig
	Backup  BackupConfig
}

// DBConfig holds PostgreSQL connection parameters.
type DBConfig struct {
	Host          string
	Port          int
	User          string
	Pass          string
	DBName        string
	SSLMode       string
	MigrationsDir string
}

// DSN returns a PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Pass +
		"@" + c.Host + ":" + strconv.Itoa(c.Port) +
		"/" + c.DBName + "?sslmode=" + c.SSLMode
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        string
	Host        string
	FrontendDir string

	// InsecureCookie drops the Secure flag from the login cookie so the
	// dashboard works over plain HTTP on a local machine.
	InsecureCookie bool
}

// Addr returns the full listen address (host:port).
func (c ServerConfig) Addr() string {
	return c.Host + c.Port
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// MonitorConfig tunes the sitemap discovery engine and the scheduled run.
type MonitorConfig struct {
	Concurrency   int
	PerHostConns  int
	Timeout       time.Duration
	Retries       int
	MaxRedirects  int
	MaxArticles   int
	SitemapCap    int
	SitemapDepth  int
	UserAgent     string
	WindowMode    string
	WindowDays    int
	Schedule      string
	RunOnStart    bool
	Analysis      bool
	RetentionDays int
	MaxDisplay    int
}

// AIConfig selects and configures the external analysis provider.
type AIConfig struct {
	// Provider is "gigachat", "ollama" or "none".
	Provider string
	GigaChat GigaChatConfig
	Ollama   OllamaConfig
}

// GigaChatConfig holds the OAuth and chat endpoint parameters.
type GigaChatConfig struct {
	AuthURL     string
	BaseURL     string
	AuthKey     string
	Scope       string
	Model       string
	Temperature float64
	Timeout     time.Duration
	InsecureTLS bool
}

// OllamaConfig holds the Ollama LLM server parameters.
type OllamaConfig struct {
	Host  string
	Model string
}

// BackupConfig controls database snapshots uploaded to object storage.
type BackupConfig struct {
	Schedule string
	Keep     int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DB: DBConfig{
			Host:          envOr("DB_HOST", "localhost"),
			Port:          envOrInt("DB_PORT", 5432),
			User:          envOr("DB_USER", "regionwatch"),
			Pass:          envOr("DB_PASS", "regionwatch"),
			DBName:        envOr("DB_NAME", "regionwatch"),
			SSLMode:       envOr("DB_SSLMODE", "disable"),
			MigrationsDir: envOr("MIGRATIONS_DIR", "migrations"),
		},
		Server: ServerConfig{
			Port:           envOr("SERVER_PORT", ":8080"),
			Host:           envOr("SERVER_HOST", ""),
			FrontendDir:    envOr("FRONTEND_DIR", "./frontend/dist"),
			InsecureCookie: envOrBool("SERVER_INSECURE_COOKIE", false),
		},
		S3: S3Config{
			Endpoint:  envOr("S3_ENDPOINT", ""),
			Bucket:    envOr("S3_BUCKET", "regionwatch-backups"),
			AccessKey: envOr("S3_ACCESS_KEY", ""),
			SecretKey: envOr("S3_SECRET_KEY", ""),
			Region:    envOr("S3_REGION", "ru-central1"),
		},
		Monitor: MonitorConfig{
			Concurrency:   envOrInt("MONITOR_CONCURRENCY", 20),
			PerHostConns:  envOrInt("MONITOR_PER_HOST", 5),
			Timeout:       envOrDuration("MONITOR_TIMEOUT", 10*time.Second),
			Retries:       envOrInt("MONITOR_RETRIES", 0),
			MaxRedirects:  envOrInt("MONITOR_MAX_REDIRECTS", 3),
			MaxArticles:   envOrInt("MONITOR_MAX_ARTICLES", 50),
			SitemapCap:    envOrInt("MONITOR_SITEMAP_CAP", 100),
			SitemapDepth:  envOrInt("MONITOR_SITEMAP_DEPTH", 2),
			UserAgent:     envOr("MONITOR_USER_AGENT", ""),
			WindowMode:    envOr("MONITOR_WINDOW_MODE", "recent"),
			WindowDays:    envOrInt("MONITOR_WINDOW_DAYS", 4),
			Schedule:      envOr("MONITOR_SCHEDULE", "0 6 * * *"),
			RunOnStart:    envOrBool("MONITOR_RUN_ON_START", false),
			Analysis:      envOrBool("MONITOR_ANALYSIS", true),
			RetentionDays: envOrInt("RESULT_RETENTION_DAYS", 90),
			MaxDisplay:    envOrInt("MONITOR_MAX_DISPLAY", 10),
		},
		AI: AIConfig{
			Provider: strings.ToLower(envOr("AI_PROVIDER", "gigachat")),
			GigaChat: GigaChatConfig{
				AuthURL:     envOr("GIGACHAT_AUTH_URL", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"),
				BaseURL:     envOr("GIGACHAT_BASE_URL", "https://gigachat.devices.sberbank.ru/api/v1"),
				AuthKey:     envOr("GIGACHAT_AUTH_KEY", ""),
				Scope:       envOr("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
				Model:       envOr("GIGACHAT_MODEL", "GigaChat"),
				Temperature: envOrFloat("GIGACHAT_TEMPERATURE", 0.7),
				Timeout:     envOrDuration("GIGACHAT_TIMEOUT", 60*time.Second),
				InsecureTLS: envOrBool("GIGACHAT_INSECURE_TLS", true),
			},
			Ollama: OllamaConfig{
				Host:  envOr("OLLAMA_HOST", "http://localhost:11434"),
				Model: envOr("OLLAMA_MODEL", "llama3"),
			},
		},
		Backup: BackupConfig{
			Schedule: envOr("BACKUP_SCHEDULE", "0 3 * * *"),
			Keep:     envOrInt("BACKUP_KEEP", 10),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envOrFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envOrBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envOrDuration accepts Go duration strings ("15s") or a plain number of
// seconds.
func envOrDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
