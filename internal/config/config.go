package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrMissingCredentials is returned when the Postgres store lacks its
// connection credentials.
var ErrMissingCredentials = errors.New("DATABASE_URL and DATABASE_PASSWORD are required for the postgres store")

// Common holds store, timezone and search settings shared by every binary.
type Common struct {
	StoreDriver        string
	DatabaseURL        string
	DatabasePassword   string
	DatabaseMaxConns   int
	DatabaseViaBouncer bool
	SQLitePath         string
	ExchangeTimezone   string
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Worker configures the scheduled ingestion process.
type Worker struct {
	Common
	ScrapeInterval  time.Duration
	RunTimeout      time.Duration
	CaptureTimeout  time.Duration
	WarmUpTimeout   time.Duration
	WarmUpURL       string
	APIURL          string
	BrowserHeadless bool
	BrowserExecPath string
	KafkaBrokers    []string
	KafkaTopic      string
	DedupeCapacity  int
	DedupeTTL       time.Duration
	SMTPServer      string
	SMTPPort        int
	SMTPUser        string
	SMTPPass        string
	AlertFrom       string
	AlertTo         []string
	HealthAddr      string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int
	CORSOrigins []string
}

var dotenvOnce sync.Once

// loadDotEnv reads .env once; a missing file is fine.
func loadDotEnv() {
	dotenvOnce.Do(func() { _ = godotenv.Load() })
}

func loadCommon() (Common, error) {
	c := Common{
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DatabasePassword:   getEnv("DATABASE_PASSWORD", ""),
		DatabaseMaxConns:   getInt("DATABASE_MAX_CONNS", 4),
		DatabaseViaBouncer: getBool("DATABASE_VIA_BOUNCER", false),
		SQLitePath:         getEnv("SQLITE_PATH", "./data/nse.db"),
		ExchangeTimezone:   getEnv("EXCHANGE_TIMEZONE", "Asia/Kolkata"),
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", ""),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "announcements"),
	}

	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" || c.DatabasePassword == "" {
			return c, ErrMissingCredentials
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return c, fmt.Errorf("SQLITE_PATH must be set for the sqlite store")
		}
	default:
		return c, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}
	if c.DatabaseMaxConns <= 0 {
		return c, fmt.Errorf("DATABASE_MAX_CONNS must be positive")
	}
	if _, err := time.LoadLocation(c.ExchangeTimezone); err != nil {
		return c, fmt.Errorf("EXCHANGE_TIMEZONE: %w", err)
	}
	return c, nil
}

// LoadWorker builds a Worker config from the environment and .env.
func LoadWorker() (*Worker, error) {
	loadDotEnv()
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	warmUp := getEnv("NSE_WARMUP_URL", "https://www.nseindia.com/corporate-announcements")
	c := &Worker{
		Common:          common,
		ScrapeInterval:  getDuration("SCRAPE_INTERVAL", "15m"),
		RunTimeout:      getDuration("RUN_TIMEOUT", "5m"),
		CaptureTimeout:  getDuration("CAPTURE_TIMEOUT", "30s"),
		WarmUpTimeout:   getDuration("WARMUP_TIMEOUT", "60s"),
		WarmUpURL:       warmUp,
		APIURL:          getEnv("NSE_API_URL", "https://www.nseindia.com/api/corporate-announcements?index=equities"),
		BrowserHeadless: getBool("BROWSER_HEADLESS", true),
		BrowserExecPath: getEnv("BROWSER_EXEC_PATH", ""),
		KafkaBrokers:    splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "nse_announcements"),
		DedupeCapacity:  getInt("DEDUPE_CAPACITY", 20000),
		DedupeTTL:       getDuration("DEDUPE_TTL", "24h"),
		SMTPServer:      getEnv("SMTP_SERVER", ""),
		SMTPPort:        getInt("SMTP_PORT", 587),
		SMTPUser:        getEnv("SMTP_USER", ""),
		SMTPPass:        getEnv("SMTP_PASS", ""),
		AlertFrom:       getEnv("ALERT_FROM", ""),
		AlertTo:         splitAndTrim(getEnv("ALERT_TO", "")),
		HealthAddr:      getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
	}
	if strings.EqualFold(c.HealthAddr, "off") {
		c.HealthAddr = ""
	}

	if c.ScrapeInterval <= 0 {
		return nil, fmt.Errorf("SCRAPE_INTERVAL must be positive")
	}
	if c.CaptureTimeout <= 0 || c.WarmUpTimeout <= 0 {
		return nil, fmt.Errorf("CAPTURE_TIMEOUT and WARMUP_TIMEOUT must be positive")
	}
	if c.RunTimeout < c.CaptureTimeout+c.WarmUpTimeout {
		return nil, fmt.Errorf("RUN_TIMEOUT must cover WARMUP_TIMEOUT plus CAPTURE_TIMEOUT")
	}
	if c.APIURL == "" || c.WarmUpURL == "" {
		return nil, fmt.Errorf("NSE_API_URL and NSE_WARMUP_URL must be set")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from the environment and .env.
func LoadAPI() (*API, error) {
	loadDotEnv()
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:      common,
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 10),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
		CORSOrigins: splitAndTrim(getEnv("CORS_ORIGINS", "*")),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
