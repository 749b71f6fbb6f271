package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	apperrors "iphone-scraper/pkg/errors"
)

// PagePlaceholder marks where PAGE_URL_TEMPLATE takes the page number.
// The rest of the template is used verbatim, so percent-encoded query
// strings can be pasted as they appear in the browser.
const PagePlaceholder = "{page}"

// Store drivers accepted by STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	StoreDriver string
	SQLitePath  string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisAddr         string
	RedisDB           int
	RedisStream       string
	RedisStreamMaxLen int

	StartURL         string
	PageURLTemplate  string
	MaxPages         int
	RateLimitMs      int
	MaxRetries       int
	NormalizeWorkers int

	CSVOutputPath string
	ChromeBin     string

	LogLevel  string
	LogFormat string
}

// Load reads the .env file (if any) and returns a populated Config struct.
// The returned bool reports whether a .env file was found.
func Load() (*Config, bool) {
	envFound := godotenv.Load() == nil

	return &Config{
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/iphones.db"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "iphone_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RedisStream:       getEnv("REDIS_STREAM", "iphone:aggregates"),
		RedisStreamMaxLen: getEnvInt("REDIS_STREAM_MAXLEN", 1000),

		StartURL:         getEnv("START_URL", "https://hasznaltalma.hu/iphone"),
		PageURLTemplate:  getEnv("PAGE_URL_TEMPLATE", "https://hasznaltalma.hu/iphone?filter%5B0%5D=personal&filter%5B5%5D=personal&min=0&page="+PagePlaceholder),
		MaxPages:         getEnvInt("MAX_PAGES", 0),
		RateLimitMs:      getEnvInt("RATE_LIMIT_MS", 3000),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		NormalizeWorkers: getEnvInt("NORMALIZE_WORKERS", 1),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/iphone_data.csv"),
		ChromeBin:     getEnv("CHROME_BIN", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}, envFound
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return apperrors.NewConfiguration("SQLITE_PATH must not be empty", nil)
		}
	case DriverPostgres, DriverMemory:
	default:
		return apperrors.NewConfiguration(fmt.Sprintf("unknown STORE_DRIVER %q", c.StoreDriver), nil)
	}

	if !strings.Contains(c.PageURLTemplate, PagePlaceholder) {
		return apperrors.NewConfiguration("PAGE_URL_TEMPLATE must contain "+PagePlaceholder+" for the page number", nil)
	}
	if c.MaxPages < 0 {
		return apperrors.NewConfiguration("MAX_PAGES must be >= 0", nil)
	}
	if c.RateLimitMs < 0 {
		return apperrors.NewConfiguration("RATE_LIMIT_MS must be >= 0", nil)
	}
	if c.MaxRetries < 1 {
		return apperrors.NewConfiguration("MAX_RETRIES must be >= 1", nil)
	}
	if c.NormalizeWorkers < 1 {
		return apperrors.NewConfiguration("NORMALIZE_WORKERS must be >= 1", nil)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// PageURL returns the listing URL of the given 1-based page.
func (c *Config) PageURL(page int) string {
	if page <= 1 {
		return c.StartURL
	}
	return strings.ReplaceAll(c.PageURLTemplate, PagePlaceholder, strconv.Itoa(page))
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
