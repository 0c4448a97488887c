package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `validate:"oneof=development production test"`
	Addr     string `validate:"required"`
	Database DatabaseConfig
	OMDb     OMDbConfig
	OpenAI   OpenAIConfig
}

type DatabaseConfig struct {
	Driver          string `validate:"oneof=sqlite postgres"`
	DSN             string `validate:"required"`
	MaxOpenConns    int    `validate:"gte=0"`
	MaxIdleConns    int    `validate:"gte=0"`
	ConnMaxLifetime time.Duration
	ConnectRetries  int `validate:"gte=1"`
	RetryDelay      time.Duration
}

type OMDbConfig struct {
	URL     string        `validate:"required,url"`
	APIKey  string
	Timeout time.Duration `validate:"gt=0"`
}

type OpenAIConfig struct {
	URL     string        `validate:"required,url"`
	APIKey  string
	Model   string        `validate:"required"`
	Timeout time.Duration `validate:"gt=0"`
	Rate    float64       `validate:"gt=0"`
	Burst   int           `validate:"gte=1"`
}

// Load reads envFile (if it exists) into the process environment and builds
// the configuration from environment variables.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	upstreamTimeout := getDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg := Config{
		Env:  getEnv("APP_ENV", "production"),
		Addr: getEnv("APP_ADDR", ":5000"),
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			DSN:             os.Getenv("DB_DSN"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectRetries:  getInt("DB_CONNECT_RETRIES", 10),
			RetryDelay:      getDuration("DB_RETRY_DELAY", 5*time.Second),
		},
		OMDb: OMDbConfig{
			URL:     getEnv("OMDB_API_URL", "https://www.omdbapi.com/"),
			APIKey:  os.Getenv("OMDB_API_KEY"),
			Timeout: upstreamTimeout,
		},
		OpenAI: OpenAIConfig{
			URL:     getEnv("OPENAI_API_URL", "https://api.openai.com/v1"),
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout: upstreamTimeout,
			Rate:    getFloat("RECOMMEND_RATE", 1),
			Burst:   getInt("RECOMMEND_BURST", 3),
		},
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = defaultDSN(cfg.Database.Driver)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultDSN(driver string) string {
	if driver != "postgres" {
		return "moviweb.db?_foreign_keys=on"
	}
	host := getEnv("DB_HOST", "postgres")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "program")
	password := getEnv("DB_PASSWORD", "test")
	dbname := getEnv("DB_NAME", "moviweb")
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		host, user, password, dbname, port)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return d
}
