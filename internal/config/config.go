package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is loaded once at startup
// and handed to constructors by value; nothing reads the environment later.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Signing  SigningConfig
	Storage  StorageConfig
	NATS     NATSConfig
	Jobs     JobsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port        string
	FrontendURL string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	LogLevel  string
}

// SigningConfig holds e-signature provider settings
type SigningConfig struct {
	APIKey       string
	ClientID     string
	BaseURL      string
	TestMode     bool
	PollAttempts int
	PollInterval time.Duration
	VerifyEvents bool
}

// StorageConfig holds document store settings
type StorageConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	BaseURL   string
	Folder    string
}

// NATSConfig holds event bus settings. An empty URL disables publishing to NATS.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// JobsConfig holds background job settings
type JobsConfig struct {
	OutboxInterval    time.Duration
	OutboxBatchSize   int
	OutboxMaxAttempts int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var errs []string
	intEnv := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durEnv := func(key string, def time.Duration) time.Duration {
		v, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	boolEnv := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "apartner"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", ""),
		},
		App: AppConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  durEnv("JWT_TTL", 24*time.Hour),
			LogLevel:  getEnv("LOG_LEVEL", "info"),
		},
		Signing: SigningConfig{
			APIKey:       getEnv("SIGNING_API_KEY", ""),
			ClientID:     getEnv("SIGNING_CLIENT_ID", ""),
			BaseURL:      getEnv("SIGNING_BASE_URL", "https://api.hellosign.com/v3"),
			TestMode:     boolEnv("SIGNING_TEST_MODE", true),
			PollAttempts: intEnv("SIGNING_POLL_ATTEMPTS", 8),
			PollInterval: durEnv("SIGNING_POLL_INTERVAL", 5*time.Second),
			VerifyEvents: boolEnv("SIGNING_VERIFY_EVENTS", false),
		},
		Storage: StorageConfig{
			CloudName: getEnv("STORAGE_CLOUD_NAME", ""),
			APIKey:    getEnv("STORAGE_API_KEY", ""),
			APISecret: getEnv("STORAGE_API_SECRET", ""),
			BaseURL:   getEnv("STORAGE_BASE_URL", "https://api.cloudinary.com"),
			Folder:    getEnv("STORAGE_FOLDER", "contracts"),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "apartner."),
		},
		Jobs: JobsConfig{
			OutboxInterval:    durEnv("OUTBOX_INTERVAL", 10*time.Second),
			OutboxBatchSize:   intEnv("OUTBOX_BATCH_SIZE", 50),
			OutboxMaxAttempts: intEnv("OUTBOX_MAX_ATTEMPTS", 10),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.App.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Signing.APIKey == "" || c.Signing.ClientID == "" {
		return fmt.Errorf("SIGNING_API_KEY and SIGNING_CLIENT_ID are required")
	}
	if c.Storage.CloudName == "" || c.Storage.APIKey == "" || c.Storage.APISecret == "" {
		return fmt.Errorf("STORAGE_CLOUD_NAME, STORAGE_API_KEY and STORAGE_API_SECRET are required")
	}
	if c.Signing.PollAttempts < 1 {
		return fmt.Errorf("SIGNING_POLL_ATTEMPTS must be at least 1")
	}
	if c.Signing.PollInterval < 0 {
		return fmt.Errorf("SIGNING_POLL_INTERVAL must not be negative")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not an integer", key, value)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not a boolean", key, value)
	}
	return b, nil
}

// getEnvDuration accepts Go durations ("5s") and bare seconds ("5").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not a duration", key, value)
	}
	return d, nil
}
