package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	APIPrefix string
	LogLevel  string

	// Docker engine
	DockerHost         string
	MaxExportSize      string
	PullTimeout        time.Duration
	MaxConcurrentPulls int

	// Registry
	RegistryHost     string
	RegistryInsecure bool
	RegistryPlatform string
	RegistryTimeout  time.Duration
	HubURL           string

	JwtSecret string

	// OpenTelemetry
	OtelEnabled     bool
	OtelEndpoint    string
	OtelServiceName string
	OtelInsecure    bool
}

// Load loads configuration from environment variables
// Automatically loads .env file if present
func Load() *Config {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "3000"),
		APIPrefix: getEnv("API_PREFIX", "/api"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		DockerHost:         getEnv("DOCKER_HOST", ""),
		MaxExportSize:      getEnv("MAX_EXPORT_SIZE", "10GB"),
		PullTimeout:        getEnvDuration("PULL_TIMEOUT", 30*time.Minute),
		MaxConcurrentPulls: getEnvInt("MAX_CONCURRENT_PULLS", 2),

		RegistryHost:     getEnv("REGISTRY_HOST", "index.docker.io"),
		RegistryInsecure: getEnvBool("REGISTRY_INSECURE", false),
		RegistryPlatform: getEnv("REGISTRY_PLATFORM", "linux/amd64"),
		RegistryTimeout:  getEnvDuration("REGISTRY_TIMEOUT", 30*time.Second),
		HubURL:           getEnv("HUB_URL", "https://hub.docker.com"),

		JwtSecret: getEnv("JWT_SECRET", ""),

		OtelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:    getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName: getEnv("OTEL_SERVICE_NAME", "imgport"),
		OtelInsecure:    getEnvBool("OTEL_INSECURE", true),
	}

	return cfg
}

// Validate checks values that Load cannot reject on its own.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q: %w", c.Port, err)
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with /: %q", c.APIPrefix)
	}
	if _, err := c.MaxExportSizeBytes(); err != nil {
		return err
	}
	if c.PullTimeout <= 0 {
		return fmt.Errorf("PULL_TIMEOUT must be positive")
	}
	if c.RegistryTimeout <= 0 {
		return fmt.Errorf("REGISTRY_TIMEOUT must be positive")
	}
	if c.MaxConcurrentPulls < 1 {
		return fmt.Errorf("MAX_CONCURRENT_PULLS must be at least 1")
	}
	return nil
}

// MaxExportSizeBytes parses MaxExportSize ("10GB", "512MB", ...).
func (c *Config) MaxExportSizeBytes() (int64, error) {
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(c.MaxExportSize)); err != nil {
		return 0, fmt.Errorf("invalid MAX_EXPORT_SIZE %q: %w", c.MaxExportSize, err)
	}
	if size == 0 {
		return 0, fmt.Errorf("MAX_EXPORT_SIZE must be positive")
	}
	return int64(size.Bytes()), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
