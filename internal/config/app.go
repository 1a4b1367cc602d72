package config

import (
	"chat-gateway/internal/logger"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Providers ProvidersConfig
	Quota     QuotaConfig
	Cache     CacheConfig
	Auth      AuthConfig
	Models    *ModelCatalog
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ProvidersConfig holds upstream chat-completion provider configuration.
// A missing key disables the provider; resolving a model that maps to a
// disabled provider is a configuration error surfaced to the dispatcher.
type ProvidersConfig struct {
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	KlusterAPIKey     string
	KlusterBaseURL    string
	SarvamAPIKey      string
	SarvamBaseURL     string
	RequestTimeout    time.Duration
}

// QuotaConfig holds the daily token allowance configuration
type QuotaConfig struct {
	DailyTokenCap int
	GrantWindow   time.Duration
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret       []byte
	TokenExpiration time.Duration
}

// LoadConfig loads and validates application configuration from environment
func LoadConfig() (*AppConfig, error) {
	config := &AppConfig{}

	// Load Server config
	config.Server = ServerConfig{
		Port: getEnvOrDefault("SERVER_PORT", "8080"),
	}

	// Load Database config
	config.Database = DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "postgres"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
		Name:     getEnvOrDefault("DB_NAME", "chatgateway"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	// Load provider config
	config.Providers = ProvidersConfig{
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		KlusterAPIKey:     os.Getenv("KLUSTER_API_KEY"),
		KlusterBaseURL:    getEnvOrDefault("KLUSTER_BASE_URL", "https://api.kluster.ai/v1"),
		SarvamAPIKey:      os.Getenv("SARVAM_API_KEY"),
		SarvamBaseURL:     getEnvOrDefault("SARVAM_BASE_URL", "https://api.sarvam.ai/v1"),
		RequestTimeout:    getEnvAsDuration("PROVIDER_REQUEST_TIMEOUT", 8*time.Second),
	}
	if config.Providers.OpenRouterAPIKey == "" {
		logger.Log.Warn("OPENROUTER_API_KEY environment variable not set")
	}

	// Load quota config
	config.Quota = QuotaConfig{
		DailyTokenCap: getEnvAsInt("DAILY_TOKEN_CAP", 40000),
		GrantWindow:   getEnvAsDuration("TOKEN_GRANT_WINDOW", 24*time.Hour),
	}

	// Load cache config
	config.Cache = CacheConfig{
		TTL:             getEnvAsDuration("RESPONSE_CACHE_TTL", 30*time.Second),
		CleanupInterval: getEnvAsDuration("RESPONSE_CACHE_CLEANUP_INTERVAL", time.Minute),
	}

	// Load Auth config
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable must be set")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters (current length: %d)", len(jwtSecret))
	}

	config.Auth = AuthConfig{
		JWTSecret:       []byte(jwtSecret),
		TokenExpiration: getEnvAsDuration("JWT_TOKEN_EXPIRATION", 24*time.Hour),
	}

	// Load model catalog
	modelsConfigPath := getEnvOrDefault("MODELS_CONFIG_PATH", filepath.Join("config", "models.json"))
	catalog, err := NewModelCatalog(modelsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}
	config.Models = catalog

	return config, nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}
