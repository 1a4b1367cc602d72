package app

import (
	"chat-gateway/internal/cache"
	"chat-gateway/internal/config"
	"chat-gateway/internal/repository/db"
)

// Config holds all application dependencies and configuration
type Config struct {
	// Database interface for data persistence
	DB db.Database
	// Centralized application configuration
	AppConfig *config.AppConfig
	// Response cache, may be nil
	Cache cache.Cache
}

// NewConfig creates a new application dependency container
func NewConfig(database db.Database, appConfig *config.AppConfig, responseCache cache.Cache) *Config {
	return &Config{
		DB:        database,
		AppConfig: appConfig,
		Cache:     responseCache,
	}
}

// ModelCatalog returns the loaded model catalog
func (c *Config) ModelCatalog() *config.ModelCatalog {
	return c.AppConfig.Models
}
