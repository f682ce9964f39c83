package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DB        DBConfig
	Server    ServerConfig
	Search    SearchConfig
	Favorites FavoritesConfig
}

// DBType represents database type
type DBType string

const (
	DBTypePostgreSQL DBType = "postgres"
	DBTypeSQLite     DBType = "sqlite"
	DBTypeMemory     DBType = "memory"
)

// IndexType selects the prefix search implementation
type IndexType string

const (
	IndexTypeTrie   IndexType = "trie"
	IndexTypeLinear IndexType = "linear"
)

// DBConfig holds database configuration
type DBConfig struct {
	Type     DBType
	Path     string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// SearchConfig holds catalog and live search settings
type SearchConfig struct {
	CatalogPath    string
	Debounce       time.Duration
	MinQueryLength int
	Index          IndexType
	CacheTTL       time.Duration
}

// FavoritesConfig holds favorites persistence settings
type FavoritesConfig struct {
	Key string
}

// DSN returns the database connection string
func (c DBConfig) DSN() string {
	switch c.Type {
	case DBTypeMemory:
		if c.Name != "" && c.Name != "citysearch" {
			return fmt.Sprintf("file:%s?mode=memory&cache=shared", c.Name)
		}
		return "file::memory:?cache=shared"
	case DBTypeSQLite:
		return fmt.Sprintf("file:%s?_busy_timeout=5000", c.Path)
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// IsMemory returns true if using in-memory database
func (c DBConfig) IsMemory() bool {
	return c.Type == DBTypeMemory
}

// IsSQLite returns true for both the in-memory and the file backed SQLite
func (c DBConfig) IsSQLite() bool {
	return c.Type == DBTypeMemory || c.Type == DBTypeSQLite
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port               string
	RateLimitPerSecond int
	RateLimitBurst     int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbType := DBType(getEnv("DB_TYPE", "memory"))
	switch dbType {
	case DBTypePostgreSQL, DBTypeSQLite, DBTypeMemory:
	default:
		dbType = DBTypeMemory
	}

	index := IndexType(getEnv("SEARCH_INDEX", string(IndexTypeTrie)))
	if index != IndexTypeTrie && index != IndexTypeLinear {
		index = IndexTypeTrie
	}

	config := &Config{
		DB: DBConfig{
			Type:     dbType,
			Path:     getEnv("DB_PATH", "citysearch.db"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "citysearch"),
			Password: getEnv("DB_PASSWORD", "citysearch_password"),
			Name:     getEnv("DB_NAME", "citysearch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port:               getEnv("APP_PORT", "8080"),
			RateLimitPerSecond: getEnvAsInt("RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Search: SearchConfig{
			CatalogPath:    getEnv("CATALOG_PATH", "data/cities.json"),
			Debounce:       getEnvAsDuration("SEARCH_DEBOUNCE", 300*time.Millisecond),
			MinQueryLength: getEnvAsInt("SEARCH_MIN_CHARS", 3),
			Index:          index,
			CacheTTL:       getEnvAsDuration("SEARCH_CACHE_TTL", 5*time.Minute),
		},
		Favorites: FavoritesConfig{
			Key: getEnv("FAVORITES_KEY", "FavoriteCities"),
		},
	}

	if config.Search.MinQueryLength < 0 {
		return nil, fmt.Errorf("SEARCH_MIN_CHARS must not be negative, got %d", config.Search.MinQueryLength)
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("250ms") or a bare number of milliseconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
