package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultSecret = "dev-secret-key-change-in-production"

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort         string
	DatabaseURL        string
	SecretKey          string
	Algorithm          string
	AccessTokenMinutes int
	CORSOrigins        []string
	Environment        string
	LogLevel           string
	BcryptCost         int
	RedisAddr          string
	RedisDB            int
	RedisPass          string
	UserCacheTTL       time.Duration
}

// Load builds Config from environment with sensible defaults.
// A .env file in the working directory is read first; real env vars win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", "user:password@tcp(localhost:3306)/app?charset=utf8mb4&parseTime=True&loc=UTC"),
		SecretKey:          getEnv("SECRET_KEY", defaultSecret),
		Algorithm:          getEnv("ALGORITHM", "HS256"),
		AccessTokenMinutes: getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30),
		CORSOrigins:        getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		Environment:        getEnv("ENVIRONMENT", "development"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		BcryptCost:         getEnvInt("BCRYPT_COST", 10),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RedisPass:          os.Getenv("REDIS_PASSWORD"),
		UserCacheTTL:       time.Duration(getEnvInt("USER_CACHE_TTL_SECONDS", 300)) * time.Second,
	}
}

// Validate reports configuration that would make the auth core unsafe or unusable.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	if c.IsProduction() && c.SecretKey == defaultSecret {
		return errors.New("SECRET_KEY must be changed in production")
	}
	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported ALGORITHM %q", c.Algorithm)
	}
	if c.AccessTokenMinutes <= 0 {
		return errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// AccessTokenTTL is the configured token lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

// IsProduction reports whether the service runs in the production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// IsDevelopment reports whether verbose output is wanted.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
