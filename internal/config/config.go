package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	AppEnv                 string
	LogLevel               string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	ProductCacheTTLSeconds int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ShopTimezone           string
	TransactionMaxAttempts int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; it never overrides variables that
// are already set.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		AppEnv:                 strings.ToLower(getEnv("APP_ENV", "development")),
		LogLevel:               strings.ToLower(getEnv("LOG_LEVEL", "info")),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getInt("REDIS_DB", 0, 0),
		ProductCacheTTLSeconds: getInt("PRODUCT_CACHE_TTL_SECONDS", 300, 1),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		ShopTimezone:           getEnv("SHOP_TIMEZONE", "Asia/Kolkata"),
		TransactionMaxAttempts: getInt("TX_MAX_ATTEMPTS", 5, 1),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt falls back when the value is missing, malformed or below min.
func getInt(key string, fallback int, min int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < min {
		return fallback
	}
	return n
}
