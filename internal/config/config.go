package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	StoreBackend          string
	DatabaseURL           string
	FirestoreProjectID    string
	StoreNamespace        string
	BusinessTimezone      string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	MenuCacheTTLSeconds   int
	AuthSecret            string
	AccessTokenTTLMinutes int
	SeedAdminPassword     string
	SeedCashierPassword   string
	PrinterType           string
	PrinterUSBPath        string
	PrinterAddress        string
	PrinterWidth          int
	FeedRetrySeconds      int
}

// Load reads the environment, after applying a .env file when one exists.
// Variables already set in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL := getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480)

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	databaseURL := os.Getenv("DATABASE_URL")
	if backend == "" {
		backend = BackendMemory
		if databaseURL != "" {
			backend = BackendPostgres
		}
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		StoreBackend:          backend,
		DatabaseURL:           databaseURL,
		FirestoreProjectID:    strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID")),
		StoreNamespace:        strings.TrimSpace(os.Getenv("STORE_NAMESPACE")),
		BusinessTimezone:      getEnv("BUSINESS_TIMEZONE", "Asia/Jakarta"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		MenuCacheTTLSeconds:   getPositiveInt("MENU_CACHE_TTL_SECONDS", 300),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		SeedAdminPassword:     os.Getenv("SEED_ADMIN_PASSWORD"),
		SeedCashierPassword:   os.Getenv("SEED_CASHIER_PASSWORD"),
		PrinterType:           strings.ToLower(getEnv("PRINTER_TYPE", "none")),
		PrinterUSBPath:        getEnv("PRINTER_USB_PATH", "/dev/usb/lp0"),
		PrinterAddress:        os.Getenv("PRINTER_ADDRESS"),
		PrinterWidth:          getPositiveInt("PRINTER_WIDTH", 32),
		FeedRetrySeconds:      getPositiveInt("FEED_RETRY_SECONDS", 5),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves BusinessTimezone, falling back to UTC for unknown zones.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.UTC, fmt.Errorf("load timezone %q: %w", c.BusinessTimezone, err)
	}
	return loc, nil
}

func (c Config) MenuCacheTTL() time.Duration {
	return time.Duration(c.MenuCacheTTLSeconds) * time.Second
}

func (c Config) FeedRetryDelay() time.Duration {
	return time.Duration(c.FeedRetrySeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}
