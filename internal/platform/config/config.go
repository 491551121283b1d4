package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	CacheBackendMemory   = "memory"
	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	// AdminJWTKey signs operator tokens. Admin routes are disabled when empty.
	AdminJWTKey string

	CacheBackend string
	DatabaseURL  string
	Redis        RedisConfig

	Providers ProvidersConfig
	Resolver  ResolverConfig
}

// RedisConfig holds connection settings for the Redis persistent tier.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProvidersConfig lists the external data sources in fallback order.
// A provider with an empty base URL is left out of the chain.
type ProvidersConfig struct {
	VDGBaseURL    string
	VDGAPIKey     string
	HaynesBaseURL string
	HaynesAPIKey  string
	// ScrapeURLTemplate is a URL containing "{registration}".
	ScrapeURLTemplate string
	GenAIAPIKey       string
	GenAIModel        string
	Timeout           time.Duration
}

// ResolverConfig holds the rate-limit, cache and blacklist policy.
type ResolverConfig struct {
	MinCallInterval      time.Duration
	MaxConsecutiveErrors int
	CooldownDuration     time.Duration
	ProviderCacheTTL     time.Duration
	SyntheticCacheTTL    time.Duration
	// BlacklistTTL of zero means blacklist entries never expire.
	BlacklistTTL    time.Duration
	MemoryCacheSize int
	CleanupInterval time.Duration
}

// Defaults for the resolver policy.
var (
	DefaultMinCallInterval      = time.Second
	DefaultMaxConsecutiveErrors = 5
	DefaultCooldownDuration     = 15 * time.Minute
	DefaultProviderCacheTTL     = 24 * time.Hour
	DefaultSyntheticCacheTTL    = 30 * 24 * time.Hour
	DefaultProviderTimeout      = 8 * time.Second
	DefaultMemoryCacheSize      = 10_000
	DefaultCleanupInterval      = time.Hour
	DefaultGenAIModel           = "imagen-3.0-generate-002"
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:         envString("GARAGEDATA_ADDR", ":8080"),
		Environment:  envString("ENVIRONMENT", "development"),
		AdminJWTKey:  os.Getenv("ADMIN_JWT_KEY"),
		CacheBackend: strings.ToLower(envString("CACHE_BACKEND", CacheBackendMemory)),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Providers: ProvidersConfig{
			VDGBaseURL:        os.Getenv("VDG_BASE_URL"),
			VDGAPIKey:         os.Getenv("VDG_API_KEY"),
			HaynesBaseURL:     os.Getenv("HAYNES_BASE_URL"),
			HaynesAPIKey:      os.Getenv("HAYNES_API_KEY"),
			ScrapeURLTemplate: os.Getenv("SCRAPE_URL_TEMPLATE"),
			GenAIAPIKey:       os.Getenv("GENAI_API_KEY"),
			GenAIModel:        envString("GENAI_MODEL", DefaultGenAIModel),
			Timeout:           envDuration("PROVIDER_TIMEOUT", DefaultProviderTimeout),
		},
		Resolver: ResolverConfig{
			MinCallInterval:      envDuration("MIN_CALL_INTERVAL", DefaultMinCallInterval),
			MaxConsecutiveErrors: envInt("MAX_CONSECUTIVE_ERRORS", DefaultMaxConsecutiveErrors),
			CooldownDuration:     envDuration("COOLDOWN_DURATION", DefaultCooldownDuration),
			ProviderCacheTTL:     envDuration("PROVIDER_CACHE_TTL", DefaultProviderCacheTTL),
			SyntheticCacheTTL:    envDuration("SYNTHETIC_CACHE_TTL", DefaultSyntheticCacheTTL),
			BlacklistTTL:         envDuration("BLACKLIST_TTL", 0),
			MemoryCacheSize:      envInt("MEMORY_CACHE_SIZE", DefaultMemoryCacheSize),
			CleanupInterval:      envDuration("CLEANUP_INTERVAL", DefaultCleanupInterval),
		},
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envDuration ignores malformed and negative values.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
