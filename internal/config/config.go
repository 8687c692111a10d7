package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port      string
	PublicURL string

	DatabaseURL string

	FacilitatorURL    string
	FacilitatorSigner string
	WalletAddress     string

	PaymentNetwork       string
	TokenAddress         string
	TokenSymbol          string
	TokenDecimals        int
	TokenName            string
	TokenVersion         string
	PaymentBypassEnabled bool

	FalKey          string
	EndpointsConfig string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3CDNURL    string

	CacheTTL        time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
}

func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "3402"),
		PublicURL: getEnv("PUBLIC_URL", "http://localhost:3402"),

		DatabaseURL: mustGetEnv("DATABASE_URL"),

		FacilitatorURL:    getEnv("FACILITATOR_URL", "https://facilitator.x402.org"),
		FacilitatorSigner: mustGetEnv("FACILITATOR_SIGNER"),
		WalletAddress:     mustGetEnv("WALLET_ADDRESS"),

		PaymentNetwork:       getEnv("PAYMENT_NETWORK", "base"),
		TokenAddress:         getEnv("PAYMENT_TOKEN_ADDRESS", "0x587Cd533F418825521f3A1daa7CCd1E7339A1B07"),
		TokenSymbol:          getEnv("PAYMENT_TOKEN_SYMBOL", "STARKBOT"),
		TokenDecimals:        getEnvInt("PAYMENT_TOKEN_DECIMALS", 18),
		TokenName:            getEnv("PAYMENT_TOKEN_NAME", "StarkBot"),
		TokenVersion:         getEnv("PAYMENT_TOKEN_VERSION", "1"),
		PaymentBypassEnabled: getEnvBool("PAYMENT_BYPASS_ENABLED", false),

		FalKey:          mustGetEnv("FAL_KEY"),
		EndpointsConfig: getEnv("ENDPOINTS_CONFIG", "endpoints.yaml"),

		S3Bucket:    getEnv("S3_BUCKET", "generated-media"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:  mustGetEnv("S3_ENDPOINT"),
		S3AccessKey: mustGetEnv("AWS_ACCESS_KEY_ID"),
		S3SecretKey: mustGetEnv("AWS_SECRET_ACCESS_KEY"),
		S3CDNURL:    mustGetEnv("S3_CDN_URL"),

		CacheTTL:        getEnvDuration("CACHE_TTL", 30*24*time.Hour),
		RateLimit:       getEnvInt("RATE_LIMIT", 100),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic("Missing required environment variable: " + key)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
