package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "Novelink"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour

	defaultExchangeRate = 250
	defaultMinCoins     = 10
	defaultMaxCoins     = 100_000
	defaultStepCoins    = 10
	defaultMinGiftCoins = 1
	defaultMaxGiftCoins = 100_000

	defaultCallbackRatePerMin = 120
	defaultProviderTimeout    = 10 * time.Second
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// Coin economy.
	ExchangeRate int64 // fiat minor units per coin
	MinCoins     int64
	MaxCoins     int64
	StepCoins    int64
	MinGiftCoins int64
	MaxGiftCoins int64

	TopupReturnURL string
	TopupCancelURL string

	CallbackRatePerMin int

	// Provider credentials.
	ProviderTimeout     time.Duration
	PayviaBaseURL       string
	PayviaAPIKey        string
	PayviaWebhookSecret string
	SeaPayPayURL        string
	SeaPayQueryURL      string
	SeaPayMerchantCode  string
	SeaPayHashSecret    string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,

		TopupReturnURL: os.Getenv("TOPUP_RETURN_URL"),
		TopupCancelURL: os.Getenv("TOPUP_CANCEL_URL"),

		ProviderTimeout:     defaultProviderTimeout,
		PayviaBaseURL:       os.Getenv("PAYVIA_BASE_URL"),
		PayviaAPIKey:        os.Getenv("PAYVIA_API_KEY"),
		PayviaWebhookSecret: os.Getenv("PAYVIA_WEBHOOK_SECRET"),
		SeaPayPayURL:        os.Getenv("SEAPAY_PAY_URL"),
		SeaPayQueryURL:      os.Getenv("SEAPAY_QUERY_URL"),
		SeaPayMerchantCode:  os.Getenv("SEAPAY_MERCHANT_CODE"),
		SeaPayHashSecret:    os.Getenv("SEAPAY_HASH_SECRET"),
	}

	var err error
	if cfg.ExchangeRate, err = getEnvInt64("COIN_EXCHANGE_RATE", defaultExchangeRate); err != nil {
		return Config{}, err
	}
	if cfg.MinCoins, err = getEnvInt64("TOPUP_MIN_COINS", defaultMinCoins); err != nil {
		return Config{}, err
	}
	if cfg.MaxCoins, err = getEnvInt64("TOPUP_MAX_COINS", defaultMaxCoins); err != nil {
		return Config{}, err
	}
	if cfg.StepCoins, err = getEnvInt64("TOPUP_STEP_COINS", defaultStepCoins); err != nil {
		return Config{}, err
	}
	if cfg.MinGiftCoins, err = getEnvInt64("GIFT_MIN_COINS", defaultMinGiftCoins); err != nil {
		return Config{}, err
	}
	if cfg.MaxGiftCoins, err = getEnvInt64("GIFT_MAX_COINS", defaultMaxGiftCoins); err != nil {
		return Config{}, err
	}

	perMin, err := getEnvInt64("CALLBACK_RATE_PER_MIN", defaultCallbackRatePerMin)
	if err != nil {
		return Config{}, err
	}
	cfg.CallbackRatePerMin = int(perMin)

	if v := os.Getenv("SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv("PROVIDER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PROVIDER_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("PROVIDER_TIMEOUT must be positive")
		}
		cfg.ProviderTimeout = d
	}

	if v := os.Getenv("IDEMPOTENCY_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
		}
		cfg.IdempotencyTTL = d
	}

	if cfg.ExchangeRate <= 0 {
		return Config{}, fmt.Errorf("COIN_EXCHANGE_RATE must be positive")
	}
	if cfg.MinCoins <= 0 || cfg.MaxCoins < cfg.MinCoins {
		return Config{}, fmt.Errorf("topup coin bounds are inconsistent")
	}
	if cfg.StepCoins <= 0 {
		return Config{}, fmt.Errorf("TOPUP_STEP_COINS must be positive")
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
