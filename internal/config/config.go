package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config содержит конфигурацию приложения
type Config struct {
	RunAddress  string // Адрес и порт запуска сервиса
	DatabaseURI string // URI подключения к БД
	JWTSecret   string // Секретный ключ для JWT
	JWTTokenTTL time.Duration
	LogLevel    string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string
	StripeTimeout       time.Duration
	StripeMaxRetries    int64

	// Адреса возврата со страницы оплаты, {order_id} заменяется на ID заказа
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	// Проверка сумм
	AmountTolerance        decimal.Decimal
	MaxOrderAmount         decimal.Decimal
	FreeDeliveryThreshold  decimal.Decimal
	StandardDeliveryCharge decimal.Decimal

	// Worker Pool конфигурация
	WorkerPoolSize     int           // Количество воркеров
	WorkerQueueSize    int           // Размер очереди заказов
	WorkerScanInterval time.Duration // Интервал поиска неоплаченных заказов
	MinPendingAge      time.Duration // Минимальный возраст заказа для фоновой сверки
	OfferSyncInterval  time.Duration

	IdempotencyTTL       time.Duration
	PlaceOrderRateLimit  int64 // Запросов на пользователя за окно, 0 отключает
	PlaceOrderRateWindow time.Duration
}

func defaults() *Config {
	return &Config{
		RunAddress:             ":8080",
		JWTTokenTTL:            24 * time.Hour,
		LogLevel:               "info",
		RedisAddr:              "localhost:6379",
		StripeCurrency:         "inr",
		StripeTimeout:          10 * time.Second,
		StripeMaxRetries:       2,
		CheckoutSuccessURL:     "http://localhost:3000/orders/{order_id}/success",
		CheckoutCancelURL:      "http://localhost:3000/orders/{order_id}/cancel",
		AmountTolerance:        decimal.NewFromInt(1),
		MaxOrderAmount:         decimal.NewFromInt(500000),
		FreeDeliveryThreshold:  decimal.NewFromInt(1000),
		StandardDeliveryCharge: decimal.NewFromInt(49),
		WorkerPoolSize:         3,
		WorkerQueueSize:        100,
		WorkerScanInterval:     time.Minute,
		MinPendingAge:          15 * time.Minute,
		OfferSyncInterval:      time.Minute,
		IdempotencyTTL:         24 * time.Hour,
		PlaceOrderRateLimit:    10,
		PlaceOrderRateWindow:   time.Minute,
	}
}

// Load загружает конфигурацию из .env, флагов и переменных окружения.
// Приоритет: env переменные > флаги > дефолтные значения
func Load() (*Config, error) {
	// .env не обязателен, переменные могут прийти из окружения
	_ = godotenv.Load()

	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := defaults()

	fs := flag.NewFlagSet("ordersvc", flag.ContinueOnError)
	fs.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "address and port to run server")
	fs.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	lookupString("RUN_ADDRESS", &cfg.RunAddress)
	lookupString("DATABASE_URI", &cfg.DatabaseURI)
	lookupString("LOG_LEVEL", &cfg.LogLevel)

	// JWT секрет (только из env, не из флагов для безопасности)
	if envJWTSecret, ok := os.LookupEnv("JWT_SECRET"); ok {
		cfg.JWTSecret = envJWTSecret
	} else {
		cfg.JWTSecret = "default-secret-key-change-in-production"
	}

	lookupString("REDIS_ADDR", &cfg.RedisAddr)
	lookupString("REDIS_PASSWORD", &cfg.RedisPassword)
	lookupString("STRIPE_SECRET_KEY", &cfg.StripeSecretKey)
	lookupString("STRIPE_WEBHOOK_SECRET", &cfg.StripeWebhookSecret)
	lookupString("STRIPE_CURRENCY", &cfg.StripeCurrency)
	lookupString("CHECKOUT_SUCCESS_URL", &cfg.CheckoutSuccessURL)
	lookupString("CHECKOUT_CANCEL_URL", &cfg.CheckoutCancelURL)

	var errs []error
	errs = append(errs,
		lookupInt("REDIS_DB", &cfg.RedisDB, true),
		lookupInt("WORKER_POOL_SIZE", &cfg.WorkerPoolSize, false),
		lookupInt("WORKER_QUEUE_SIZE", &cfg.WorkerQueueSize, false),
		lookupInt64("STRIPE_MAX_RETRIES", &cfg.StripeMaxRetries),
		lookupInt64("PLACE_ORDER_RATE_LIMIT", &cfg.PlaceOrderRateLimit),
		lookupDuration("JWT_TOKEN_TTL", &cfg.JWTTokenTTL),
		lookupDuration("STRIPE_TIMEOUT", &cfg.StripeTimeout),
		lookupDuration("WORKER_SCAN_INTERVAL", &cfg.WorkerScanInterval),
		lookupDuration("MIN_PENDING_AGE", &cfg.MinPendingAge),
		lookupDuration("OFFER_SYNC_INTERVAL", &cfg.OfferSyncInterval),
		lookupDuration("IDEMPOTENCY_TTL", &cfg.IdempotencyTTL),
		lookupDuration("PLACE_ORDER_RATE_WINDOW", &cfg.PlaceOrderRateWindow),
		lookupDecimal("AMOUNT_TOLERANCE", &cfg.AmountTolerance),
		lookupDecimal("MAX_ORDER_AMOUNT", &cfg.MaxOrderAmount),
		lookupDecimal("FREE_DELIVERY_THRESHOLD", &cfg.FreeDeliveryThreshold),
		lookupDecimal("STANDARD_DELIVERY_CHARGE", &cfg.StandardDeliveryCharge),
	)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	// Валидация обязательных параметров
	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("database URI is required (use -d flag or DATABASE_URI env)")
	}

	if cfg.StripeSecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required (use STRIPE_SECRET_KEY env)")
	}

	return cfg, nil
}

func lookupString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func lookupInt(key string, dst *int, allowZero bool) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = n
	return nil
}

func lookupInt64(key string, dst *int64) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = n
	return nil
}

func lookupDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = d
	return nil
}

func lookupDecimal(key string, dst *decimal.Decimal) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = d
	return nil
}
