package utils

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	JWT      JWTConfig
	PayMongo PayMongoConfig
	Payment  PaymentConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
}

type AppConfig struct {
	Name        string
	Port        string
	Debug       bool
	LogPath     string
	Environment string
	BaseURL     string
	CORSOrigins []string
}

func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	MaxConns int32
}

type JWTConfig struct {
	Secret string
}

type PayMongoConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

type PaymentConfig struct {
	Currency             string
	CheckoutTTL          time.Duration
	ProcessingStaleAfter time.Duration
	ProcessingWait       time.Duration
	DownPaymentPercent   float64
	SweepInterval        time.Duration
	SweepBatchSize       int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	EventTTL time.Duration
}

type RabbitMQConfig struct {
	URL   string
	Queue string
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	viper.SetDefault("APP_NAME", "court-booking")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("LOG_PATH", "logs/")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_BASE_URL", "http://localhost:3000")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("PAYMONGO_BASE_URL", "https://api.paymongo.com/v1")
	viper.SetDefault("PAYMONGO_TIMEOUT", "15s")
	viper.SetDefault("PAYMENT_CURRENCY", "PHP")
	viper.SetDefault("PAYMENT_CHECKOUT_TTL", "15m")
	viper.SetDefault("PAYMENT_PROCESSING_STALE_AFTER", "2m")
	viper.SetDefault("PAYMENT_PROCESSING_WAIT", "3s")
	viper.SetDefault("PAYMENT_DOWN_PAYMENT_PERCENT", 20)
	viper.SetDefault("PAYMENT_SWEEP_INTERVAL", "1m")
	viper.SetDefault("PAYMENT_SWEEP_BATCH_SIZE", 100)
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_EVENT_TTL", "168h")
	viper.SetDefault("RABBITMQ_QUEUE", "reservation.confirmed")

	// .env is optional when everything comes from the environment
	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	viper.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:        viper.GetString("APP_NAME"),
			Port:        viper.GetString("PORT"),
			Debug:       viper.GetBool("DEBUG"),
			LogPath:     viper.GetString("LOG_PATH"),
			Environment: viper.GetString("APP_ENV"),
			BaseURL:     viper.GetString("APP_BASE_URL"),
			CORSOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASS"),
			MaxConns: viper.GetInt32("DB_MAX_CONNS"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		PayMongo: PayMongoConfig{
			BaseURL:       viper.GetString("PAYMONGO_BASE_URL"),
			SecretKey:     viper.GetString("PAYMONGO_SECRET_KEY"),
			WebhookSecret: viper.GetString("PAYMONGO_WEBHOOK_SECRET"),
			Timeout:       viper.GetDuration("PAYMONGO_TIMEOUT"),
		},
		Payment: PaymentConfig{
			Currency:             viper.GetString("PAYMENT_CURRENCY"),
			CheckoutTTL:          viper.GetDuration("PAYMENT_CHECKOUT_TTL"),
			ProcessingStaleAfter: viper.GetDuration("PAYMENT_PROCESSING_STALE_AFTER"),
			ProcessingWait:       viper.GetDuration("PAYMENT_PROCESSING_WAIT"),
			DownPaymentPercent:   viper.GetFloat64("PAYMENT_DOWN_PAYMENT_PERCENT"),
			SweepInterval:        viper.GetDuration("PAYMENT_SWEEP_INTERVAL"),
			SweepBatchSize:       viper.GetInt("PAYMENT_SWEEP_BATCH_SIZE"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
			EventTTL: viper.GetDuration("REDIS_EVENT_TTL"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:   viper.GetString("RABBITMQ_URL"),
			Queue: viper.GetString("RABBITMQ_QUEUE"),
		},
	}

	return config, nil
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
