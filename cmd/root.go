package cmd

import (
	"fmt"
	"log"
	"os"

	"court-booking/internal/data/repository"
	"court-booking/internal/gateway"
	"court-booking/internal/wire"
	"court-booking/pkg/broker"
	"court-booking/pkg/cache"
	"court-booking/pkg/database"
	"court-booking/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "court-booking",
	Short: "Court booking payments: checkout, reconciliation and provider webhooks",
}

func init() {
	rootCmd.AddCommand(serveCmd, reconcileCmd, reconcileReservationCmd, sweepCmd, migrateCmd)
}

// Execute runs the CLI and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime is everything a command needs after startup
type runtime struct {
	config *utils.Config
	logger *zap.Logger
	db     database.PgxIface
	redis  *redis.Client
	app    *wire.App
}

func (rt *runtime) Close() {
	if rt.redis != nil {
		rt.redis.Close()
	}
	rt.db.Close()
	rt.logger.Sync()
}

// bootstrap loads config, opens the database and Redis, and wires services
func bootstrap() (*runtime, error) {
	config, err := utils.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := utils.InitLogger(config.App.LogPath, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}

	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("connect database: %w", err)
	}
	logger.Info("Database connected successfully")

	redisClient, err := cache.InitRedis(config.Redis)
	if err != nil {
		// dedupe falls back to the payment state guards
		logger.Warn("Redis unavailable, webhook dedupe disabled", zap.Error(err))
		redisClient = nil
	} else if redisClient == nil {
		logger.Info("Redis not configured, webhook dedupe disabled")
	}

	if config.PayMongo.SecretKey == "" {
		logger.Warn("PAYMONGO_SECRET_KEY is empty, provider calls will be rejected")
	}

	repos := repository.NewRepository(db, redisClient, config.Redis.EventTTL, logger)
	gw := gateway.NewPayMongoClient(config.PayMongo.BaseURL, config.PayMongo.SecretKey, config.PayMongo.Timeout, logger)
	publisher := broker.NewPublisher(config.RabbitMQ.URL, config.RabbitMQ.Queue, logger)

	app := wire.Wiring(repos, gw, publisher, config, logger)

	return &runtime{
		config: config,
		logger: logger,
		db:     db,
		redis:  redisClient,
		app:    app,
	}, nil
}
