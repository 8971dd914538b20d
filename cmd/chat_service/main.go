package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"marketplace_chat_service/internal/chat/app"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/internal/chat/router"
	"marketplace_chat_service/pkg/config"
	"marketplace_chat_service/pkg/database"
	"marketplace_chat_service/pkg/logger"
	testtool "marketplace_chat_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database)
	db, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    dsn,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Fatal("unable to connect to postgres after retries",
			zap.String("host", cfg.PostgreSQL.Host),
			zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(cfg.Redis.Addr, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	messageRepo := repository.NewMessageRepository(db)
	userRepo := repository.NewUserRepository(db)
	if err := messageRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal("message table migration failed", zap.Error(err))
	}
	if err := userRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal("user table migration failed", zap.Error(err))
	}

	summaryCache := repository.NewSummaryCache(redisClient)
	presence := repository.NewPresenceRepository(redisClient)

	// the notification stream is optional; without brokers delivery is
	// live-channel only and offline users rely on the durable log
	var publisher repository.StreamPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval) * time.Second,
		})
		if err != nil {
			logger.Log.Error("kafka unavailable, notifications disabled", zap.Error(err))
		} else {
			defer writer.Close()
			publisher = repository.NewStreamPublisher(writer)
		}
	}

	registry := app.NewRegistry(cfg.SendBuffer)
	aggregator := app.NewConversationAggregator(messageRepo, userRepo, summaryCache, presence, registry)
	eventRouter := app.NewEventRouter(messageRepo, aggregator, registry, publisher, cfg.WriteTimeout, cfg.TypingThrottle)

	httpHandler := app.NewChatHTTPHandler(eventRouter, aggregator, messageRepo)
	wsHandler := app.NewChatWebsocketHandler(eventRouter, registry, presence)

	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, httpHandler, wsHandler)

	go testtool.StartPprof()

	port := ":" + cfg.Port
	log.Printf("Chat Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
