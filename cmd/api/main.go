package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/rubrix-app/rubrix-api/internal/auth"
	"github.com/rubrix-app/rubrix-api/internal/config"
	"github.com/rubrix-app/rubrix-api/internal/database"
	"github.com/rubrix-app/rubrix-api/internal/handler"
	"github.com/rubrix-app/rubrix-api/internal/middleware"
	"github.com/rubrix-app/rubrix-api/internal/models"
	"github.com/rubrix-app/rubrix-api/internal/repository"
	"github.com/rubrix-app/rubrix-api/internal/router"
	"github.com/rubrix-app/rubrix-api/internal/service"
	"github.com/rubrix-app/rubrix-api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Rubric{}, &models.ResultRecord{}, &models.SessionRecord{}, &models.GradingActivity{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Guest grades live in the key-value store; without Redis they stay in
	// process memory and vanish on restart.
	kv := store.NewMemoryKeyValue()
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		kv = store.NewRedisKeyValue(redisClient)
	} else {
		logger.Warn().Msg("redis url not configured, guest storage is in-memory only")
	}

	var events service.EventPublisher
	if cfg.NATSUrl != "" {
		natsConn, err := database.ConnectNATS(cfg.NATSUrl)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
		events = natsConn
	} else {
		logger.Warn().Msg("nats url not configured, grading events are disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	authProvider := auth.ContextProvider{}

	rubricRepo := repository.NewRubricRepository(db)
	resultRecordRepo := repository.NewResultRecordRepository(db)
	sessionRecordRepo := repository.NewSessionRecordRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	resultsStore := store.NewResultsStore(authProvider, kv, resultRecordRepo, logger)
	sessionStore := store.NewSessionStore(authProvider, kv, sessionRecordRepo, logger)

	rubricService := service.NewRubricService(rubricRepo, validate, logger)
	gradingService := service.NewGradingService(rubricRepo, sessionStore, resultsStore, activityRepo, authProvider, validate, events, cfg.EventSubject, cfg.AutosaveInterval, logger)
	resultService := service.NewResultService(rubricRepo, resultsStore, validate, logger)

	rubricHandler := handler.NewRubricHandler(rubricService, logger)
	sessionHandler := handler.NewSessionHandler(gradingService, logger)
	resultHandler := handler.NewResultHandler(resultService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:    &logger,
		JWTSecret: cfg.JWTSecret,
	})
	router.Register(app, cfg, router.Dependencies{
		RubricHandler:  rubricHandler,
		SessionHandler: sessionHandler,
		ResultHandler:  resultHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
