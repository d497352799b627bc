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
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/noah-isme/screening-api/internal/config"
	"github.com/noah-isme/screening-api/internal/database"
	"github.com/noah-isme/screening-api/internal/handler"
	"github.com/noah-isme/screening-api/internal/middleware"
	"github.com/noah-isme/screening-api/internal/queue"
	"github.com/noah-isme/screening-api/internal/repository"
	"github.com/noah-isme/screening-api/internal/router"
	"github.com/noah-isme/screening-api/internal/service"
	"github.com/noah-isme/screening-api/pkg/ai"
	"github.com/noah-isme/screening-api/pkg/brevo"
	cloud "github.com/noah-isme/screening-api/pkg/cloudinary"
)

func main() {
	seed := pflag.Bool("seed", false, "load the test library file before serving")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, follow-up sweeps run without a lease")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	oracle, closeOracle, err := ai.New(rootCtx, ai.Config{
		Provider:        cfg.AIProvider,
		Model:           cfg.AIModel,
		Timeout:         cfg.AITimeout,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		Logger:          logger,
	})
	if err != nil {
		log.Fatalf("failed to create scoring client: %v", err)
	}
	defer closeOracle()

	var sender service.EmailSender = service.NewLogEmailSender(logger)
	if cfg.BrevoAPIKey != "" {
		client, err := brevo.New(brevo.Config{APIKey: cfg.BrevoAPIKey, BaseURL: cfg.BrevoBaseURL}, logger)
		if err != nil {
			log.Fatalf("failed to create brevo client: %v", err)
		}
		sender = client
	}

	var storage service.FileStorage
	if cfg.CloudinaryCloudName != "" {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		storage = uploader
	}

	tasks, err := newQueue(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create task queue: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	settings := service.PipelineSettings{
		AppPublicURL:   cfg.AppPublicURL,
		TokenTTL:       cfg.TokenTTL,
		CooldownPeriod: cfg.CooldownPeriod,
		RejectionHold:  cfg.RejectionHold,
		BatchSize:      cfg.FollowupsBatch,
	}

	applicationRepo := repository.NewApplicationRepository(db)
	combinationRepo := repository.NewCombinationRepository(db)
	submissionRepo := repository.NewTestSubmissionRepository(db)
	libraryRepo := repository.NewTestLibraryRepository(db)
	notificationLogRepo := repository.NewNotificationLogRepository(db)

	notifier := service.NewNotifier(sender, notificationLogRepo, logger)
	orchestrator := service.NewOrchestrator(oracle, cfg.AITimeout, logger)
	uploadService := service.NewUploadService(storage, cfg.UploadMaxSizeMB, logger)

	applicationService := service.NewApplicationService(applicationRepo, notifier, tasks, validate, logger)
	lifecycleService := service.NewLifecycleService(applicationRepo, combinationRepo, orchestrator, notifier, tasks, settings, logger)
	matchingService := service.NewMatchingService(applicationRepo, combinationRepo, submissionRepo, libraryRepo, notifier, settings, logger)
	assessmentService := service.NewAssessmentService(submissionRepo, combinationRepo, libraryRepo, orchestrator, lifecycleService, logger)
	sessionService := service.NewTestSessionService(applicationRepo, combinationRepo, submissionRepo, libraryRepo, uploadService, notifier, tasks, validate, logger)
	staffService := service.NewStaffService(applicationRepo, combinationRepo, submissionRepo, libraryRepo, lifecycleService, notifier, tasks, validate, settings, logger)
	followupService := service.NewFollowupService(applicationRepo, combinationRepo, submissionRepo, notifier, tasks, redisClient, cfg.FollowupsInterval, settings, logger)
	seedService := service.NewSeedService(libraryRepo, cfg.SeedEnabled, cfg.SeedToken, logger)

	if *seed {
		affected, err := seedService.LoadTestLibraryFile(rootCtx, cfg.SeedFile)
		if err != nil {
			log.Fatalf("failed to seed test library: %v", err)
		}
		logger.Info().Int64("affected", affected).Str("file", cfg.SeedFile).Msg("test library seeded")
	}

	worker := service.NewPipelineWorker(lifecycleService, matchingService, assessmentService, logger)
	if err := tasks.Start(rootCtx, worker.Handle); err != nil {
		log.Fatalf("failed to start queue workers: %v", err)
	}

	var scheduler *service.FollowupScheduler
	if cfg.FollowupsEnabled {
		scheduler = service.NewFollowupScheduler(followupService, cfg.FollowupsInterval, logger)
		scheduler.Start(rootCtx)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.AppPublicURL})
	router.Register(app, cfg, router.Dependencies{
		ApplicationHandler: handler.NewApplicationHandler(applicationService, logger),
		TestSessionHandler: handler.NewTestSessionHandler(sessionService, logger),
		StaffHandler:       handler.NewStaffHandler(applicationService, staffService, followupService, logger),
		SeedHandler:        handler.NewSeedHandler(seedService, logger),
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-rootCtx.Done()
	waitForShutdown(app, tasks, scheduler)
}

func newQueue(cfg config.Config, logger zerolog.Logger) (queue.Queue, error) {
	switch cfg.QueueDriver {
	case queue.DriverNATS:
		conn, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			return nil, err
		}
		return queue.NewNATSQueue(conn, cfg.QueueSubject, logger)
	case queue.DriverRabbitMQ:
		return queue.NewRabbitQueue(cfg.RabbitMQURL, cfg.QueueSubject, cfg.QueueWorkers, logger)
	default:
		return queue.NewLocalQueue(cfg.QueueWorkers, 256, logger), nil
	}
}

func waitForShutdown(app *fiber.App, tasks queue.Queue, scheduler *service.FollowupScheduler) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := tasks.Stop(ctx); err != nil {
		log.Printf("queue shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
