package main

import (
	"context"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/arctic-media-solutions/soundwave/internal/client"
	"github.com/arctic-media-solutions/soundwave/internal/config"
	"github.com/arctic-media-solutions/soundwave/internal/handler"
	"github.com/arctic-media-solutions/soundwave/internal/notify"
	"github.com/arctic-media-solutions/soundwave/internal/service"
	"github.com/arctic-media-solutions/soundwave/internal/transcode"
	"github.com/arctic-media-solutions/soundwave/internal/worker"
	"github.com/arctic-media-solutions/soundwave/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(strings.EqualFold(cfg.Server.Env, "development"))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	// Redis client for job records
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Asynq client for enqueueing
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	validate := validator.New()

	// Storage client
	storageClient, err := client.NewS3Client(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage client: %v", err)
	}

	// FFmpeg transcoder
	transcoder, err := transcode.NewFFmpeg(transcode.Config{
		FFmpegPath: cfg.FFmpeg.FFmpegPath,
		Logger:     zlog,
	})
	if err != nil {
		log.Fatalf("Failed to initialize transcoder: %v", err)
	}

	dispatcher := notify.NewWebhookDispatcher(cfg.Processing.WebhookTimeout, zlog)

	jobService := service.NewJobService(redisClient, asynqClient, cfg.Processing.MaxAttempts, cfg.Processing.JobRetention)

	pipeline := worker.NewPipeline(transcoder, storageClient, dispatcher, jobService, worker.PipelineConfig{
		MaxSourceBytes:   cfg.Processing.MaxSourceBytes,
		DownloadTimeout:  cfg.Processing.DownloadTimeout,
		TranscodeTimeout: cfg.Processing.TranscodeTimeout,
		WorkDir:          cfg.Processing.WorkDir,
	}, zlog)

	processHandler := handler.NewProcessHandler(jobService, validate)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		redisOK := redisClient.Ping(c.Context()).Err() == nil
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":   redisOK,
				"storage": storageClient != nil,
				"ffmpeg":  transcoder != nil,
			},
		})
	})

	app.Post("/process", processHandler.Submit)
	app.Get("/jobs/:jobId", processHandler.Status)
	app.Post("/jobs/:jobId/cancel", processHandler.Cancel)

	// Start the worker pool
	go startWorkerServer(cfg, jobService, pipeline, zlog)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, jobService *service.JobService, pipeline *worker.Pipeline, zlog *logger.Logger) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Processing.Concurrency,
			Queues: map[string]int{
				"process": 10,
			},
			RetryDelayFunc: exponentialBackoff,
			LogLevel:       asynqLogLevel,
		},
	)

	processWorker := worker.NewProcessWorker(jobService, pipeline, zlog)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeProcess, processWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

// exponentialBackoff delays retry n by 2^n seconds, capped at 10 minutes.
func exponentialBackoff(n int, _ error, _ *asynq.Task) time.Duration {
	d := time.Duration(math.Pow(2, float64(n))) * time.Second
	if d > 10*time.Minute {
		d = 10 * time.Minute
	}
	return d
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
