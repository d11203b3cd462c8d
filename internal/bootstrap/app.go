package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"pagewise/internal/ai"
	"pagewise/internal/app"
	"pagewise/internal/cache"
	"pagewise/internal/config"
	"pagewise/internal/model"
	"pagewise/internal/objectstore"
	"pagewise/internal/ocr"
	"pagewise/internal/pkg/logger"
	mysqlClient "pagewise/internal/platform/mysql"
	rabbitmqClient "pagewise/internal/platform/rabbitmq"
	redisClient "pagewise/internal/platform/redis"
	"pagewise/internal/rasterize"
	"pagewise/internal/repository"
	"pagewise/internal/worker"
)

// Services are the use cases the transport layer exposes.
type Services struct {
	Auth      *app.AuthService
	Profiles  *app.ProfileService
	Ingestion *app.IngestionService
	Sessions  *app.SessionService
	Chat      *app.ChatService
}

type App struct {
	Config         *config.Config
	Log            *zap.Logger
	MySQL          *gorm.DB
	Redis          *redis.Client
	MQConn         *amqp.Connection
	ActivityWorker *worker.ActivityWorker
	Services       Services

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.FilePath, cfg.IsProduction()).
		With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))

	a := &App{Config: cfg, Log: log, StartedAt: time.Now()}
	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), a.Log)
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.UserProfile{},
		&model.Session{},
		&model.ChatThread{},
		&model.ChatTurn{},
	); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a.Redis, err = redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}

	if cfg.RabbitMQ.URL != "" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
	} else {
		a.Log.Info("rabbitmq disabled, session activity is applied inline")
	}

	userRepo := repository.NewUserRepository(mysqlDB)
	profileRepo := repository.NewProfileRepository(mysqlDB)
	sessionRepo := repository.NewSessionRepository(mysqlDB)
	threadRepo := repository.NewThreadRepository(mysqlDB)

	if a.MQConn != nil {
		a.ActivityWorker = worker.NewActivityWorker(a.MQConn, sessionRepo, cfg.RabbitMQ.ActivityQueue, a.Log)
		if err := a.ActivityWorker.Start(ctx); err != nil {
			return fmt.Errorf("start activity worker failed: %w", err)
		}
	}
	publisher := activityPublisher(a.MQConn, cfg.RabbitMQ.ActivityQueue)
	windows := cache.NewTurnWindowCache(a.Redis, time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second)

	llm := ai.NewOpenAICompatibleClient(ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout(),
	})
	assistant := ai.NewAssistant(llm, ai.Params{
		Chat:       completionParams(cfg.LLM.Chat),
		Transform:  completionParams(cfg.LLM.Transform),
		Name:       completionParams(cfg.LLM.Name),
		Keywords:   completionParams(cfg.LLM.Keywords),
		Transcribe: completionParams(cfg.LLM.Transcribe),
	})

	var fallback ocr.Transcriber
	if cfg.OCR.VisionFallback {
		fallback = assistant
	}
	extractor := ocr.NewExtractor(ocr.NewAzureClient(ocr.Config{
		Endpoint:   cfg.OCR.Endpoint,
		APIKey:     cfg.OCR.APIKey,
		APIVersion: cfg.OCR.APIVersion,
		Timeout:    cfg.OCR.Timeout(),
	}), fallback, a.Log)

	store := objectstore.NewClient(objectstore.Config{
		Endpoint:  cfg.Storage.Endpoint,
		ProjectID: cfg.Storage.ProjectID,
		APIKey:    cfg.Storage.APIKey,
		BucketID:  cfg.Storage.BucketID,
		Timeout:   cfg.Storage.Timeout(),
	})
	rasterizer := rasterize.New(rasterize.Config{
		DPI:         cfg.Rasterizer.DPI,
		JPEGQuality: cfg.Rasterizer.JPEGQuality,
		MaxEdge:     cfg.Rasterizer.MaxEdge,
	})

	a.Services = Services{
		Auth: app.NewAuthService(
			userRepo,
			cfg.Auth.JWTSecret,
			time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
		),
		Profiles: app.NewProfileService(profileRepo),
		Ingestion: app.NewIngestionService(sessionRepo, store, rasterizer, extractor, assistant, app.IngestionOptions{
			OCRConcurrency:  cfg.OCR.Concurrency,
			DeriveKeywords:  cfg.Ingestion.DeriveKeywords,
			MaxNameAttempts: cfg.Ingestion.MaxNameAttempts,
		}, a.Log),
		Sessions: app.NewSessionService(sessionRepo, threadRepo, extractor, assistant, windows, publisher, cfg.OCR.Concurrency, a.Log),
		Chat:     app.NewChatService(sessionRepo, threadRepo, assistant, windows, publisher, cfg.Chat.HistoryWindow, a.Log),
	}
	return nil
}

// activityPublisher is nil without a broker connection, which makes the
// services touch sessions inline.
func activityPublisher(conn *amqp.Connection, queue string) app.ActivityPublisher {
	if conn == nil {
		return nil
	}
	return rabbitmqClient.NewActivityPublisher(conn, queue)
}

func completionParams(d config.DecodingConfig) ai.CompletionParams {
	return ai.CompletionParams{
		Model:       d.Model,
		Temperature: d.Temperature,
		TopP:        d.TopP,
		MaxTokens:   d.MaxTokens,
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.ActivityWorker != nil {
		a.ActivityWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Log != nil {
		_ = a.Log.Sync()
	}
	return closeErr
}
