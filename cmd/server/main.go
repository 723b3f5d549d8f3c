package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moderator-server/internal/board"
	"moderator-server/internal/config"
	"moderator-server/internal/decision"
	"moderator-server/internal/gamedef"
	"moderator-server/internal/handler"
	"moderator-server/internal/messaging"
	"moderator-server/internal/narrator"
	"moderator-server/internal/orchestrator"
	"moderator-server/internal/pipeline"
	"moderator-server/internal/state"
	"moderator-server/internal/turns"
	"moderator-server/internal/validator"
	"moderator-server/pkg/ai"
	sharedLogger "moderator-server/shared/logger"
	sharedMiddleware "moderator-server/shared/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	// Используем стандартный log для самых ранних ошибок, до инициализации zap
	log.Println("Запуск Moderator Service...")

	// .env нужен только для локальной разработки
	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используются переменные окружения")
	}

	// --- Загрузка конфигурации ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// --- Инициализация логгера (Используем shared/logger) ---
	logger, err := sharedLogger.New(sharedLogger.Config{
		Level:    cfg.LogLevel,
		Encoding: "json",
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Info("Логгер инициализирован", zap.String("logLevel", cfg.LogLevel))

	// --- Загрузка игрового определения ---
	def, err := gamedef.Load(cfg.GameDefinitionPath, logger)
	if err != nil {
		sugar.Fatalf("Не удалось загрузить игровое определение: %v", err)
	}
	sugar.Infof("Игра загружена: %s", def.Metadata.Name)

	store := state.NewStore(def.NewDocument(), logger)

	// --- Подключение к Redis (дедупликация транскриптов) ---
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		// Дедупликация fail-open: сервис работает и без Redis
		sugar.Warnf("Redis недоступен, дедупликация транскриптов отключена: %v", err)
	}
	cancelPing()
	defer redisClient.Close()

	// --- Подключение к RabbitMQ (опционально) ---
	var publisher messaging.EventPublisher = messaging.NoopEventPublisher{}
	if cfg.RabbitMQURL != "" {
		rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, logger)
		if err != nil {
			sugar.Fatalf("Не удалось подключиться к RabbitMQ: %v", err)
		}
		defer rabbitConn.Close()

		rmqPublisher, err := messaging.NewRabbitMQEventPublisher(rabbitConn, cfg.ClientUpdatesQueueName, logger)
		if err != nil {
			sugar.Fatalf("Не удалось создать EventPublisher: %v", err)
		}
		defer func() {
			if err := rmqPublisher.Close(); err != nil {
				sugar.Errorf("Ошибка при закрытии канала EventPublisher: %v", err)
			}
		}()
		publisher = rmqPublisher
	}

	// --- AI провайдер и пайплайн генерации ---
	provider, err := ai.New(ai.Config{
		Backend:     cfg.AIBackend,
		APIKey:      cfg.AIAPIKey,
		BaseURL:     cfg.AIBaseURL,
		ModelName:   cfg.AIModelName,
		Timeout:     cfg.AITimeout,
		Temperature: cfg.AITemperature,
		MaxTokens:   cfg.AIMaxTokens,
	})
	if err != nil {
		sugar.Fatalf("Не удалось создать AI провайдер: %v", err)
	}
	sugar.Infof("AI провайдер готов: %s / %s", cfg.AIBackend, provider.Model())

	dedup := pipeline.NewRedisDeduplicator(redisClient, cfg.DedupWindow, logger)
	prompt := pipeline.NewPromptBuilder(def, cfg.MaxPromptTokens, logger)
	source := pipeline.New(provider, prompt, cfg.MaxRetries, cfg.RetryDelay, logger)

	// --- Ядро модератора ---
	voice := narrator.NewEventNarrator(publisher, logger)
	orch := orchestrator.New(
		store,
		source,
		dedup,
		validator.New(def, logger),
		turns.NewManager(store, logger),
		board.New(logger),
		decision.NewGate(logger),
		voice,
		publisher,
		logger,
	)

	// --- Настройка Gin ---
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sharedMiddleware.ZapLoggingMiddlewareForGin(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	p := ginprometheus.NewPrometheus("moderator")
	p.Use(router)

	h := handler.NewModeratorHandler(orch, store, cfg.InternalServiceToken, logger)
	h.RegisterRoutes(router)

	// --- Запуск HTTP сервера ---
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		sugar.Infof("Moderator сервер запускается на порту %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Ошибка запуска HTTP сервера: %v", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Info("Получен сигнал завершения, начинаем остановку сервера...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		sugar.Fatalf("Ошибка при остановке сервера: %v", err)
	}

	sugar.Info("Сервер успешно остановлен")
}

// connectRabbitMQ подключается с ретраями и логирует разрыв соединения.
func connectRabbitMQ(uri string, logger *zap.Logger) (*amqp.Connection, error) {
	var connection *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		connection, err = amqp.Dial(uri)
		if err == nil {
			logger.Info("Подключение к RabbitMQ успешно установлено")
			go func() {
				notifyClose := make(chan *amqp.Error)
				connection.NotifyClose(notifyClose)
				closeErr := <-notifyClose
				if closeErr != nil {
					logger.Error("Соединение с RabbitMQ закрыто", zap.Error(closeErr))
				}
			}()
			return connection, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ, повтор...",
			zap.Int("attempt", i+1),
			zap.Duration("delay", retryDelay),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, err
}
