package config

import (
	"fmt"
	"log"
	"time"

	"moderator-server/shared/utils"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию для Moderator Service
type Config struct {
	// Настройки сервера
	Port     string `envconfig:"MODERATOR_SERVER_PORT" default:"8090"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Игровое определение
	GameDefinitionPath string `envconfig:"GAME_DEFINITION_PATH" required:"true"`

	// Настройки AI провайдера
	AIBackend     string        `envconfig:"AI_BACKEND" default:"openrouter"`
	AIBaseURL     string        `envconfig:"AI_BASE_URL" default:""`
	AIModelName   string        `envconfig:"AI_MODEL_NAME" default:""`
	AITimeout     time.Duration `envconfig:"AI_TIMEOUT" default:"45s"`
	AITemperature float32       `envconfig:"AI_TEMPERATURE" default:"0.2"`
	AIMaxTokens   int           `envconfig:"AI_MAX_TOKENS" default:"1024"`
	// Секретное поле БЕЗ envconfig тега
	AIAPIKey string

	// Настройки пайплайна генерации
	MaxRetries      int           `envconfig:"PIPELINE_MAX_RETRIES" default:"3"`
	RetryDelay      time.Duration `envconfig:"PIPELINE_RETRY_DELAY" default:"1s"`
	MaxPromptTokens int           `envconfig:"PIPELINE_MAX_PROMPT_TOKENS" default:"6000"`

	// Настройки Redis (дедупликация транскриптов)
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	DedupWindow   time.Duration `envconfig:"TRANSCRIPT_DEDUP_WINDOW" default:"10s"`
	RedisPassword string        // секрет, может быть пустым

	// Настройки RabbitMQ (опционально; пустой URL отключает публикацию)
	RabbitMQURL            string `envconfig:"RABBITMQ_URL" default:""`
	ClientUpdatesQueueName string `envconfig:"CLIENT_UPDATES_QUEUE_NAME" default:"client_updates"`

	// Внутренняя авторизация (для тестового обхода /internal/actions)
	// Секретное поле БЕЗ envconfig тега
	InternalServiceToken string
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	// Загружаем НЕсекретные переменные
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации moderator-server: %w", err)
	}

	// Загружаем ОБЯЗАТЕЛЬНЫЕ секреты
	var loadErr error
	cfg.AIAPIKey, loadErr = utils.ReadSecret("ai_api_key")
	if loadErr != nil {
		// Ollama не требует ключа; для остальных бэкендов ключ обязателен
		if cfg.AIBackend != "ollama" {
			return nil, loadErr
		}
		cfg.AIAPIKey = ""
	}

	cfg.InternalServiceToken, loadErr = utils.ReadSecret("internal_service_token")
	if loadErr != nil {
		return nil, loadErr
	}

	// НЕобязательный секрет
	cfg.RedisPassword, _ = utils.ReadSecret("redis_password")

	log.Printf("Конфигурация Moderator Service загружена (секреты из файлов):")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  Game Definition: %s", cfg.GameDefinitionPath)
	log.Printf("  AI Backend: %s (model: %s, timeout: %v)", cfg.AIBackend, cfg.AIModelName, cfg.AITimeout)
	log.Printf("  Pipeline: retries=%d delay=%v maxPromptTokens=%d", cfg.MaxRetries, cfg.RetryDelay, cfg.MaxPromptTokens)
	log.Printf("  Redis: %s (db %d, dedup window %v)", cfg.RedisAddr, cfg.RedisDB, cfg.DedupWindow)
	if cfg.RabbitMQURL != "" {
		log.Printf("  RabbitMQ: configured (queue: %s)", cfg.ClientUpdatesQueueName)
	} else {
		log.Println("  RabbitMQ: disabled")
	}
	log.Println("  Internal Service Token: [ЗАГРУЖЕН]")

	return &cfg, nil
}
