// Package ai wraps the external text-generation backends behind one Provider
// interface. Two backends are supported: an OpenRouter-compatible API via
// go-openai, and a local Ollama instance via its native API.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

// ErrGenerationFailed - ошибка при генерации текста AI
var ErrGenerationFailed = errors.New("AI text generation failed")

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderator_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moderator_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	aiTotalTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moderator_ai_total_tokens",
			Help:    "Histogram of total token counts (prompt + completion).",
			Buckets: prometheus.LinearBuckets(350, 350, 20),
		},
		[]string{"model"},
	)
)

// Usage содержит информацию об использовании токенов.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is one text-generation backend. Retries and reply parsing belong to
// the request pipeline; a Provider performs exactly one call.
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error)
	Model() string
}

// Config содержит конфигурацию для клиента нейросети.
type Config struct {
	Backend     string // "openrouter" или "ollama"
	APIKey      string
	BaseURL     string
	ModelName   string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
}

// New создает Provider в зависимости от конфигурации.
func New(cfg Config) (Provider, error) {
	if cfg.ModelName == "" {
		cfg.ModelName = "deepseek/deepseek-chat-v3-0324:free"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "openrouter", "openai":
		return newOpenRouterProvider(cfg)
	case "ollama":
		return newOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown AI backend %q", cfg.Backend)
	}
}

// --- OpenRouter (go-openai) ---

type openRouterProvider struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	temperature float32
	maxTokens   int
}

func newOpenRouterProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key for OpenRouter is not set")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	} else {
		clientConfig.BaseURL = "https://openrouter.ai/api/v1"
	}

	log.Info().Str("model", cfg.ModelName).Str("baseURL", clientConfig.BaseURL).Msg("OpenRouter provider created")
	return &openRouterProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.ModelName,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (p *openRouterProvider) Model() string { return p.model }

func (p *openRouterProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		TopP:        0.95,
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("CreateChatCompletion failed")
		aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "error"}).Inc()
		return "", Usage{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "error"}).Inc()
		return "", Usage{}, fmt.Errorf("%w: empty response, no choices returned", ErrGenerationFailed)
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": p.model}).Observe(duration.Seconds())
	if usage.TotalTokens > 0 {
		aiTotalTokens.With(prometheus.Labels{"model": p.model}).Observe(float64(usage.TotalTokens))
	}

	content := resp.Choices[0].Message.Content
	log.Debug().Dur("duration", duration).Int("totalTokens", usage.TotalTokens).Int("responseLen", len(content)).Msg("AI response received")
	return content, usage, nil
}

// --- Ollama (native API) ---

type ollamaProvider struct {
	client      *api.Client
	model       string
	timeout     time.Duration
	temperature float32
	maxTokens   int
}

func newOllamaProvider(cfg Config) (Provider, error) {
	// api.NewClient требует URL без суффикса /v1
	base := strings.TrimSuffix(cfg.BaseURL, "/v1")
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		base = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL %q: %w", base, err)
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout})
	log.Info().Str("model", cfg.ModelName).Str("baseURL", base).Msg("Ollama provider created")
	return &ollamaProvider{
		client:      client,
		model:       cfg.ModelName,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (p *ollamaProvider) Model() string { return p.model }

func (p *ollamaProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	stream := false
	req := &api.ChatRequest{
		Model: p.model,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": float64(p.temperature),
			"num_predict": p.maxTokens,
		},
	}

	start := time.Now()
	var resp api.ChatResponse
	err := p.client.Chat(ctx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Ollama chat failed")
		aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "error"}).Inc()
		return "", Usage{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "error"}).Inc()
		return "", Usage{}, fmt.Errorf("%w: empty response from Ollama", ErrGenerationFailed)
	}

	usage := Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": p.model}).Observe(duration.Seconds())
	if usage.TotalTokens > 0 {
		aiTotalTokens.With(prometheus.Labels{"model": p.model}).Observe(float64(usage.TotalTokens))
	}

	return resp.Message.Content, usage, nil
}
