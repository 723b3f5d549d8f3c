// Package pipeline wraps the external text-generation provider behind
// GetActions: transcript in, validated-shape action sequence out. It owns
// bounded retries with increasing delay, prompt construction and strict reply
// parsing. All failures are typed so the orchestrator can build a precise
// corrective prompt. Transcript deduplication lives at the intake boundary,
// not here: correction rounds and synthetic re-entries legitimately repeat a
// transcript and must reach the provider.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"moderator-server/internal/action"
	"moderator-server/internal/state"
	"moderator-server/pkg/ai"
	"moderator-server/shared/models"
)

// ActionSource is what the orchestrator depends on. feedback carries prior
// rejection reasons for corrective re-prompting.
type ActionSource interface {
	GetActions(ctx context.Context, transcript string, snapshot state.Document, feedback []string) ([]action.Action, error)
}

// Pipeline implements ActionSource over an ai.Provider.
type Pipeline struct {
	provider   ai.Provider
	prompt     *PromptBuilder
	maxRetries int
	retryDelay time.Duration
	sleep      func(time.Duration) // injectable for tests
	logger     *zap.Logger
}

// New creates a pipeline. maxRetries <= 0 defaults to 3; retryDelay <= 0
// defaults to one second.
func New(provider ai.Provider, prompt *PromptBuilder, maxRetries int, retryDelay time.Duration, logger *zap.Logger) *Pipeline {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Pipeline{
		provider:   provider,
		prompt:     prompt,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		sleep:      time.Sleep,
		logger:     logger.Named("Pipeline"),
	}
}

// WithSleep overrides the backoff sleeper. Used by tests.
func (p *Pipeline) WithSleep(sleep func(time.Duration)) *Pipeline {
	p.sleep = sleep
	return p
}

// GetActions turns one transcript into an ordered action sequence.
//
// A provider reply that parses to an empty sequence earns exactly one extra
// attempt; a second empty reply degrades to ErrEmptyActionSequence so the
// caller can ask the player to try again.
func (p *Pipeline) GetActions(ctx context.Context, transcript string, snapshot state.Document, feedback []string) ([]action.Action, error) {
	log := p.logger.With(zap.Int("transcriptLen", len(transcript)))

	// Parse failures from one attempt are folded into the next attempt's
	// prompt, the same closed loop the validator uses.
	attemptFeedback := append([]string(nil), feedback...)
	emptyRetryUsed := false
	var lastErr error

	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		systemPrompt, userPrompt, err := p.prompt.Build(snapshot, transcript, attemptFeedback)
		if err != nil {
			return nil, models.NewPipelineError(models.PipelineWrongShape, err, "failed to build prompt")
		}

		reply, usage, err := p.provider.Generate(ctx, systemPrompt, userPrompt)
		if err != nil {
			lastErr = models.NewPipelineError(models.PipelineNetwork, err, "provider call failed on attempt %d", attempt)
			pipelineFailuresTotal.WithLabelValues(string(models.PipelineNetwork)).Inc()
			log.Warn("Provider call failed", zap.Int("attempt", attempt), zap.Error(err))
			p.backoff(attempt)
			continue
		}

		batch, parseErr := action.ParseSequence(reply)
		if parseErr != nil {
			lastErr = parseErr
			if pe, ok := models.AsPipelineError(parseErr); ok {
				pipelineFailuresTotal.WithLabelValues(string(pe.Kind)).Inc()
				attemptFeedback = append(attemptFeedback, pe.Message)
			}
			log.Warn("Reply failed strict parsing", zap.Int("attempt", attempt), zap.Error(parseErr))
			p.backoff(attempt)
			continue
		}

		if len(batch) == 0 {
			// A successful call with no actions is a signal to retry once
			// more, not a valid no-op answer.
			if !emptyRetryUsed {
				emptyRetryUsed = true
				log.Warn("Provider returned an empty action sequence, retrying once", zap.Int("attempt", attempt))
				attemptFeedback = append(attemptFeedback, "your reply was an empty array; produce at least one action")
				p.backoff(attempt)
				attempt-- // the empty-reply retry does not consume a regular attempt
				continue
			}
			return nil, models.ErrEmptyActionSequence
		}

		log.Info("Action sequence obtained",
			zap.Int("attempt", attempt),
			zap.Int("actions", len(batch)),
			zap.Int("totalTokens", usage.TotalTokens))
		return batch, nil
	}

	return nil, lastErr
}

// backoff sleeps with linearly increasing delay between attempts.
func (p *Pipeline) backoff(attempt int) {
	p.sleep(time.Duration(attempt) * p.retryDelay)
}
