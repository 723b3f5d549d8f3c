package pipeline

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"moderator-server/internal/gamedef"
	"moderator-server/internal/state"
)

// systemPreamble is the static wire-protocol contract. The game's own rules
// text is appended by the builder.
const systemPreamble = `You are the moderator of a physical board game. Players speak to you; a transcript of one utterance follows, together with the current game state.

Reply with EXACTLY one raw JSON array of action objects and nothing else: no prose, no markdown, no code fences. Allowed actions:
[{"type":"NARRATE","text":"...","soundEffect":"..."},
 {"type":"SET_STATE","path":"players.p1.position","value":5},
 {"type":"ADD_STATE","path":"...","value":2},
 {"type":"SUBTRACT_STATE","path":"...","value":1},
 {"type":"READ_STATE","path":"..."},
 {"type":"ROLL_DICE","die":6},
 {"type":"RESET_GAME","keepPlayerNames":true},
 {"type":"PLAYER_ROLLED","value":4},
 {"type":"PLAYER_ANSWERED","answer":"..."}]
Actions are applied strictly in order. Only modify state of the player whose turn it is.

Game rules:
`

// PromptBuilder renders one prompt per transcript: static preamble + rules,
// a compact schema-driven view of the current state, and the transcript.
type PromptBuilder struct {
	rules     string
	view      []gamedef.PromptField
	encoder   *tiktoken.Tiktoken
	maxTokens int
	logger    *zap.Logger
}

// NewPromptBuilder creates a builder for a loaded game definition.
// maxPromptTokens of 0 disables the budget warning.
func NewPromptBuilder(def *gamedef.Definition, maxPromptTokens int, logger *zap.Logger) *PromptBuilder {
	log := logger.Named("PromptBuilder")

	// cl100k_base покрывает все модели, которые мы используем через OpenRouter.
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Warn("Failed to initialize tiktoken encoder, token estimates disabled", zap.Error(err))
		encoder = nil
	}

	return &PromptBuilder{
		rules:     def.Rules,
		view:      def.StateView,
		encoder:   encoder,
		maxTokens: maxPromptTokens,
		logger:    log,
	}
}

// Build returns the system and user prompts for one transcript. feedback
// carries rejection reasons from prior attempts so the provider can
// self-correct.
func (b *PromptBuilder) Build(doc state.Document, transcript string, feedback []string) (string, string, error) {
	stateJSON, err := b.renderState(doc)
	if err != nil {
		return "", "", fmt.Errorf("failed to render state for prompt: %w", err)
	}

	systemPrompt := systemPreamble + b.rules

	var user strings.Builder
	user.WriteString("Current game state:\n")
	user.WriteString(stateJSON)
	user.WriteString("\n\nTranscript: ")
	user.WriteString(transcript)
	if len(feedback) > 0 {
		user.WriteString("\n\nYour previous reply was rejected. Fix these problems and answer again:\n")
		for _, f := range feedback {
			user.WriteString("- ")
			user.WriteString(f)
			user.WriteString("\n")
		}
	}
	userPrompt := user.String()

	if b.encoder != nil {
		total := len(b.encoder.Encode(systemPrompt, nil, nil)) + len(b.encoder.Encode(userPrompt, nil, nil))
		promptTokensEstimate.Observe(float64(total))
		if b.maxTokens > 0 && total > b.maxTokens {
			b.logger.Warn("Prompt exceeds configured token budget",
				zap.Int("estimatedTokens", total),
				zap.Int("budget", b.maxTokens))
		}
	}

	return systemPrompt, userPrompt, nil
}

// renderState produces the compact state view. Without a configured view the
// whole document is sent; with one, each field obeys its visibility: always
// shown, shown only when it differs from its default, or never shown.
func (b *PromptBuilder) renderState(doc state.Document) (string, error) {
	if len(b.view) == 0 {
		raw, err := json.Marshal(doc)
		return string(raw), err
	}

	visible := make(map[string]interface{}, len(b.view))
	for _, f := range b.view {
		value, ok := state.Get(doc, f.Path)
		if !ok {
			continue
		}
		switch f.Show {
		case gamedef.ShowNever:
			continue
		case gamedef.ShowNonDefault:
			if reflect.DeepEqual(value, f.Default) {
				continue
			}
		}
		visible[f.Path] = value
	}

	raw, err := json.Marshal(visible)
	return string(raw), err
}
