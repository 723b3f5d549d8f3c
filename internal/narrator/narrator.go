// Package narrator defines the speech/sound collaborator consumed by the
// orchestration core. Rendering (TTS, playback) lives outside this server;
// here a narrator is something that accepts text and sound ids, with failures
// that are logged and never fatal.
package narrator

import (
	"context"

	"go.uber.org/zap"

	"moderator-server/internal/messaging"
)

// Narrator renders narration for the players. Speak returns once playback of
// the utterance has been handed off (or completed, for synchronous renderers).
type Narrator interface {
	Speak(ctx context.Context, text string) error
	PlaySound(ctx context.Context, soundID string) error
}

// EventNarrator forwards narration to the client-updates queue, where a
// downstream service renders it. Doubles as a structured-log narrator for
// headless runs with the noop publisher.
type EventNarrator struct {
	publisher messaging.EventPublisher
	logger    *zap.Logger
}

// NewEventNarrator creates a narrator over an event publisher.
func NewEventNarrator(publisher messaging.EventPublisher, logger *zap.Logger) *EventNarrator {
	return &EventNarrator{
		publisher: publisher,
		logger:    logger.Named("Narrator"),
	}
}

func (n *EventNarrator) Speak(ctx context.Context, text string) error {
	n.logger.Info("Narrating", zap.String("text", text))
	return n.publisher.PublishClientUpdate(ctx, messaging.ClientUpdatePayload{
		Type: messaging.EventNarration,
		Text: text,
	})
}

func (n *EventNarrator) PlaySound(ctx context.Context, soundID string) error {
	n.logger.Info("Playing sound", zap.String("soundID", soundID))
	return n.publisher.PublishClientUpdate(ctx, messaging.ClientUpdatePayload{
		Type:    messaging.EventSound,
		SoundID: soundID,
	})
}
