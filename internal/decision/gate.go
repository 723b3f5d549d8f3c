// Package decision gates turn completion on decision points: board positions
// that require the player standing on them to supply a named field before play
// may proceed.
package decision

import (
	"fmt"

	"go.uber.org/zap"

	"moderator-server/internal/state"
	"moderator-server/internal/turns"
)

// Pending describes an unanswered decision, either blocking (acting player) or
// informational (any other player).
type Pending struct {
	PlayerID      string
	PlayerName    string
	Position      int
	RequiredField string
	Prompt        string
}

// Gate checks decision points against document snapshots.
type Gate struct {
	logger *zap.Logger
}

// NewGate creates a decision gate.
func NewGate(logger *zap.Logger) *Gate {
	return &Gate{logger: logger.Named("DecisionGate")}
}

// Blocking returns the acting player's unanswered decision, if any. While one
// exists the turn is not complete and advancement must wait.
func (g *Gate) Blocking(doc state.Document, actingPlayerID string) (*Pending, bool) {
	dp, pending := turns.PendingDecision(doc, actingPlayerID)
	if !pending {
		return nil, false
	}
	g.logger.Info("Acting player has an unanswered decision",
		zap.String("player", actingPlayerID),
		zap.Int("position", dp.Position),
		zap.String("requiredField", dp.RequiredField))
	return &Pending{
		PlayerID:      actingPlayerID,
		PlayerName:    state.PlayerName(doc, actingPlayerID),
		Position:      dp.Position,
		RequiredField: dp.RequiredField,
		Prompt:        dp.Prompt,
	}, true
}

// Informational lists unanswered decisions of players other than the acting
// one. These never block; they are surfaced only as narration context.
func (g *Gate) Informational(doc state.Document, actingPlayerID string) []Pending {
	var out []Pending
	for _, id := range state.PlayerOrder(doc) {
		if id == actingPlayerID {
			continue
		}
		dp, pending := turns.PendingDecision(doc, id)
		if !pending {
			continue
		}
		out = append(out, Pending{
			PlayerID:      id,
			PlayerName:    state.PlayerName(doc, id),
			Position:      dp.Position,
			RequiredField: dp.RequiredField,
			Prompt:        dp.Prompt,
		})
	}
	return out
}

// PromptTranscript synthesizes the system transcript that asks the blocked
// player the configured question through the normal pipeline.
func (p *Pending) PromptTranscript() string {
	return fmt.Sprintf("SYSTEM EVENT: %s is at position %d and must decide: %s. Ask the player and record the answer in field %q.",
		p.PlayerName, p.Position, p.Prompt, p.RequiredField)
}
