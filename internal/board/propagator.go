// Package board reacts to committed position changes: silent automatic moves
// from the move table, and encounter squares that trigger a synthesized system
// transcript.
package board

import (
	"fmt"

	"go.uber.org/zap"

	"moderator-server/internal/state"
)

// DefaultMaxChain bounds chained auto-moves. A board whose move table cycles
// (3->7, 7->3) is a configuration error, not an infinite loop.
const DefaultMaxChain = 8

// Hop is one automatic move. The sign of To-From alone distinguishes a forward
// boost from a setback; no separate classification is stored.
type Hop struct {
	From int
	To   int
}

// Outcome describes what propagation did to one player's position.
type Outcome struct {
	PlayerID      string
	FinalPosition int
	AutoMoves     []Hop
	// Encounter is the effect descriptor of the square the player finally
	// rests on, or "" when the square is plain. Encounters are narrated via a
	// synthesized system transcript, not applied here.
	Encounter string
}

// Propagator applies the board tables after a committed write to a player's
// position.
type Propagator struct {
	maxChain int
	logger   *zap.Logger
}

// New creates a propagator with the default chain bound.
func New(logger *zap.Logger) *Propagator {
	return &Propagator{
		maxChain: DefaultMaxChain,
		logger:   logger.Named("BoardPropagator"),
	}
}

// WithMaxChain overrides the chain bound. Used by tests.
func (p *Propagator) WithMaxChain(n int) *Propagator {
	p.maxChain = n
	return p
}

// Resolve follows the move table from the player's current position until
// neither table applies, mutating doc in place. Auto-moves are silent: they
// never round-trip through the generation pipeline. After each hop both
// tables are re-checked against the new position.
func (p *Propagator) Resolve(doc state.Document, playerID string) (*Outcome, error) {
	pos, ok := state.PlayerPosition(doc, playerID)
	if !ok {
		return nil, fmt.Errorf("player %q has no position to propagate from", playerID)
	}

	outcome := &Outcome{PlayerID: playerID, FinalPosition: pos}

	for i := 0; ; i++ {
		dest, moves := state.MoveDestination(doc, pos)
		if !moves {
			break
		}
		if i >= p.maxChain {
			return nil, fmt.Errorf("move table chain at position %d exceeded %d hops: cyclic board configuration", pos, p.maxChain)
		}
		if err := state.Set(doc, state.PlayerFieldPath(playerID, "position"), float64(dest)); err != nil {
			return nil, fmt.Errorf("failed to apply auto-move for %q: %w", playerID, err)
		}
		p.logger.Info("Auto-move applied",
			zap.String("player", playerID),
			zap.Int("from", pos),
			zap.Int("to", dest))
		outcome.AutoMoves = append(outcome.AutoMoves, Hop{From: pos, To: dest})
		pos = dest
		outcome.FinalPosition = pos
	}

	if effect, ok := state.SquareEffect(doc, pos); ok {
		outcome.Encounter = effect
		p.logger.Info("Square effect triggered",
			zap.String("player", playerID),
			zap.Int("position", pos),
			zap.String("effect", effect))
	}

	return outcome, nil
}

// EncounterTranscript synthesizes the system transcript that narrates a square
// effect through the normal pipeline.
func EncounterTranscript(doc state.Document, o *Outcome) string {
	name := state.PlayerName(doc, o.PlayerID)
	return fmt.Sprintf("SYSTEM EVENT: %s landed on square %d which has this effect: %s. Narrate the encounter and apply its consequences.",
		name, o.FinalPosition, o.Encounter)
}
