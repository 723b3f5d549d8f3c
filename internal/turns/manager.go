// Package turns owns the turn-advancement state machine. AdvanceTurn is the
// only writer of game.turn in the whole system.
package turns

import (
	"fmt"

	"go.uber.org/zap"

	"moderator-server/internal/state"
)

// NextTurn describes the player a turn was advanced to, for an external
// announcer.
type NextTurn struct {
	PlayerID string
	Name     string
	Position int
}

// Manager drives turn advancement over the authoritative store.
type Manager struct {
	store  *state.Store
	logger *zap.Logger
}

// NewManager creates a turn manager.
func NewManager(store *state.Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.Named("TurnManager"),
	}
}

// PendingDecision reports whether the given player stands on a decision point
// whose required field is still absent or null. Pure query over a document.
func PendingDecision(doc state.Document, playerID string) (state.DecisionPoint, bool) {
	if playerID == "" {
		return state.DecisionPoint{}, false
	}
	pos, ok := state.PlayerPosition(doc, playerID)
	if !ok {
		return state.DecisionPoint{}, false
	}
	dp, ok := state.DecisionPointAt(doc, pos)
	if !ok {
		return state.DecisionPoint{}, false
	}
	v, present := state.PlayerField(doc, playerID, dp.RequiredField)
	if !present || v == nil {
		return dp, true
	}
	return state.DecisionPoint{}, false
}

// HasPendingDecisions reports whether the current player has an unanswered
// decision at their present position.
func (m *Manager) HasPendingDecisions() bool {
	doc := m.store.Snapshot()
	_, pending := PendingDecision(doc, state.CurrentTurn(doc))
	return pending
}

// AdvanceTurn computes the cyclic successor in playerOrder and writes
// game.turn. It refuses to advance (no mutation, returns nil) when:
//   - a board effect is mid-flight,
//   - the current player has a pending decision,
//   - game.winner is set,
//   - the phase is not PLAYING,
//   - there is no current turn, or playerOrder is empty.
func (m *Manager) AdvanceTurn(effectInFlight bool) *NextTurn {
	if effectInFlight {
		m.logger.Debug("AdvanceTurn refused: board effect in flight")
		return nil
	}

	doc := m.store.Snapshot()

	if state.WinnerSet(doc) {
		m.logger.Debug("AdvanceTurn refused: winner already set")
		return nil
	}
	if phase := state.Phase(doc); phase != state.PhasePlaying {
		m.logger.Debug("AdvanceTurn refused: game not in PLAYING phase", zap.String("phase", phase))
		return nil
	}

	current := state.CurrentTurn(doc)
	if current == "" {
		m.logger.Debug("AdvanceTurn refused: no current turn")
		return nil
	}
	if _, pending := PendingDecision(doc, current); pending {
		m.logger.Debug("AdvanceTurn refused: current player has a pending decision", zap.String("player", current))
		return nil
	}

	order := state.PlayerOrder(doc)
	if len(order) == 0 {
		m.logger.Warn("AdvanceTurn refused: playerOrder is empty")
		return nil
	}

	// Cyclic successor, wrapping past the last entry to the first.
	next := order[0]
	for i, id := range order {
		if id == current {
			next = order[(i+1)%len(order)]
			break
		}
	}

	if err := state.Set(doc, state.PathTurn, next); err != nil {
		m.logger.Error("Failed to write game.turn", zap.Error(err))
		return nil
	}
	m.store.Replace(doc)

	pos, _ := state.PlayerPosition(doc, next)
	m.logger.Info("Turn advanced", zap.String("from", current), zap.String("to", next))
	return &NextTurn{
		PlayerID: next,
		Name:     state.PlayerName(doc, next),
		Position: pos,
	}
}

// AssertPlayerTurnOwnership raises an error when path targets a player other
// than the one named by game.turn. No-op for non-player paths or when no turn
// is set. Used defensively by the validator and by direct-write entry points.
func (m *Manager) AssertPlayerTurnOwnership(path string) error {
	doc := m.store.Snapshot()
	return AssertOwnership(doc, path)
}

// AssertOwnership is the document-level form of AssertPlayerTurnOwnership.
func AssertOwnership(doc state.Document, path string) error {
	targetID, ok := state.PlayerIDFromPath(path)
	if !ok {
		return nil
	}
	current := state.CurrentTurn(doc)
	if current == "" {
		return nil
	}
	if targetID != current {
		return fmt.Errorf("write to %q targets player %q but it is %q's turn", path, targetID, current)
	}
	return nil
}
