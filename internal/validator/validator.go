// Package validator checks candidate action batches against a working snapshot
// of the game document. A batch is folded strictly in order, so later actions
// see earlier ones' effects; the authoritative store is untouched until the
// whole batch is accepted. A rejected batch never partially commits, and every
// rejection reason is surfaced as corrective context for the next generation
// attempt.
package validator

import (
	"math/rand"

	"go.uber.org/zap"

	"moderator-server/internal/action"
	"moderator-server/internal/gamedef"
	"moderator-server/internal/state"
	"moderator-server/internal/turns"
	"moderator-server/shared/models"
)

// Narration is a NARRATE side effect to dispatch after commit.
type Narration struct {
	Text        string
	SoundEffect string
}

// Move records one committed write to a player's position.
type Move struct {
	PlayerID string
	From     int
	To       int
}

// Read records one READ_STATE lookup, observable to the orchestrator.
type Read struct {
	Path  string
	Value interface{}
}

// Roll records one ROLL_DICE result.
type Roll struct {
	Die   int
	Value int
}

// Result is the outcome of a fully accepted batch.
type Result struct {
	Doc        state.Document // updated working state, ready to commit
	Narrations []Narration
	Moves      []Move
	Reads      []Read
	Rolls      []Roll
	Reset      bool // RESET_GAME was executed; the remainder of the batch was discarded
}

// RollFunc produces a die roll in [1, die]. Injectable for tests.
type RollFunc func(die int) int

// Validator validates action batches against working copies of the document.
type Validator struct {
	def    *gamedef.Definition
	roll   RollFunc
	logger *zap.Logger
}

// New creates a validator bound to a loaded game definition.
func New(def *gamedef.Definition, logger *zap.Logger) *Validator {
	return &Validator{
		def:    def,
		roll:   func(die int) int { return rand.Intn(die) + 1 },
		logger: logger.Named("Validator"),
	}
}

// WithRollFunc overrides the dice source. Used by tests.
func (v *Validator) WithRollFunc(roll RollFunc) *Validator {
	v.roll = roll
	return v
}

// ValidateBatch folds the batch over a deep copy of snapshot, short-circuiting
// on the first typed rejection.
func (v *Validator) ValidateBatch(batch []action.Action, snapshot state.Document) (*Result, error) {
	working := state.DeepCopy(snapshot)
	result := &Result{}

	for i, a := range batch {
		if err := v.applyAction(working, a, i, result); err != nil {
			v.logger.Debug("Batch rejected",
				zap.Int("actionIndex", i),
				zap.String("actionType", string(a.Type)),
				zap.Error(err))
			return nil, err
		}
		if result.Reset {
			// RESET_GAME replaces the whole document; the rest of the batch
			// refers to state that no longer exists.
			if i < len(batch)-1 {
				v.logger.Info("RESET_GAME discarded remainder of batch", zap.Int("discarded", len(batch)-1-i))
			}
			break
		}
	}

	result.Doc = working
	return result, nil
}

func (v *Validator) applyAction(working state.Document, a action.Action, index int, result *Result) error {
	switch a.Type {
	case action.TypeNarrate:
		result.Narrations = append(result.Narrations, Narration{Text: a.Text, SoundEffect: a.SoundEffect})
		return nil

	case action.TypeSetState:
		if err := v.checkOwnership(working, a.Path, index); err != nil {
			return err
		}
		if id, isPos := state.IsPositionPath(a.Path); isPos {
			return v.applyPositionWrite(working, a, index, id, result)
		}
		if _, resolvable := parentResolves(working, a.Path); !resolvable {
			return models.NewValidationError(models.ValidationPathNotFound, index, a.Path,
				"path does not resolve within the current game schema")
		}
		return v.set(working, a.Path, a.Value, index)

	case action.TypeAddState, action.TypeSubtractState:
		if err := v.checkOwnership(working, a.Path, index); err != nil {
			return err
		}
		delta, _ := a.NumericValue()
		if a.Type == action.TypeSubtractState {
			delta = -delta
		}
		current, ok := state.Get(working, a.Path)
		if !ok {
			return models.NewValidationError(models.ValidationPathNotFound, index, a.Path,
				"path does not resolve within the current game schema")
		}
		if _, numeric := state.ToNumber(current); !numeric {
			return models.NewValidationError(models.ValidationTypeMismatch, index, a.Path,
				"cannot add to non-numeric value of type %T", current)
		}
		if id, isPos := state.IsPositionPath(a.Path); isPos {
			from, _ := state.PlayerPosition(working, id)
			synthetic := a
			synthetic.Value = float64(from) + delta
			return v.applyPositionWrite(working, synthetic, index, id, result)
		}
		if _, err := state.AddNumber(working, a.Path, delta); err != nil {
			return models.NewValidationError(models.ValidationTypeMismatch, index, a.Path, "%v", err)
		}
		return nil

	case action.TypeReadState:
		value, ok := state.Get(working, a.Path)
		if !ok {
			return models.NewValidationError(models.ValidationPathNotFound, index, a.Path,
				"path does not resolve within the current game schema")
		}
		result.Reads = append(result.Reads, Read{Path: a.Path, Value: value})
		return nil

	case action.TypeRollDice:
		// Rarely used helper for NPC randomness; normal player dice are
		// reported via PLAYER_ROLLED. Never mutates player state, but the
		// result is observable to later actions through game.lastRoll.
		value := v.roll(a.Die)
		result.Rolls = append(result.Rolls, Roll{Die: a.Die, Value: value})
		return v.set(working, state.PathLastRoll, float64(value), index)

	case action.TypeResetGame:
		fresh := v.def.ResetDocument(working, a.KeepPlayerNames)
		for k := range working {
			delete(working, k)
		}
		for k, val := range fresh {
			working[k] = val
		}
		result.Reset = true
		return nil

	case action.TypePlayerRolled:
		value, _ := a.NumericValue()
		return v.set(working, state.PathLastRoll, value, index)

	case action.TypePlayerAnswered:
		// An answer only has meaning while the acting player stands on a
		// decision point with the required field unset; otherwise it is
		// conversational context with no state effect.
		current := state.CurrentTurn(working)
		if dp, pending := turns.PendingDecision(working, current); pending {
			return v.set(working, state.PlayerFieldPath(current, dp.RequiredField), a.Answer, index)
		}
		v.logger.Debug("PLAYER_ANSWERED with no pending decision, ignored", zap.String("answer", a.Answer))
		return nil

	default:
		return models.NewValidationError(models.ValidationTypeMismatch, index, "",
			"unknown action type %q", a.Type)
	}
}

// applyPositionWrite handles movement-causing writes: players.<id>.position.
func (v *Validator) applyPositionWrite(working state.Document, a action.Action, index int, playerID string, result *Result) error {
	to, numeric := a.NumericValue()
	if !numeric {
		return models.NewValidationError(models.ValidationTypeMismatch, index, a.Path,
			"position must be a number, got %T", a.Value)
	}
	if to < 0 {
		return models.NewValidationError(models.ValidationTypeMismatch, index, a.Path,
			"position must be non-negative, got %v", to)
	}

	// Movement is blocked while the mover still owes an answer at their
	// present position. Earlier actions in the batch may already have filled
	// the field; the working copy reflects that.
	if dp, pending := turns.PendingDecision(working, playerID); pending {
		return models.NewValidationError(models.ValidationDecisionPending, index, a.Path,
			"player %q must answer %q (field %q) before moving from position %d",
			playerID, dp.Prompt, dp.RequiredField, dp.Position)
	}

	from, _ := state.PlayerPosition(working, playerID)
	if err := v.set(working, a.Path, to, index); err != nil {
		return err
	}
	result.Moves = append(result.Moves, Move{PlayerID: playerID, From: from, To: int(to)})
	return nil
}

// checkOwnership enforces turn ownership for players.<id>.* writes during the
// PLAYING phase. Setup-time corrections are exempt.
func (v *Validator) checkOwnership(working state.Document, path string, index int) error {
	targetID, isPlayerPath := state.PlayerIDFromPath(path)
	if !isPlayerPath {
		return nil
	}
	if state.Phase(working) != state.PhasePlaying {
		return nil
	}
	current := state.CurrentTurn(working)
	if targetID == current {
		return nil
	}
	displayTurn := current
	if displayTurn == "" {
		displayTurn = "(none)"
	}
	return models.NewValidationError(models.ValidationTurnOwnership, index, path,
		"attempted to modify player %q, but the current turn belongs to %q", targetID, displayTurn)
}

func (v *Validator) set(working state.Document, path string, value interface{}, index int) error {
	if err := state.Set(working, path, value); err != nil {
		return models.NewValidationError(models.ValidationPathNotFound, index, path, "%v", err)
	}
	return nil
}

// parentResolves reports whether all segments of path except the last resolve
// to objects. SET_STATE may create a new leaf field (player records are open),
// but never a new subtree.
func parentResolves(doc state.Document, path string) (interface{}, bool) {
	idx := lastDot(path)
	if idx < 0 {
		return doc, true
	}
	return state.Get(doc, path[:idx])
}

func lastDot(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return i
		}
	}
	return -1
}
