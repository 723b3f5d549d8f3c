package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moderator-server/internal/action"
	"moderator-server/internal/gamedef"
	"moderator-server/internal/state"
	"moderator-server/shared/models"
)

func testDefinition() *gamedef.Definition {
	return &gamedef.Definition{
		Metadata: gamedef.Metadata{Name: "Test Game", MinPlayers: 2, MaxPlayers: 3},
		Rules:    "test rules",
		InitialState: state.Document{
			"game": map[string]interface{}{
				"phase":       state.PhaseSetup,
				"turn":        nil,
				"winner":      nil,
				"lastRoll":    nil,
				"playerOrder": []interface{}{"p1", "p2"},
			},
			"players": map[string]interface{}{
				"p1": map[string]interface{}{"name": "", "position": float64(0), "gold": float64(0)},
				"p2": map[string]interface{}{"name": "", "position": float64(0), "gold": float64(0)},
			},
			"decisionPoints": []interface{}{
				map[string]interface{}{"position": float64(2), "requiredField": "pathChoice", "prompt": "Left or right?"},
			},
		},
	}
}

// playingSnapshot is the mid-game document the batches fold over.
func playingSnapshot() state.Document {
	return state.Document{
		"game": map[string]interface{}{
			"phase":       state.PhasePlaying,
			"turn":        "p1",
			"winner":      nil,
			"lastRoll":    nil,
			"playerOrder": []interface{}{"p1", "p2"},
		},
		"players": map[string]interface{}{
			"p1": map[string]interface{}{"name": "Alice", "position": float64(0), "gold": float64(5)},
			"p2": map[string]interface{}{"name": "Bob", "position": float64(4), "gold": float64(5)},
		},
		"decisionPoints": []interface{}{
			map[string]interface{}{"position": float64(2), "requiredField": "pathChoice", "prompt": "Left or right?"},
		},
	}
}

func newValidator() *Validator {
	return New(testDefinition(), zap.NewNop())
}

func TestTurnOwnership(t *testing.T) {
	v := newValidator()

	t.Run("acting player may write own state", func(t *testing.T) {
		result, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeSetState, Path: "players.p1.position", Value: float64(3)},
		}, playingSnapshot())
		require.NoError(t, err)
		pos, _ := state.PlayerPosition(result.Doc, "p1")
		assert.Equal(t, 3, pos)
	})

	t.Run("write to another player is rejected with both ids", func(t *testing.T) {
		_, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeSetState, Path: "players.p2.position", Value: float64(3)},
		}, playingSnapshot())
		ve, ok := models.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, models.ValidationTurnOwnership, ve.Kind)
		assert.Contains(t, ve.Message, `"p2"`)
		assert.Contains(t, ve.Message, `"p1"`)
	})

	t.Run("setup phase is exempt", func(t *testing.T) {
		snapshot := playingSnapshot()
		require.NoError(t, state.Set(snapshot, state.PathPhase, state.PhaseSetup))
		_, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeSetState, Path: "players.p2.name", Value: "Bob"},
		}, snapshot)
		assert.NoError(t, err)
	})

	t.Run("non-player paths are exempt", func(t *testing.T) {
		_, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeSetState, Path: "game.lastRoll", Value: float64(4)},
		}, playingSnapshot())
		assert.NoError(t, err)
	})
}

func TestPathAndTypeChecks(t *testing.T) {
	v := newValidator()

	t.Run("set into a missing subtree is PATH_NOT_FOUND", func(t *testing.T) {
		_, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeSetState, Path: "dungeons.d1.level", Value: float64(1)},
		}, playingSnapshot())
		ve, ok := models.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, models.ValidationPathNotFound, ve.Kind)
		assert.Equal(t, "dungeons.d1.level", ve.Path)
	})

	t.Run("set may create a new leaf on an open player record", func(t *testing.T) {
		result, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeSetState, Path: "players.p1.inventory", Value: "torch"},
		}, playingSnapshot())
		require.NoError(t, err)
		value, ok := state.PlayerField(result.Doc, "p1", "inventory")
		require.True(t, ok)
		assert.Equal(t, "torch", value)
	})

	t.Run("add to a non-numeric field is TYPE_MISMATCH", func(t *testing.T) {
		_, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeAddState, Path: "players.p1.name", Value: float64(1)},
		}, playingSnapshot())
		ve, ok := models.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, models.ValidationTypeMismatch, ve.Kind)
	})

	t.Run("negative position is rejected", func(t *testing.T) {
		_, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeSetState, Path: "players.p1.position", Value: float64(-2)},
		}, playingSnapshot())
		ve, ok := models.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, models.ValidationTypeMismatch, ve.Kind)
	})
}

func TestBatchFolding(t *testing.T) {
	v := newValidator()

	t.Run("later actions see earlier effects", func(t *testing.T) {
		result, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeSetState, Path: "players.p1.gold", Value: float64(10)},
			{Type: action.TypeAddState, Path: "players.p1.gold", Value: float64(5)},
			{Type: action.TypeSubtractState, Path: "players.p1.gold", Value: float64(3)},
		}, playingSnapshot())
		require.NoError(t, err)
		gold, _ := state.PlayerField(result.Doc, "p1", "gold")
		assert.Equal(t, float64(12), gold)
	})

	t.Run("rejection discards the whole batch", func(t *testing.T) {
		snapshot := playingSnapshot()
		result, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeSetState, Path: "players.p1.gold", Value: float64(100)},
			{Type: action.TypeSetState, Path: "players.p2.gold", Value: float64(100)},
		}, snapshot)
		require.Error(t, err)
		assert.Nil(t, result)
		// The snapshot itself is untouched: the fold works on a copy.
		gold, _ := state.PlayerField(snapshot, "p1", "gold")
		assert.Equal(t, float64(5), gold)
	})

	t.Run("rejection reports the failing index", func(t *testing.T) {
		_, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeNarrate, Text: "a"},
			{Type: action.TypeNarrate, Text: "b"},
			{Type: action.TypeSetState, Path: "players.p2.gold", Value: float64(1)},
		}, playingSnapshot())
		ve, ok := models.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, 2, ve.ActionIndex)
	})

	t.Run("moves are recorded with from and to", func(t *testing.T) {
		result, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeAddState, Path: "players.p1.position", Value: float64(4)},
		}, playingSnapshot())
		require.NoError(t, err)
		require.Len(t, result.Moves, 1)
		assert.Equal(t, Move{PlayerID: "p1", From: 0, To: 4}, result.Moves[0])
	})
}

func TestDecisionPending(t *testing.T) {
	v := newValidator()

	onDecisionPoint := func() state.Document {
		doc := playingSnapshot()
		require.NoError(t, state.Set(doc, "players.p1.position", float64(2)))
		return doc
	}

	t.Run("movement is blocked while the answer is owed", func(t *testing.T) {
		_, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeSetState, Path: "players.p1.position", Value: float64(5)},
		}, onDecisionPoint())
		ve, ok := models.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, models.ValidationDecisionPending, ve.Kind)
		assert.Contains(t, ve.Message, "pathChoice")
	})

	t.Run("an answer earlier in the batch unblocks movement", func(t *testing.T) {
		result, err := v.ValidateBatch([]action.Action{
			{Type: action.TypePlayerAnswered, Answer: "left"},
			{Type: action.TypeSetState, Path: "players.p1.position", Value: float64(5)},
		}, onDecisionPoint())
		require.NoError(t, err)
		choice, _ := state.PlayerField(result.Doc, "p1", "pathChoice")
		assert.Equal(t, "left", choice)
		pos, _ := state.PlayerPosition(result.Doc, "p1")
		assert.Equal(t, 5, pos)
	})

	t.Run("an answer with nothing pending has no state effect", func(t *testing.T) {
		result, err := v.ValidateBatch([]action.Action{
			{Type: action.TypePlayerAnswered, Answer: "sure"},
		}, playingSnapshot())
		require.NoError(t, err)
		_, ok := state.PlayerField(result.Doc, "p1", "pathChoice")
		assert.False(t, ok)
	})
}

func TestDiceAndReset(t *testing.T) {
	t.Run("roll writes lastRoll with the injected source", func(t *testing.T) {
		v := newValidator().WithRollFunc(func(die int) int { return die })
		result, err := v.ValidateBatch([]action.Action{
			{Type: action.TypeRollDice, Die: 6},
		}, playingSnapshot())
		require.NoError(t, err)
		require.Len(t, result.Rolls, 1)
		assert.Equal(t, Roll{Die: 6, Value: 6}, result.Rolls[0])
		last, _ := state.Get(result.Doc, state.PathLastRoll)
		assert.Equal(t, float64(6), last)
	})

	t.Run("player rolled reports the physical die", func(t *testing.T) {
		result, err := newValidator().ValidateBatch([]action.Action{
			{Type: action.TypePlayerRolled, Value: float64(4)},
		}, playingSnapshot())
		require.NoError(t, err)
		last, _ := state.Get(result.Doc, state.PathLastRoll)
		assert.Equal(t, float64(4), last)
	})

	t.Run("reset discards the remainder of the batch", func(t *testing.T) {
		result, err := newValidator().ValidateBatch([]action.Action{
			{Type: action.TypeResetGame, KeepPlayerNames: true},
			{Type: action.TypeSetState, Path: "players.p1.gold", Value: float64(999)},
		}, playingSnapshot())
		require.NoError(t, err)
		assert.True(t, result.Reset)
		assert.Equal(t, state.PhaseSetup, state.Phase(result.Doc))
		assert.Equal(t, "Alice", state.PlayerName(result.Doc, "p1"))
		gold, _ := state.PlayerField(result.Doc, "p1", "gold")
		assert.Equal(t, float64(0), gold)
	})

	t.Run("read records the observed value", func(t *testing.T) {
		result, err := newValidator().ValidateBatch([]action.Action{
			{Type: action.TypeReadState, Path: "players.p2.gold"},
		}, playingSnapshot())
		require.NoError(t, err)
		require.Len(t, result.Reads, 1)
		assert.Equal(t, float64(5), result.Reads[0].Value)
	})
}
