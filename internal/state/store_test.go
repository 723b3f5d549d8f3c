package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDoc() Document {
	return Document{
		"game": map[string]interface{}{
			"phase":       PhasePlaying,
			"turn":        "p1",
			"winner":      nil,
			"lastRoll":    nil,
			"playerOrder": []interface{}{"p1", "p2", "p3"},
		},
		"players": map[string]interface{}{
			"p1": map[string]interface{}{"name": "Alice", "position": float64(0)},
			"p2": map[string]interface{}{"name": "Bob", "position": float64(3)},
			"p3": map[string]interface{}{"name": "", "position": float64(5)},
		},
		"board": map[string]interface{}{
			"moves":   map[string]interface{}{"3": float64(7)},
			"squares": map[string]interface{}{"5": "draw a card"},
		},
		"decisionPoints": []interface{}{
			map[string]interface{}{"position": float64(2), "requiredField": "pathChoice", "prompt": "Left or right?"},
		},
	}
}

func TestGetAndSet(t *testing.T) {
	doc := testDoc()

	t.Run("resolves nested paths", func(t *testing.T) {
		v, ok := Get(doc, "players.p1.name")
		require.True(t, ok)
		assert.Equal(t, "Alice", v)
	})

	t.Run("missing segment does not resolve", func(t *testing.T) {
		_, ok := Get(doc, "players.p9.name")
		assert.False(t, ok)
	})

	t.Run("non-object mid-segment does not resolve", func(t *testing.T) {
		_, ok := Get(doc, "players.p1.name.first")
		assert.False(t, ok)
	})

	t.Run("set may create a new leaf field", func(t *testing.T) {
		require.NoError(t, Set(doc, "players.p1.gold", float64(10)))
		v, ok := Get(doc, "players.p1.gold")
		require.True(t, ok)
		assert.Equal(t, float64(10), v)
	})

	t.Run("set refuses a missing parent", func(t *testing.T) {
		err := Set(doc, "players.p9.gold", float64(10))
		assert.Error(t, err)
	})

	t.Run("add requires a numeric target", func(t *testing.T) {
		next, err := AddNumber(doc, "players.p2.position", 2)
		require.NoError(t, err)
		assert.Equal(t, float64(5), next)

		_, err = AddNumber(doc, "players.p1.name", 1)
		assert.Error(t, err)
	})
}

func TestSnapshotIsolation(t *testing.T) {
	store := NewStore(testDoc(), zap.NewNop())

	snap := store.Snapshot()
	require.NoError(t, Set(snap, "players.p1.position", float64(99)))

	// The store must not observe mutations of a snapshot.
	fresh := store.Snapshot()
	pos, ok := PlayerPosition(fresh, "p1")
	require.True(t, ok)
	assert.Equal(t, 0, pos)
}

func TestReplaceCommitsWholeDocument(t *testing.T) {
	store := NewStore(testDoc(), zap.NewNop())

	doc := store.Snapshot()
	require.NoError(t, Set(doc, PathTurn, "p2"))
	store.Replace(doc)

	assert.Equal(t, "p2", CurrentTurn(store.Snapshot()))
}

func TestTypedViews(t *testing.T) {
	doc := testDoc()

	assert.Equal(t, "p1", CurrentTurn(doc))
	assert.Equal(t, PhasePlaying, Phase(doc))
	assert.False(t, WinnerSet(doc))
	assert.Equal(t, []string{"p1", "p2", "p3"}, PlayerOrder(doc))

	require.NoError(t, Set(doc, PathWinner, "p2"))
	assert.True(t, WinnerSet(doc))

	t.Run("player name falls back to id", func(t *testing.T) {
		assert.Equal(t, "Alice", PlayerName(doc, "p1"))
		assert.Equal(t, "p3", PlayerName(doc, "p3"))
		assert.Equal(t, "p9", PlayerName(doc, "p9"))
	})

	t.Run("board tables", func(t *testing.T) {
		dest, ok := MoveDestination(doc, 3)
		require.True(t, ok)
		assert.Equal(t, 7, dest)

		_, ok = MoveDestination(doc, 4)
		assert.False(t, ok)

		effect, ok := SquareEffect(doc, 5)
		require.True(t, ok)
		assert.Equal(t, "draw a card", effect)

		_, ok = SquareEffect(doc, 0)
		assert.False(t, ok)
	})

	t.Run("decision points", func(t *testing.T) {
		dp, ok := DecisionPointAt(doc, 2)
		require.True(t, ok)
		assert.Equal(t, "pathChoice", dp.RequiredField)

		_, ok = DecisionPointAt(doc, 4)
		assert.False(t, ok)
	})
}

func TestPathHelpers(t *testing.T) {
	id, ok := PlayerIDFromPath("players.p2.position")
	require.True(t, ok)
	assert.Equal(t, "p2", id)

	_, ok = PlayerIDFromPath("game.turn")
	assert.False(t, ok)

	id, ok = IsPositionPath("players.p1.position")
	require.True(t, ok)
	assert.Equal(t, "p1", id)

	_, ok = IsPositionPath("players.p1.gold")
	assert.False(t, ok)

	assert.Equal(t, "players.p1.gold", PlayerFieldPath("p1", "gold"))
}
