package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moderator-server/internal/state"
)

func gateDoc() state.Document {
	return state.Document{
		"game": map[string]interface{}{
			"phase":       state.PhasePlaying,
			"turn":        "p1",
			"playerOrder": []interface{}{"p1", "p2"},
		},
		"players": map[string]interface{}{
			"p1": map[string]interface{}{"name": "Alice", "position": float64(2)},
			"p2": map[string]interface{}{"name": "Bob", "position": float64(6)},
		},
		"decisionPoints": []interface{}{
			map[string]interface{}{"position": float64(2), "requiredField": "pathChoice", "prompt": "Left or right?"},
			map[string]interface{}{"position": float64(6), "requiredField": "wager", "prompt": "How much do you wager?"},
		},
	}
}

func TestBlocking(t *testing.T) {
	g := NewGate(zap.NewNop())

	t.Run("acting player on an unanswered point blocks", func(t *testing.T) {
		pending, blocked := g.Blocking(gateDoc(), "p1")
		require.True(t, blocked)
		assert.Equal(t, "p1", pending.PlayerID)
		assert.Equal(t, "Alice", pending.PlayerName)
		assert.Equal(t, "pathChoice", pending.RequiredField)
	})

	t.Run("answered point does not block", func(t *testing.T) {
		doc := gateDoc()
		require.NoError(t, state.Set(doc, "players.p1.pathChoice", "left"))
		_, blocked := g.Blocking(doc, "p1")
		assert.False(t, blocked)
	})

	t.Run("other players never block the acting one", func(t *testing.T) {
		doc := gateDoc()
		require.NoError(t, state.Set(doc, "players.p1.pathChoice", "left"))
		// p2 still owes a wager, but it is p1 acting.
		_, blocked := g.Blocking(doc, "p1")
		assert.False(t, blocked)
	})
}

func TestInformational(t *testing.T) {
	g := NewGate(zap.NewNop())

	pending := g.Informational(gateDoc(), "p1")
	require.Len(t, pending, 1)
	assert.Equal(t, "p2", pending[0].PlayerID)
	assert.Equal(t, "wager", pending[0].RequiredField)
}

func TestPromptTranscript(t *testing.T) {
	p := &Pending{
		PlayerID:      "p1",
		PlayerName:    "Alice",
		Position:      2,
		RequiredField: "pathChoice",
		Prompt:        "Left or right?",
	}
	transcript := p.PromptTranscript()
	assert.Contains(t, transcript, "SYSTEM EVENT")
	assert.Contains(t, transcript, "Alice")
	assert.Contains(t, transcript, "Left or right?")
	assert.Contains(t, transcript, `"pathChoice"`)
}
