package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moderator-server/internal/action"
	"moderator-server/internal/board"
	"moderator-server/internal/decision"
	"moderator-server/internal/gamedef"
	"moderator-server/internal/messaging"
	"moderator-server/internal/narrator"
	"moderator-server/internal/orchestrator"
	"moderator-server/internal/state"
	"moderator-server/internal/turns"
	"moderator-server/internal/validator"
)

const testToken = "test-internal-token"

type stubSource struct{}

func (stubSource) GetActions(context.Context, string, state.Document, []string) ([]action.Action, error) {
	return []action.Action{}, nil
}

func testRouter(t *testing.T) (*gin.Engine, *state.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	def := &gamedef.Definition{
		Metadata: gamedef.Metadata{Name: "Test Game"},
		Rules:    "test rules",
		InitialState: state.Document{
			"game": map[string]interface{}{
				"phase":       state.PhasePlaying,
				"turn":        "p1",
				"winner":      nil,
				"playerOrder": []interface{}{"p1", "p2"},
			},
			"players": map[string]interface{}{
				"p1": map[string]interface{}{"name": "Alice", "position": float64(0)},
				"p2": map[string]interface{}{"name": "Bob", "position": float64(0)},
			},
		},
	}

	store := state.NewStore(def.NewDocument(), log)
	publisher := messaging.NoopEventPublisher{}
	orch := orchestrator.New(
		store,
		stubSource{},
		nil,
		validator.New(def, log),
		turns.NewManager(store, log),
		board.New(log),
		decision.NewGate(log),
		narrator.NewEventNarrator(publisher, log),
		publisher,
		log,
	)

	router := gin.New()
	NewModeratorHandler(orch, store, testToken, log).RegisterRoutes(router)
	return router, store
}

func TestTranscriptIntake(t *testing.T) {
	router, _ := testRouter(t)

	t.Run("accepts a transcript with 202", func(t *testing.T) {
		body := bytes.NewBufferString(`{"transcript": "Alice rolled a three"}`)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/transcript", body))
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("rejects a missing transcript with 400", func(t *testing.T) {
		body := bytes.NewBufferString(`{}`)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/transcript", body))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStatusAndState(t *testing.T) {
	router, _ := testRouter(t)

	t.Run("status reports the current turn", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp StatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "p1", resp.CurrentTurn)
		assert.Equal(t, state.PhasePlaying, resp.Phase)
		assert.False(t, resp.ProcessingEffect)
	})

	t.Run("state returns the whole document", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Contains(t, doc, "game")
		assert.Contains(t, doc, "players")
	})

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestInternalActions(t *testing.T) {
	router, store := testRouter(t)
	payload := `{"actions": [{"type": "SET_STATE", "path": "players.p1.position", "value": 4}]}`

	t.Run("requires the service token", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/actions", bytes.NewBufferString(payload)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects a wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/actions", bytes.NewBufferString(payload))
		req.Header.Set("X-Internal-Service-Token", "wrong")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("applies a valid batch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/actions", bytes.NewBufferString(payload))
		req.Header.Set("X-Internal-Service-Token", testToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		pos, _ := state.PlayerPosition(store.Snapshot(), "p1")
		assert.Equal(t, 4, pos)
	})

	t.Run("reports a rejected batch with 422", func(t *testing.T) {
		body := `{"actions": [{"type": "SET_STATE", "path": "players.p2.position", "value": 9}]}`
		req := httptest.NewRequest(http.MethodPost, "/internal/actions", bytes.NewBufferString(body))
		req.Header.Set("X-Internal-Service-Token", testToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/actions", bytes.NewBufferString(`{"actions": []}`))
		req.Header.Set("X-Internal-Service-Token", testToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
