// Package gamedef loads external game definitions: board layouts, move tables,
// decision points, free-text rules and the initial game document. Definitions
// are configuration data, validated once at load time and never interpreted
// here.
package gamedef

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"moderator-server/internal/state"
	"moderator-server/shared/models"
)

// Visibility controls how a state field is rendered into the generation prompt.
type Visibility string

const (
	ShowAlways     Visibility = "always"
	ShowNonDefault Visibility = "nonDefault"
	ShowNever      Visibility = "never"
)

// PromptField configures per-field rendering of the state into the prompt.
type PromptField struct {
	Path    string      `json:"path"`
	Show    Visibility  `json:"show"`
	Default interface{} `json:"default,omitempty"`
}

// Metadata describes the game itself.
type Metadata struct {
	Name       string `json:"name"`
	MinPlayers int    `json:"minPlayers"`
	MaxPlayers int    `json:"maxPlayers"`
	Language   string `json:"language,omitempty"`
}

// Definition is one loaded game definition.
type Definition struct {
	Metadata     Metadata       `json:"metadata"`
	Rules        string         `json:"rules"`
	InitialState state.Document `json:"initialState"`
	StateView    []PromptField  `json:"stateView,omitempty"`
}

// Load reads and validates a game definition from a JSON file.
func Load(path string, logger *zap.Logger) (*Definition, error) {
	log := logger.Named("GameDefLoader").With(zap.String("file", path))

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Error("Failed to read game definition file", zap.Error(err))
		return nil, fmt.Errorf("failed to read game definition %s: %w", path, err)
	}

	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		log.Error("Failed to unmarshal game definition", zap.Error(err))
		return nil, fmt.Errorf("%w: %s is not valid JSON: %v", models.ErrInvalidDefinition, path, err)
	}

	if err := def.Validate(); err != nil {
		log.Error("Game definition failed validation", zap.Error(err))
		return nil, err
	}

	log.Info("Game definition loaded",
		zap.String("game", def.Metadata.Name),
		zap.Int("decisionPoints", len(state.DecisionPoints(def.InitialState))))
	return &def, nil
}

// Validate enforces the load-time invariants of a definition. Violations are
// configuration errors, not runtime ambiguities to resolve silently.
func (d *Definition) Validate() error {
	if d.Metadata.Name == "" {
		return fmt.Errorf("%w: metadata.name is required", models.ErrInvalidDefinition)
	}
	if d.Rules == "" {
		return fmt.Errorf("%w: rules text is required", models.ErrInvalidDefinition)
	}
	if d.InitialState == nil {
		return fmt.Errorf("%w: initialState is required", models.ErrInvalidDefinition)
	}
	if _, ok := state.Get(d.InitialState, "game"); !ok {
		return fmt.Errorf("%w: initialState is missing the game section", models.ErrInvalidDefinition)
	}

	phase := state.Phase(d.InitialState)
	switch phase {
	case state.PhaseSetup, state.PhasePlaying, state.PhaseFinished:
	default:
		return fmt.Errorf("%w: game.phase %q is not a known phase", models.ErrInvalidDefinition, phase)
	}

	// game.turn must be null or a member of playerOrder.
	if turn := state.CurrentTurn(d.InitialState); turn != "" {
		found := false
		for _, id := range state.PlayerOrder(d.InitialState) {
			if id == turn {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: game.turn %q is not in game.playerOrder", models.ErrInvalidDefinition, turn)
		}
	}

	// Positions are non-negative integers.
	if playersRaw, ok := state.Get(d.InitialState, "players"); ok {
		players, ok := playersRaw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: players section is not an object", models.ErrInvalidDefinition)
		}
		for id := range players {
			pos, ok := state.PlayerPosition(d.InitialState, id)
			if !ok {
				return fmt.Errorf("%w: player %q has no numeric position", models.ErrInvalidDefinition, id)
			}
			if pos < 0 {
				return fmt.Errorf("%w: player %q has negative position %d", models.ErrInvalidDefinition, id, pos)
			}
		}
	}

	// At most one decision point per board position, each on a real square.
	seen := make(map[int]bool)
	for _, dp := range state.DecisionPoints(d.InitialState) {
		if dp.Position < 0 {
			return fmt.Errorf("%w: decision point has negative position %d", models.ErrInvalidDefinition, dp.Position)
		}
		if dp.RequiredField == "" {
			return fmt.Errorf("%w: decision point at position %d has no requiredField", models.ErrInvalidDefinition, dp.Position)
		}
		if seen[dp.Position] {
			return fmt.Errorf("%w: duplicate decision points for position %d", models.ErrInvalidDefinition, dp.Position)
		}
		seen[dp.Position] = true
	}

	for _, f := range d.StateView {
		switch f.Show {
		case ShowAlways, ShowNonDefault, ShowNever:
		default:
			return fmt.Errorf("%w: stateView field %q has unknown visibility %q", models.ErrInvalidDefinition, f.Path, f.Show)
		}
	}

	return nil
}

// NewDocument builds a fresh game document from the definition's initial state.
func (d *Definition) NewDocument() state.Document {
	return state.DeepCopy(d.InitialState)
}

// ResetDocument builds a fresh document, optionally carrying player names over
// from the previous document.
func (d *Definition) ResetDocument(previous state.Document, keepPlayerNames bool) state.Document {
	doc := d.NewDocument()
	if !keepPlayerNames || previous == nil {
		return doc
	}
	playersRaw, ok := state.Get(doc, "players")
	if !ok {
		return doc
	}
	players, ok := playersRaw.(map[string]interface{})
	if !ok {
		return doc
	}
	for id := range players {
		if nameVal, ok := state.PlayerField(previous, id, "name"); ok {
			if name, ok := nameVal.(string); ok && name != "" {
				_ = state.Set(doc, state.PlayerFieldPath(id, "name"), name)
			}
		}
	}
	return doc
}
