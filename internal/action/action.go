// Package action defines the primitive commands the generation provider may
// emit for one transcript, and the strict wire parsing of provider replies.
package action

import "fmt"

// Type tags one primitive action variant.
type Type string

const (
	TypeNarrate        Type = "NARRATE"
	TypeSetState       Type = "SET_STATE"
	TypeAddState       Type = "ADD_STATE"
	TypeSubtractState  Type = "SUBTRACT_STATE"
	TypeReadState      Type = "READ_STATE"
	TypeRollDice       Type = "ROLL_DICE"
	TypeResetGame      Type = "RESET_GAME"
	TypePlayerRolled   Type = "PLAYER_ROLLED"
	TypePlayerAnswered Type = "PLAYER_ANSWERED"
)

// Action is a tagged variant. Only the fields of the tagged variant are
// meaningful; the rest stay at their zero values.
type Action struct {
	Type Type `json:"type"`

	// NARRATE
	Text        string `json:"text,omitempty"`
	SoundEffect string `json:"soundEffect,omitempty"`

	// SET_STATE / ADD_STATE / SUBTRACT_STATE / READ_STATE
	Path string `json:"path,omitempty"`
	// Value carries the SET_STATE payload (arbitrary), the ADD/SUBTRACT delta
	// (number) and the PLAYER_ROLLED value (number).
	Value interface{} `json:"value,omitempty"`

	// ROLL_DICE
	Die int `json:"die,omitempty"`

	// RESET_GAME
	KeepPlayerNames bool `json:"keepPlayerNames,omitempty"`

	// PLAYER_ANSWERED
	Answer string `json:"answer,omitempty"`
}

// IsStateWrite reports whether the action mutates the document at a path.
func (a Action) IsStateWrite() bool {
	switch a.Type {
	case TypeSetState, TypeAddState, TypeSubtractState:
		return true
	default:
		return false
	}
}

// CheckShape validates that the action carries the fields its tag requires.
// Shape problems are provider formatting mistakes, reported per action so the
// corrective prompt can name the exact defect.
func (a Action) CheckShape() error {
	switch a.Type {
	case TypeNarrate:
		if a.Text == "" {
			return fmt.Errorf("NARRATE requires a non-empty text field")
		}
	case TypeSetState, TypeReadState:
		if a.Path == "" {
			return fmt.Errorf("%s requires a path field", a.Type)
		}
	case TypeAddState, TypeSubtractState:
		if a.Path == "" {
			return fmt.Errorf("%s requires a path field", a.Type)
		}
		if _, ok := numeric(a.Value); !ok {
			return fmt.Errorf("%s requires a numeric value field, got %T", a.Type, a.Value)
		}
	case TypeRollDice:
		if a.Die <= 0 {
			return fmt.Errorf("ROLL_DICE requires a positive die field")
		}
	case TypeResetGame:
		// keepPlayerNames defaults to false, nothing to check
	case TypePlayerRolled:
		if _, ok := numeric(a.Value); !ok {
			return fmt.Errorf("PLAYER_ROLLED requires a numeric value field, got %T", a.Value)
		}
	case TypePlayerAnswered:
		if a.Answer == "" {
			return fmt.Errorf("PLAYER_ANSWERED requires a non-empty answer field")
		}
	case "":
		return fmt.Errorf("action is missing a type tag")
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// NumericValue returns the action's value as float64 when it is numeric.
func (a Action) NumericValue() (float64, bool) {
	return numeric(a.Value)
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
