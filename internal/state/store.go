package state

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Game phases. Phase only advances SETUP -> PLAYING -> FINISHED, except via an
// explicit reset that rewinds to SETUP.
const (
	PhaseSetup    = "SETUP"
	PhasePlaying  = "PLAYING"
	PhaseFinished = "FINISHED"
)

// Well-known document paths.
const (
	PathTurn        = "game.turn"
	PathPhase       = "game.phase"
	PathWinner      = "game.winner"
	PathLastRoll    = "game.lastRoll"
	PathPlayerOrder = "game.playerOrder"
)

// Document is the dynamic, path-addressable game state. It is shaped like the
// JSON it was loaded from: nested map[string]interface{} with float64 numbers.
type Document = map[string]interface{}

// DecisionPoint is a board position that requires the player standing on it to
// supply a named field before play may proceed past it.
type DecisionPoint struct {
	Position      int    `json:"position"`
	RequiredField string `json:"requiredField"`
	Prompt        string `json:"prompt"`
}

// Store is the authoritative game document. All mutation goes through Replace
// (the validator's commit step and the turn manager); every other component
// works on an immutable Snapshot.
type Store struct {
	mu     sync.RWMutex
	doc    Document
	logger *zap.Logger
}

// NewStore creates a store around an initial document.
func NewStore(initial Document, logger *zap.Logger) *Store {
	if initial == nil {
		initial = Document{}
	}
	return &Store{
		doc:    DeepCopy(initial),
		logger: logger.Named("Store"),
	}
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DeepCopy(s.doc)
}

// Replace commits a whole document atomically.
func (s *Store) Replace(doc Document) {
	s.mu.Lock()
	s.doc = DeepCopy(doc)
	s.mu.Unlock()
	s.logger.Debug("Document replaced")
}

// Get resolves a dot-separated path against the current document.
func (s *Store) Get(path string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := Get(s.doc, path)
	if !ok {
		return nil, fmt.Errorf("path %q does not resolve", path)
	}
	return v, nil
}

// --- Path primitives on plain documents ---
// The validator folds action batches over working copies, so the primitives
// operate on Document values directly, not on the Store.

// Get resolves a dot-separated path. Returns false when any segment is missing
// or a non-terminal segment is not an object.
func Get(doc Document, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var current interface{} = map[string]interface{}(doc)
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set writes a value at a dot-separated path. Every segment except the last
// must already resolve to an object; the final key may be new, because player
// records are open records (games define their own fields).
func Set(doc Document, path string, value interface{}) error {
	segments := strings.Split(path, ".")
	if len(segments) == 0 || path == "" {
		return fmt.Errorf("empty path")
	}
	var current interface{} = map[string]interface{}(doc)
	for _, seg := range segments[:len(segments)-1] {
		m, ok := current.(map[string]interface{})
		if !ok {
			return fmt.Errorf("path %q does not resolve: %q is not an object", path, seg)
		}
		current, ok = m[seg]
		if !ok {
			return fmt.Errorf("path %q does not resolve: missing %q", path, seg)
		}
	}
	m, ok := current.(map[string]interface{})
	if !ok {
		return fmt.Errorf("path %q does not resolve: parent is not an object", path)
	}
	m[segments[len(segments)-1]] = value
	return nil
}

// AddNumber adds delta to the numeric value at path. The target must already
// hold a numeric type.
func AddNumber(doc Document, path string, delta float64) (float64, error) {
	v, ok := Get(doc, path)
	if !ok {
		return 0, fmt.Errorf("path %q does not resolve", path)
	}
	current, ok := ToNumber(v)
	if !ok {
		return 0, fmt.Errorf("value at %q is not numeric (%T)", path, v)
	}
	next := current + delta
	if err := Set(doc, path, next); err != nil {
		return 0, err
	}
	return next, nil
}

// ToNumber normalizes the numeric representations a JSON-shaped document can
// carry.
func ToNumber(v interface{}) (float64, bool) {
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

// DeepCopy clones a document, descending into nested objects and arrays.
func DeepCopy(doc Document) Document {
	return copyValue(doc).(map[string]interface{})
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	default:
		return v
	}
}

// --- Typed views over the document ---

// CurrentTurn returns the id of the player whose turn it is, or "" when no
// turn is set.
func CurrentTurn(doc Document) string {
	v, ok := Get(doc, PathTurn)
	if !ok || v == nil {
		return ""
	}
	id, _ := v.(string)
	return id
}

// Phase returns the current game phase.
func Phase(doc Document) string {
	v, ok := Get(doc, PathPhase)
	if !ok {
		return ""
	}
	phase, _ := v.(string)
	return phase
}

// WinnerSet reports whether game.winner holds a non-null value.
func WinnerSet(doc Document) bool {
	v, ok := Get(doc, PathWinner)
	return ok && v != nil
}

// PlayerOrder returns the configured turn order.
func PlayerOrder(doc Document) []string {
	v, ok := Get(doc, PathPlayerOrder)
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		// Already-typed slice (constructed in tests or by the loader).
		if typed, ok := v.([]string); ok {
			return typed
		}
		return nil
	}
	order := make([]string, 0, len(raw))
	for _, entry := range raw {
		if id, ok := entry.(string); ok {
			order = append(order, id)
		}
	}
	return order
}

// PlayerField reads players.<id>.<field>.
func PlayerField(doc Document, id, field string) (interface{}, bool) {
	return Get(doc, fmt.Sprintf("players.%s.%s", id, field))
}

// PlayerPosition returns the integer position of a player.
func PlayerPosition(doc Document, id string) (int, bool) {
	v, ok := PlayerField(doc, id, "position")
	if !ok {
		return 0, false
	}
	n, ok := ToNumber(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}

// PlayerName returns the display name of a player, falling back to the id.
func PlayerName(doc Document, id string) string {
	v, ok := PlayerField(doc, id, "name")
	if ok {
		if name, ok := v.(string); ok && name != "" {
			return name
		}
	}
	return id
}

// MoveDestination returns board.moves[position] if the position has an
// automatic move configured.
func MoveDestination(doc Document, position int) (int, bool) {
	v, ok := Get(doc, "board.moves."+strconv.Itoa(position))
	if !ok {
		return 0, false
	}
	n, ok := ToNumber(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}

// SquareEffect returns the non-empty effect descriptor of board.squares[position].
func SquareEffect(doc Document, position int) (string, bool) {
	v, ok := Get(doc, "board.squares."+strconv.Itoa(position))
	if !ok {
		return "", false
	}
	effect, ok := v.(string)
	if !ok || effect == "" {
		return "", false
	}
	return effect, true
}

// DecisionPoints extracts the typed decision point list from the document.
func DecisionPoints(doc Document) []DecisionPoint {
	v, ok := Get(doc, "decisionPoints")
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	points := make([]DecisionPoint, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		dp := DecisionPoint{}
		if n, ok := ToNumber(m["position"]); ok {
			dp.Position = int(n)
		}
		dp.RequiredField, _ = m["requiredField"].(string)
		dp.Prompt, _ = m["prompt"].(string)
		points = append(points, dp)
	}
	return points
}

// DecisionPointAt returns the decision point configured for a position, if any.
// The loader guarantees at most one entry per position.
func DecisionPointAt(doc Document, position int) (DecisionPoint, bool) {
	for _, dp := range DecisionPoints(doc) {
		if dp.Position == position {
			return dp, true
		}
	}
	return DecisionPoint{}, false
}
