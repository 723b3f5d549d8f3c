// Package orchestrator composes the whole moderation pipeline behind one entry
// point per incoming transcript: generate actions, validate, commit, narrate,
// propagate board effects, gate on decisions, and finally advance the turn.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"moderator-server/internal/action"
	"moderator-server/internal/board"
	"moderator-server/internal/decision"
	"moderator-server/internal/messaging"
	"moderator-server/internal/narrator"
	"moderator-server/internal/pipeline"
	"moderator-server/internal/state"
	"moderator-server/internal/turns"
	"moderator-server/internal/validator"
	"moderator-server/shared/models"
)

// The busy flag and the "board effect in flight" flag are one enumeration, so
// invalid combinations cannot exist.
const (
	statusIdle int32 = iota
	statusProcessing
	statusEffect
)

const (
	// maxDepth bounds synthetic-transcript recursion (board effects, decision
	// prompts). Exceeding it degrades to a logged no-op: automatic effects
	// must never wedge the game.
	maxDepth = 3
	// maxCorrections bounds validation-driven regeneration rounds per
	// transcript.
	maxCorrections = 2
)

const retryRequestLine = "Sorry, I could not work that out. Please say it again."

// Orchestrator is the core of the moderator. One logical thread of control:
// external transcripts are serialized by the status gate, synthetic ones are
// bounded by depth.
type Orchestrator struct {
	store     *state.Store
	source    pipeline.ActionSource
	dedup     pipeline.Deduplicator // may be nil; external transcripts only
	validate  *validator.Validator
	turnMgr   *turns.Manager
	propagate *board.Propagator
	gate      *decision.Gate
	voice     narrator.Narrator
	publisher messaging.EventPublisher
	status    atomic.Int32
	logger    *zap.Logger
}

// New wires the orchestrator.
func New(
	store *state.Store,
	source pipeline.ActionSource,
	dedup pipeline.Deduplicator,
	validate *validator.Validator,
	turnMgr *turns.Manager,
	propagate *board.Propagator,
	gate *decision.Gate,
	voice narrator.Narrator,
	publisher messaging.EventPublisher,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     store,
		source:    source,
		dedup:     dedup,
		validate:  validate,
		turnMgr:   turnMgr,
		propagate: propagate,
		gate:      gate,
		voice:     voice,
		publisher: publisher,
		logger:    logger.Named("Orchestrator"),
	}
}

// HandleTranscript processes one recognized utterance. A transcript arriving
// while a prior one is still in flight is dropped, not queued: overlapping
// push-to-talk commands have no natural ordering. Returns ErrBusy on a drop.
func (o *Orchestrator) HandleTranscript(ctx context.Context, transcript string) error {
	if !o.status.CompareAndSwap(statusIdle, statusProcessing) {
		o.logger.Warn("Transcript dropped: another one is in flight", zap.Int("transcriptLen", len(transcript)))
		return models.ErrBusy
	}
	defer o.status.Store(statusIdle)

	// Deduplication happens here and only here: a repeated recognition event
	// is absorbed, but correction rounds and synthetic re-entries repeat a
	// transcript on purpose and must never be swallowed.
	if o.dedup != nil {
		if seen, err := o.dedup.Seen(ctx, transcript); err == nil && seen {
			return nil
		}
	}

	committed := o.process(ctx, transcript, 0)

	// Turn advancement is decoupled from action execution: it runs only after
	// every consequence of the turn has fully resolved, and never on a no-op
	// (duplicate transcript, failed generation).
	if committed {
		if next := o.turnMgr.AdvanceTurn(o.IsProcessingEffect()); next != nil {
			o.announceTurn(ctx, next)
		}
	}
	return nil
}

// Busy reports whether a transcript is currently in flight. Advisory only:
// admission is decided by the atomic gate in HandleTranscript.
func (o *Orchestrator) Busy() bool {
	return o.status.Load() != statusIdle
}

// IsProcessingEffect reports whether an automatic board effect is resolving.
// External turn-announcement logic queries this to avoid narrating the next
// player mid-effect.
func (o *Orchestrator) IsProcessingEffect() bool {
	return o.status.Load() == statusEffect
}

// TestExecuteActions is a generation-free bypass straight to the validator and
// commit, for test harnesses. Reports whether the batch was accepted.
func (o *Orchestrator) TestExecuteActions(batch []action.Action) bool {
	result, err := o.validate.ValidateBatch(batch, o.store.Snapshot())
	if err != nil {
		o.logger.Info("TestExecuteActions rejected", zap.Error(err))
		return false
	}
	o.store.Replace(result.Doc)
	return true
}

// process runs the full sequence for one transcript, user-spoken or synthetic,
// and reports whether a batch was committed. Synthetic transcripts re-enter
// here with an incremented depth; they bypass the status gate because they
// originate inside an in-flight call.
func (o *Orchestrator) process(ctx context.Context, transcript string, depth int) bool {
	log := o.logger.With(zap.Int("depth", depth))

	if depth > maxDepth {
		// Never abort the turn loop over an automatic effect.
		log.Error("Synthetic transcript dropped", zap.Error(models.ErrRecursionLimit))
		return false
	}

	snapshot := o.store.Snapshot()
	result, ok := o.generateAndValidate(ctx, transcript, snapshot, log)
	if !ok {
		return false
	}
	if result == nil {
		// Empty batch; nothing to commit.
		return false
	}

	// Commit the accepted batch atomically, then dispatch side effects.
	o.store.Replace(result.Doc)
	o.dispatchNarrations(ctx, result)

	if result.Reset {
		log.Info("Game was reset")
		if err := o.publisher.PublishClientUpdate(ctx, messaging.ClientUpdatePayload{Type: messaging.EventGameReset}); err != nil {
			log.Warn("Failed to publish game reset event", zap.Error(err))
		}
		return true
	}

	o.runBoardEffects(ctx, result.Moves, depth, log)
	o.runDecisionGate(ctx, depth, log)
	return true
}

// generateAndValidate runs the closed correction loop: rejected batches are
// regenerated with the rejection reason as corrective context. Returns
// (nil, true) for an empty batch and (nil, false) when the transcript could
// not be resolved into an accepted batch.
func (o *Orchestrator) generateAndValidate(ctx context.Context, transcript string, snapshot state.Document, log *zap.Logger) (*validator.Result, bool) {
	transcript = o.withNarrationContext(snapshot, transcript)

	var feedback []string
	for round := 0; round <= maxCorrections; round++ {
		batch, err := o.source.GetActions(ctx, transcript, snapshot, feedback)
		if err != nil {
			// Validation and parse errors are recovered locally; the end user
			// only ever hears a request to try again.
			log.Warn("Pipeline produced no actions", zap.Int("round", round), zap.Error(err))
			o.speak(ctx, retryRequestLine)
			return nil, false
		}
		if len(batch) == 0 {
			return nil, true
		}

		result, verr := o.validate.ValidateBatch(batch, snapshot)
		if verr == nil {
			return result, true
		}

		log.Info("Batch rejected, regenerating with corrective context",
			zap.Int("round", round), zap.Error(verr))
		feedback = append(feedback, verr.Error())
	}

	log.Warn("Correction rounds exhausted", zap.Strings("feedback", feedback))
	o.speak(ctx, retryRequestLine)
	return nil, false
}

// withNarrationContext appends other players' pending decisions to the
// transcript as informational context. They never block the acting player.
func (o *Orchestrator) withNarrationContext(snapshot state.Document, transcript string) string {
	pending := o.gate.Informational(snapshot, state.CurrentTurn(snapshot))
	if len(pending) == 0 {
		return transcript
	}
	var b strings.Builder
	b.WriteString(transcript)
	b.WriteString("\n\nContext for narration only:")
	for _, p := range pending {
		fmt.Fprintf(&b, " %s still has to decide %q at position %d.", p.PlayerName, p.Prompt, p.Position)
	}
	return b.String()
}

func (o *Orchestrator) dispatchNarrations(ctx context.Context, result *validator.Result) {
	for _, n := range result.Narrations {
		o.speak(ctx, n.Text)
		if n.SoundEffect != "" {
			if err := o.voice.PlaySound(ctx, n.SoundEffect); err != nil {
				o.logger.Warn("Sound playback failed", zap.String("soundEffect", n.SoundEffect), zap.Error(err))
			}
		}
	}
}

// runBoardEffects resolves the board tables for every player whose position
// the batch changed. Auto-moves commit silently; encounters re-enter the
// transcript routine with "effect in flight" set, so the turn manager refuses
// to advance until the recursive call finishes.
func (o *Orchestrator) runBoardEffects(ctx context.Context, moves []validator.Move, depth int, log *zap.Logger) {
	seen := make(map[string]bool)
	for _, mv := range moves {
		if seen[mv.PlayerID] {
			continue
		}
		seen[mv.PlayerID] = true

		doc := o.store.Snapshot()
		outcome, err := o.propagate.Resolve(doc, mv.PlayerID)
		if err != nil {
			// Configuration error (cyclic move table). Logged, not fatal.
			log.Error("Board propagation failed", zap.String("player", mv.PlayerID), zap.Error(err))
			continue
		}
		if len(outcome.AutoMoves) > 0 {
			o.store.Replace(doc)
		}
		if outcome.Encounter == "" {
			continue
		}

		prev := o.status.Swap(statusEffect)
		o.process(ctx, board.EncounterTranscript(doc, outcome), depth+1)
		o.status.Store(prev)
	}
}

// runDecisionGate blocks turn completion while the acting player owes an
// answer, by asking the configured question through the normal pipeline.
func (o *Orchestrator) runDecisionGate(ctx context.Context, depth int, log *zap.Logger) {
	doc := o.store.Snapshot()
	pending, blocked := o.gate.Blocking(doc, state.CurrentTurn(doc))
	if !blocked {
		return
	}

	log.Info("Turn blocked on a decision point",
		zap.String("player", pending.PlayerID),
		zap.String("requiredField", pending.RequiredField))

	prev := o.status.Swap(statusEffect)
	o.process(ctx, pending.PromptTranscript(), depth+1)
	o.status.Store(prev)
}

func (o *Orchestrator) announceTurn(ctx context.Context, next *turns.NextTurn) {
	o.speak(ctx, fmt.Sprintf("%s, it is your turn.", next.Name))
	err := o.publisher.PublishClientUpdate(ctx, messaging.ClientUpdatePayload{
		Type:     messaging.EventTurnAdvanced,
		PlayerID: next.PlayerID,
		Name:     next.Name,
		Position: next.Position,
	})
	if err != nil {
		o.logger.Warn("Failed to publish turn announcement", zap.Error(err))
	}
}

// speak narrates one line. Narrator failures are logged, never fatal.
func (o *Orchestrator) speak(ctx context.Context, text string) {
	if err := o.voice.Speak(ctx, text); err != nil {
		o.logger.Warn("Narration failed", zap.String("text", text), zap.Error(err))
	}
}
