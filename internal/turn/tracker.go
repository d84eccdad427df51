// internal/turn/tracker.go
package turn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/hookrelay/internal/exchange"
	"github.com/user/hookrelay/internal/transcript"
	"github.com/user/hookrelay/internal/types"
)

// Tracker groups logged events into turns keyed by (conversation,
// generation), detects completion and interruption, and hands completed
// turns to the deliverer. At most one turn per conversation is open at a
// time; a new prompt in a conversation interrupts every open turn that
// came before it.
type Tracker struct {
	log       types.EventLog
	deliverer types.Deliverer

	// maxRecords is the log ceiling enforced by Collect.
	maxRecords int
}

// NewTracker creates a Tracker over the given log and deliverer.
func NewTracker(log types.EventLog, deliverer types.Deliverer) *Tracker {
	return &Tracker{
		log:        log,
		deliverer:  deliverer,
		maxRecords: 50,
	}
}

// HandleEvent processes one incoming record end to end: generation
// resolution, interruption cleanup, the log append, and (for stop
// events) exchange delivery. Errors are returned for logging only; the
// caller must treat every outcome as non-fatal.
func (t *Tracker) HandleEvent(ctx context.Context, rec *types.Record) error {
	ev := &rec.Event

	if ev.GenerationID == "" {
		t.resolveGeneration(ctx, ev)
	}

	if ev.Kind == types.KindPromptSubmitted {
		if err := t.discardInterrupted(ctx, ev.ConversationID, ev.GenerationID); err != nil {
			slog.Warn("interruption cleanup failed", "conversation_id", ev.ConversationID, "error", err)
		}
	}

	// Every event lands in the log regardless of grouping outcome.
	if err := t.log.Append(ctx, rec); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	if ev.Kind == types.KindTurnStopped {
		return t.closeTurn(ctx, ev)
	}
	return nil
}

// resolveGeneration assigns a generation to events from hosts whose
// protocol is session-scoped and carries no generation identifier. A
// prompt opens a fresh generation; any other event attaches to the
// conversation's open turn, if one exists.
func (t *Tracker) resolveGeneration(ctx context.Context, ev *types.Event) {
	switch ev.Kind {
	case types.KindSessionStart, types.KindSessionEnd:
		return
	case types.KindPromptSubmitted:
		ev.GenerationID = types.NewGenerationID()
		return
	}

	recs, err := t.log.LoadAll(ctx)
	if err != nil {
		slog.Warn("load log for generation resolution failed", "error", err)
		return
	}
	if gen, ok := openGeneration(recs, ev.ConversationID); ok {
		ev.GenerationID = gen
	}
}

// discardInterrupted removes the records of every unstopped generation in
// the conversation other than current. Those turns were cancelled by the
// user and will never be delivered.
func (t *Tracker) discardInterrupted(ctx context.Context, conv types.ConversationID, current types.GenerationID) error {
	recs, err := t.log.LoadAll(ctx)
	if err != nil {
		return err
	}

	stopped := stoppedGenerations(recs, conv)
	kept := recs[:0]
	removed := 0
	for _, rec := range recs {
		ev := rec.Event
		if ev.ConversationID != conv || ev.GenerationID == "" ||
			ev.GenerationID == current || stopped[ev.GenerationID] {
			kept = append(kept, rec)
			continue
		}
		removed++
	}
	if removed == 0 {
		return nil
	}

	slog.Info("discarding interrupted turn records", "conversation_id", conv, "removed", removed)
	return t.log.ReplaceAll(ctx, kept)
}

// closeTurn gathers the stopped turn's records, builds the exchange, and
// attempts delivery. Records are pruned on delivery success and on
// suppression (nothing will ever be worth sending); a delivery failure
// retains them for reconciliation by a later invocation.
func (t *Tracker) closeTurn(ctx context.Context, ev *types.Event) error {
	recs, err := t.log.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load log: %w", err)
	}

	var turnRecs []*types.Record
	for _, rec := range recs {
		if rec.Event.ConversationID == ev.ConversationID && rec.Event.GenerationID == ev.GenerationID {
			turnRecs = append(turnRecs, rec)
		}
	}
	// A repeated stop finds only itself; Build suppresses it and the
	// prune below clears it from the log.
	var fragments []exchange.Fragment
	if stop, ok := ev.Payload.(*types.StopPayload); ok && stop.TranscriptPath != "" && stop.TranscriptPath != "undefined" {
		fragments, err = transcript.Load(stop.TranscriptPath)
		if err != nil {
			slog.Warn("transcript load failed", "path", stop.TranscriptPath, "error", err)
		}
	}

	ex, ok := exchange.Build(turnRecs, fragments)
	if ok {
		if err := t.deliverer.Deliver(ctx, ex); err != nil {
			slog.Warn("exchange delivery failed, retaining records",
				"conversation_id", ev.ConversationID, "generation_id", ev.GenerationID, "error", err)
			return nil
		}
		slog.Info("exchange delivered", "conversation_id", ev.ConversationID, "generation_id", ev.GenerationID)
	}

	kept := recs[:0]
	for _, rec := range recs {
		if rec.Event.ConversationID == ev.ConversationID && rec.Event.GenerationID == ev.GenerationID {
			continue
		}
		kept = append(kept, rec)
	}
	if err := t.log.ReplaceAll(ctx, kept); err != nil {
		return fmt.Errorf("prune delivered turn: %w", err)
	}
	return nil
}

// openGeneration returns the most recently started generation in the
// conversation that has not seen a stop event.
func openGeneration(recs []*types.Record, conv types.ConversationID) (types.GenerationID, bool) {
	stopped := stoppedGenerations(recs, conv)
	var open types.GenerationID
	for _, rec := range recs {
		ev := rec.Event
		if ev.ConversationID != conv || ev.GenerationID == "" || stopped[ev.GenerationID] {
			continue
		}
		open = ev.GenerationID
	}
	return open, open != ""
}

// stoppedGenerations returns the set of generations in the conversation
// that have a stop event in the log.
func stoppedGenerations(recs []*types.Record, conv types.ConversationID) map[types.GenerationID]bool {
	stopped := make(map[types.GenerationID]bool)
	for _, rec := range recs {
		ev := rec.Event
		if ev.ConversationID == conv && ev.Kind == types.KindTurnStopped && ev.GenerationID != "" {
			stopped[ev.GenerationID] = true
		}
	}
	return stopped
}
