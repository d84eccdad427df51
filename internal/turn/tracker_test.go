// internal/turn/tracker_test.go
package turn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/hookrelay/internal/state"
	"github.com/user/hookrelay/internal/types"
)

// fakeDeliverer records exchanges and can be told to fail.
type fakeDeliverer struct {
	delivered []*types.Exchange
	err       error
}

func (f *fakeDeliverer) Deliver(_ context.Context, ex *types.Exchange) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, ex)
	return nil
}

func newTestTracker(t *testing.T) (*Tracker, *state.AuditLog, *fakeDeliverer) {
	t.Helper()
	log := state.NewAuditLog(t.TempDir())
	deliverer := &fakeDeliverer{}
	return NewTracker(log, deliverer), log, deliverer
}

func event(kind types.EventKind, conv, gen string, payload types.Payload) *types.Record {
	return types.NewRecord(types.Event{
		Header: types.Header{
			Kind:           kind,
			ConversationID: types.ConversationID(conv),
			GenerationID:   types.GenerationID(gen),
			Timestamp:      time.Now().UTC(),
		},
		Payload: payload,
	})
}

func handle(t *testing.T, tracker *Tracker, recs ...*types.Record) {
	t.Helper()
	for _, rec := range recs {
		if err := tracker.HandleEvent(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
}

func logLen(t *testing.T, log *state.AuditLog) int {
	t.Helper()
	recs, err := log.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return len(recs)
}

func TestTracker_StopDeliversAndPrunes(t *testing.T) {
	tracker, log, deliverer := newTestTracker(t)

	handle(t, tracker,
		event(types.KindPromptSubmitted, "c1", "g1", &types.PromptPayload{Text: "run the tests", Model: "gpt-5"}),
		event(types.KindShellExec, "c1", "g1", &types.ShellPayload{Command: "go test ./...", Output: "ok"}),
		event(types.KindTurnStopped, "c1", "g1", &types.StopPayload{}),
	)

	if len(deliverer.delivered) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliverer.delivered))
	}
	ex := deliverer.delivered[0]
	if ex.ConversationID != "c1" || ex.Model != "gpt-5" {
		t.Errorf("unexpected exchange: %+v", ex)
	}
	if n := logLen(t, log); n != 0 {
		t.Errorf("expected delivered records pruned, log has %d", n)
	}
}

func TestTracker_DeliveryFailureRetainsRecords(t *testing.T) {
	tracker, log, deliverer := newTestTracker(t)
	deliverer.err = errors.New("collector down")

	handle(t, tracker,
		event(types.KindPromptSubmitted, "c1", "g1", &types.PromptPayload{Text: "hi"}),
		event(types.KindShellExec, "c1", "g1", &types.ShellPayload{Command: "ls"}),
		event(types.KindTurnStopped, "c1", "g1", &types.StopPayload{}),
	)

	if n := logLen(t, log); n != 3 {
		t.Errorf("expected records retained after failure, log has %d", n)
	}
}

func TestTracker_NewPromptDiscardsInterruptedTurn(t *testing.T) {
	tracker, log, deliverer := newTestTracker(t)

	// g1 starts but never stops; the next prompt interrupts it.
	handle(t, tracker,
		event(types.KindPromptSubmitted, "c1", "g1", &types.PromptPayload{Text: "first"}),
		event(types.KindShellExec, "c1", "g1", &types.ShellPayload{Command: "ls"}),
		event(types.KindPromptSubmitted, "c1", "g2", &types.PromptPayload{Text: "second"}),
	)

	recs, err := log.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range recs {
		if rec.Event.GenerationID == "g1" {
			t.Fatalf("interrupted generation still in log: %+v", rec.Event.Header)
		}
	}

	// A late stop for the discarded turn must not deliver anything.
	handle(t, tracker, event(types.KindTurnStopped, "c1", "g1", &types.StopPayload{}))
	if len(deliverer.delivered) != 0 {
		t.Errorf("expected no delivery for interrupted turn, got %d", len(deliverer.delivered))
	}
}

func TestTracker_OtherConversationsUntouched(t *testing.T) {
	tracker, log, _ := newTestTracker(t)

	handle(t, tracker,
		event(types.KindPromptSubmitted, "c1", "g1", &types.PromptPayload{Text: "one"}),
		event(types.KindPromptSubmitted, "c2", "g2", &types.PromptPayload{Text: "two"}),
		event(types.KindPromptSubmitted, "c1", "g3", &types.PromptPayload{Text: "three"}),
	)

	recs, err := log.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	foundOther := false
	for _, rec := range recs {
		if rec.Event.ConversationID == "c2" {
			foundOther = true
		}
		if rec.Event.GenerationID == "g1" {
			t.Error("g1 should have been discarded")
		}
	}
	if !foundOther {
		t.Error("records from other conversations must survive interruption cleanup")
	}
}

func TestTracker_VacuousTurnSuppressedAndPruned(t *testing.T) {
	tracker, log, deliverer := newTestTracker(t)

	handle(t, tracker,
		event(types.KindPromptSubmitted, "c1", "g1", &types.PromptPayload{Text: "hello"}),
		event(types.KindTurnStopped, "c1", "g1", &types.StopPayload{}),
	)

	if len(deliverer.delivered) != 0 {
		t.Errorf("vacuous turn must not be delivered, got %d", len(deliverer.delivered))
	}
	if n := logLen(t, log); n != 0 {
		t.Errorf("vacuous turn records should be pruned, log has %d", n)
	}
}

func TestTracker_DuplicateStopIsIdempotent(t *testing.T) {
	tracker, log, deliverer := newTestTracker(t)

	handle(t, tracker,
		event(types.KindPromptSubmitted, "c1", "g1", &types.PromptPayload{Text: "hi"}),
		event(types.KindShellExec, "c1", "g1", &types.ShellPayload{Command: "ls"}),
		event(types.KindTurnStopped, "c1", "g1", &types.StopPayload{}),
		event(types.KindTurnStopped, "c1", "g1", &types.StopPayload{}),
	)

	if len(deliverer.delivered) != 1 {
		t.Errorf("expected exactly 1 delivery, got %d", len(deliverer.delivered))
	}
	if n := logLen(t, log); n != 0 {
		t.Errorf("expected log empty after duplicate stop, log has %d", n)
	}
}

func TestTracker_ResolvesGenerationForSessionScopedHost(t *testing.T) {
	tracker, log, deliverer := newTestTracker(t)

	// Session-scoped hosts send no generation id at all.
	handle(t, tracker,
		event(types.KindPromptSubmitted, "s1", "", &types.PromptPayload{Text: "do it"}),
		event(types.KindToolExec, "s1", "", &types.ToolExecPayload{ToolName: "Bash", ResultJSON: "ok"}),
		event(types.KindTurnStopped, "s1", "", &types.StopPayload{}),
	)

	if len(deliverer.delivered) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliverer.delivered))
	}
	if deliverer.delivered[0].ConversationID != "s1" {
		t.Errorf("unexpected conversation: %s", deliverer.delivered[0].ConversationID)
	}
	if n := logLen(t, log); n != 0 {
		t.Errorf("expected log pruned, has %d", n)
	}
}

func TestCollect_KeepsNewestGeneration(t *testing.T) {
	tracker, log, _ := newTestTracker(t)
	ctx := context.Background()

	// Fill the log past the ceiling with an abandoned generation, then
	// start a fresh one.
	for i := 0; i < 48; i++ {
		if err := log.Append(ctx, event(types.KindShellExec, "c1", "g-old", &types.ShellPayload{Command: "x"})); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := log.Append(ctx, event(types.KindShellExec, "c1", "g-new", &types.ShellPayload{Command: "y"})); err != nil {
			t.Fatal(err)
		}
	}

	if err := tracker.Collect(ctx); err != nil {
		t.Fatal(err)
	}

	recs, err := log.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected only the newest generation's 3 records, got %d", len(recs))
	}
	for _, rec := range recs {
		if rec.Event.GenerationID != "g-new" {
			t.Errorf("unexpected survivor: %s", rec.Event.GenerationID)
		}
	}
}

func TestCollect_SingleGenerationLeftAlone(t *testing.T) {
	tracker, log, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 55; i++ {
		if err := log.Append(ctx, event(types.KindShellExec, "c1", "g1", &types.ShellPayload{Command: "x"})); err != nil {
			t.Fatal(err)
		}
	}

	if err := tracker.Collect(ctx); err != nil {
		t.Fatal(err)
	}
	if n := logLen(t, log); n != 55 {
		t.Errorf("a single in-progress generation must not be evicted, got %d", n)
	}
}

func TestCollect_UnderCeilingNoop(t *testing.T) {
	tracker, log, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := log.Append(ctx, event(types.KindShellExec, "c1", "g1", &types.ShellPayload{Command: "x"})); err != nil {
			t.Fatal(err)
		}
	}
	if err := tracker.Collect(ctx); err != nil {
		t.Fatal(err)
	}
	if n := logLen(t, log); n != 10 {
		t.Errorf("expected log untouched, got %d", n)
	}
}
