// internal/hook/pipeline.go
package hook

import (
	"context"
	"io"
	"log/slog"

	"github.com/user/hookrelay/internal/turn"
	"github.com/user/hookrelay/internal/types"
)

// Pipeline runs one hook invocation: read the host's payload from stdin,
// feed it through the tracker, run garbage collection, and acknowledge.
// The acknowledgment is unconditional. The host blocks the user's session
// on our reply, so no internal failure may ever withhold it or surface as
// a nonzero exit.
type Pipeline struct {
	adapter Adapter
	tracker *turn.Tracker
}

// NewPipeline wires an adapter to a tracker.
func NewPipeline(adapter Adapter, tracker *turn.Tracker) *Pipeline {
	return &Pipeline{adapter: adapter, tracker: tracker}
}

// Run processes one hook event end to end and writes the empty-object
// acknowledgment to out. It always returns nil.
func (p *Pipeline) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("hook processing panicked", "panic", r)
		}
		io.WriteString(out, "{}")
	}()

	raw, err := io.ReadAll(in)
	if err != nil {
		slog.Warn("reading hook input failed", "error", err)
	} else if ev, err := p.adapter.Parse(raw); err != nil {
		slog.Warn("ignoring unparseable hook input", "error", err)
	} else {
		rec := types.NewRecord(ev)
		if err := p.tracker.HandleEvent(ctx, rec); err != nil {
			slog.Warn("hook event handling failed", "kind", ev.Kind, "error", err)
		}
	}

	// Collection runs on every invocation, bad input included, so the
	// log stays bounded no matter what the host sends.
	if err := p.tracker.Collect(ctx); err != nil {
		slog.Warn("log collection failed", "error", err)
	}
	return nil
}
