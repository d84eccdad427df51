// internal/turn/gc.go
package turn

import (
	"context"
	"log/slog"

	"github.com/user/hookrelay/internal/types"
)

// Collect bounds the log to avoid unbounded growth from turns that were
// never cleanly stopped (crashed host, killed process). When the record
// count exceeds the ceiling and more than one generation is present, only
// the most recently started generation's records survive. Delivery always
// happens before eviction, so delivered exchanges are unaffected; an
// abandoned turn old enough to be evicted is gone for good.
func (t *Tracker) Collect(ctx context.Context) error {
	recs, err := t.log.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(recs) <= t.maxRecords {
		return nil
	}

	// Generations in order of first appearance.
	var order []types.GenerationID
	seen := make(map[types.GenerationID]bool)
	for _, rec := range recs {
		gen := rec.Event.GenerationID
		if gen != "" && !seen[gen] {
			order = append(order, gen)
			seen[gen] = true
		}
	}
	if len(order) < 2 {
		return nil
	}

	newest := order[len(order)-1]
	kept := recs[:0]
	for _, rec := range recs {
		if rec.Event.GenerationID == newest {
			kept = append(kept, rec)
		}
	}

	slog.Info("log ceiling exceeded, keeping newest generation",
		"total", len(recs), "kept", len(kept), "generation_id", newest)
	return t.log.ReplaceAll(ctx, kept)
}
