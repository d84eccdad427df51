// internal/gateway/sync.go
package gateway

import (
	"context"
	"log/slog"

	"github.com/user/hookrelay/internal/types"
)

// Syncer drives a checkpoint document through delivery. Entries are
// processed strictly sequentially and the whole document is checkpointed
// after every single entry, so a crash loses at most the in-flight
// entry's retry state, never prior progress.
type Syncer struct {
	deliverer  types.Deliverer
	checkpoint *Checkpoint
}

// NewSyncer creates a Syncer. The deliverer is expected to carry the
// single-retry policy (WithRetry).
func NewSyncer(deliverer types.Deliverer, checkpoint *Checkpoint) *Syncer {
	return &Syncer{deliverer: deliverer, checkpoint: checkpoint}
}

// Sync sends every pending or previously failed entry in stored order,
// marking each processed or failed, and returns the counts. The
// checkpoint is deleted when nothing remains unprocessed.
func (s *Syncer) Sync(ctx context.Context, doc *Document) (sent, failed int) {
	total := doc.Remaining()
	idx := 0

	for _, entry := range doc.Entries {
		if entry.Status == StatusProcessed {
			continue
		}
		idx++
		slog.Debug("sending exchange", "n", idx, "total", total)

		if err := s.deliverer.Deliver(ctx, entry.Exchange); err != nil {
			slog.Warn("exchange delivery failed", "n", idx, "total", total, "error", err)
			entry.Status = StatusFailed
			failed++
		} else {
			entry.Status = StatusProcessed
			sent++
		}

		if err := s.checkpoint.Save(doc); err != nil {
			slog.Warn("checkpoint save failed", "error", err)
		}
	}

	if doc.Remaining() == 0 {
		if err := s.checkpoint.Delete(); err != nil {
			slog.Warn("checkpoint cleanup failed", "error", err)
		}
	}
	return sent, failed
}
