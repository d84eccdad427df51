// internal/gateway/checkpoint.go
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/user/hookrelay/internal/types"
)

// EntryStatus is the per-item delivery state in a checkpoint document.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusProcessed EntryStatus = "processed"
	StatusFailed    EntryStatus = "failed"
)

// Entry wraps one exchange with its delivery status.
type Entry struct {
	Exchange *types.Exchange `json:"exchange"`
	Status   EntryStatus     `json:"status"`
}

// Document is the checkpointed work list for one batch run.
type Document struct {
	Entries []*Entry `json:"entries"`
}

// Remaining counts entries that are not yet processed.
func (d *Document) Remaining() int {
	n := 0
	for _, e := range d.Entries {
		if e.Status != StatusProcessed {
			n++
		}
	}
	return n
}

// Checkpoint persists a Document at <stateDir>/sync.json. Saves are
// atomic (side file + rename) so a crash mid-write never corrupts the
// last good checkpoint.
type Checkpoint struct {
	path string
}

// NewCheckpoint creates a checkpoint store under the given state directory.
func NewCheckpoint(stateDir string) *Checkpoint {
	return &Checkpoint{path: filepath.Join(stateDir, "sync.json")}
}

// LoadOrCreate resumes an existing checkpoint that still has unprocessed
// entries; otherwise it builds a fresh document with every exchange
// pending and persists it.
func (c *Checkpoint) LoadOrCreate(exchanges []*types.Exchange) (*Document, error) {
	if data, err := os.ReadFile(c.path); err == nil {
		var doc Document
		if err := json.Unmarshal(data, &doc); err == nil {
			if doc.Remaining() > 0 {
				slog.Debug("resuming checkpoint", "remaining", doc.Remaining())
				return &doc, nil
			}
		} else {
			slog.Warn("checkpoint unreadable, rebuilding", "error", err)
		}
	}

	doc := &Document{Entries: make([]*Entry, 0, len(exchanges))}
	for _, ex := range exchanges {
		doc.Entries = append(doc.Entries, &Entry{Exchange: ex, Status: StatusPending})
	}
	if err := c.Save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Save atomically writes the document to stable storage.
func (c *Checkpoint) Save(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint after a fully processed run.
func (c *Checkpoint) Delete() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// Watermark stores the last-run timestamp that bounds the next batch
// run's input window.
type Watermark struct {
	path string
}

// NewWatermark creates a watermark store under the given state directory.
func NewWatermark(stateDir string) *Watermark {
	return &Watermark{path: filepath.Join(stateDir, "last_run")}
}

// Read returns the stored timestamp, or false when no watermark exists.
func (w *Watermark) Read() (time.Time, bool) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, string(bytes.TrimSpace(data)))
	if err != nil {
		slog.Warn("invalid watermark, ignoring", "error", err)
		return time.Time{}, false
	}
	return ts, true
}

// Write persists the given timestamp as the new watermark.
func (w *Watermark) Write(ts time.Time) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(w.path, []byte(ts.UTC().Format(time.RFC3339Nano)), 0o644); err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	return nil
}
