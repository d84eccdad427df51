// internal/state/log.go
package state

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/hookrelay/internal/types"
)

// Prompts and tool outputs can be large; a single log line may far exceed
// bufio's default token size.
const maxLineBytes = 16 * 1024 * 1024

// AuditLog is a JSONL-backed append-only record store at
// <dataDir>/audit.jsonl. Appends are a single OS-level write so that two
// host processes appending concurrently interleave whole lines. The
// rewrite operations (ReplaceAll) are read-then-rewrite and are not safe
// against a concurrent writer from another process; that race is accepted
// and bounded to one turn's history.
type AuditLog struct {
	path string
	mu   sync.Mutex
}

// NewAuditLog creates a file-backed AuditLog rooted at the given data directory.
func NewAuditLog(dataDir string) *AuditLog {
	return &AuditLog{path: filepath.Join(dataDir, "audit.jsonl")}
}

// Path returns the location of the backing file.
func (l *AuditLog) Path() string { return l.path }

// Append writes one record as a single line and returns once the write
// has been handed to the OS. The backing file and its parent directory
// are created on first use.
func (l *AuditLog) Append(_ context.Context, rec *types.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// LoadAll returns every readable record in insertion order. Lines that
// fail to parse are skipped silently so a crash mid-write of the last
// line never poisons the rest of the log.
func (l *AuditLog) LoadAll(_ context.Context) ([]*types.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var recs []*types.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec types.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Debug("skipping unparseable log line", "error", err)
			continue
		}
		recs = append(recs, &rec)
	}
	if err := scanner.Err(); err != nil {
		return recs, fmt.Errorf("scan log: %w", err)
	}
	return recs, nil
}

// ReplaceAll atomically rewrites the store to exactly the given records:
// the new content is written to a side file and renamed over the live log.
func (l *AuditLog) ReplaceAll(_ context.Context, recs []*types.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	var buf bytes.Buffer
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write temp log: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp log: %w", err)
	}
	return nil
}
