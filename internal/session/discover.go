// internal/session/discover.go
package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/hookrelay/internal/types"
)

// StorageRoot returns the editor's workspace-storage directory for the
// current platform. The caller may override it entirely via config.
func StorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Code", "User", "workspaceStorage")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Code", "User", "workspaceStorage")
		}
		return filepath.Join(home, "AppData", "Roaming", "Code", "User", "workspaceStorage")
	default:
		return filepath.Join(home, ".config", "Code", "User", "workspaceStorage")
	}
}

// FindSessionFiles lists session files under root modified at or after
// cutoff, sorted by modification time so older sessions sync first.
func FindSessionFiles(root string, cutoff time.Time) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*", "chatSessions", "*.json"))
	if err != nil {
		return nil, err
	}

	type candidate struct {
		path  string
		mtime time.Time
	}
	var candidates []candidate
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			continue
		}
		candidates = append(candidates, candidate{path: path, mtime: info.ModTime()})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].mtime.Before(candidates[j].mtime)
	})

	files := make([]string, len(candidates))
	for i, c := range candidates {
		files[i] = c.path
	}
	return files, nil
}

// ParseAll parses the given session files with bounded parallelism and
// returns their exchanges merged in file order. Files that fail to parse
// are logged and skipped; a bad session never aborts the run.
func ParseAll(ctx context.Context, parser *Parser, files []string, maxParsers int) []*types.Exchange {
	if maxParsers < 1 {
		maxParsers = 1
	}

	results := make([][]*types.Exchange, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParsers)

	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			exchanges, err := parser.ParseFile(path)
			if err != nil {
				slog.Warn("skipping unreadable session file", "path", path, "error", err)
				return nil
			}
			results[i] = exchanges
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Debug("session parsing cancelled", "error", err)
	}

	var merged []*types.Exchange
	for _, exchanges := range results {
		merged = append(merged, exchanges...)
	}
	return merged
}

// FilterSince keeps exchanges whose request started at or after cutoff.
// Exchanges without a parseable start time are kept: losing a timestamp
// must not silently drop data.
func FilterSince(exchanges []*types.Exchange, cutoff time.Time) []*types.Exchange {
	var kept []*types.Exchange
	for _, ex := range exchanges {
		if ex.RequestInitialized != "" {
			ts, err := time.Parse(time.RFC3339Nano, ex.RequestInitialized)
			if err == nil && ts.Before(cutoff) {
				continue
			}
		}
		kept = append(kept, ex)
	}
	return kept
}

// LatestInitialized returns the newest request-start timestamp across the
// exchanges, for advancing the sync watermark.
func LatestInitialized(exchanges []*types.Exchange) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, ex := range exchanges {
		if ex.RequestInitialized == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, ex.RequestInitialized)
		if err != nil {
			continue
		}
		if !found || ts.After(latest) {
			latest = ts
			found = true
		}
	}
	return latest, found
}
