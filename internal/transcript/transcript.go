// Package transcript normalizes editor-written conversation transcripts
// into assistant text fragments for the exchange builder. Hosts that do
// not emit assistant text as inline events write it to a JSONL transcript
// file instead and point the stop event at it.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/user/hookrelay/internal/exchange"
)

const maxLineBytes = 16 * 1024 * 1024

// transcript line shapes, as written by the host. Only assistant text
// blocks matter here; everything else is skipped.
type transcriptLine struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Message   json.RawMessage `json:"message,omitempty"`
}

type transcriptMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Load parses the transcript file at path into ordered assistant text
// fragments. The parser is defensive: a missing file yields no fragments
// and no error beyond the open failure, malformed lines are skipped, and
// a UTF-8 BOM on the first line is tolerated.
func Load(path string) ([]exchange.Fragment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var fragments []exchange.Fragment
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(bytes.TrimPrefix(scanner.Bytes(), []byte{0xEF, 0xBB, 0xBF}))
		if len(line) == 0 {
			continue
		}

		var entry transcriptLine
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Type != "assistant" || len(entry.Message) == 0 {
			continue
		}

		var msg transcriptMessage
		if err := json.Unmarshal(entry.Message, &msg); err != nil {
			continue
		}
		if msg.Role != "assistant" {
			continue
		}

		for _, block := range msg.Content {
			if block.Type != "text" || block.Text == "" {
				continue
			}
			fragments = append(fragments, exchange.Fragment{
				Text: block.Text,
				At:   entry.Timestamp,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return fragments, fmt.Errorf("scan transcript: %w", err)
	}
	return fragments, nil
}
