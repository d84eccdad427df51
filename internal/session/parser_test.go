// internal/session/parser_test.go
package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/hookrelay/internal/types"
)

const sampleSession = `{
  "sessionId": "sess-42",
  "requests": [
    {
      "message": {"text": "update a.go"},
      "modelId": "copilot/gpt-5-mini",
      "timestamp": 1756123200000,
      "response": [
        {"value": "I'll update the file:\n` + "```" + `go\n"},
        {"kind": "codeblockUri", "uri": {"path": "/src/a.go"}},
        {"value": "package main\n` + "```" + `"},
        {"value": " Done, see "},
        {"kind": "inlineReference", "inlineReference": {"fsPath": "/src/b.go"}},
        {"kind": "thinking", "value": "internal reasoning"}
      ],
      "variableData": {"variables": [{"value": {"path": "/src/attached.go"}}]},
      "contentReferences": [{"reference": {"fsPath": "/src/ref.go"}}],
      "result": {
        "timings": {"totalElapsed": 5000},
        "metadata": {
          "toolCallRounds": [
            {"toolCalls": [
              {"id": "t1", "name": "run_in_terminal", "arguments": "{\"command\":\"go build\"}"},
              {"id": "t2", "name": "readFile", "arguments": {"filePath": "/src/c.go"}},
              {"id": "t3", "name": "fetch_docs", "arguments": {"url": "https://example.com"}}
            ]}
          ],
          "toolCallResults": {
            "t1": {"content": [{"value": "build ok"}]},
            "t3": {"content": [{"value": "doc text"}, {"value": "more"}]}
          }
        }
      }
    },
    {
      "message": {"text": ""},
      "timestamp": 1756123260000,
      "response": [{"value": "orphan response"}]
    },
    {
      "message": {"text": "nothing happened here"},
      "timestamp": 1756123320000,
      "response": []
    }
  ]
}`

func writeSession(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFile(t *testing.T) {
	path := writeSession(t, sampleSession)

	exchanges, err := NewParser().ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// The second request has no user text and the third is vacuous.
	if len(exchanges) != 1 {
		t.Fatalf("expected 1 exchange, got %d", len(exchanges))
	}

	ex := exchanges[0]
	if ex.ConversationID != "sess-42" {
		t.Errorf("unexpected conversation: %s", ex.ConversationID)
	}
	if ex.Model != "gpt-5-mini" {
		t.Errorf("expected model suffix gpt-5-mini, got %s", ex.Model)
	}
	if len(ex.Messages) != 2 || ex.Messages[0].Content != "update a.go" {
		t.Fatalf("unexpected messages: %+v", ex.Messages)
	}

	// Fence and file body are stripped, the thinking part is dropped, the
	// inline reference becomes a backtick path.
	wantText := "I'll update the file: Done, see `/src/b.go`"
	if got := ex.Messages[1].Content; got != wantText {
		t.Errorf("assistant text mismatch:\n got %q\nwant %q", got, wantText)
	}

	tools := ex.Messages[1].ToolUse
	if len(tools) != 6 {
		t.Fatalf("expected 6 tool uses, got %d: %+v", len(tools), tools)
	}

	// Attached files first, then the write, then explicit tool calls.
	if tools[0].Type != types.ToolUseRead || tools[0].FilePath != "/src/attached.go" {
		t.Errorf("unexpected read 0: %+v", tools[0])
	}
	if tools[1].Type != types.ToolUseRead || tools[1].FilePath != "/src/ref.go" {
		t.Errorf("unexpected read 1: %+v", tools[1])
	}
	if tools[2].Type != types.ToolUseEdit || tools[2].FilePath != "/src/a.go" || tools[2].Content != "package main" {
		t.Errorf("unexpected write: %+v", tools[2])
	}
	if tools[3].Type != types.ToolUseShell || tools[3].Command != "go build" || tools[3].Output != "build ok" {
		t.Errorf("unexpected shell: %+v", tools[3])
	}
	if tools[4].Type != types.ToolUseRead || tools[4].FilePath != "/src/c.go" {
		t.Errorf("unexpected tool read: %+v", tools[4])
	}
	if tools[5].Type != types.ToolUseMCP || tools[5].ToolName != "fetch_docs" || tools[5].ResultJSON != "doc text\nmore" {
		t.Errorf("unexpected mcp call: %+v", tools[5])
	}

	// Completion is start plus elapsed.
	start, err := time.Parse(time.RFC3339Nano, ex.RequestInitialized)
	if err != nil {
		t.Fatal(err)
	}
	end, err := time.Parse(time.RFC3339Nano, ex.RequestCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(time.UnixMilli(1756123200000).UTC()) {
		t.Errorf("unexpected start: %v", start)
	}
	if end.Sub(start) != 5*time.Second {
		t.Errorf("expected 5s duration, got %v", end.Sub(start))
	}
}

func TestParseFile_CompletionFallsBackToStart(t *testing.T) {
	path := writeSession(t, `{
  "sessionId": "s",
  "requests": [{
    "message": {"text": "hi"},
    "timestamp": 1756123200000,
    "response": [{"value": "hello"}]
  }]
}`)

	exchanges, err := NewParser().ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(exchanges) != 1 {
		t.Fatalf("expected 1 exchange, got %d", len(exchanges))
	}
	ex := exchanges[0]
	if ex.RequestCompleted != ex.RequestInitialized {
		t.Errorf("completion should fall back to start, got %s vs %s", ex.RequestCompleted, ex.RequestInitialized)
	}
	if ex.Model != "auto" {
		t.Errorf("missing model should default to auto, got %s", ex.Model)
	}
}

func TestParseFile_FileStateFeedsLaterReads(t *testing.T) {
	path := writeSession(t, `{
  "sessionId": "s",
  "requests": [
    {
      "message": {"text": "write it"},
      "timestamp": 1756123200000,
      "response": [
        {"kind": "codeblockUri", "uri": {"path": "/src/gen.go"}},
        {"kind": "textEditGroup", "edits": [[{"text": "package gen"}]]}
      ]
    },
    {
      "message": {"text": "read it back"},
      "timestamp": 1756123260000,
      "response": [{"value": "sure"}],
      "variableData": {"variables": [{"value": {"path": "/src/gen.go"}}]}
    }
  ]
}`)

	exchanges, err := NewParser().ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(exchanges) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(exchanges))
	}

	reads := exchanges[1].Messages[1].ToolUse
	if len(reads) != 1 || reads[0].Type != types.ToolUseRead {
		t.Fatalf("expected one read, got %+v", reads)
	}
	if reads[0].Content != "package gen" {
		t.Errorf("read should see the in-run edit, got %q", reads[0].Content)
	}
}

func TestParseFile_BadJSON(t *testing.T) {
	path := writeSession(t, "{truncated")
	if _, err := NewParser().ParseFile(path); err == nil {
		t.Fatal("expected error for malformed session file")
	}
}
