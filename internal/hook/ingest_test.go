// internal/hook/ingest_test.go
package hook

import (
	"testing"

	"github.com/user/hookrelay/internal/types"
)

func TestCursorAdapter_PromptEvent(t *testing.T) {
	raw := []byte(`{"hook_event_name":"beforeSubmitPrompt","conversation_id":"c1","generation_id":"g1","model":"gpt-5","prompt":"fix it"}`)

	ev, err := cursorAdapter{}.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != types.KindPromptSubmitted || ev.ConversationID != "c1" || ev.GenerationID != "g1" {
		t.Errorf("unexpected header: %+v", ev.Header)
	}
	p, ok := ev.Payload.(*types.PromptPayload)
	if !ok || p.Text != "fix it" || p.Model != "gpt-5" {
		t.Errorf("unexpected payload: %+v", ev.Payload)
	}
}

func TestCursorAdapter_EventMapping(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind types.EventKind
	}{
		{"read", `{"hook_event_name":"beforeReadFile","conversation_id":"c","generation_id":"g","file_path":"a.go"}`, types.KindToolRead},
		{"edit", `{"hook_event_name":"afterFileEdit","conversation_id":"c","generation_id":"g","file_path":"a.go","edits":[{"old":"x"}]}`, types.KindToolWrite},
		{"shell", `{"hook_event_name":"afterShellExecution","conversation_id":"c","generation_id":"g","command":"ls"}`, types.KindShellExec},
		{"mcp", `{"hook_event_name":"afterMCPExecution","conversation_id":"c","generation_id":"g","tool_name":"search","result_json":"{}"}`, types.KindToolExec},
		{"response", `{"hook_event_name":"afterAgentResponse","conversation_id":"c","generation_id":"g","text":"done"}`, types.KindAgentResponse},
		{"stop", `{"hook_event_name":"stop","conversation_id":"c","generation_id":"g"}`, types.KindTurnStopped},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := cursorAdapter{}.Parse([]byte(tc.raw))
			if err != nil {
				t.Fatal(err)
			}
			if ev.Kind != tc.kind {
				t.Errorf("expected kind %s, got %s", tc.kind, ev.Kind)
			}
		})
	}
}

func TestCursorAdapter_AgentResponseCarriesText(t *testing.T) {
	raw := []byte(`{"hook_event_name":"afterAgentResponse","conversation_id":"c1","generation_id":"g1","text":"All tests pass now."}`)

	ev, err := cursorAdapter{}.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	resp, ok := ev.Payload.(*types.ResponsePayload)
	if !ok || resp.Text != "All tests pass now." {
		t.Errorf("unexpected payload: %+v", ev.Payload)
	}
}

func TestCursorAdapter_UnknownEventStillLogged(t *testing.T) {
	raw := `{"hook_event_name":"afterAgentThinks","conversation_id":"c1","generation_id":"g1"}`

	ev, err := cursorAdapter{}.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unknown event names must still produce a loggable event: %v", err)
	}
	if ev.Kind != types.KindUnrecognized || ev.ConversationID != "c1" || ev.GenerationID != "g1" {
		t.Errorf("unexpected header: %+v", ev.Header)
	}
	p, ok := ev.Payload.(*types.UnrecognizedPayload)
	if !ok || p.Name != "afterAgentThinks" || string(p.Raw) != raw {
		t.Errorf("raw document must be preserved: %+v", ev.Payload)
	}
}

func TestClaudeAdapter_UnknownEventStillLogged(t *testing.T) {
	ev, err := claudeAdapter{}.Parse([]byte(`{"hook_event_name":"PreCompact","session_id":"s1"}`))
	if err != nil {
		t.Fatalf("unknown event names must still produce a loggable event: %v", err)
	}
	if ev.Kind != types.KindUnrecognized || ev.ConversationID != "s1" {
		t.Errorf("unexpected header: %+v", ev.Header)
	}
}

func TestClaudeAdapter_SessionScopedEvents(t *testing.T) {
	ev, err := claudeAdapter{}.Parse([]byte(`{"hook_event_name":"UserPromptSubmit","session_id":"s1","prompt":"do it"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.ConversationID != "s1" || ev.GenerationID != "" {
		t.Errorf("session-scoped events carry no generation: %+v", ev.Header)
	}
	if ev.Kind != types.KindPromptSubmitted {
		t.Errorf("unexpected kind: %s", ev.Kind)
	}

	ev, err = claudeAdapter{}.Parse([]byte(`{"hook_event_name":"PostToolUse","session_id":"s1","tool_name":"Write","tool_input":{"content":"x"},"tool_response":{"content":"x"}}`))
	if err != nil {
		t.Fatal(err)
	}
	p, ok := ev.Payload.(*types.ToolExecPayload)
	if !ok || p.ToolName != "Write" || len(p.Response) == 0 {
		t.Errorf("unexpected payload: %+v", ev.Payload)
	}

	ev, err = claudeAdapter{}.Parse([]byte(`{"hook_event_name":"Stop","session_id":"s1","transcript_path":"/tmp/t.jsonl"}`))
	if err != nil {
		t.Fatal(err)
	}
	stop, ok := ev.Payload.(*types.StopPayload)
	if !ok || stop.TranscriptPath != "/tmp/t.jsonl" {
		t.Errorf("unexpected payload: %+v", ev.Payload)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	for _, host := range []string{"cursor", "claude"} {
		if _, err := r.Lookup(host); err != nil {
			t.Errorf("expected adapter for %s: %v", host, err)
		}
	}
	if _, err := r.Lookup("vim"); err == nil {
		t.Error("expected error for unregistered host")
	}
}
