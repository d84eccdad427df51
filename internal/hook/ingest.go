// internal/hook/ingest.go
package hook

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/user/hookrelay/internal/types"
)

// Adapter translates one host's raw hook payload into a normalized event.
type Adapter interface {
	// Parse decodes a single hook invocation's stdin document. An
	// unrecognized event name maps to a catch-all payload so the event
	// is still logged; only undecodable input is an error.
	Parse(raw []byte) (types.Event, error)
}

// Registry maps host names to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry preloaded with the built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	r.Register("cursor", cursorAdapter{})
	r.Register("claude", claudeAdapter{})
	return r
}

// Register adds an adapter under the given host name.
func (r *Registry) Register(host string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[host] = a
}

// Lookup returns the adapter for the host.
func (r *Registry) Lookup(host string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[host]
	if !ok {
		return nil, fmt.Errorf("no adapter for host %q", host)
	}
	return a, nil
}

// cursorHookInput is the editor's hook payload. Both identifiers are
// present on every event, so turns are fully delimited on the wire.
type cursorHookInput struct {
	HookEventName  string          `json:"hook_event_name"`
	ConversationID string          `json:"conversation_id"`
	GenerationID   string          `json:"generation_id"`
	Model          string          `json:"model"`
	Prompt         string          `json:"prompt"`
	Attachments    []string        `json:"attachments"`
	FilePath       string          `json:"file_path"`
	Content        string          `json:"content"`
	Edits          json.RawMessage `json:"edits"`
	Command        string          `json:"command"`
	Output         string          `json:"output"`
	ToolName       string          `json:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input"`
	ResultJSON     string          `json:"result_json"`
	Text           string          `json:"text"`
}

type cursorAdapter struct{}

func (cursorAdapter) Parse(raw []byte) (types.Event, error) {
	var in cursorHookInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return types.Event{}, fmt.Errorf("decode hook input: %w", err)
	}

	ev := types.Event{
		Header: types.Header{
			ConversationID: types.ConversationID(in.ConversationID),
			GenerationID:   types.GenerationID(in.GenerationID),
			Timestamp:      time.Now().UTC(),
		},
	}

	switch in.HookEventName {
	case "beforeSubmitPrompt":
		ev.Kind = types.KindPromptSubmitted
		ev.Payload = &types.PromptPayload{Text: in.Prompt, Model: in.Model}
	case "beforeReadFile":
		ev.Kind = types.KindToolRead
		ev.Payload = &types.ReadPayload{FilePath: in.FilePath, Content: in.Content, Attachments: in.Attachments}
	case "afterFileEdit":
		ev.Kind = types.KindToolWrite
		ev.Payload = &types.WritePayload{FilePath: in.FilePath, Edits: in.Edits}
	case "afterShellExecution":
		ev.Kind = types.KindShellExec
		ev.Payload = &types.ShellPayload{Command: in.Command, Output: in.Output}
	case "afterMCPExecution":
		ev.Kind = types.KindToolExec
		ev.Payload = &types.ToolExecPayload{ToolName: in.ToolName, Input: in.ToolInput, ResultJSON: in.ResultJSON}
	case "afterAgentResponse":
		ev.Kind = types.KindAgentResponse
		ev.Payload = &types.ResponsePayload{Text: in.Text}
	case "stop":
		ev.Kind = types.KindTurnStopped
		ev.Payload = &types.StopPayload{}
	default:
		ev.Kind = types.KindUnrecognized
		ev.Payload = &types.UnrecognizedPayload{Name: in.HookEventName, Raw: raw}
	}
	return ev, nil
}

// claudeHookInput is the session-scoped hook payload: no generation
// identifier, assistant text arrives via the transcript side channel.
type claudeHookInput struct {
	HookEventName  string          `json:"hook_event_name"`
	SessionID      string          `json:"session_id"`
	Prompt         string          `json:"prompt"`
	ToolName       string          `json:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input"`
	ToolResponse   json.RawMessage `json:"tool_response"`
	TranscriptPath string          `json:"transcript_path"`
	Source         string          `json:"source"`
}

type claudeAdapter struct{}

func (claudeAdapter) Parse(raw []byte) (types.Event, error) {
	var in claudeHookInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return types.Event{}, fmt.Errorf("decode hook input: %w", err)
	}

	ev := types.Event{
		Header: types.Header{
			ConversationID: types.ConversationID(in.SessionID),
			Timestamp:      time.Now().UTC(),
		},
	}

	switch in.HookEventName {
	case "UserPromptSubmit":
		ev.Kind = types.KindPromptSubmitted
		ev.Payload = &types.PromptPayload{Text: in.Prompt}
	case "PostToolUse":
		ev.Kind = types.KindToolExec
		ev.Payload = &types.ToolExecPayload{ToolName: in.ToolName, Input: in.ToolInput, Response: in.ToolResponse}
	case "Stop":
		ev.Kind = types.KindTurnStopped
		ev.Payload = &types.StopPayload{TranscriptPath: in.TranscriptPath}
	case "SessionStart":
		ev.Kind = types.KindSessionStart
		ev.Payload = &types.SessionPayload{}
	case "SessionEnd":
		ev.Kind = types.KindSessionEnd
		ev.Payload = &types.SessionPayload{}
	default:
		ev.Kind = types.KindUnrecognized
		ev.Payload = &types.UnrecognizedPayload{Name: in.HookEventName, Raw: raw}
	}
	return ev, nil
}
