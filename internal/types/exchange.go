// internal/types/exchange.go
package types

import (
	"encoding/json"
)

// ToolUse type tags, mirroring the event kinds that produce them. The
// names match what the collector expects on the wire.
const (
	ToolUseRead     = "beforeReadFile"
	ToolUseEdit     = "afterFileEdit"
	ToolUseShell    = "afterShellExecution"
	ToolUseMCP      = "afterMCPExecution"
	ToolUsePostTool = "PostToolUse"
)

// ToolUse is one assistant-initiated side effect inside a turn. Only the
// fields relevant to its Type are populated.
type ToolUse struct {
	Type string `json:"type"`

	// beforeReadFile / afterFileEdit
	FilePath    string          `json:"file_path,omitempty"`
	Content     string          `json:"content,omitempty"`
	Attachments []string        `json:"attachments,omitempty"`
	Edits       json.RawMessage `json:"edits,omitempty"`

	// afterShellExecution
	Command string `json:"command,omitempty"`
	Output  string `json:"output,omitempty"`

	// afterMCPExecution / PostToolUse
	ToolName     string          `json:"tool_name,omitempty"`
	ToolInput    json.RawMessage `json:"tool_input,omitempty"`
	ResultJSON   string          `json:"result_json,omitempty"`
	ToolResponse json.RawMessage `json:"tool_response,omitempty"`
}

// Message is one entry in an Exchange's message sequence.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	ToolUse []ToolUse `json:"tool_use,omitempty"`
}

// Exchange is the normalized, transport-ready artifact built from one
// closed turn: at most one user message followed by at most one assistant
// message. The request timestamps are only populated by the batch
// pipeline, which reconstructs them from historical session data.
type Exchange struct {
	ConversationID     string    `json:"conversation_id"`
	Model              string    `json:"model"`
	RequestInitialized string    `json:"requestInitialized,omitempty"`
	RequestCompleted   string    `json:"requestCompleted,omitempty"`
	Messages           []Message `json:"messages"`
}
