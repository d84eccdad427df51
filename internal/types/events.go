// internal/types/events.go
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind identifies which payload variant an Event carries.
type EventKind string

const (
	KindPromptSubmitted EventKind = "prompt-submitted"
	KindToolRead        EventKind = "tool-read"
	KindToolWrite       EventKind = "tool-write"
	KindShellExec       EventKind = "shell-exec"
	KindToolExec        EventKind = "generic-tool-exec"
	KindAgentResponse   EventKind = "agent-response"
	KindTurnStopped     EventKind = "turn-stopped"
	KindSessionStart    EventKind = "session-start"
	KindSessionEnd      EventKind = "session-end"
	KindUnrecognized    EventKind = "unrecognized"
)

// Header carries the identifying fields shared by every event kind.
// GenerationID is empty for session-scoped events and for hosts whose
// protocol only exposes a session identifier.
type Header struct {
	Kind           EventKind      `json:"kind"`
	ConversationID ConversationID `json:"conversation_id,omitempty"`
	GenerationID   GenerationID   `json:"generation_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Payload is one variant of the event tagged union.
type Payload interface {
	Kind() EventKind
}

// PromptPayload is the user prompt that opens a turn.
type PromptPayload struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// ReadPayload records a file the assistant read.
type ReadPayload struct {
	FilePath    string   `json:"file_path"`
	Content     string   `json:"content,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// WritePayload records a file edit made by the assistant.
type WritePayload struct {
	FilePath string          `json:"file_path"`
	Edits    json.RawMessage `json:"edits,omitempty"`
	Content  string          `json:"content,omitempty"`
}

// ShellPayload records a shell command the assistant executed.
type ShellPayload struct {
	Command string `json:"command"`
	Output  string `json:"output,omitempty"`
}

// ToolExecPayload records an arbitrary tool invocation. Hosts report the
// result either as a plain string (ResultJSON) or as a structured response
// object (Response); exactly one of the two is set.
type ToolExecPayload struct {
	ToolName   string          `json:"tool_name"`
	Input      json.RawMessage `json:"tool_input,omitempty"`
	ResultJSON string          `json:"result_json,omitempty"`
	Response   json.RawMessage `json:"tool_response,omitempty"`
}

// ResponsePayload carries a piece of the assistant's free-text output
// from hosts that emit it inline rather than via a transcript file.
type ResponsePayload struct {
	Text string `json:"text"`
}

// UnrecognizedPayload preserves a host event whose name this version
// does not know. The raw document is kept so nothing is lost from the
// audit trail.
type UnrecognizedPayload struct {
	Name string          `json:"name"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

// StopPayload closes a turn. TranscriptPath, when present, points at a
// side-channel transcript holding the assistant's text output.
type StopPayload struct {
	TranscriptPath string `json:"transcript_path,omitempty"`
}

// SessionPayload marks session-scoped lifecycle events.
type SessionPayload struct {
	Meta json.RawMessage `json:"meta,omitempty"`
}

func (PromptPayload) Kind() EventKind       { return KindPromptSubmitted }
func (ReadPayload) Kind() EventKind         { return KindToolRead }
func (WritePayload) Kind() EventKind        { return KindToolWrite }
func (ShellPayload) Kind() EventKind        { return KindShellExec }
func (ToolExecPayload) Kind() EventKind     { return KindToolExec }
func (ResponsePayload) Kind() EventKind     { return KindAgentResponse }
func (StopPayload) Kind() EventKind         { return KindTurnStopped }
func (UnrecognizedPayload) Kind() EventKind { return KindUnrecognized }

// SessionPayload serves both session kinds; the header disambiguates.
func (SessionPayload) Kind() EventKind { return KindSessionStart }

// Event is one host-emitted occurrence: a shared header plus the payload
// variant matching Header.Kind. Events are immutable once logged.
type Event struct {
	Header
	Payload Payload `json:"-"`
}

// envelope is the self-describing wire form, one object per log line.
type envelope struct {
	Kind           EventKind       `json:"kind"`
	ConversationID ConversationID  `json:"conversation_id,omitempty"`
	GenerationID   GenerationID    `json:"generation_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON encodes the event as a kind-tagged envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	env := envelope{
		Kind:           e.Kind,
		ConversationID: e.ConversationID,
		GenerationID:   e.GenerationID,
		Timestamp:      e.Timestamp,
	}
	if e.Payload != nil {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Kind, err)
		}
		env.Payload = data
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the envelope and selects the payload variant from
// the kind tag. Unknown kinds are an error so that new host event types
// fail loudly instead of silently losing their payloads.
func (e *Event) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	e.Kind = env.Kind
	e.ConversationID = env.ConversationID
	e.GenerationID = env.GenerationID
	e.Timestamp = env.Timestamp

	var payload Payload
	switch env.Kind {
	case KindPromptSubmitted:
		payload = &PromptPayload{}
	case KindToolRead:
		payload = &ReadPayload{}
	case KindToolWrite:
		payload = &WritePayload{}
	case KindShellExec:
		payload = &ShellPayload{}
	case KindToolExec:
		payload = &ToolExecPayload{}
	case KindAgentResponse:
		payload = &ResponsePayload{}
	case KindTurnStopped:
		payload = &StopPayload{}
	case KindSessionStart, KindSessionEnd:
		payload = &SessionPayload{}
	case KindUnrecognized:
		payload = &UnrecognizedPayload{}
	default:
		return fmt.Errorf("unknown event kind %q", env.Kind)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", env.Kind, err)
		}
	}
	e.Payload = payload
	return nil
}

// Record wraps an Event with log-time metadata. The event log stores one
// Record per line.
type Record struct {
	ReceivedAt time.Time `json:"received_at"`
	Event      Event     `json:"event"`
}

// NewRecord stamps an event with the current receipt time.
func NewRecord(ev Event) *Record {
	return &Record{
		ReceivedAt: time.Now().UTC(),
		Event:      ev,
	}
}
