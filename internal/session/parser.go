// internal/session/parser.go
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/user/hookrelay/internal/types"
)

// Parser turns one editor chat-session document into ordered, normalized
// exchanges. The format is the VS Code workspace-storage chat session
// JSON: a session id plus a list of request records, each carrying the
// user message, the model id, response parts, and tool-call metadata.
type Parser struct{}

// NewParser creates a session-file parser.
func NewParser() *Parser { return &Parser{} }

// session document shapes. Fields we don't consume are omitted; unknown
// fields are ignored by the decoder.
type sessionDoc struct {
	SessionID string           `json:"sessionId"`
	Requests  []sessionRequest `json:"requests"`
}

type sessionRequest struct {
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	ModelID      string         `json:"modelId"`
	Timestamp    int64          `json:"timestamp"`
	Response     []responsePart `json:"response"`
	VariableData struct {
		Variables []variableEntry `json:"variables"`
	} `json:"variableData"`
	ContentReferences []contentReference `json:"contentReferences"`
	Result            struct {
		Timings struct {
			TotalElapsed int64 `json:"totalElapsed"`
		} `json:"timings"`
		Metadata resultMetadata `json:"metadata"`
	} `json:"result"`
}

type responsePart struct {
	Kind            string          `json:"kind"`
	Value           json.RawMessage `json:"value,omitempty"`
	URI             pathRef         `json:"uri,omitempty"`
	Edits           [][]textEdit    `json:"edits,omitempty"`
	InlineReference pathRef         `json:"inlineReference,omitempty"`
}

type textEdit struct {
	Text string `json:"text"`
}

type pathRef struct {
	Path   string `json:"path"`
	FsPath string `json:"fsPath"`
}

func (p pathRef) path() string {
	if p.Path != "" {
		return p.Path
	}
	return p.FsPath
}

type variableEntry struct {
	Value pathRef `json:"value"`
}

type contentReference struct {
	Reference pathRef `json:"reference"`
}

type resultMetadata struct {
	ToolCallRounds  []toolCallRound           `json:"toolCallRounds"`
	ToolCallResults map[string]toolCallResult `json:"toolCallResults"`
}

type toolCallRound struct {
	ToolCalls []toolCall `json:"toolCalls"`
}

type toolCall struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	ToolCallID string          `json:"toolCallId"`
	Arguments  json.RawMessage `json:"arguments"`
}

type toolCallResult struct {
	Content []resultContentPart `json:"content"`
}

type resultContentPart struct {
	Value json.RawMessage `json:"value"`
}

// Response part kinds that carry no user-visible assistant text.
var skippedPartKinds = map[string]bool{
	"mcpServersStarting":       true,
	"thinking":                 true,
	"textEditGroup":            true,
	"undoStop":                 true,
	"prepareToolInvocation":    true,
	"toolInvocationSerialized": true,
}

var trailingFence = regexp.MustCompile("\n?`{3,}\\w*\n?$")

// ParseFile parses one session file into exchanges, one per non-vacuous
// request. File contents read by the assistant resolve against an
// in-run file-state map so later reads see earlier edits, not the disk.
func (p *Parser) ParseFile(path string) ([]*types.Exchange, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var doc sessionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}

	fileState := make(map[string]string)
	var exchanges []*types.Exchange

	for _, req := range doc.Requests {
		userText := req.Message.Text
		if userText == "" {
			continue
		}

		model := "auto"
		if req.ModelID != "" {
			parts := strings.Split(req.ModelID, "/")
			model = parts[len(parts)-1]
		}

		assistantText := extractResponseText(req.Response)
		fileReads := extractFileReads(req.VariableData.Variables, req.ContentReferences, fileState)
		fileWrites := extractFileWrites(req.Response)
		explicitTools := extractToolCalls(req.Result.Metadata)

		toolUses := make([]types.ToolUse, 0, len(fileReads)+len(fileWrites)+len(explicitTools))
		toolUses = append(toolUses, fileReads...)
		toolUses = append(toolUses, fileWrites...)
		toolUses = append(toolUses, explicitTools...)

		// Later reads in this run must see these edits.
		for _, tu := range toolUses[len(fileReads):] {
			if tu.Type == types.ToolUseEdit && tu.Content != "" {
				fileState[tu.FilePath] = tu.Content
			}
		}

		if assistantText == "" && len(toolUses) == 0 {
			continue
		}

		initialized := epochMSToISO(req.Timestamp)
		completed := initialized
		if req.Timestamp != 0 && req.Result.Timings.TotalElapsed != 0 {
			completed = epochMSToISO(req.Timestamp + req.Result.Timings.TotalElapsed)
		}

		exchanges = append(exchanges, &types.Exchange{
			ConversationID:     doc.SessionID,
			Model:              model,
			RequestInitialized: initialized,
			RequestCompleted:   completed,
			Messages: []types.Message{
				{Role: "user", Content: userText},
				{Role: "assistant", Content: assistantText, ToolUse: toolUses},
			},
		})
	}

	return exchanges, nil
}

// extractResponseText assembles the assistant's visible text from the
// response parts. Codeblock-URI parts mark file-write content: the
// opening fence is stripped from the preceding chunk and the following
// text part (the file body) is suppressed.
func extractResponseText(parts []responsePart) string {
	var chunks []string
	skipNextText := false

	for _, part := range parts {
		if skippedPartKinds[part.Kind] {
			continue
		}

		switch part.Kind {
		case "codeblockUri":
			if len(chunks) > 0 {
				stripped := trailingFence.ReplaceAllString(chunks[len(chunks)-1], "")
				if stripped != "" {
					chunks[len(chunks)-1] = stripped
				} else {
					chunks = chunks[:len(chunks)-1]
				}
			}
			skipNextText = true
			continue
		case "inlineReference":
			if p := part.InlineReference.path(); p != "" {
				chunks = append(chunks, "`"+p+"`")
			}
			skipNextText = false
			continue
		}

		if value, ok := stringValue(part.Value); ok && value != "" {
			if skipNextText {
				skipNextText = false
				continue
			}
			chunks = append(chunks, value)
		} else {
			skipNextText = false
		}
	}

	return strings.Join(chunks, "")
}

// extractFileWrites finds codeblock-URI parts and pairs each with the
// file content that follows it (a text-edit group or a fenced text part).
func extractFileWrites(parts []responsePart) []types.ToolUse {
	var writes []types.ToolUse

	for i, part := range parts {
		if part.Kind != "codeblockUri" {
			continue
		}
		path := part.URI.path()
		if path == "" {
			continue
		}

		var content string
		for j := i + 1; j < len(parts); j++ {
			next := parts[j]
			if next.Kind == "thinking" || next.Kind == "mcpServersStarting" {
				continue
			}
			if next.Kind == "textEditGroup" {
				if len(next.Edits) > 0 && len(next.Edits[0]) > 0 {
					content = next.Edits[0][0].Text
				}
				break
			}
			if value, ok := stringValue(next.Value); ok {
				content = trailingFence.ReplaceAllString(value, "")
			}
			break
		}

		writes = append(writes, types.ToolUse{
			Type:     types.ToolUseEdit,
			FilePath: path,
			Content:  content,
		})
	}
	return writes
}

// extractFileReads collects the files attached to the request, resolving
// content from the in-run file state first and the disk second.
func extractFileReads(variables []variableEntry, refs []contentReference, fileState map[string]string) []types.ToolUse {
	seen := make(map[string]bool)
	var reads []types.ToolUse

	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		content, ok := fileState[path]
		if !ok {
			content = readFileFromDisk(path)
		}
		reads = append(reads, types.ToolUse{
			Type:     types.ToolUseRead,
			FilePath: path,
			Content:  content,
		})
	}

	for _, v := range variables {
		add(v.Value.path())
	}
	for _, r := range refs {
		add(r.Reference.path())
	}
	return reads
}

// extractToolCalls normalizes the request's explicit tool-call rounds.
func extractToolCalls(meta resultMetadata) []types.ToolUse {
	var uses []types.ToolUse

	for _, round := range meta.ToolCallRounds {
		for _, tc := range round.ToolCalls {
			name := tc.Name
			if name == "" {
				name = tc.ToolCallID
			}
			if name == "" {
				name = "unknown"
			}

			args := parseArguments(tc.Arguments)
			result := resolveToolResult(tc.ID, meta.ToolCallResults)

			switch name {
			case "run_in_terminal":
				uses = append(uses, types.ToolUse{
					Type:    types.ToolUseShell,
					Command: stringArg(args, "command"),
					Output:  result,
				})
			case "readFile", "read_file":
				uses = append(uses, types.ToolUse{
					Type:     types.ToolUseRead,
					FilePath: filePathArg(args),
					Content:  result,
				})
			case "editFile", "edit_file", "insert_edit":
				uses = append(uses, types.ToolUse{
					Type:     types.ToolUseEdit,
					FilePath: filePathArg(args),
					Content:  result,
				})
			default:
				input, _ := json.Marshal(args)
				uses = append(uses, types.ToolUse{
					Type:       types.ToolUseMCP,
					ToolName:   name,
					ToolInput:  input,
					ResultJSON: result,
				})
			}
		}
	}
	return uses
}

// parseArguments decodes a tool call's arguments, which arrive either as
// a JSON object or as a string containing one. Unparseable arguments are
// preserved raw.
func parseArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	encoded := raw
	if s, ok := stringValue(raw); ok {
		encoded = json.RawMessage(s)
	}

	var args map[string]any
	if err := json.Unmarshal(encoded, &args); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return args
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func filePathArg(args map[string]any) string {
	if p := stringArg(args, "filePath"); p != "" {
		return p
	}
	return stringArg(args, "file_path")
}

// resolveToolResult joins the string content parts of a tool call's result.
func resolveToolResult(callID string, results map[string]toolCallResult) string {
	entry, ok := results[callID]
	if !ok {
		return ""
	}
	var texts []string
	for _, part := range entry.Content {
		if s, ok := stringValue(part.Value); ok && s != "" {
			texts = append(texts, s)
		}
	}
	return strings.Join(texts, "\n")
}

// stringValue reports whether raw holds a JSON string and returns it.
func stringValue(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func readFileFromDisk(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func epochMSToISO(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}
