// internal/exchange/builder.go
package exchange

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/user/hookrelay/internal/types"
)

// Fragment is one piece of assistant free-text output with the time it
// was produced. Fragments come either from inline agent-response events
// or from a side-channel transcript normalized by the transcript adapter.
type Fragment struct {
	Text string
	At   time.Time
}

// Build folds a closed turn's records, plus any transcript fragments,
// into one transport-ready Exchange. It is deterministic and pure.
//
// Rules:
//   - the user message is the latest prompt-submitted payload (hosts may
//     resend the same prompt; last write wins)
//   - tool-use entries preserve event arrival order
//   - assistant content is the blank-line join of fragments strictly
//     after the user prompt's timestamp; inline agent-response records
//     contribute fragments ahead of any transcript-sourced ones
//   - a turn with no user prompt, or with a prompt but no assistant
//     content and no tool use, is suppressed (returns false)
func Build(records []*types.Record, fragments []Fragment) (*types.Exchange, bool) {
	var (
		conversationID types.ConversationID
		model          string
		prompt         string
		promptAt       time.Time
		havePrompt     bool
		toolUses       []types.ToolUse
		inline         []Fragment
	)

	for _, rec := range records {
		ev := rec.Event
		if conversationID == "" {
			conversationID = ev.ConversationID
		}

		switch p := ev.Payload.(type) {
		case *types.PromptPayload:
			if p.Text != "" {
				prompt = p.Text
				promptAt = ev.Timestamp
				havePrompt = true
			}
			if model == "" {
				model = p.Model
			}
		case *types.ReadPayload:
			toolUses = append(toolUses, types.ToolUse{
				Type:        types.ToolUseRead,
				FilePath:    p.FilePath,
				Content:     p.Content,
				Attachments: p.Attachments,
			})
		case *types.WritePayload:
			toolUses = append(toolUses, types.ToolUse{
				Type:     types.ToolUseEdit,
				FilePath: p.FilePath,
				Content:  p.Content,
				Edits:    p.Edits,
			})
		case *types.ShellPayload:
			toolUses = append(toolUses, types.ToolUse{
				Type:    types.ToolUseShell,
				Command: p.Command,
				Output:  p.Output,
			})
		case *types.ToolExecPayload:
			toolUses = append(toolUses, toolExecUse(p))
		case *types.ResponsePayload:
			inline = append(inline, Fragment{Text: p.Text, At: ev.Timestamp})
		}
	}

	if !havePrompt {
		return nil, false
	}

	var parts []string
	for _, frag := range append(inline, fragments...) {
		if frag.Text == "" {
			continue
		}
		if frag.At.After(promptAt) {
			parts = append(parts, frag.Text)
		}
	}
	content := strings.Join(parts, "\n\n")

	if content == "" && len(toolUses) == 0 {
		return nil, false
	}

	messages := []types.Message{
		{Role: "user", Content: prompt},
		{Role: "assistant", Content: content, ToolUse: toolUses},
	}

	if model == "" || model == "default" {
		model = "auto"
	}

	return &types.Exchange{
		ConversationID: string(conversationID),
		Model:          model,
		Messages:       messages,
	}, true
}

// toolExecUse maps a generic tool execution onto the wire variant its
// host uses: a structured response object means the PostToolUse shape,
// a plain result string means the MCP shape.
func toolExecUse(p *types.ToolExecPayload) types.ToolUse {
	if len(p.Response) > 0 {
		return types.ToolUse{
			Type:         types.ToolUsePostTool,
			ToolName:     p.ToolName,
			ToolInput:    p.Input,
			ToolResponse: dedupeEcho(p.Input, p.Response),
		}
	}
	return types.ToolUse{
		Type:       types.ToolUseMCP,
		ToolName:   p.ToolName,
		ToolInput:  p.Input,
		ResultJSON: p.ResultJSON,
	}
}

// dedupeEcho drops the response's "content" field when it merely echoes
// the input's "content" field, which some hosts do for file writes.
func dedupeEcho(input, response json.RawMessage) json.RawMessage {
	var in, resp map[string]json.RawMessage
	if err := json.Unmarshal(input, &in); err != nil {
		return response
	}
	if err := json.Unmarshal(response, &resp); err != nil {
		return response
	}
	inContent, ok := in["content"]
	if !ok {
		return response
	}
	respContent, ok := resp["content"]
	if !ok {
		return response
	}
	if !bytes.Equal(inContent, respContent) {
		return response
	}
	delete(resp, "content")
	out, err := json.Marshal(resp)
	if err != nil {
		return response
	}
	return out
}
