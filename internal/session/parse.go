package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrSkipLine marks blank or whitespace-only stream lines.
var ErrSkipLine = errors.New("session: skip line")

// ParseLine decodes one line of the agent's stream-json output into logical
// messages. An assistant line yields a text message (when it has prose) plus
// one tool-use message per tool_use block, in content order. A result line
// yields exactly one terminal message. Everything else maps to KindOther.
func ParseLine(line string) ([]Message, error) {
	if strings.TrimSpace(line) == "" {
		return nil, ErrSkipLine
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("session: invalid JSON: %w", err)
	}

	typeStr, _ := raw["type"].(string)
	switch typeStr {
	case "assistant":
		return parseAssistant(raw), nil
	case "result":
		isError, _ := raw["is_error"].(bool)
		return []Message{{Kind: KindResult, IsError: isError}}, nil
	default:
		return []Message{{Kind: KindOther}}, nil
	}
}

// parseAssistant walks the nested message.content array, concatenating text
// blocks and collecting tool_use blocks.
func parseAssistant(raw map[string]any) []Message {
	message, ok := raw["message"].(map[string]any)
	if !ok {
		return []Message{{Kind: KindOther}}
	}
	contentArr, ok := message["content"].([]any)
	if !ok {
		return []Message{{Kind: KindOther}}
	}

	var msgs []Message
	var text strings.Builder
	for _, c := range contentArr {
		cm, ok := c.(map[string]any)
		if !ok {
			continue
		}
		switch cm["type"] {
		case "text":
			if t, ok := cm["text"].(string); ok {
				text.WriteString(t)
			}
		case "tool_use":
			msgs = append(msgs, Message{Kind: KindToolUse, Tool: extractToolUse(cm)})
		}
	}

	if text.Len() > 0 {
		// Text first: it was produced before the tool calls it announces.
		msgs = append([]Message{{Kind: KindAssistantText, Text: text.String()}}, msgs...)
	}
	if len(msgs) == 0 {
		return []Message{{Kind: KindOther}}
	}
	return msgs
}

// extractToolUse pulls the tool name and any touched-path information out of
// a tool_use content block. Path-shaped input fields vary per tool; the
// known singular and plural spellings are all checked.
func extractToolUse(cm map[string]any) *ToolUse {
	tool := &ToolUse{}
	tool.Name, _ = cm["name"].(string)
	if tool.Name == "" {
		tool.Name = "unknown"
	}

	input, ok := cm["input"].(map[string]any)
	if !ok {
		return tool
	}

	for _, key := range []string{"file_path", "path", "notebook_path"} {
		if p, ok := input[key].(string); ok && p != "" {
			tool.Paths = append(tool.Paths, p)
		}
	}
	for _, key := range []string{"paths", "files"} {
		arr, ok := input[key].([]any)
		if !ok {
			continue
		}
		for _, v := range arr {
			if p, ok := v.(string); ok && p != "" {
				tool.Paths = append(tool.Paths, p)
			}
		}
	}

	// Batch edit tools report a count of edits rather than per-file paths.
	if edits, ok := input["edits"].([]any); ok && len(tool.Paths) == 0 {
		tool.Count = len(edits)
	}

	return tool
}
