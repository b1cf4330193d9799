package translate

import (
	"encoding/json"

	"github.com/nilsecker/anthrogate/internal/anthropicapi"
	"github.com/nilsecker/anthrogate/internal/apierr"
	"github.com/nilsecker/anthrogate/internal/openaiapi"
)

// ToResponsesRequest converts an Anthropic Messages request into a
// Responses API request for the "openai" adapter (spec.md §4.3). model
// is the routing-resolved effective model name.
func ToResponsesRequest(req anthropicapi.Request, model string) (*openaiapi.Request, error) {
	var input []openaiapi.InputItem

	if req.System != nil {
		if text := req.System.ConcatenatedText(); text != "" {
			input = append(input, openaiapi.InputItem{
				Type: "message",
				Role: "system",
				Content: []openaiapi.InputPart{
					{Type: "input_text", Text: text},
				},
			})
		}
	}

	for _, msg := range req.Messages {
		items, err := responsesItemsForMessage(msg)
		if err != nil {
			return nil, err
		}
		input = append(input, items...)
	}

	tools := make([]openaiapi.Tool, 0, len(req.Tools)+1)
	for _, t := range req.Tools {
		tools = append(tools, openaiapi.Tool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	// The built-in web_search tool is always appended on this adapter,
	// even if the client's own web-search tool was stripped upstream
	// (spec.md §4.3, §9).
	tools = append(tools, openaiapi.BuiltinWebSearchTool())

	out := &openaiapi.Request{
		Model:   model,
		Input:   input,
		Tools:   tools,
		Stream:  req.Stream,
		Include: []string{"reasoning.encrypted_content"},
		Store:   boolPtr(false),
	}
	if req.MaxTokens > 0 {
		out.MaxOutputTokens = req.MaxTokens
	}
	out.Temperature = req.Temperature
	out.TopP = req.TopP

	switch {
	case req.Reasoning != nil && req.Reasoning.Effort != "":
		// A config patch already set reasoning.effort; it wins over the
		// budget_tokens-derived mapping (spec.md §4.3).
		out.Reasoning = &openaiapi.ReasoningConfig{Effort: req.Reasoning.Effort}
	case req.Thinking != nil && req.Thinking.BudgetTokens > 0:
		if effort := effortFromBudgetTokens(req.Thinking.BudgetTokens); effort != "" {
			out.Reasoning = &openaiapi.ReasoningConfig{Effort: effort}
		}
	}

	return out, nil
}

func responsesItemsForMessage(msg anthropicapi.Message) ([]openaiapi.InputItem, error) {
	var items []openaiapi.InputItem

	var parts []openaiapi.InputPart
	flushParts := func() {
		if len(parts) > 0 {
			items = append(items, openaiapi.InputItem{Type: "message", Role: msg.Role, Content: parts})
			parts = nil
		}
	}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			parts = append(parts, openaiapi.InputPart{Type: "input_text", Text: block.Text})
		case "image":
			if block.Source == nil {
				return nil, apierr.New(apierr.InvalidRequest, "image block missing source")
			}
			url := block.Source.URL
			if url == "" && block.Source.Data != "" {
				url = "data:" + block.Source.MediaType + ";base64," + block.Source.Data
			}
			parts = append(parts, openaiapi.InputPart{Type: "input_image", ImageURL: url})
		case "thinking":
			if msg.Role != "assistant" {
				continue
			}
			flushParts()
			if item, ok := reasoningInputItem(block); ok {
				items = append(items, item)
			} else {
				items = append(items, openaiapi.InputItem{
					Type: "message",
					Role: msg.Role,
					Content: []openaiapi.InputPart{
						{Type: "input_text", Text: degradedThinkingText(block)},
					},
				})
			}
		case "tool_use":
			if block.Name == "" || block.Input == nil {
				return nil, apierr.New(apierr.InvalidRequest, "tool_use block missing name or input")
			}
			flushParts()
			args, err := json.Marshal(block.Input)
			if err != nil {
				return nil, apierr.Wrap(apierr.InvalidRequest, "encode tool_use input", err)
			}
			items = append(items, openaiapi.InputItem{
				Type:      "function_call",
				CallID:    block.ID,
				Name:      block.Name,
				Arguments: string(args),
			})
		case "tool_result":
			flushParts()
			items = append(items, openaiapi.InputItem{
				Type:   "function_call_output",
				CallID: block.ToolUseID,
				Output: toolResultText(block),
			})
		default:
			return nil, apierr.New(apierr.InvalidRequest, "unknown content block type: "+block.Type)
		}
	}
	flushParts()
	return items, nil
}

func toolResultText(block anthropicapi.ContentBlock) string {
	if len(block.Content) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(block.Content, &asString); err == nil {
		return asString
	}
	return string(block.Content)
}

// ToChatCompletionsRequest converts an Anthropic Messages request into a
// Chat Completions request for the "openai-compatible" adapter (spec.md
// §4.3). Reasoning references are never emitted on this path; only the
// final turn's reasoning content is degraded forward as visible text.
func ToChatCompletionsRequest(req anthropicapi.Request, model string) (*openaiapi.ChatRequest, error) {
	var messages []openaiapi.ChatMessage

	if req.System != nil {
		if text := req.System.ConcatenatedText(); text != "" {
			messages = append(messages, openaiapi.ChatMessage{
				Role:    "system",
				Content: jsonString(text),
			})
		}
	}

	lastAssistantIdx := -1
	for i, msg := range req.Messages {
		if msg.Role == "assistant" {
			lastAssistantIdx = i
		}
	}

	for i, msg := range req.Messages {
		chatMsgs, err := chatMessagesForTurn(msg, i == lastAssistantIdx)
		if err != nil {
			return nil, err
		}
		messages = append(messages, chatMsgs...)
	}

	tools := make([]openaiapi.ChatTool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openaiapi.ChatTool{
			Type: "function",
			Function: openaiapi.ChatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	out := &openaiapi.ChatRequest{
		Model:       model,
		Messages:    messages,
		Tools:       tools,
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSeqs,
	}
	return out, nil
}

func chatMessagesForTurn(msg anthropicapi.Message, isLastAssistantTurn bool) ([]openaiapi.ChatMessage, error) {
	var out []openaiapi.ChatMessage
	var textBuf string
	var toolCalls []openaiapi.ChatToolCall

	flush := func() {
		if textBuf == "" && len(toolCalls) == 0 {
			return
		}
		out = append(out, openaiapi.ChatMessage{
			Role:      msg.Role,
			Content:   jsonString(textBuf),
			ToolCalls: toolCalls,
		})
		textBuf = ""
		toolCalls = nil
	}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			textBuf += block.Text
		case "image":
			// Chat Completions image parts require multipart content;
			// degrade to a text marker rather than drop silently.
			textBuf += "[image omitted]"
		case "thinking":
			if msg.Role == "assistant" && isLastAssistantTurn {
				textBuf += degradedThinkingText(block)
			}
			// Earlier turns' reasoning is dropped on this adapter
			// (spec.md §4.3: "only the final turn's reasoning ... is
			// carried forward").
		case "tool_use":
			if block.Name == "" || block.Input == nil {
				return nil, apierr.New(apierr.InvalidRequest, "tool_use block missing name or input")
			}
			args, err := json.Marshal(block.Input)
			if err != nil {
				return nil, apierr.Wrap(apierr.InvalidRequest, "encode tool_use input", err)
			}
			toolCalls = append(toolCalls, openaiapi.ChatToolCall{
				ID:   block.ID,
				Type: "function",
				Function: openaiapi.ChatFunctionCall{
					Name:      block.Name,
					Arguments: string(args),
				},
			})
		case "tool_result":
			flush()
			out = append(out, openaiapi.ChatMessage{
				Role:       "tool",
				Content:    jsonString(toolResultText(block)),
				ToolCallID: block.ToolUseID,
			})
		default:
			return nil, apierr.New(apierr.InvalidRequest, "unknown content block type: "+block.Type)
		}
	}
	flush()
	return out, nil
}

func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func boolPtr(b bool) *bool { return &b }
