package translate

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nilsecker/anthrogate/internal/anthropicapi"
	"github.com/nilsecker/anthrogate/internal/openaiapi"
)

// standardChatMessageFields is the fixed OpenAI field allowlist (spec.md
// §4.4); any other top-level field on a Chat Completions message is a
// candidate for customFieldBlockMapping.
var standardChatMessageFields = map[string]bool{
	"content": true, "role": true, "name": true, "refusal": true,
	"tool_calls": true, "tool_call_id": true, "function_call": true,
	"finish_reason": true, "index": true, "logprobs": true,
	"delta": true, "usage": true,
}

// customFieldBlockMapping maps a non-standard field name to the
// Anthropic block type it is surfaced as (spec.md §4.4, §9).
var customFieldBlockMapping = map[string]string{
	"reasoning_content": "thinking",
	"thinking_content":  "thinking",
	"reasoning":          "thinking",
	"thinking":           "thinking",
}

// FromResponsesResponse converts a complete, non-streaming Responses API
// reply into an Anthropic message (spec.md §4.4).
func FromResponsesResponse(resp *openaiapi.Response, model, freshID string) (*anthropicapi.Response, error) {
	var content []anthropicapi.ContentBlock
	var sawFunctionCall bool

	for _, item := range resp.Output {
		switch item.Type {
		case "reasoning":
			var b strings.Builder
			for _, s := range item.Summary {
				b.WriteString(s.Text)
			}
			content = append(content, anthropicapi.ContentBlock{
				Type:                              "thinking",
				Thinking:                          b.String(),
				ExtractedOpenAIRSID:               item.ID,
				ExtractedOpenAIRSEncryptedContent: item.EncryptedContent,
			})
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" || part.Type == "text" {
					content = append(content, anthropicapi.ContentBlock{Type: "text", Text: part.Text})
				}
			}
		case "function_call":
			sawFunctionCall = true
			content = append(content, anthropicapi.ContentBlock{
				Type:  "tool_use",
				ID:    item.CallID,
				Name:  item.Name,
				Input: json.RawMessage(orEmptyObject(item.Arguments)),
			})
		}
	}

	return &anthropicapi.Response{
		ID:         anthropicapi.NewResponseID(freshID),
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		Content:    content,
		StopReason: responsesStopReason(resp, sawFunctionCall),
		Usage: anthropicapi.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// responsesStopReason computes the Anthropic stop_reason for a complete
// Responses API reply (spec.md §4.4's table): a function_call output item
// always means tool_use; otherwise an incomplete response maps its
// incomplete_details.reason the same way MapFinishReason maps a Chat
// Completions finish_reason; anything else is end_turn.
func responsesStopReason(resp *openaiapi.Response, sawFunctionCall bool) string {
	if sawFunctionCall {
		return "tool_use"
	}
	if resp.Status == "incomplete" && resp.IncompleteDetails != nil {
		switch resp.IncompleteDetails.Reason {
		case "max_output_tokens":
			return "max_tokens"
		case "content_filter":
			return "stop_sequence"
		}
	}
	return "end_turn"
}

func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

// FromChatCompletionResponse converts a complete, non-streaming Chat
// Completions reply into an Anthropic message. raw is the downstream
// response body, consulted via gjson to discover non-standard fields on
// the chosen choice's message (spec.md §4.4, §9).
func FromChatCompletionResponse(raw []byte, resp *openaiapi.ChatResponse, model, freshID string) (*anthropicapi.Response, error) {
	var content []anthropicapi.ContentBlock
	var finishReason string

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		finishReason = choice.FinishReason

		var text string
		if err := json.Unmarshal(choice.Message.Content, &text); err == nil && text != "" {
			content = append(content, anthropicapi.ContentBlock{Type: "text", Text: text})
		}

		for _, tc := range choice.Message.ToolCalls {
			content = append(content, anthropicapi.ContentBlock{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: json.RawMessage(orEmptyObject(tc.Function.Arguments)),
			})
		}

		messagePath := gjson.GetBytes(raw, "choices.0.message")
		if messagePath.Exists() {
			messagePath.ForEach(func(key, value gjson.Result) bool {
				field := key.String()
				if standardChatMessageFields[field] {
					return true
				}
				blockType, ok := customFieldBlockMapping[field]
				if !ok || blockType != "thinking" {
					return true
				}
				content = append(content, anthropicapi.ContentBlock{
					Type:     "thinking",
					Thinking: value.String(),
				})
				return true
			})
		}
	}

	return &anthropicapi.Response{
		ID:         anthropicapi.NewResponseID(freshID),
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		Content:    content,
		StopReason: anthropicapi.MapFinishReason(finishReason),
		Usage: anthropicapi.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
