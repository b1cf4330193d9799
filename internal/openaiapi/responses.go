// Package openaiapi models the two downstream wire shapes anthrogate can
// originate requests against: the OpenAI Responses API (used by the
// "openai" adapter, which keeps reasoning continuity across turns) and
// the OpenAI Chat Completions API (used by the "openai-compatible"
// adapter, for gateways that only implement the older surface). No
// official Go SDK models either direction the way anthrogate needs, so
// both are hand-rolled the way internal/anthropicapi models the
// Anthropic side.
package openaiapi

import "encoding/json"

// InputItem is one element of a Responses API request's input array. As
// with anthropicapi.ContentBlock, every variant's fields live on one
// struct keyed by Type, since the item union has no closed Go mapping.
type InputItem struct {
	Type string `json:"type"`

	// message (type == "message")
	Role    string       `json:"role,omitempty"`
	Content []InputPart  `json:"content,omitempty"`

	// reasoning (type == "reasoning")
	ID               string           `json:"id,omitempty"`
	EncryptedContent string           `json:"encrypted_content,omitempty"`
	Summary          []ReasoningPart  `json:"summary,omitempty"`

	// function_call (type == "function_call")
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output (type == "function_call_output")
	Output string `json:"output,omitempty"`
}

// InputPart is one element of a message input item's content array.
type InputPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ReasoningPart is one element of a reasoning item's summary array.
type ReasoningPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReasoningConfig requests a reasoning effort level. Whether encrypted
// reasoning is echoed back for later continuity is controlled by
// Request.Include, not by this struct.
type ReasoningConfig struct {
	Effort string `json:"effort,omitempty"`
}

// Tool is a Responses API tool definition. Besides client-declared
// function tools, anthrogate always appends the built-in "web_search"
// tool on the openai adapter (spec.md §4.3).
type Tool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// BuiltinWebSearchTool is the always-appended tool for the openai adapter.
func BuiltinWebSearchTool() Tool { return Tool{Type: "web_search"} }

// Request is a Responses API request body.
type Request struct {
	Model       string          `json:"model"`
	Input       []InputItem     `json:"input"`
	Tools       []Tool          `json:"tools,omitempty"`
	Reasoning   *ReasoningConfig `json:"reasoning,omitempty"`
	Include     []string       `json:"include,omitempty"`
	Store       *bool          `json:"store,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	MaxOutputTokens int64      `json:"max_output_tokens,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
}

// OutputItem is one element of a Responses API response's output array.
type OutputItem struct {
	Type string `json:"type"`

	// message
	Role    string       `json:"role,omitempty"`
	Content []OutputPart `json:"content,omitempty"`

	// reasoning
	ID               string          `json:"id,omitempty"`
	EncryptedContent string          `json:"encrypted_content,omitempty"`
	Summary          []ReasoningPart `json:"summary,omitempty"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// OutputPart is one element of a message output item's content array.
type OutputPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage is the Responses API's token accounting shape.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is a complete, non-streaming Responses API response.
type Response struct {
	ID                string             `json:"id"`
	Model             string             `json:"model"`
	Output            []OutputItem       `json:"output"`
	Usage             Usage              `json:"usage"`
	Status            string             `json:"status"`
	IncompleteDetails *IncompleteDetails `json:"incomplete_details,omitempty"`
}

// IncompleteDetails explains why Status == "incomplete" (e.g. the model
// ran out of its output token budget, or a content filter cut it short).
type IncompleteDetails struct {
	Reason string `json:"reason,omitempty"`
}

// StreamEvent is one Responses API SSE event, dispatched on Type.
type StreamEvent struct {
	Type         string      `json:"type"`
	ResponseID   string      `json:"response_id,omitempty"`
	ItemID       string      `json:"item_id,omitempty"`
	Item         *OutputItem `json:"item,omitempty"`
	OutputIndex  int         `json:"output_index,omitempty"`
	ContentIndex int         `json:"content_index,omitempty"`
	Delta        string      `json:"delta,omitempty"`
	Response     *Response   `json:"response,omitempty"`
}

// Responses API streaming event type names anthrogate's correlator
// recognizes (spec.md §4.4/§4.5).
const (
	StreamEventResponseCreated           = "response.created"
	StreamEventOutputItemAdded           = "response.output_item.added"
	StreamEventOutputTextDelta           = "response.output_text.delta"
	StreamEventReasoningSummaryTextDelta = "response.reasoning_summary_text.delta"
	StreamEventFunctionCallArgsDelta     = "response.function_call_arguments.delta"
	StreamEventOutputItemDone            = "response.output_item.done"
	StreamEventCompleted                 = "response.completed"
	StreamEventFailed                    = "response.failed"
)
