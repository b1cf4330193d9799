// Package anthropicapi models the inbound/outbound shape of the Anthropic
// Messages API (spec.md §3, §6): the request body anthrogate terminates,
// the non-streaming response it can synthesize, and the SSE event
// vocabulary its streaming responses emit.
package anthropicapi

import "encoding/json"

// ContentBlock is one element of a message's content array. Anthropic's
// content blocks are a closed but growing union (text, thinking,
// tool_use, tool_result, image); rather than a sum type we keep every
// variant's fields on one struct and key behavior off Type, the way
// encoding/json-based Go translators in this space do when no official
// SDK type is available for the direction being modeled.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking                       string `json:"thinking,omitempty"`
	Signature                      string `json:"signature,omitempty"`
	ExtractedOpenAIRSID            string `json:"extracted_openai_rs_id,omitempty"`
	ExtractedOpenAIRSEncryptedContent string `json:"extracted_openai_rs_encrypted_content,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource is an image content block's embedded or referenced payload.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Message is one turn in the conversation.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// SystemBlock is one element of an array-form system prompt.
type SystemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// System holds the top-level system field, which may arrive as a bare
// string or as a list of {"type":"text","text":...} blocks. IsString
// records which form was seen so re-encoding round-trips the same shape.
type System struct {
	IsString bool
	Text     string
	Blocks   []SystemBlock
}

// UnmarshalJSON accepts either a JSON string or an array of text blocks.
func (s *System) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.IsString = true
		s.Text = str
		return nil
	}
	var blocks []SystemBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	s.IsString = false
	s.Blocks = blocks
	return nil
}

// MarshalJSON renders System back in whichever shape it was parsed from.
func (s System) MarshalJSON() ([]byte, error) {
	if s.IsString {
		return json.Marshal(s.Text)
	}
	return json.Marshal(s.Blocks)
}

// ConcatenatedText returns every text block's content concatenated, used
// by the routing engine's system_regex predicate.
func (s System) ConcatenatedText() string {
	if s.IsString {
		return s.Text
	}
	var out string
	for _, b := range s.Blocks {
		if b.Type == "text" || b.Type == "" {
			out += b.Text
		}
	}
	return out
}

// Thinking is the top-level extended-thinking request toggle.
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int64  `json:"budget_tokens,omitempty"`
}

// Tool is one client-declared tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Request is the inbound POST /v1/messages body.
type Request struct {
	Model       string          `json:"model"`
	System      *System         `json:"system,omitempty"`
	Messages    []Message       `json:"messages"`
	Tools       []Tool          `json:"tools,omitempty"`
	Thinking    *Thinking       `json:"thinking,omitempty"`
	MaxTokens   int64           `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	StopSeqs    []string        `json:"stop_sequences,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`

	// Reasoning is not part of the native Anthropic wire shape; it is
	// only ever present when an override rule's config patch writes
	// "reasoning.effort" onto the body (spec.md §4.2). When set, it
	// takes precedence over the budget_tokens-derived effort mapping
	// (spec.md §4.3: "unless the config patch already set an effort").
	Reasoning *ReasoningOverride `json:"reasoning,omitempty"`
}

// ReasoningOverride mirrors the one leaf a config patch can set under
// "reasoning" on the inbound body ahead of C4 translation.
type ReasoningOverride struct {
	Effort string `json:"effort,omitempty"`
}

// Usage is the token accounting attached to a message envelope.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is a complete, non-streaming message envelope.
type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      Usage          `json:"usage"`
}

// NewResponseID mints a fresh "msg_<id>" identifier (spec.md §4.4: "The
// envelope id is freshly minted").
func NewResponseID(raw string) string { return "msg_" + raw }

// MapFinishReason maps an OpenAI finish reason to an Anthropic stop
// reason (spec.md §4.4).
func MapFinishReason(openaiReason string) string {
	switch openaiReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "content_filter":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}
