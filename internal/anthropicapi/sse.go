package anthropicapi

import "encoding/json"

// Event names for the Anthropic SSE envelope lifecycle (spec.md §4.4).
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventError             = "error"
)

// MessageStartPayload is the data payload of a message_start event.
type MessageStartPayload struct {
	Type    string  `json:"type"`
	Message MessageEnvelope `json:"message"`
}

// MessageEnvelope is the partial message carried by message_start; its
// Content array starts empty and fills in via content_block_* events.
type MessageEnvelope struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason *string        `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// ContentBlockStartPayload is the data payload of a content_block_start
// event; ContentBlock carries only the fields relevant to the block kind
// being opened (json "omitempty" tags keep the wire payload minimal).
type ContentBlockStartPayload struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

// Delta is the polymorphic payload of a content_block_delta event. Only
// the field matching Type is populated.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// ContentBlockDeltaPayload is the data payload of a content_block_delta event.
type ContentBlockDeltaPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta Delta  `json:"delta"`
}

// ContentBlockStopPayload is the data payload of a content_block_stop event.
type ContentBlockStopPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// MessageDeltaPayload is the data payload of a message_delta event,
// carrying the final stop_reason and cumulative usage.
type MessageDeltaPayload struct {
	Type  string          `json:"type"`
	Delta MessageDeltaBody `json:"delta"`
	Usage Usage           `json:"usage"`
}

// MessageDeltaBody holds message_delta's stop_reason field.
type MessageDeltaBody struct {
	StopReason string `json:"stop_reason"`
}

// MessageStopPayload is the (empty) data payload of a message_stop event.
type MessageStopPayload struct {
	Type string `json:"type"`
}

// ErrorPayload is the data payload of a mid-stream error event.
type ErrorPayload struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the {type, message} pair inside ErrorPayload.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Marshal is a convenience wrapper so callers needn't import encoding/json
// just to serialize one of the payload types above.
func Marshal(v any) ([]byte, error) { return json.Marshal(v) }
