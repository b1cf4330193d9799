package translate

import (
	"encoding/json"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/nilsecker/anthrogate/internal/anthropicapi"
	"github.com/nilsecker/anthrogate/internal/apierr"
	"github.com/nilsecker/anthrogate/internal/openaiapi"
)

// blockKind is the tagged union of open-block states C9 cycles through
// (spec.md §9: "best modeled as an explicit tagged union of block
// states with a single transition function").
type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockThinking
	blockToolUse
)

// SSEEvent is one emitted Anthropic server-sent event.
type SSEEvent struct {
	Event string
	Data  []byte
}

// StreamState is the per-in-flight-stream correlator state (spec.md §3).
type StreamState struct {
	ID              string
	Model           string
	NextIndex       int
	OpenKind        blockKind
	OpenIndex       int
	ToolCallIndex   map[string]int
	MessageStarted  bool
	Usage           anthropicapi.Usage
	rsID            string
	rsEncrypted     string
	sawFunctionCall bool
}

// NewStreamState creates correlator state for one response, minting a
// fresh Anthropic message id up front.
func NewStreamState(id, model string) *StreamState {
	return &StreamState{
		ID:            anthropicapi.NewResponseID(id),
		Model:         model,
		ToolCallIndex: make(map[string]int),
	}
}

func marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (s *StreamState) start() SSEEvent {
	s.MessageStarted = true
	return SSEEvent{
		Event: anthropicapi.EventMessageStart,
		Data: marshal(anthropicapi.MessageStartPayload{
			Type: "message_start",
			Message: anthropicapi.MessageEnvelope{
				ID:      s.ID,
				Type:    "message",
				Role:    "assistant",
				Model:   s.Model,
				Content: []anthropicapi.ContentBlock{},
				Usage:   s.Usage,
			},
		}),
	}
}

// closeOpen emits content_block_stop for the currently open block, if
// any, and resets to blockNone.
func (s *StreamState) closeOpen(out *[]SSEEvent) {
	if s.OpenKind == blockNone {
		return
	}
	*out = append(*out, SSEEvent{
		Event: anthropicapi.EventContentBlockStop,
		Data:  marshal(anthropicapi.ContentBlockStopPayload{Type: "content_block_stop", Index: s.OpenIndex}),
	})
	s.OpenKind = blockNone
}

func (s *StreamState) openBlock(out *[]SSEEvent, kind blockKind, block anthropicapi.ContentBlock) int {
	s.closeOpen(out)
	index := s.NextIndex
	s.NextIndex++
	s.OpenKind = kind
	s.OpenIndex = index
	*out = append(*out, SSEEvent{
		Event: anthropicapi.EventContentBlockStart,
		Data: marshal(anthropicapi.ContentBlockStartPayload{
			Type:         "content_block_start",
			Index:        index,
			ContentBlock: block,
		}),
	})
	return index
}

func (s *StreamState) delta(index int, d anthropicapi.Delta) SSEEvent {
	return SSEEvent{
		Event: anthropicapi.EventContentBlockDelta,
		Data: marshal(anthropicapi.ContentBlockDeltaPayload{
			Type:  "content_block_delta",
			Index: index,
			Delta: d,
		}),
	}
}

// finish closes the open block and emits message_delta + message_stop.
func (s *StreamState) finish(out *[]SSEEvent, stopReason string) {
	s.closeOpen(out)
	*out = append(*out, SSEEvent{
		Event: anthropicapi.EventMessageDelta,
		Data: marshal(anthropicapi.MessageDeltaPayload{
			Type:  "message_delta",
			Delta: anthropicapi.MessageDeltaBody{StopReason: stopReason},
			Usage: s.Usage,
		}),
	})
	*out = append(*out, SSEEvent{
		Event: anthropicapi.EventMessageStop,
		Data:  marshal(anthropicapi.MessageStopPayload{Type: "message_stop"}),
	})
}

// FailMidStream implements spec.md §4.4 step 4: close the open block,
// emit message_delta(stop_reason:"end_turn"), an error event carrying
// the mapped kind, then message_stop.
func (s *StreamState) FailMidStream(cause *apierr.Error) []SSEEvent {
	var out []SSEEvent
	if !s.MessageStarted {
		out = append(out, s.start())
	}
	s.closeOpen(&out)
	out = append(out, SSEEvent{
		Event: anthropicapi.EventMessageDelta,
		Data: marshal(anthropicapi.MessageDeltaPayload{
			Type:  "message_delta",
			Delta: anthropicapi.MessageDeltaBody{StopReason: "end_turn"},
			Usage: s.Usage,
		}),
	})
	out = append(out, SSEEvent{
		Event: anthropicapi.EventError,
		Data:  marshal(cause.ToEnvelope()),
	})
	out = append(out, SSEEvent{
		Event: anthropicapi.EventMessageStop,
		Data:  marshal(anthropicapi.MessageStopPayload{Type: "message_stop"}),
	})
	return out
}

// HandleResponsesEvent advances the correlator by one Responses API
// stream event, returning zero or more Anthropic SSE events.
func (s *StreamState) HandleResponsesEvent(ev openaiapi.StreamEvent) []SSEEvent {
	var out []SSEEvent

	switch ev.Type {
	case openaiapi.StreamEventResponseCreated:
		if !s.MessageStarted {
			out = append(out, s.start())
		}

	case openaiapi.StreamEventOutputItemAdded:
		if ev.Item == nil {
			break
		}
		switch ev.Item.Type {
		case "reasoning":
			s.rsID = ev.Item.ID
			s.rsEncrypted = ev.Item.EncryptedContent
			s.openBlock(&out, blockThinking, anthropicapi.ContentBlock{
				Type:                              "thinking",
				Thinking:                          "",
				ExtractedOpenAIRSID:               s.rsID,
				ExtractedOpenAIRSEncryptedContent: s.rsEncrypted,
			})
		case "function_call":
			s.sawFunctionCall = true
			index := s.openBlock(&out, blockToolUse, anthropicapi.ContentBlock{
				Type: "tool_use",
				ID:   ev.Item.CallID,
				Name: ev.Item.Name,
			})
			s.ToolCallIndex[ev.Item.ID] = index
		}

	case openaiapi.StreamEventOutputTextDelta:
		index := s.OpenIndex
		if s.OpenKind != blockText {
			index = s.openBlock(&out, blockText, anthropicapi.ContentBlock{Type: "text", Text: ""})
		}
		out = append(out, s.delta(index, anthropicapi.Delta{Type: "text_delta", Text: ev.Delta}))

	case openaiapi.StreamEventReasoningSummaryTextDelta:
		index := s.OpenIndex
		if s.OpenKind != blockThinking {
			index = s.openBlock(&out, blockThinking, anthropicapi.ContentBlock{
				Type:                              "thinking",
				ExtractedOpenAIRSID:               s.rsID,
				ExtractedOpenAIRSEncryptedContent: s.rsEncrypted,
			})
		}
		out = append(out, s.delta(index, anthropicapi.Delta{Type: "thinking_delta", Thinking: ev.Delta}))

	case openaiapi.StreamEventFunctionCallArgsDelta:
		index, ok := s.ToolCallIndex[ev.ItemID]
		if !ok {
			index = s.OpenIndex
		}
		out = append(out, s.delta(index, anthropicapi.Delta{Type: "input_json_delta", PartialJSON: ev.Delta}))

	case openaiapi.StreamEventOutputItemDone:
		s.closeOpen(&out)

	case openaiapi.StreamEventCompleted:
		var stopReason string
		if ev.Response != nil {
			s.Usage = anthropicapi.Usage{
				InputTokens:  ev.Response.Usage.InputTokens,
				OutputTokens: ev.Response.Usage.OutputTokens,
			}
			stopReason = responsesStopReason(ev.Response, s.sawFunctionCall)
		} else if s.sawFunctionCall {
			stopReason = "tool_use"
		} else {
			stopReason = "end_turn"
		}
		s.finish(&out, stopReason)

	case openaiapi.StreamEventFailed:
		out = append(out, s.FailMidStream(apierr.New(apierr.APIError, "downstream response failed"))...)
	}

	return out
}

// HandleChatChunk advances the correlator by one Chat Completions
// streaming chunk. raw is the chunk's original JSON, consulted for
// non-standard delta fields (e.g. reasoning_content) the same way
// FromChatCompletionResponse does for the non-streaming path.
func (s *StreamState) HandleChatChunk(raw []byte, chunk openaiapi.ChatStreamChunk) []SSEEvent {
	var out []SSEEvent

	if !s.MessageStarted {
		out = append(out, s.start())
	}
	if chunk.Usage != nil {
		s.Usage = anthropicapi.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}
	}
	if len(chunk.Choices) == 0 {
		return out
	}
	choice := chunk.Choices[0]

	if custom := customFieldFromDelta(raw); custom != "" {
		index := s.OpenIndex
		if s.OpenKind != blockThinking {
			index = s.openBlock(&out, blockThinking, anthropicapi.ContentBlock{Type: "thinking"})
		}
		out = append(out, s.delta(index, anthropicapi.Delta{Type: "thinking_delta", Thinking: custom}))
	}

	if choice.Delta.Content != "" {
		index := s.OpenIndex
		if s.OpenKind != blockText {
			index = s.openBlock(&out, blockText, anthropicapi.ContentBlock{Type: "text", Text: ""})
		}
		out = append(out, s.delta(index, anthropicapi.Delta{Type: "text_delta", Text: choice.Delta.Content}))
	}

	for _, tc := range choice.Delta.ToolCalls {
		if tc.ID != "" {
			index := s.openBlock(&out, blockToolUse, anthropicapi.ContentBlock{
				Type: "tool_use", ID: tc.ID, Name: tc.Function.Name,
			})
			s.ToolCallIndex[chatToolCallKey(tc.Index)] = index
			continue
		}
		index, ok := s.ToolCallIndex[chatToolCallKey(tc.Index)]
		if !ok {
			index = s.OpenIndex
		}
		out = append(out, s.delta(index, anthropicapi.Delta{Type: "input_json_delta", PartialJSON: tc.Function.Arguments}))
	}

	if choice.FinishReason != nil {
		s.finish(&out, anthropicapi.MapFinishReason(*choice.FinishReason))
	}

	return out
}

func chatToolCallKey(index int) string {
	return "idx:" + strconv.Itoa(index)
}

// customFieldFromDelta scans a raw Chat Completions stream chunk's
// choices[0].delta object for the first field matching
// customFieldBlockMapping, returning its string value or "".
func customFieldFromDelta(raw []byte) string {
	delta := gjson.GetBytes(raw, "choices.0.delta")
	if !delta.Exists() {
		return ""
	}
	var found string
	delta.ForEach(func(key, value gjson.Result) bool {
		field := key.String()
		if standardChatMessageFields[field] {
			return true
		}
		if blockType, ok := customFieldBlockMapping[field]; ok && blockType == "thinking" {
			found = value.String()
			return false
		}
		return true
	})
	return found
}
