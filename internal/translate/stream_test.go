package translate_test

import (
	"encoding/json"
	"testing"

	"github.com/nilsecker/anthrogate/internal/anthropicapi"
	"github.com/nilsecker/anthrogate/internal/apierr"
	"github.com/nilsecker/anthrogate/internal/openaiapi"
	"github.com/nilsecker/anthrogate/internal/translate"
)

type eventEnvelope struct {
	Type string `json:"type"`
}

func decodeEventType(t *testing.T, ev translate.SSEEvent) string {
	t.Helper()
	var env eventEnvelope
	if err := json.Unmarshal(ev.Data, &env); err != nil {
		t.Fatalf("decode event data: %v (%s)", err, ev.Data)
	}
	return env.Type
}

// spec.md §8 scenario 6: streaming reasoning round-trip, exact event
// sequence.
func TestStreamState_ReasoningRoundTripSequence(t *testing.T) {
	state := translate.NewStreamState("fixed-id", "gpt-5")

	var all []translate.SSEEvent
	emit := func(evs []translate.SSEEvent) { all = append(all, evs...) }

	emit(state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventResponseCreated}))
	emit(state.HandleResponsesEvent(openaiapi.StreamEvent{
		Type: openaiapi.StreamEventOutputItemAdded,
		Item: &openaiapi.OutputItem{Type: "reasoning", ID: "rs_abc", EncryptedContent: "ENC"},
	}))
	emit(state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventReasoningSummaryTextDelta, Delta: "step1"}))
	emit(state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventReasoningSummaryTextDelta, Delta: "step2"}))
	emit(state.HandleResponsesEvent(openaiapi.StreamEvent{
		Type: openaiapi.StreamEventOutputItemAdded,
		Item: &openaiapi.OutputItem{Type: "message", Role: "assistant"},
	}))
	emit(state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventOutputTextDelta, Delta: "answer"}))
	emit(state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventCompleted}))

	wantTypes := []string{
		anthropicapi.EventMessageStart,
		anthropicapi.EventContentBlockStart,
		anthropicapi.EventContentBlockDelta,
		anthropicapi.EventContentBlockDelta,
		anthropicapi.EventContentBlockStop,
		anthropicapi.EventContentBlockStart,
		anthropicapi.EventContentBlockDelta,
		anthropicapi.EventContentBlockStop,
		anthropicapi.EventMessageDelta,
		anthropicapi.EventMessageStop,
	}
	if len(all) != len(wantTypes) {
		t.Fatalf("got %d events, want %d: %+v", len(all), len(wantTypes), eventTypeList(t, all))
	}
	for i, ev := range all {
		if ev.Event != wantTypes[i] {
			t.Errorf("event %d: got %q, want %q (full sequence: %v)", i, ev.Event, wantTypes[i], eventTypeList(t, all))
		}
	}

	// content_block_start(0) carries the reasoning references; the
	// start-not-delta invariant (spec.md §8 "encrypted-payload locality").
	var start0 anthropicapi.ContentBlockStartPayload
	if err := json.Unmarshal(all[1].Data, &start0); err != nil {
		t.Fatalf("decode content_block_start: %v", err)
	}
	if start0.Index != 0 {
		t.Errorf("first block index = %d, want 0", start0.Index)
	}
	if start0.ContentBlock.ExtractedOpenAIRSID != "rs_abc" || start0.ContentBlock.ExtractedOpenAIRSEncryptedContent != "ENC" {
		t.Errorf("content_block_start missing reasoning references: %+v", start0.ContentBlock)
	}

	var d1, d2 anthropicapi.ContentBlockDeltaPayload
	if err := json.Unmarshal(all[2].Data, &d1); err != nil {
		t.Fatalf("decode delta 1: %v", err)
	}
	if err := json.Unmarshal(all[3].Data, &d2); err != nil {
		t.Fatalf("decode delta 2: %v", err)
	}
	if d1.Delta.Thinking != "step1" || d2.Delta.Thinking != "step2" {
		t.Errorf("thinking deltas = %q, %q, want step1, step2", d1.Delta.Thinking, d2.Delta.Thinking)
	}

	var stop0 anthropicapi.ContentBlockStopPayload
	if err := json.Unmarshal(all[4].Data, &stop0); err != nil {
		t.Fatalf("decode content_block_stop: %v", err)
	}
	if stop0.Index != 0 {
		t.Errorf("first stop index = %d, want 0", stop0.Index)
	}

	var start1 anthropicapi.ContentBlockStartPayload
	if err := json.Unmarshal(all[5].Data, &start1); err != nil {
		t.Fatalf("decode second content_block_start: %v", err)
	}
	if start1.Index != 1 || start1.ContentBlock.Type != "text" {
		t.Errorf("second block = %+v, want index 1 text", start1)
	}

	var textDelta anthropicapi.ContentBlockDeltaPayload
	if err := json.Unmarshal(all[6].Data, &textDelta); err != nil {
		t.Fatalf("decode text delta: %v", err)
	}
	if textDelta.Delta.Text != "answer" {
		t.Errorf("text delta = %q, want answer", textDelta.Delta.Text)
	}

	var msgDelta anthropicapi.MessageDeltaPayload
	if err := json.Unmarshal(all[8].Data, &msgDelta); err != nil {
		t.Fatalf("decode message_delta: %v", err)
	}
	if msgDelta.Delta.StopReason != "end_turn" {
		t.Errorf("stop_reason = %q, want end_turn", msgDelta.Delta.StopReason)
	}

	// encrypted-payload locality: the encrypted content never appears in
	// a content_block_delta payload.
	for i, ev := range all {
		if ev.Event != anthropicapi.EventContentBlockDelta {
			continue
		}
		if containsSubstring(ev.Data, "ENC") {
			t.Errorf("event %d: encrypted content leaked into a content_block_delta", i)
		}
	}
}

func eventTypeList(t *testing.T, evs []translate.SSEEvent) []string {
	t.Helper()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Event
	}
	return out
}

func containsSubstring(data []byte, substr string) bool {
	return len(data) >= len(substr) && indexOfBytes(data, []byte(substr)) >= 0
}

func indexOfBytes(data, sub []byte) int {
	for i := 0; i+len(sub) <= len(data); i++ {
		match := true
		for j := range sub {
			if data[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Block-event well-formedness (spec.md §8): indices are assigned
// strictly monotonically starting at 0, and a block's events are
// start (delta)* stop, with at most one block open at a time.
func TestStreamState_BlockIndicesMonotonic(t *testing.T) {
	state := translate.NewStreamState("id", "model")
	var all []translate.SSEEvent
	all = append(all, state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventResponseCreated})...)
	all = append(all, state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventOutputTextDelta, Delta: "a"})...)
	all = append(all, state.HandleResponsesEvent(openaiapi.StreamEvent{
		Type: openaiapi.StreamEventOutputItemAdded,
		Item: &openaiapi.OutputItem{Type: "function_call", ID: "fc_1", CallID: "call_1", Name: "tool"},
	})...)
	all = append(all, state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventFunctionCallArgsDelta, ItemID: "fc_1", Delta: `{"x":1}`})...)
	all = append(all, state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventCompleted})...)

	openIndex := -1
	nextExpected := 0
	for i, ev := range all {
		switch ev.Event {
		case anthropicapi.EventContentBlockStart:
			var p anthropicapi.ContentBlockStartPayload
			if err := json.Unmarshal(ev.Data, &p); err != nil {
				t.Fatalf("decode start: %v", err)
			}
			if openIndex != -1 {
				t.Fatalf("event %d: block %d started while %d was still open", i, p.Index, openIndex)
			}
			if p.Index != nextExpected {
				t.Fatalf("event %d: index %d, want %d (monotonic)", i, p.Index, nextExpected)
			}
			openIndex = p.Index
			nextExpected++
		case anthropicapi.EventContentBlockDelta:
			var p anthropicapi.ContentBlockDeltaPayload
			if err := json.Unmarshal(ev.Data, &p); err != nil {
				t.Fatalf("decode delta: %v", err)
			}
			if p.Index != openIndex {
				t.Fatalf("event %d: delta for index %d but %d is open", i, p.Index, openIndex)
			}
		case anthropicapi.EventContentBlockStop:
			var p anthropicapi.ContentBlockStopPayload
			if err := json.Unmarshal(ev.Data, &p); err != nil {
				t.Fatalf("decode stop: %v", err)
			}
			if p.Index != openIndex {
				t.Fatalf("event %d: stop for index %d but %d is open", i, p.Index, openIndex)
			}
			openIndex = -1
		}
	}

	var msgDelta anthropicapi.MessageDeltaPayload
	for _, ev := range all {
		if ev.Event != anthropicapi.EventMessageDelta {
			continue
		}
		if err := json.Unmarshal(ev.Data, &msgDelta); err != nil {
			t.Fatalf("decode message_delta: %v", err)
		}
	}
	if msgDelta.Delta.StopReason != "tool_use" {
		t.Errorf("stop_reason = %q, want tool_use since a function_call block was opened", msgDelta.Delta.StopReason)
	}
}

// spec.md §4.4's table: a function_call opened mid-stream must surface
// as stop_reason tool_use even when response.completed carries no
// Response payload to consult (ev.Response == nil).
func TestStreamState_FunctionCallWithoutCompletedPayloadIsToolUse(t *testing.T) {
	state := translate.NewStreamState("id", "model")
	var all []translate.SSEEvent
	all = append(all, state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventResponseCreated})...)
	all = append(all, state.HandleResponsesEvent(openaiapi.StreamEvent{
		Type: openaiapi.StreamEventOutputItemAdded,
		Item: &openaiapi.OutputItem{Type: "function_call", ID: "fc_1", CallID: "call_1", Name: "tool"},
	})...)
	all = append(all, state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventOutputItemDone})...)
	all = append(all, state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventCompleted})...)

	var msgDelta anthropicapi.MessageDeltaPayload
	var found bool
	for _, ev := range all {
		if ev.Event != anthropicapi.EventMessageDelta {
			continue
		}
		if err := json.Unmarshal(ev.Data, &msgDelta); err != nil {
			t.Fatalf("decode message_delta: %v", err)
		}
		found = true
	}
	if !found {
		t.Fatal("expected a message_delta event")
	}
	if msgDelta.Delta.StopReason != "tool_use" {
		t.Errorf("stop_reason = %q, want tool_use", msgDelta.Delta.StopReason)
	}
}

// spec.md §4.4 step 4: a mid-stream failure closes the open block, emits
// message_delta(end_turn), an error event, then message_stop.
func TestStreamState_FailMidStream(t *testing.T) {
	state := translate.NewStreamState("id", "model")
	var all []translate.SSEEvent
	all = append(all, state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventResponseCreated})...)
	all = append(all, state.HandleResponsesEvent(openaiapi.StreamEvent{Type: openaiapi.StreamEventOutputTextDelta, Delta: "partial"})...)

	all = append(all, state.FailMidStream(apierr.New(apierr.APIError, "downstream exploded"))...)

	wantTail := []string{
		anthropicapi.EventContentBlockStop,
		anthropicapi.EventMessageDelta,
		anthropicapi.EventError,
		anthropicapi.EventMessageStop,
	}
	if len(all) < len(wantTail) {
		t.Fatalf("too few events: %v", eventTypeList(t, all))
	}
	tail := all[len(all)-len(wantTail):]
	for i, ev := range tail {
		if ev.Event != wantTail[i] {
			t.Errorf("tail event %d: got %q, want %q (full: %v)", i, ev.Event, wantTail[i], eventTypeList(t, all))
		}
	}
}

func TestStreamState_ChatChunk_ToolCallIndexCorrelation(t *testing.T) {
	state := translate.NewStreamState("id", "model")
	var all []translate.SSEEvent

	firstChunk := openaiapi.ChatStreamChunk{
		Choices: []openaiapi.ChatStreamChoice{
			{Index: 0, Delta: openaiapi.ChatStreamDelta{ToolCalls: []openaiapi.ChatStreamToolCallDelta{
				{Index: 0, ID: "call_1", Function: openaiapi.ChatFunctionCall{Name: "tool"}},
			}}},
		},
	}
	raw1, _ := json.Marshal(firstChunk)
	all = append(all, state.HandleChatChunk(raw1, firstChunk)...)

	secondChunk := openaiapi.ChatStreamChunk{
		Choices: []openaiapi.ChatStreamChoice{
			{Index: 0, Delta: openaiapi.ChatStreamDelta{ToolCalls: []openaiapi.ChatStreamToolCallDelta{
				{Index: 0, Function: openaiapi.ChatFunctionCall{Arguments: `{"x":`}},
			}}},
		},
	}
	raw2, _ := json.Marshal(secondChunk)
	all = append(all, state.HandleChatChunk(raw2, secondChunk)...)

	var sawDelta bool
	for _, ev := range all {
		if ev.Event != anthropicapi.EventContentBlockDelta {
			continue
		}
		var p anthropicapi.ContentBlockDeltaPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			t.Fatalf("decode delta: %v", err)
		}
		if p.Delta.PartialJSON == `{"x":` {
			sawDelta = true
			if p.Index != 0 {
				t.Errorf("tool call arg delta index = %d, want 0 (correlated with the call's own block)", p.Index)
			}
		}
	}
	if !sawDelta {
		t.Error("expected a partial_json delta correlated to the tool call block")
	}
}
