// Package translate implements the bidirectional conversion between the
// Anthropic Messages content-block model and the OpenAI Responses /
// Chat Completions message models (spec.md §4.3-§4.5), plus the
// streaming correlator that turns a downstream event/chunk sequence
// into well-formed Anthropic SSE framing.
package translate

import (
	"github.com/nilsecker/anthrogate/internal/anthropicapi"
	"github.com/nilsecker/anthrogate/internal/openaiapi"
)

// effortFromBudgetTokens maps a thinking.budget_tokens value to a Responses
// API reasoning.effort tier. Chosen so low/medium/high roughly bracket
// the token budgets anthropic-side "low"/"medium"/"high" presets use.
func effortFromBudgetTokens(budget int64) string {
	switch {
	case budget <= 0:
		return ""
	case budget <= 2048:
		return "low"
	case budget <= 16384:
		return "medium"
	default:
		return "high"
	}
}

// reasoningInputItem converts a prior-turn thinking block into a
// Responses API reasoning input item, preferring the encrypted payload
// over the bare id (spec.md §4.3, §4.5). ok is false when the block
// carries neither, signalling the caller should degrade to visible text.
func reasoningInputItem(block anthropicapi.ContentBlock) (openaiapi.InputItem, bool) {
	switch {
	case block.ExtractedOpenAIRSEncryptedContent != "":
		return openaiapi.InputItem{
			Type:             "reasoning",
			EncryptedContent: block.ExtractedOpenAIRSEncryptedContent,
		}, true
	case block.ExtractedOpenAIRSID != "":
		return openaiapi.InputItem{
			Type: "reasoning",
			ID:   block.ExtractedOpenAIRSID,
		}, true
	default:
		return openaiapi.InputItem{}, false
	}
}

// degradedThinkingText renders a thinking block with no reasoning
// reference as visible <think>...</think> text, so the model still sees
// the prior reasoning surface form (spec.md §4.5).
func degradedThinkingText(block anthropicapi.ContentBlock) string {
	return "<think>" + block.Thinking + "</think>"
}
