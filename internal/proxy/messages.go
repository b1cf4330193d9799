package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nilsecker/anthrogate/internal/anthropicapi"
	"github.com/nilsecker/anthrogate/internal/apierr"
	"github.com/nilsecker/anthrogate/internal/clientcache"
	"github.com/nilsecker/anthrogate/internal/config"
	"github.com/nilsecker/anthrogate/internal/filter"
	"github.com/nilsecker/anthrogate/internal/openaiapi"
	"github.com/nilsecker/anthrogate/internal/routing"
	"github.com/nilsecker/anthrogate/internal/translate"
)

// MessagesHandler implements the C7 dispatch steps of spec.md §4.6 for
// POST /v1/messages.
type MessagesHandler struct {
	ConfigStore *config.Store
	Clients     *clientcache.Cache
}

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg := h.ConfigStore.Get()

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIError(ctx, w, apierr.Wrap(apierr.InvalidRequest, "read request body", err))
		return
	}

	// Global tool filter runs before routing, since has_tool predicates
	// observe the post-global-filter body (spec.md §4.6 step 2).
	body, err := filter.FilterTools(rawBody, cfg.Tools)
	if err != nil {
		writeAPIError(ctx, w, apierr.Wrap(apierr.InvalidRequest, "apply tool filter", err))
		return
	}
	body, err = filter.FilterSystemClauses(body, cfg.SystemPromptFilters.ClauseFilters)
	if err != nil {
		writeAPIError(ctx, w, apierr.Wrap(apierr.InvalidRequest, "apply system prompt filter", err))
		return
	}

	decision, body, err := routing.Decide(r.Header, body, cfg)
	if err != nil {
		writeAPIError(ctx, w, err)
		return
	}

	effectivePolicy := decision.Provider.EffectiveToolPolicy(cfg.Tools)
	if !sameToolPolicy(effectivePolicy, cfg.Tools) {
		body, err = filter.FilterTools(body, effectivePolicy)
		if err != nil {
			writeAPIError(ctx, w, apierr.Wrap(apierr.InvalidRequest, "apply provider tool filter", err))
			return
		}
	}

	if decision.Adapter == config.AdapterAnthropicPassthrough {
		h.passthrough(ctx, w, r, decision, body, cfg.TimeoutsMS)
		return
	}

	h.translateAndDispatch(ctx, w, decision, body, cfg.TimeoutsMS)
}

func sameToolPolicy(a, b config.ToolPolicyConfig) bool {
	if len(a.RestrictedToolNames) != len(b.RestrictedToolNames) {
		return false
	}
	for i := range a.RestrictedToolNames {
		if !strings.EqualFold(a.RestrictedToolNames[i], b.RestrictedToolNames[i]) {
			return false
		}
	}
	return true
}

// passthrough forwards the filtered body to the provider's Anthropic
// endpoint verbatim, streaming the response back unmodified (spec.md
// §4.6 step 4, §8 "filter commutativity with passthrough").
func (h *MessagesHandler) passthrough(ctx context.Context, w http.ResponseWriter, r *http.Request, decision routing.Decision, body []byte, globalTimeouts config.TimeoutsConfig) {
	client, err := h.Clients.Get(decision.Provider, decision.EffectiveModel, globalTimeouts, nil)
	if err != nil {
		writeAPIError(ctx, w, err)
		return
	}

	url := strings.TrimRight(client.BaseURL, "/") + "/v1/messages"
	outReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		writeAPIError(ctx, w, apierr.Wrap(apierr.APIError, "build passthrough request", err))
		return
	}
	outReq.Header.Set("Content-Type", "application/json")
	outReq.Header.Set("Anthropic-Version", r.Header.Get("Anthropic-Version"))
	if client.APIKey != "" {
		outReq.Header.Set("x-api-key", client.APIKey)
	} else if apiKey := r.Header.Get("x-api-key"); apiKey != "" {
		outReq.Header.Set("x-api-key", apiKey)
	}

	resp, err := client.HTTPClient.Do(outReq)
	if err != nil {
		writeAPIError(ctx, w, apierr.Wrap(apierr.APIError, "passthrough request failed", err))
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return
		}
	}
}

func (h *MessagesHandler) translateAndDispatch(ctx context.Context, w http.ResponseWriter, decision routing.Decision, body []byte, globalTimeouts config.TimeoutsConfig) {
	var anthropicReq anthropicapi.Request
	if err := json.Unmarshal(body, &anthropicReq); err != nil {
		writeAPIError(ctx, w, apierr.Wrap(apierr.InvalidRequest, "parse request body", err))
		return
	}

	client, err := h.Clients.Get(decision.Provider, decision.EffectiveModel, globalTimeouts, nil)
	if err != nil {
		writeAPIError(ctx, w, err)
		return
	}

	switch decision.Adapter {
	case config.AdapterOpenAI:
		h.dispatchResponses(ctx, w, client, anthropicReq, decision.EffectiveModel)
	case config.AdapterOpenAICompatible:
		h.dispatchChatCompletions(ctx, w, client, anthropicReq, decision.EffectiveModel)
	default:
		writeAPIError(ctx, w, apierr.New(apierr.InvalidRequest, "unsupported adapter: "+string(decision.Adapter)))
	}
}

func (h *MessagesHandler) dispatchResponses(ctx context.Context, w http.ResponseWriter, client *clientcache.Client, req anthropicapi.Request, model string) {
	outReq, err := translate.ToResponsesRequest(req, model)
	if err != nil {
		writeAPIError(ctx, w, err)
		return
	}

	resp, err := CallResponsesAPI(ctx, client, outReq)
	if err != nil {
		writeAPIError(ctx, w, err)
		return
	}
	defer resp.Body.Close()

	if !req.Stream {
		var downstream openaiapi.Response
		if decErr := json.NewDecoder(resp.Body).Decode(&downstream); decErr != nil {
			writeAPIError(ctx, w, apierr.Wrap(apierr.APIError, "decode responses reply", decErr))
			return
		}
		anthropicResp, convErr := translate.FromResponsesResponse(&downstream, model, uuid.NewString())
		if convErr != nil {
			writeAPIError(ctx, w, convErr)
			return
		}
		writeJSON(ctx, w, anthropicResp, http.StatusOK)
		return
	}

	sseWriter, err := NewSSEWriter(w)
	if err != nil {
		writeAPIError(ctx, w, apierr.Wrap(apierr.APIError, "init sse writer", err))
		return
	}
	state := translate.NewStreamState(uuid.NewString(), model)
	streamErr := sseDataLines(resp.Body, func(raw []byte) bool {
		var ev openaiapi.StreamEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return true
		}
		for _, out := range state.HandleResponsesEvent(ev) {
			if writeErr := sseWriter.WriteTranslated(out); writeErr != nil {
				return false
			}
		}
		return true
	})
	if streamErr != nil {
		for _, out := range state.FailMidStream(apierr.Wrap(apierr.APIError, "downstream stream read failed", streamErr)) {
			_ = sseWriter.WriteTranslated(out)
		}
	}
}

func (h *MessagesHandler) dispatchChatCompletions(ctx context.Context, w http.ResponseWriter, client *clientcache.Client, req anthropicapi.Request, model string) {
	outReq, err := translate.ToChatCompletionsRequest(req, model)
	if err != nil {
		writeAPIError(ctx, w, err)
		return
	}

	resp, err := CallChatCompletionsAPI(ctx, client, outReq)
	if err != nil {
		writeAPIError(ctx, w, err)
		return
	}
	defer resp.Body.Close()

	if !req.Stream {
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			writeAPIError(ctx, w, apierr.Wrap(apierr.APIError, "read chat completions reply", readErr))
			return
		}
		var downstream openaiapi.ChatResponse
		if decErr := json.Unmarshal(raw, &downstream); decErr != nil {
			writeAPIError(ctx, w, apierr.Wrap(apierr.APIError, "decode chat completions reply", decErr))
			return
		}
		anthropicResp, convErr := translate.FromChatCompletionResponse(raw, &downstream, model, uuid.NewString())
		if convErr != nil {
			writeAPIError(ctx, w, convErr)
			return
		}
		writeJSON(ctx, w, anthropicResp, http.StatusOK)
		return
	}

	sseWriter, err := NewSSEWriter(w)
	if err != nil {
		writeAPIError(ctx, w, apierr.Wrap(apierr.APIError, "init sse writer", err))
		return
	}
	state := translate.NewStreamState(uuid.NewString(), model)
	streamErr := sseDataLines(resp.Body, func(raw []byte) bool {
		var chunk openaiapi.ChatStreamChunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return true
		}
		for _, out := range state.HandleChatChunk(raw, chunk) {
			if writeErr := sseWriter.WriteTranslated(out); writeErr != nil {
				return false
			}
		}
		return true
	})
	if streamErr != nil {
		for _, out := range state.FailMidStream(apierr.Wrap(apierr.APIError, "downstream stream read failed", streamErr)) {
			_ = sseWriter.WriteTranslated(out)
		}
	}
}
