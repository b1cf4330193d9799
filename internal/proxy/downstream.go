package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nilsecker/anthrogate/internal/apierr"
	"github.com/nilsecker/anthrogate/internal/clientcache"
	"github.com/nilsecker/anthrogate/internal/openaiapi"
)

// callDownstream POSTs body to client's base URL at path, with the
// provider's API key attached, and returns the raw response. A 4xx or
// 5xx response is translated into the taxonomy's apierr.Error (spec.md §7).
func callDownstream(ctx context.Context, client *clientcache.Client, path string, body []byte) (*http.Response, error) {
	url := strings.TrimRight(client.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Wrap(apierr.APIError, "build downstream request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if client.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+client.APIKey)
	}

	resp, err := client.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierr.Wrap(apierr.Timeout, "downstream request timed out", err)
		}
		return nil, apierr.Wrap(apierr.APIError, "downstream request failed", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		kind := apierr.FromHTTPStatus(resp.StatusCode)
		return nil, apierr.New(kind, fmt.Sprintf("downstream returned %d: %s", resp.StatusCode, string(respBody)))
	}

	return resp, nil
}

// CallResponsesAPI invokes the Responses API (openai adapter).
func CallResponsesAPI(ctx context.Context, client *clientcache.Client, req *openaiapi.Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.InvalidRequest, "encode responses request", err)
	}
	return callDownstream(ctx, client, "/responses", body)
}

// CallChatCompletionsAPI invokes the Chat Completions API
// (openai-compatible adapter).
func CallChatCompletionsAPI(ctx context.Context, client *clientcache.Client, req *openaiapi.ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.InvalidRequest, "encode chat completions request", err)
	}
	return callDownstream(ctx, client, "/chat/completions", body)
}

// sseDataLines reads an SSE body and yields the JSON payload of each
// "data: " line, skipping blank lines, comments, and the "[DONE]"
// sentinel the Chat Completions API terminates a stream with.
func sseDataLines(body io.Reader, yield func(raw []byte) bool) error {
	scanner := lineScanner(bufio.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		if !yield([]byte(payload)) {
			return nil
		}
	}
	return scanner.Err()
}
