package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nilsecker/anthrogate/internal/apierr"
)

// writeJSON writes a JSON response with the given status code. Headers
// and status are written before encoding to avoid buffering the whole
// body; an encode failure after that point can only be logged.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeAPIError renders err as the Anthropic-format error envelope at
// its taxonomy-assigned HTTP status (spec.md §7). Errors not already
// tagged with apierr.Error are surfaced as api_error.
func writeAPIError(ctx context.Context, w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		apiErr = apierr.Wrap(apierr.APIError, "internal error", err)
	}
	writeJSON(ctx, w, apiErr.ToEnvelope(), apiErr.Kind.Status())
}
