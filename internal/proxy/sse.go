package proxy

import (
	"bufio"
	"fmt"
	"net/http"
	"strings"

	"github.com/nilsecker/anthrogate/internal/translate"
)

// Pre-allocated byte slices for SSE formatting, adapted from the
// teacher's data-only writer: the Anthropic framing additionally
// requires a named "event:" line ahead of each "data:" line.
var (
	sseEventPrefix = []byte("event: ")
	sseDataPrefix  = []byte("data: ")
	sseTerminator  = []byte("\n\n")
)

// SSEWriter emits Anthropic-format server-sent events: an "event: <type>"
// line followed by a "data: <json>" line, terminated by a blank line.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter validates flushing support and sets the SSE response
// headers. Returns an error if w doesn't implement http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent writes one named SSE event carrying pre-encoded JSON data.
func (s *SSEWriter) WriteEvent(event SSEEventLike) error {
	if _, err := s.w.Write(sseEventPrefix); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte(event.EventName())); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n")); err != nil {
		return err
	}
	if _, err := s.w.Write(sseDataPrefix); err != nil {
		return err
	}
	if _, err := s.w.Write(escapeNewlines(event.EventData())); err != nil {
		return err
	}
	if _, err := s.w.Write(sseTerminator); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SSEEventLike is satisfied by translate.SSEEvent; named so this package
// doesn't need to import translate's concrete type in every signature.
type SSEEventLike interface {
	EventName() string
	EventData() []byte
}

// sseEventAdapter adapts translate.SSEEvent to SSEEventLike.
type sseEventAdapter translate.SSEEvent

func (e sseEventAdapter) EventName() string { return e.Event }
func (e sseEventAdapter) EventData() []byte { return e.Data }

// WriteTranslated writes a translate.SSEEvent.
func (s *SSEWriter) WriteTranslated(ev translate.SSEEvent) error {
	return s.WriteEvent(sseEventAdapter(ev))
}

func escapeNewlines(data []byte) []byte {
	if !strings.Contains(string(data), "\n") {
		return data
	}
	return []byte(strings.ReplaceAll(string(data), "\n", "\ndata: "))
}

// lineScanner returns a buffered scanner over an SSE byte stream body,
// tuned with a larger buffer since downstream tool-call argument deltas
// can be long lines.
func lineScanner(r *bufio.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	return scanner
}
