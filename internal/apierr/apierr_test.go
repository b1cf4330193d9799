package apierr_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/nilsecker/anthrogate/internal/apierr"
)

func TestKind_Status(t *testing.T) {
	cases := map[apierr.Kind]int{
		apierr.InvalidRequest: http.StatusBadRequest,
		apierr.Authentication: http.StatusUnauthorized,
		apierr.Permission:     http.StatusForbidden,
		apierr.NotFound:       http.StatusNotFound,
		apierr.RateLimit:      http.StatusTooManyRequests,
		apierr.APIError:       http.StatusBadGateway,
		apierr.Overloaded:     529,
		apierr.Timeout:        http.StatusGatewayTimeout,
	}
	for kind, want := range cases {
		if got := kind.Status(); got != want {
			t.Errorf("%s.Status() = %d, want %d", kind, got, want)
		}
	}
}

func TestFromHTTPStatus(t *testing.T) {
	cases := map[int]apierr.Kind{
		http.StatusUnauthorized:     apierr.Authentication,
		http.StatusForbidden:        apierr.Permission,
		http.StatusNotFound:         apierr.NotFound,
		http.StatusTooManyRequests:  apierr.RateLimit,
		529:                         apierr.Overloaded,
		http.StatusInternalServerError: apierr.APIError,
		http.StatusBadGateway:       apierr.APIError,
		http.StatusBadRequest:       apierr.InvalidRequest,
		http.StatusUnprocessableEntity: apierr.InvalidRequest,
	}
	for status, want := range cases {
		if got := apierr.FromHTTPStatus(status); got != want {
			t.Errorf("FromHTTPStatus(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestError_MessageIncludesCauseWhenWrapped(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := apierr.Wrap(apierr.APIError, "downstream unreachable", cause)
	if !errors.Is(err, cause) {
		t.Error("Wrap must preserve the cause for errors.Is/errors.Unwrap")
	}
	msg := err.Error()
	if !strings.Contains(msg, "downstream unreachable") || !strings.Contains(msg, "connection refused") {
		t.Errorf("Error() = %q, want it to mention both the message and the cause", msg)
	}
}

func TestError_New_HasNoCause(t *testing.T) {
	err := apierr.New(apierr.InvalidRequest, "missing model field")
	if err.Unwrap() != nil {
		t.Errorf("New() must not carry a cause, got %v", err.Unwrap())
	}
}

func TestError_ToEnvelope(t *testing.T) {
	err := apierr.New(apierr.RateLimit, "too many requests")
	env := err.ToEnvelope()
	if env.Type != "error" {
		t.Errorf("envelope type = %q, want error", env.Type)
	}
	if env.Error.Type != string(apierr.RateLimit) {
		t.Errorf("envelope error.type = %q, want %q", env.Error.Type, apierr.RateLimit)
	}
	if env.Error.Message != "too many requests" {
		t.Errorf("envelope error.message = %q", env.Error.Message)
	}
}
