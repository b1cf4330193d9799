package filter_test

import (
	"encoding/json"
	"testing"

	"github.com/nilsecker/anthrogate/internal/config"
	"github.com/nilsecker/anthrogate/internal/filter"
)

func normalizeJSON(t *testing.T, s string) string {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("invalid JSON: %v\nJSON: %s", err, s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func assertJSONEqual(t *testing.T, got, want string) {
	t.Helper()
	gotNorm := normalizeJSON(t, got)
	wantNorm := normalizeJSON(t, want)
	if gotNorm != wantNorm {
		t.Errorf("JSON mismatch:\ngot:  %s\nwant: %s", gotNorm, wantNorm)
	}
}

// spec.md §8 scenario 1: tool stripping with default policy.
func TestFilterTools_DefaultPolicyStrips(t *testing.T) {
	body := `{"model":"claude-3","tools":[{"name":"WebSearch"},{"name":"Bash"}]}`
	out, err := filter.FilterTools([]byte(body), config.DefaultToolPolicy())
	if err != nil {
		t.Fatalf("FilterTools: %v", err)
	}
	assertJSONEqual(t, string(out), `{"model":"claude-3","tools":[{"name":"Bash"}]}`)
}

// spec.md §8 scenario 2: stripping to empty removes the tools key
// entirely, and the match is case-insensitive.
func TestFilterTools_EmptyResultDropsKey(t *testing.T) {
	body := `{"model":"claude-3","tools":[{"name":"websearch"}]}`
	out, err := filter.FilterTools([]byte(body), config.DefaultToolPolicy())
	if err != nil {
		t.Fatalf("FilterTools: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if _, ok := decoded["tools"]; ok {
		t.Errorf("expected tools key removed, got %s", out)
	}
}

func TestFilterTools_NoToolsField(t *testing.T) {
	body := `{"model":"claude-3"}`
	out, err := filter.FilterTools([]byte(body), config.DefaultToolPolicy())
	if err != nil {
		t.Fatalf("FilterTools: %v", err)
	}
	assertJSONEqual(t, string(out), body)
}

func TestFilterTools_DoesNotMutateCaller(t *testing.T) {
	body := []byte(`{"model":"claude-3","tools":[{"name":"WebSearch"},{"name":"Bash"}]}`)
	original := string(body)
	if _, err := filter.FilterTools(body, config.DefaultToolPolicy()); err != nil {
		t.Fatalf("FilterTools: %v", err)
	}
	if string(body) != original {
		t.Errorf("caller's body mutated: got %s want %s", body, original)
	}
}

// spec.md §8: idempotence of filters.
func TestFilterTools_Idempotent(t *testing.T) {
	body := []byte(`{"model":"claude-3","tools":[{"name":"WebSearch"},{"name":"Bash"},{"name":"WebFetch"}]}`)
	policy := config.DefaultToolPolicy()

	once, err := filter.FilterTools(body, policy)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, err := filter.FilterTools(once, policy)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	assertJSONEqual(t, string(once), string(twice))
}
