// Package filter implements the stateless transforms applied to an
// inbound request body before routing: tool stripping and system-prompt
// clause removal (spec.md §4.1). Both operate directly on the raw JSON
// bytes via gjson/sjson so that untouched fields survive byte-for-byte,
// which is what spec.md's byte-stability property requires.
package filter

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/nilsecker/anthrogate/internal/config"
)

// FilterTools removes every tool whose name matches (case-folded) one of
// policy's restricted names. It never mutates body; it returns a new
// byte slice, or the same bytes if there was nothing to remove. If the
// resulting list is empty, the "tools" field is removed entirely.
func FilterTools(body []byte, policy config.ToolPolicyConfig) ([]byte, error) {
	tools := gjson.GetBytes(body, "tools")
	if !tools.Exists() || !tools.IsArray() {
		return body, nil
	}

	restricted := make(map[string]struct{}, len(policy.RestrictedToolNames))
	for _, name := range policy.RestrictedToolNames {
		restricted[strings.ToLower(name)] = struct{}{}
	}

	var kept []string
	for _, tool := range tools.Array() {
		name := tool.Get("name").String()
		if _, blocked := restricted[strings.ToLower(name)]; blocked {
			continue
		}
		kept = append(kept, tool.Raw)
	}

	if len(kept) == 0 {
		return sjson.DeleteBytes(body, "tools")
	}

	rawArray := "[" + strings.Join(kept, ",") + "]"
	return sjson.SetRawBytes(body, "tools", []byte(rawArray))
}
