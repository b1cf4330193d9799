// Package routing implements the ordered override-rule evaluator that
// turns (headers, body) into a RouteDecision (spec.md §4.2).
package routing

import (
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/nilsecker/anthrogate/internal/apierr"
	"github.com/nilsecker/anthrogate/internal/config"
)

// Decision is the outcome of one routing pass.
type Decision struct {
	ProviderName   string
	Adapter        config.AdapterKind
	EffectiveModel string
	Provider       config.ProviderConfig
}

// Decide walks cfg.Overrides in order, resolves the provider/model/config
// patch, and returns both the RouteDecision and the body with the
// winning rule's config patch applied. Decide is a pure function of its
// inputs (spec.md §8: "routing determinism").
func Decide(headers http.Header, body []byte, cfg *config.Config) (Decision, []byte, error) {
	var matchedProvider, matchedModel string
	var matchedPatch config.ConfigPatch

	for _, rule := range cfg.Overrides {
		if predicatesMatch(rule.When, headers, body) {
			matchedProvider = rule.Provider
			matchedModel = rule.Model
			matchedPatch = rule.Config
			break
		}
	}

	bodyModel := gjson.GetBytes(body, "model").String()

	providerName := matchedProvider
	suffix := bodyModel
	prefix, rest, hasPrefix := splitProviderPrefix(bodyModel)
	if hasPrefix {
		suffix = rest
	}
	if providerName == "" {
		if hasPrefix {
			providerName = prefix
		} else {
			providerName = "anthropic"
		}
	}

	provider, ok := cfg.Providers[providerName]
	if !ok {
		return Decision{}, nil, apierr.New(apierr.InvalidRequest, "unknown provider: "+providerName)
	}

	effectiveModel := matchedModel
	if effectiveModel == "" {
		effectiveModel = suffix
	}
	if effectiveModel == "" {
		effectiveModel = bodyModel
	}

	patched := body
	if len(matchedPatch) > 0 {
		var err error
		patched, err = applyPatch(body, matchedPatch)
		if err != nil {
			return Decision{}, nil, err
		}
	}

	return Decision{
		ProviderName:   providerName,
		Adapter:        provider.Adapter,
		EffectiveModel: effectiveModel,
		Provider:       provider,
	}, patched, nil
}

// splitProviderPrefix splits "provider/model" into its two halves. A
// model name with no slash yields ok=false.
func splitProviderPrefix(model string) (prefix, rest string, ok bool) {
	idx := strings.IndexByte(model, '/')
	if idx < 0 {
		return "", "", false
	}
	return model[:idx], model[idx+1:], true
}

func predicatesMatch(when config.WhenPredicates, headers http.Header, body []byte) bool {
	if when.SystemRegex != "" && !systemRegexMatches(when.SystemRegex, when.CaseSensitive, body) {
		return false
	}
	if when.UserRegex != "" && !userRegexMatches(when.UserRegex, when.CaseSensitive, body) {
		return false
	}
	if when.ModelRegex != "" && !modelRegexMatches(when.ModelRegex, when.CaseSensitive, body) {
		return false
	}
	if when.HasTool != "" && !hasTool(when.HasTool, body) {
		return false
	}
	for name, want := range when.Headers {
		if headers.Get(name) != want {
			return false
		}
	}
	return true
}

// compileSearch compiles pattern for a `search` (not `fullmatch`) against
// text. A pattern that fails to compile makes the predicate non-matching
// without aborting the request (spec.md §4.2, flagged as a questionable
// but preserved behavior in spec.md §9).
func compileSearch(pattern string, caseSensitive bool) (*regexp.Regexp, bool) {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}
	return re, true
}

func systemRegexMatches(pattern string, caseSensitive bool, body []byte) bool {
	re, ok := compileSearch(pattern, caseSensitive)
	if !ok {
		return false
	}
	return re.MatchString(concatenatedSystemText(body))
}

func concatenatedSystemText(body []byte) string {
	system := gjson.GetBytes(body, "system")
	if !system.Exists() {
		return ""
	}
	if system.Type == gjson.String {
		return system.String()
	}
	var b strings.Builder
	for _, block := range system.Array() {
		if block.Get("type").String() == "text" {
			b.WriteString(block.Get("text").String())
		}
	}
	return b.String()
}

func userRegexMatches(pattern string, caseSensitive bool, body []byte) bool {
	re, ok := compileSearch(pattern, caseSensitive)
	if !ok {
		return false
	}
	return re.MatchString(lastUserMessageText(body))
}

// lastUserMessageText returns the text content of the last message with
// role "user". Earlier user turns are ignored (spec.md §4.2).
func lastUserMessageText(body []byte) string {
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return ""
	}
	arr := messages.Array()
	for i := len(arr) - 1; i >= 0; i-- {
		msg := arr[i]
		if msg.Get("role").String() != "user" {
			continue
		}
		return messageText(msg)
	}
	return ""
}

func messageText(msg gjson.Result) string {
	content := msg.Get("content")
	if content.Type == gjson.String {
		return content.String()
	}
	if !content.IsArray() {
		return ""
	}
	var b strings.Builder
	for _, block := range content.Array() {
		if block.Get("type").String() == "text" {
			b.WriteString(block.Get("text").String())
		}
	}
	return b.String()
}

func modelRegexMatches(pattern string, caseSensitive bool, body []byte) bool {
	re, ok := compileSearch(pattern, caseSensitive)
	if !ok {
		return false
	}
	return re.MatchString(gjson.GetBytes(body, "model").String())
}

func hasTool(name string, body []byte) bool {
	tools := gjson.GetBytes(body, "tools")
	if !tools.IsArray() {
		return false
	}
	for _, tool := range tools.Array() {
		if tool.Get("name").String() == name {
			return true
		}
	}
	return false
}

// applyPatch writes every leaf of patch into body at its dotted path,
// gated by that leaf's WhenCondition evaluated against the *pre-patch*
// state (spec.md §4.2: "conditions reference the pre-patch state"). A
// patch never deletes a field.
func applyPatch(body []byte, patch config.ConfigPatch) ([]byte, error) {
	out := body
	for _, leaf := range patch.Leaves() {
		current := gjson.GetBytes(body, leaf.Path)
		if !conditionHolds(leaf.Entry.When, current) {
			continue
		}
		var err error
		out, err = sjson.SetBytes(out, leaf.Path, leaf.Entry.Value)
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidRequest, "apply config patch path "+leaf.Path, err)
		}
	}
	return out, nil
}

func conditionHolds(cond *config.WhenCondition, current gjson.Result) bool {
	if cond == nil {
		return true
	}
	currentVal := gjsonToAny(current)
	switch cond.Kind {
	case config.CurrentIn:
		return containsStructural(cond.List, currentVal)
	case config.CurrentNotIn:
		return !containsStructural(cond.List, currentVal)
	case config.CurrentEquals:
		return structuralEqual(cond.Value, currentVal)
	case config.CurrentNEquals:
		return !structuralEqual(cond.Value, currentVal)
	default:
		return true
	}
}

// gjsonToAny converts a gjson.Result to the same any representation a
// json.Unmarshal of that value would produce (nil for missing/null), so
// it compares structurally against patch-config literals parsed from
// YAML/JSON.
func gjsonToAny(r gjson.Result) any {
	if !r.Exists() {
		return nil
	}
	return r.Value()
}

func containsStructural(list []any, val any) bool {
	for _, item := range list {
		if structuralEqual(item, val) {
			return true
		}
	}
	return false
}

// structuralEqual compares two decoded-JSON values structurally. Numbers
// are compared numerically (gjson and YAML/JSON decoding may otherwise
// produce int vs float64 for the same literal).
func structuralEqual(a, b any) bool {
	an, aIsNum := asFloat(a)
	bn, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		return an == bn
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
