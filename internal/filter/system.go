package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/nilsecker/anthrogate/internal/config"
)

// FilterSystemClauses applies filters, in order, to the top-level
// "system" field of body. If "system" is a string, each filter edits the
// string directly. If "system" is an array, each filter edits only the
// "text" field of elements whose "type" is "text"; other block types are
// left untouched. If every text block ends up empty, the "system" field
// is removed entirely. The operation is idempotent.
func FilterSystemClauses(body []byte, filters []config.SystemClauseFilter) ([]byte, error) {
	system := gjson.GetBytes(body, "system")
	if !system.Exists() {
		return body, nil
	}

	if system.Type == gjson.String {
		filtered := applyAll(system.String(), filters)
		if strings.TrimSpace(filtered) == "" {
			return sjson.DeleteBytes(body, "system")
		}
		return sjson.SetBytes(body, "system", filtered)
	}

	if !system.IsArray() {
		return body, nil
	}

	blocks := system.Array()
	rawBlocks := make([]string, len(blocks))
	anyNonEmpty := false
	for i, block := range blocks {
		if block.Get("type").String() != "text" {
			rawBlocks[i] = block.Raw
			anyNonEmpty = true
			continue
		}
		filteredText := applyAll(block.Get("text").String(), filters)
		newBlock, err := sjson.SetRaw(block.Raw, "text", mustQuote(filteredText))
		if err != nil {
			return nil, fmt.Errorf("filter system block %d: %w", i, err)
		}
		rawBlocks[i] = newBlock
		if strings.TrimSpace(filteredText) != "" {
			anyNonEmpty = true
		}
	}

	if !anyNonEmpty {
		return sjson.DeleteBytes(body, "system")
	}

	rawArray := "[" + strings.Join(rawBlocks, ",") + "]"
	return sjson.SetRawBytes(body, "system", []byte(rawArray))
}

// applyAll runs every filter, in order, over text. Literal filters strip
// every case-insensitive (or case-sensitive) occurrence of the substring;
// regex filters strip every match of the compiled pattern. Only the
// matched span is removed - surrounding whitespace is left verbatim.
func applyAll(text string, filters []config.SystemClauseFilter) string {
	for _, f := range filters {
		if f.IsRegex {
			text = applyRegex(text, f)
		} else {
			text = applyLiteral(text, f)
		}
	}
	return text
}

func applyRegex(text string, f config.SystemClauseFilter) string {
	pattern := f.Pattern
	if !f.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		// Config loading does not check regex syntax; a pattern that
		// fails to compile never matches and leaves the text untouched.
		return text
	}
	return re.ReplaceAllString(text, "")
}

func applyLiteral(text string, f config.SystemClauseFilter) string {
	if f.Pattern == "" {
		return text
	}
	if f.CaseSensitive {
		return strings.ReplaceAll(text, f.Pattern, "")
	}
	return replaceAllFold(text, f.Pattern)
}

// replaceAllFold removes every case-insensitive occurrence of needle from
// s without allocating a regexp.
func replaceAllFold(s, needle string) string {
	if needle == "" {
		return s
	}
	lowerS := strings.ToLower(s)
	lowerNeedle := strings.ToLower(needle)

	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for {
		idx := strings.Index(lowerS[i:], lowerNeedle)
		if idx < 0 {
			b.WriteString(s[i:])
			break
		}
		matchStart := i + idx
		b.WriteString(s[i:matchStart])
		i = matchStart + len(needle)
	}
	return b.String()
}

func mustQuote(s string) string {
	quoted, _ := sjson.Set("", "x", s)
	return gjson.Get(quoted, "x").Raw
}
