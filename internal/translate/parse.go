package translate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// parseTranslations extracts an ordered list of want translated strings from
// an LLM response. The expected shape is a bare JSON array, but models drift:
// markdown code fences are stripped, a {"translations": [...]} wrapper is
// unwrapped, and an object keyed by index ("0" or "[0]", zero- or one-based)
// is rebuilt positionally. A position whose value is a non-string or empty
// after trimming is returned as "" (missing), not as an error.
//
// An unrecognisable shape or a count mismatch is an error; the caller treats
// that as a failed attempt.
func parseTranslations(content string, want int) ([]string, error) {
	cleaned := stripMarkdown(content)

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &arr); err == nil {
		return fromArray(arr, want)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil, fmt.Errorf("response is neither array nor object")
	}

	if raw, ok := obj["translations"]; ok {
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, fmt.Errorf("translations field is not an array")
		}
		return fromArray(arr, want)
	}

	slog.Warn("translation response keyed by index, adapting", "keys", len(obj))
	return fromIndexedObject(obj, want)
}

// fromArray converts raw array items to strings, "" for missing values.
func fromArray(arr []json.RawMessage, want int) ([]string, error) {
	if len(arr) != want {
		return nil, fmt.Errorf("got %d translations, want %d", len(arr), want)
	}
	out := make([]string, want)
	for i, raw := range arr {
		out[i] = asString(raw)
	}
	return out, nil
}

// fromIndexedObject rebuilds positional order from index-keyed values.
// Both bare ("3") and bracketed ("[3]") keys are accepted, and a uniformly
// one-based key set is shifted down.
func fromIndexedObject(obj map[string]json.RawMessage, want int) ([]string, error) {
	byIndex := make(map[int]json.RawMessage, len(obj))
	minIdx := -1
	for k, raw := range obj {
		key := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(k), "["), "]")
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("non-index key %q in response object", k)
		}
		byIndex[idx] = raw
		if minIdx < 0 || idx < minIdx {
			minIdx = idx
		}
	}
	if len(byIndex) != want {
		return nil, fmt.Errorf("got %d indexed translations, want %d", len(byIndex), want)
	}

	offset := 0
	if minIdx == 1 {
		offset = 1
	}

	out := make([]string, want)
	for i := range want {
		raw, ok := byIndex[i+offset]
		if !ok {
			return nil, fmt.Errorf("missing index %d in response object", i+offset)
		}
		out[i] = asString(raw)
	}
	return out, nil
}

// asString decodes raw as a trimmed string, returning "" for non-string or
// blank values.
func asString(raw []byte) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
