package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode"
)

// AskJSON sends a prompt whose reply must be a single JSON object and decodes
// it into out. Decoding failures are reported as KindUnparsable with the raw
// reply attached.
func AskJSON(ctx context.Context, client Client, op, systemPrompt, userPrompt string, out any) error {
	raw, err := client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return err
	}
	return DecodeJSON(op, raw, out)
}

// DecodeJSON decodes the JSON object embedded in raw into out.
func DecodeJSON(op, raw string, out any) error {
	body, ok := ExtractJSON(raw)
	if !ok {
		return &CollaboratorError{Kind: KindUnparsable, Op: op, Raw: raw, Err: errors.New("no JSON object in reply")}
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return &CollaboratorError{Kind: KindUnparsable, Op: op, Raw: raw, Err: err}
	}
	return nil
}

// ExtractJSON returns the outermost {...} span of s, after stripping markdown fences.
func ExtractJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// ExtractCode returns the body of the first fenced block in response, or
// the whole trimmed response when there is none. The language tag on the
// opening fence line is dropped.
func ExtractCode(response string) string {
	start := strings.Index(response, "```")
	if start == -1 {
		return strings.TrimSpace(response)
	}
	body := response[start+3:]
	line, rest, _ := strings.Cut(body, "\n")
	fields := strings.Fields(line)
	switch {
	case len(fields) == 0, len(fields) == 1 && isWord(fields[0]):
		body = rest
	case isFenceTag(fields[0]):
		body = strings.TrimSpace(line)[len(fields[0]):] + "\n" + rest
	}
	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// isFenceTag reports whether s looks like a fence language tag such as go or golang.
func isFenceTag(s string) bool {
	switch strings.ToLower(s) {
	case "go", "golang":
		return true
	}
	return false
}

func isWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '-' {
			return false
		}
	}
	return true
}
