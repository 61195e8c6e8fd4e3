package ai

import "strings"

// ExtractJSONBlock pulls the JSON payload out of a model answer. It
// prefers a fenced ```json block; otherwise it takes the span from the
// first '{' to the last '}'. Returns "" when no JSON-looking span is
// present.
func ExtractJSONBlock(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

// StripJSONComments removes the // and /* */ comments some models wrap
// around their JSON output. Only line-start // comments are dropped so
// that URLs inside string values survive.
func StripJSONComments(text string) string {
	// Block comments first.
	for {
		start := strings.Index(text, "/*")
		if start < 0 {
			break
		}
		end := strings.Index(text[start:], "*/")
		if end < 0 {
			text = text[:start]
			break
		}
		text = text[:start] + text[start+end+2:]
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
