package llm

import "strings"

// CleanJSONBlock strips markdown fences and chatty text around a JSON payload.
// Models often wrap JSON in ```json ... ``` or add a preamble even when told not to.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip a language identifier on the first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.ContainsAny(firstLine, "{[") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}

	var extracted string
	if text[start] == '{' {
		extracted = extractJSONObject(text[start:])
	} else {
		extracted = extractJSONArray(text[start:])
	}
	if extracted == "" {
		return text
	}
	return extracted
}

func extractJSONObject(text string) string {
	return extractBalanced(text, '{', '}')
}

func extractJSONArray(text string) string {
	return extractBalanced(text, '[', ']')
}

// extractBalanced returns the prefix of text from its opening delimiter to the
// matching close, ignoring delimiters inside JSON strings. It returns "" when
// text does not start with open or is unbalanced.
func extractBalanced(text string, openCh, closeCh byte) string {
	if len(text) == 0 || text[0] != openCh {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}
