package structure

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/ctr-optimizer/internal/types"
)

// Idea types a structure experiment can apply.
const (
	IdeaDefinition = "definition-block"
	IdeaFAQ        = "faq-block"
)

var (
	paragraphPattern  = regexp.MustCompile(`(?s)<p[^>]*>(.*?)</p>`)
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	conclusionPattern = regexp.MustCompile(`(?i)<h2[^>]*>[^<]*(conclusion|final|summary|wrap|wrapping up)[^<]*</h2>`)
)

// Apply inserts the variant's block into body according to its idea type.
// Edits are textual so Gutenberg block comments survive untouched.
func Apply(body string, v types.Variant) (string, error) {
	switch v.IdeaType {
	case IdeaDefinition:
		return InsertDefinition(body, v.Content), nil
	case IdeaFAQ:
		return InsertFAQ(body, v.Content), nil
	default:
		return "", fmt.Errorf("unsupported structure idea type %q", v.IdeaType)
	}
}

// InsertDefinition places block right after the first paragraph that has text.
func InsertDefinition(body, block string) string {
	pos := 0
	for _, loc := range paragraphPattern.FindAllStringSubmatchIndex(body, -1) {
		inner := body[loc[2]:loc[3]]
		if strings.TrimSpace(tagPattern.ReplaceAllString(inner, "")) != "" {
			pos = loc[1]
			break
		}
	}
	return body[:pos] + "\n\n" + block + "\n\n" + body[pos:]
}

// InsertFAQ places an FAQ section before an existing FAQ block, else before a
// closing heading such as "Conclusion", else before the last </div>, else at the end.
func InsertFAQ(body, block string) string {
	pos := faqPosition(body)
	section := "\n\n<h2>Frequently Asked Questions</h2>\n\n" + block + "\n\n"
	return body[:pos] + section + body[pos:]
}

func faqPosition(body string) int {
	if i := strings.Index(body, "<!-- "+faqMarker); i >= 0 {
		return i
	}
	if loc := conclusionPattern.FindStringIndex(body); loc != nil {
		return loc[0]
	}
	if i := strings.LastIndex(body, "</div>"); i >= 0 {
		return i
	}
	return len(body)
}
