// Package ideation produces candidate titles and structure blocks for an opportunity.
package ideation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/ctr-optimizer/internal/types"
)

// Request is what a generator knows about the page it writes for.
type Request struct {
	Kind        types.Kind
	Opportunity types.Opportunity
	// Current is the live title or post body.
	Current   string
	Learnings []types.Learning
	// Present and Missing list structure elements, for structure requests.
	Present []string
	Missing []string
}

// Generator returns candidate variants. An empty slice with a nil error means
// "no ideas" and the caller skips the page.
type Generator interface {
	GenerateVariants(ctx context.Context, req Request) ([]types.Variant, error)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// maxTitleLength is the longest title kept; Google truncates around 60 characters.
const maxTitleLength = 70

// Sanitize trims and normalizes raw variants and discards the unusable ones.
// Each discarded entry is reported as a *MalformedIdeaError; the rest are returned in order.
func Sanitize(raw []types.Variant, kind types.Kind) ([]types.Variant, []error) {
	var (
		out  []types.Variant
		errs []error
		seen = make(map[string]bool)
	)

	for i, v := range raw {
		content := strings.TrimSpace(v.Content)
		if kind == types.KindTitle {
			content = strings.Trim(content, "\"'“”")
			content = strings.TrimSpace(content)
		}
		ideaType := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(v.IdeaType)), "-"), "-")

		var reason string
		switch {
		case content == "":
			reason = "empty content"
		case ideaType == "":
			reason = "missing idea type"
		case kind == types.KindTitle && strings.ContainsAny(content, "\r\n"):
			reason = "title spans multiple lines"
		case kind == types.KindTitle && len([]rune(content)) > maxTitleLength:
			reason = fmt.Sprintf("title longer than %d characters", maxTitleLength)
		case seen[strings.ToLower(content)]:
			reason = "duplicate content"
		}
		if reason != "" {
			errs = append(errs, &MalformedIdeaError{Index: i, Reason: reason})
			continue
		}

		seen[strings.ToLower(content)] = true
		out = append(out, types.Variant{
			Content:   content,
			IdeaType:  ideaType,
			Rationale: strings.TrimSpace(v.Rationale),
		})
	}
	return out, errs
}
