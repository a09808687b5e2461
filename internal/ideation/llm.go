package ideation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/ctr-optimizer/internal/llm"
	"github.com/jonathan/ctr-optimizer/internal/observability"
	"github.com/jonathan/ctr-optimizer/internal/prompts"
	"github.com/jonathan/ctr-optimizer/internal/schemas"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/sirupsen/logrus"
)

// maxBodyChars bounds how much of a post body is sent to the model.
const maxBodyChars = 6000

// LLMGenerator asks a language model for variants.
type LLMGenerator struct {
	client llm.Client
	count  int
	log    logrus.FieldLogger
}

// NewLLMGenerator returns a generator requesting count variants per page.
func NewLLMGenerator(client llm.Client, count int, log logrus.FieldLogger) *LLMGenerator {
	if count <= 0 {
		count = 5
	}
	if log == nil {
		log = observability.Discard()
	}
	return &LLMGenerator{client: client, count: count, log: log}
}

// GenerateVariants builds the prompt for the request's kind, calls the model and
// keeps the entries that pass schema validation and sanitation.
func (g *LLMGenerator) GenerateVariants(ctx context.Context, req Request) ([]types.Variant, error) {
	prompt, err := BuildPrompt(req, g.count)
	if err != nil {
		return nil, &Error{Message: "failed to build ideation prompt", Cause: err}
	}

	response, err := g.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, &Error{Message: "ideation request failed", Cause: err}
	}

	if err := schemas.ValidateVariants(response); err != nil {
		return nil, &Error{Message: "ideation response does not match schema", Cause: err}
	}

	var raw []types.Variant
	if err := json.Unmarshal([]byte(response), &raw); err != nil {
		return nil, &Error{Message: "failed to parse ideation response", Cause: err}
	}

	variants, discarded := Sanitize(raw, req.Kind)
	for _, d := range discarded {
		g.log.WithField("url", req.Opportunity.URL).WithError(d).Warn("discarding idea")
	}
	return variants, nil
}

// BuildPrompt fills the ideation template for the request's kind.
func BuildPrompt(req Request, count int) (string, error) {
	key := "title-variants"
	current := req.Current
	if req.Kind == types.KindStructure {
		key = "structure-variants"
		if len(current) > maxBodyChars {
			current = current[:maxBodyChars] + "…"
		}
	}

	template, err := prompts.Get(prompts.IdeationFile, key)
	if err != nil {
		return "", err
	}

	o := req.Opportunity
	data := map[string]string{
		"URL":         o.URL,
		"Current":     current,
		"Position":    fmt.Sprintf("%.1f", o.Position),
		"Impressions": fmt.Sprintf("%d", o.Impressions),
		"ActualCTR":   fmt.Sprintf("%.2f%%", o.ActualCTR*100),
		"ExpectedCTR": fmt.Sprintf("%.2f%%", o.ExpectedCTR*100),
		"Learnings":   formatLearnings(req.Learnings),
		"Count":       fmt.Sprintf("%d", count),
	}
	if req.Kind == types.KindStructure {
		data["Present"] = listOrNone(req.Present)
		data["Missing"] = listOrNone(req.Missing)
	}
	return prompts.Format(template, data)
}

func formatLearnings(learnings []types.Learning) string {
	if len(learnings) == 0 {
		return "no experiments evaluated yet"
	}
	var sb strings.Builder
	for _, l := range learnings {
		sb.WriteString(fmt.Sprintf("- %s: %d experiments, %+.1f%% average CTR change\n", l.IdeaType, l.SampleCount, l.AvgCTRDelta*100))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
