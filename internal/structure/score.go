// Package structure scores post bodies for the elements AI Overviews quote
// and inserts the blocks a structure experiment adds.
package structure

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Element names.
const (
	DefinitionBlock  = "definition block"
	NumberedList     = "numbered list"
	BulletedList     = "bulleted list"
	QuestionHeadings = "question headings"
	FAQBlock         = "faq block"
	HowToSchema      = "howto schema"
	Table            = "table"
	Citations        = "external citations"
)

// faqMarker is the Gutenberg comment of the Rank Math FAQ block.
const faqMarker = "wp:rank-math/faq-block"

var howToPattern = regexp.MustCompile(`"@type"\s*:\s*"HowTo"`)

type element struct {
	name        string
	description string
	points      int
	present     func(doc *goquery.Document, raw string, siteHost string) bool
}

var elements = []element{
	{DefinitionBlock, "Definition block near the top", 2, func(doc *goquery.Document, _, _ string) bool {
		return doc.Find("div.definition-block").Length() > 0
	}},
	{NumberedList, "At least one numbered list", 1, func(doc *goquery.Document, _, _ string) bool {
		return doc.Find("ol li").Length() > 0
	}},
	{BulletedList, "At least one bulleted list", 1, func(doc *goquery.Document, _, _ string) bool {
		return doc.Find("ul li").Length() > 0
	}},
	{QuestionHeadings, "H2 headings phrased as questions", 1, func(doc *goquery.Document, _, _ string) bool {
		found := false
		doc.Find("h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = strings.HasSuffix(strings.TrimSpace(s.Text()), "?")
			return !found
		})
		return found
	}},
	{FAQBlock, "Rank Math FAQ schema block", 2, func(_ *goquery.Document, raw, _ string) bool {
		return strings.Contains(raw, faqMarker)
	}},
	{HowToSchema, "HowTo schema markup", 1, func(_ *goquery.Document, raw, _ string) bool {
		return howToPattern.MatchString(raw)
	}},
	{Table, "HTML table with data", 1, func(doc *goquery.Document, _, _ string) bool {
		return doc.Find("table td").Length() > 0
	}},
	{Citations, "Links to external sources", 1, func(doc *goquery.Document, _, siteHost string) bool {
		found := false
		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			u, err := url.Parse(href)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return true
			}
			found = !sameSite(u.Hostname(), siteHost)
			return !found
		})
		return found
	}},
}

// MaxScore is the score of a page with every element present.
var MaxScore = func() int {
	total := 0
	for _, e := range elements {
		total += e.points
	}
	return total
}()

// ElementResult is the check result of one element.
type ElementResult struct {
	Name        string
	Description string
	Points      int
	Present     bool
}

// Score is the structure breakdown of one post body.
type Score struct {
	Total    int
	Max      int
	Elements []ElementResult
}

// Missing lists the names of absent elements in check order.
func (s *Score) Missing() []string {
	return s.names(false)
}

// Present lists the names of found elements in check order.
func (s *Score) Present() []string {
	return s.names(true)
}

func (s *Score) names(present bool) []string {
	var out []string
	for _, e := range s.Elements {
		if e.Present == present {
			out = append(out, e.Name)
		}
	}
	return out
}

// NeedsOptimization reports whether the score is below the threshold.
func (s *Score) NeedsOptimization(threshold int) bool {
	return s.Total < threshold
}

// Scorer checks post bodies. Links to siteHost do not count as citations.
type Scorer struct {
	siteHost string
}

// NewScorer returns a Scorer for the site at siteURL.
func NewScorer(siteURL string) *Scorer {
	host := siteURL
	if u, err := url.Parse(siteURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return &Scorer{siteHost: strings.ToLower(host)}
}

// Score parses body and checks every element.
func (sc *Scorer) Score(body string) (*Score, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse post body: %w", err)
	}

	score := &Score{Max: MaxScore, Elements: make([]ElementResult, 0, len(elements))}
	for _, e := range elements {
		present := e.present(doc, body, sc.siteHost)
		if present {
			score.Total += e.points
		}
		score.Elements = append(score.Elements, ElementResult{
			Name:        e.name,
			Description: e.description,
			Points:      e.points,
			Present:     present,
		})
	}
	return score, nil
}

func sameSite(host, siteHost string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	siteHost = strings.TrimPrefix(siteHost, "www.")
	return siteHost != "" && (host == siteHost || strings.HasSuffix(host, "."+siteHost))
}
