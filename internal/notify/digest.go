package notify

import (
	"embed"
	"fmt"
	"sync"

	"github.com/osteele/liquid"
)

//go:embed templates/*.liquid
var templateFS embed.FS

// Renderer turns run digests into messages using the embedded Liquid templates.
type Renderer struct {
	engine *liquid.Engine

	mu    sync.Mutex
	cache map[string]*liquid.Template
}

// NewRenderer creates a renderer with an empty template cache.
func NewRenderer() *Renderer {
	return &Renderer{
		engine: liquid.NewEngine(),
		cache:  make(map[string]*liquid.Template),
	}
}

// MonthlyDigest summarizes a monthly run.
type MonthlyDigest struct {
	DryRun      bool
	Started     int
	Evaluated   int
	Skipped     int
	Failed      int
	SuccessRate float64
	ReportPath  string
}

// WeeklyDigest summarizes a weekly run.
type WeeklyDigest struct {
	Measuring int
	Evaluated int
	Alerts    []string
}

// AlertDigest describes one CTR alert.
type AlertDigest struct {
	URL      string
	Decline  bool
	Change   float64
	Message  string
	Reverted bool
}

// Monthly renders the monthly completion message.
func (r *Renderer) Monthly(d MonthlyDigest) (Message, error) {
	body, err := r.render("monthly", liquid.Bindings{
		"dry_run":      d.DryRun,
		"started":      d.Started,
		"evaluated":    d.Evaluated,
		"skipped":      d.Skipped,
		"failed":       d.Failed,
		"success_rate": fmt.Sprintf("%.1f%%", d.SuccessRate*100),
		"report_path":  d.ReportPath,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject:  fmt.Sprintf("CTR monthly review: %d new experiments", d.Started),
		Body:     body,
		Severity: SeverityInfo,
	}, nil
}

// Weekly renders the weekly status message.
func (r *Renderer) Weekly(d WeeklyDigest) (Message, error) {
	body, err := r.render("weekly", liquid.Bindings{
		"measuring":   d.Measuring,
		"evaluated":   d.Evaluated,
		"alerts":      d.Alerts,
		"alert_count": len(d.Alerts),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject:  fmt.Sprintf("CTR weekly status: %d measuring experiments", d.Measuring),
		Body:     body,
		Severity: SeverityInfo,
	}, nil
}

// Alert renders an immediate alert. Declines are high severity.
func (r *Renderer) Alert(d AlertDigest) (Message, error) {
	kind, urgency, severity := "gain", "INFO", SeverityInfo
	if d.Decline {
		kind, urgency, severity = "decline", "HIGH", SeverityHigh
	}
	body, err := r.render("alert", liquid.Bindings{
		"kind":     kind,
		"urgency":  urgency,
		"message":  d.Message,
		"url":      d.URL,
		"change":   fmt.Sprintf("%+.1f%%", d.Change*100),
		"reverted": d.Reverted,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject:  fmt.Sprintf("CTR %s alert: %s", kind, d.URL),
		Body:     body,
		Severity: severity,
	}, nil
}

func (r *Renderer) render(name string, b liquid.Bindings) (string, error) {
	tpl, err := r.template(name)
	if err != nil {
		return "", err
	}
	out, serr := tpl.RenderString(b)
	if serr != nil {
		return "", fmt.Errorf("failed to render %s template: %w", name, serr)
	}
	return out, nil
}

func (r *Renderer) template(name string) (*liquid.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tpl, ok := r.cache[name]; ok {
		return tpl, nil
	}
	src, err := templateFS.ReadFile("templates/" + name + ".liquid")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", name, err)
	}
	tpl, serr := r.engine.ParseTemplate(src)
	if serr != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, serr)
	}
	r.cache[name] = tpl
	return tpl, nil
}
