// Package report summarizes a suite run: per-scenario outcomes, failure
// attribution, saved artifacts and request metrics. The summary is built as
// Markdown and optionally rendered to a standalone HTML page.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/nursery-suite/internal/apiclient"
	"github.com/kuitang/nursery-suite/internal/artifacts"
	"github.com/kuitang/nursery-suite/internal/errs"
)

// Status is a scenario outcome.
type Status string

const (
	Passed    Status = "passed"
	Failed    Status = "failed"
	Skipped   Status = "skipped"
	Undefined Status = "undefined"
	Pending   Status = "pending"
)

// ScenarioResult is one finished scenario.
type ScenarioResult struct {
	Feature   string
	Name      string
	Status    Status
	Err       error
	Duration  time.Duration
	Artifacts []artifacts.Artifact
}

// Code returns the error code of a failed scenario.
func (r ScenarioResult) Code() errs.Code {
	if r.Err == nil {
		return ""
	}
	return errs.CodeOf(r.Err)
}

// Counts tallies results.
type Counts struct {
	Total          int
	Passed         int
	Failed         int
	Skipped        int
	ProductDefects int
	SetupFailures  int
}

// Builder collects results while the run is in progress. It is safe for
// concurrent scenarios.
type Builder struct {
	title   string
	started time.Time

	mu        sync.Mutex
	finished  time.Time
	results   []ScenarioResult
	endpoints []apiclient.EndpointStat
}

// NewBuilder starts a report.
func NewBuilder(title string, started time.Time) *Builder {
	return &Builder{title: title, started: started}
}

// Add records a finished scenario.
func (b *Builder) Add(r ScenarioResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = append(b.results, r)
}

// SetEndpoints attaches the request metrics summary.
func (b *Builder) SetEndpoints(stats []apiclient.EndpointStat) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints = append([]apiclient.EndpointStat(nil), stats...)
}

// Finish marks the end of the run.
func (b *Builder) Finish(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finished = at
}

// Results returns a copy of the recorded results in completion order.
func (b *Builder) Results() []ScenarioResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ScenarioResult(nil), b.results...)
}

// Counts tallies the recorded results.
func (b *Builder) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return countResults(b.results)
}

func countResults(results []ScenarioResult) Counts {
	var c Counts
	for _, r := range results {
		c.Total++
		switch r.Status {
		case Passed:
			c.Passed++
		case Skipped:
			c.Skipped++
		default:
			c.Failed++
			if errs.IsProductDefect(r.Err) {
				c.ProductDefects++
			} else {
				c.SetupFailures++
			}
		}
	}
	return c
}

// attribution names who a failure is charged to.
func attribution(r ScenarioResult) string {
	switch {
	case r.Status == Undefined || r.Status == Pending:
		return "suite (step not implemented)"
	case errs.IsProductDefect(r.Err):
		return "application under test"
	case errs.Is(r.Err, errs.Configuration):
		return "suite configuration"
	default:
		return "suite setup"
	}
}

// Markdown renders the report.
func (b *Builder) Markdown() string {
	b.mu.Lock()
	results := append([]ScenarioResult(nil), b.results...)
	endpoints := append([]apiclient.EndpointStat(nil), b.endpoints...)
	finished := b.finished
	b.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", b.title)
	fmt.Fprintf(&sb, "- Started: %s\n", b.started.UTC().Format(time.RFC3339))
	if !finished.IsZero() {
		fmt.Fprintf(&sb, "- Duration: %s\n", formatDuration(finished.Sub(b.started)))
	}

	c := countResults(results)
	sb.WriteString("\n| Total | Passed | Failed | Skipped |\n|---|---|---|---|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d |\n", c.Total, c.Passed, c.Failed, c.Skipped)
	if c.Failed > 0 {
		fmt.Fprintf(&sb, "\nProduct defects: %d. Setup failures: %d.\n", c.ProductDefects, c.SetupFailures)
	}

	if len(results) > 0 {
		sb.WriteString("\n## Scenarios\n\n| Feature | Scenario | Status | Duration |\n|---|---|---|---|\n")
		for _, r := range results {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
				cell(r.Feature), cell(r.Name), r.Status, formatDuration(r.Duration))
		}
	}

	var failures []ScenarioResult
	for _, r := range results {
		if r.Status != Passed && r.Status != Skipped {
			failures = append(failures, r)
		}
	}
	if len(failures) > 0 {
		sb.WriteString("\n## Failures\n")
		for _, r := range failures {
			fmt.Fprintf(&sb, "\n### %s / %s\n\n", r.Feature, r.Name)
			if code := r.Code(); code != "" {
				fmt.Fprintf(&sb, "- Code: `%s`\n", code)
			}
			fmt.Fprintf(&sb, "- Attributed to: %s\n", attribution(r))
			for _, a := range r.Artifacts {
				fmt.Fprintf(&sb, "- Artifact: %s\n", artifactLink(a))
			}
			if r.Err != nil {
				fmt.Fprintf(&sb, "\n```\n%s\n```\n", strings.TrimSpace(r.Err.Error()))
			}
		}
	}

	if len(endpoints) > 0 {
		sort.SliceStable(endpoints, func(i, j int) bool {
			if endpoints[i].Route != endpoints[j].Route {
				return endpoints[i].Route < endpoints[j].Route
			}
			return endpoints[i].Method < endpoints[j].Method
		})
		sb.WriteString("\n## Requests\n\n| Method | Route | Requests | 5xx | Mean latency |\n|---|---|---|---|---|\n")
		for _, e := range endpoints {
			fmt.Fprintf(&sb, "| %s | `%s` | %d | %d | %s |\n",
				e.Method, e.Route, e.Requests, e.Errors, formatDuration(e.MeanLatency))
		}
	}
	return sb.String()
}

// WriteFile writes the report. A .html path gets the rendered page; anything
// else gets Markdown.
func (b *Builder) WriteFile(path string) error {
	if path == "" {
		return errors.New("report path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report dir: %w", err)
		}
	}
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		data = b.HTML()
	default:
		data = []byte(b.Markdown())
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func artifactLink(a artifacts.Artifact) string {
	if a.URL != "" {
		return fmt.Sprintf("[%s](%s)", a.Name, a.URL)
	}
	return fmt.Sprintf("`%s`", a.Path)
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
