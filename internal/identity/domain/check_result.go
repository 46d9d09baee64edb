package domain

import (
	"fmt"

	"github.com/samber/lo"
)

// Status is the outcome of checking one chart environment.
type Status int

// Ordered by severity.
const (
	StatusSuccess  Status = iota // identity unchanged
	StatusChanges                // identity changed, selector labels stable
	StatusBreaking               // selector labels changed
	StatusError                  // identity could not be resolved
)

var statusNames = [...]string{
	StatusSuccess:  "Success",
	StatusChanges:  "Changes",
	StatusBreaking: "Breaking",
	StatusError:    "Error",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "Unknown"
	}
	return statusNames[s]
}

// CheckResult compares one environment of one chart between the base and
// head refs.
type CheckResult struct {
	ChartName    string
	Environment  string
	BaseRef      string
	HeadRef      string
	Status       Status
	Head         *Identity // nil when head resolution failed
	Drift        Drift
	Findings     []Finding
	UnifiedDiff  string
	SemanticDiff string // empty when the semantic differ had nothing to add
	Summary      string // the error message when Status is StatusError
}

// PreferredDiff returns the semantic diff, falling back to the unified one.
func (r CheckResult) PreferredDiff() string {
	return lo.Ternary(r.SemanticDiff != "", r.SemanticDiff, r.UnifiedDiff)
}

// NeedsAttention reports whether a reviewer should look at r.
func (r CheckResult) NeedsAttention() bool {
	return r.Status != StatusSuccess || len(r.Findings) > 0
}

// StatusCounts tallies results by status.
type StatusCounts struct {
	Success  int
	Changes  int
	Breaking int
	Errors   int
}

// Failed reports whether the check run should conclude with failure.
func (c StatusCounts) Failed() bool {
	return c.Breaking > 0 || c.Errors > 0
}

// CountByStatus tallies results.
func CountByStatus(results []CheckResult) StatusCounts {
	by := lo.CountValuesBy(results, func(r CheckResult) Status { return r.Status })
	return StatusCounts{
		Success:  by[StatusSuccess],
		Changes:  by[StatusChanges],
		Breaking: by[StatusBreaking],
		Errors:   by[StatusError],
	}
}

// CheckLabel names one side of a comparison, e.g. "api/prod (main)".
func CheckLabel(chartName, envName, ref string) string {
	return fmt.Sprintf("%s/%s (%s)", chartName, envName, ref)
}

// GroupByChart splits results per chart, keeping the order in which charts
// first appear.
func GroupByChart(results []CheckResult) [][]CheckResult {
	byChart := lo.GroupBy(results, func(r CheckResult) string { return r.ChartName })
	charts := lo.Uniq(lo.Map(results, func(r CheckResult, _ int) string { return r.ChartName }))
	return lo.Map(charts, func(name string, _ int) []CheckResult { return byChart[name] })
}
