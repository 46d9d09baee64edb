// Package githubout handles GitHub output (check runs and PR comments).
package githubout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

const (
	maxCheckRunTextLen = 65535
	maxCommentLen      = 65536
	checkRunTitle      = "Chart Identity"
	truncatedSuffix    = "\n\n... (output truncated)"
)

// Adapter implements ports.ReportingPort by posting results via the
// GitHub Checks API and issue comments.
type Adapter struct {
	client  *gogithub.Client
	appName string
	appURL  string
	logger  *slog.Logger
}

// New creates a new GitHub reporting adapter.
func New(client *gogithub.Client, appName, appURL string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Adapter{client: client, appName: appName, appURL: appURL, logger: logger}
}

// CreateInProgressCheck creates a single check run in "in_progress" status for the PR.
func (a *Adapter) CreateInProgressCheck(ctx context.Context, pr domain.PRContext) (int64, error) {
	a.logger.Info("creating in-progress check", "pr", pr.PRNumber)

	checkRun, _, err := a.client.Checks.CreateCheckRun(ctx, pr.Owner, pr.Repo, gogithub.CreateCheckRunOptions{
		Name:    a.appName,
		HeadSHA: pr.HeadSHA,
		Status:  gogithub.Ptr("in_progress"),
		Output: &gogithub.CheckRunOutput{
			Title:   gogithub.Ptr(checkRunTitle),
			Summary: gogithub.Ptr("Resolving chart identities..."),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("creating in-progress check: %w", err)
	}

	a.logger.Info("in-progress check created", "checkRunID", checkRun.GetID())
	return checkRun.GetID(), nil
}

// UpdateCheckWithResults completes an existing check run with final results.
func (a *Adapter) UpdateCheckWithResults(
	ctx context.Context,
	pr domain.PRContext,
	checkRunID int64,
	results []domain.CheckResult,
) error {
	a.logger.Info("updating check run with results", "checkRunID", checkRunID, "numResults", len(results))

	if len(results) == 0 {
		return errors.New("no results to update check run")
	}

	conclusion, summary, text := formatCheckRun(results)

	_, _, err := a.client.Checks.UpdateCheckRun(ctx, pr.Owner, pr.Repo, checkRunID, gogithub.UpdateCheckRunOptions{
		Name:       a.appName,
		Status:     gogithub.Ptr("completed"),
		Conclusion: gogithub.Ptr(conclusion),
		Output: &gogithub.CheckRunOutput{
			Title:   gogithub.Ptr(checkRunTitle),
			Summary: gogithub.Ptr(summary),
			Text:    gogithub.Ptr(text),
		},
	})
	if err != nil {
		return fmt.Errorf("updating check run: %w", err)
	}

	a.logger.Info("check run updated", "checkRunID", checkRunID, "conclusion", conclusion)
	return nil
}

// PostComment posts a PR comment for a single chart, replacing any earlier
// comment this app posted for the same chart.
func (a *Adapter) PostComment(ctx context.Context, pr domain.PRContext, results []domain.CheckResult) error {
	if len(results) == 0 {
		return errors.New("no results to post comment")
	}

	chartName := results[0].ChartName
	a.logger.Info("posting PR comment", "chart", chartName, "pr", pr.PRNumber)

	a.deleteMatchingComments(ctx, pr, a.commentMarker(chartName))

	_, _, err := a.client.Issues.CreateComment(ctx, pr.Owner, pr.Repo, pr.PRNumber, &gogithub.IssueComment{
		Body: gogithub.Ptr(a.FormatPRComment(results)),
	})
	if err != nil {
		return fmt.Errorf("creating PR comment: %w", err)
	}

	a.logger.Info("PR comment posted", "chart", chartName)
	return nil
}

func (a *Adapter) commentMarker(chartName string) string {
	return fmt.Sprintf("<!-- %s: %s -->", a.appName, chartName)
}

// deleteMatchingComments deletes comments containing marker. Failures are
// logged; a stale comment is not worth failing the check over.
func (a *Adapter) deleteMatchingComments(ctx context.Context, pr domain.PRContext, marker string) {
	opts := &gogithub.IssueListCommentsOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	for {
		comments, resp, err := a.client.Issues.ListComments(ctx, pr.Owner, pr.Repo, pr.PRNumber, opts)
		if err != nil {
			a.logger.Warn("failed to list comments, continuing anyway", "error", err)
			return
		}
		for _, comment := range comments {
			if !strings.Contains(comment.GetBody(), marker) {
				continue
			}
			a.logger.Info("deleting old comment", "commentID", comment.GetID())
			if _, err := a.client.Issues.DeleteComment(ctx, pr.Owner, pr.Repo, comment.GetID()); err != nil {
				a.logger.Warn("failed to delete old comment", "commentID", comment.GetID(), "error", err)
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return
		}
		opts.Page = resp.NextPage
	}
}

// FormatCheckRunMarkdown renders the check run the way GitHub displays it.
// Used by the CLI and golden tests.
func (a *Adapter) FormatCheckRunMarkdown(results []domain.CheckResult) string {
	if len(results) == 0 {
		return ""
	}

	conclusion, summary, text := formatCheckRun(results)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", a.appName)
	sb.WriteString("**Status:** completed\n")
	fmt.Fprintf(&sb, "**Conclusion:** %s\n\n", conclusion)
	fmt.Fprintf(&sb, "## %s\n\n", checkRunTitle)
	fmt.Fprintf(&sb, "### Summary\n%s\n\n", summary)
	fmt.Fprintf(&sb, "### Output\n%s", text)
	return sb.String()
}

// formatCheckRun builds the conclusion, summary and collapsible text.
func formatCheckRun(results []domain.CheckResult) (conclusion, summary, text string) {
	counts := domain.CountByStatus(results)
	conclusion = "success"
	if counts.Failed() {
		conclusion = "failure"
	}

	var attention, quiet []string
	groups := domain.GroupByChart(results)
	for _, group := range groups {
		if chartNeedsAttention(group) {
			attention = append(attention, group[0].ChartName)
		} else {
			quiet = append(quiet, group[0].ChartName)
		}
	}

	summary = fmt.Sprintf(
		"Checked %d chart(s) across %d environment(s): %d breaking, %d changed, %d unchanged, %d failed",
		len(groups), len(results), counts.Breaking, counts.Changes, counts.Success, counts.Errors,
	)
	if counts.Breaking > 0 {
		summary += "\n\nSelector labels changed. Existing Deployments and StatefulSets cannot be upgraded in place."
	}

	var sb strings.Builder
	for _, group := range groups {
		if !chartNeedsAttention(group) {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n", group[0].ChartName)
		for _, r := range group {
			fmt.Fprintf(&sb, "<details><summary>%s: %s</summary>\n\n", r.Environment, statusLabel(r.Status))
			writeResultBody(&sb, r, r.UnifiedDiff)
			sb.WriteString("</details>\n\n")
		}
	}
	if len(quiet) > 0 {
		sb.WriteString("## Unchanged charts\n\n")
		sb.WriteString("The following charts resolve to the same identity in every environment:\n\n")
		for _, name := range quiet {
			fmt.Fprintf(&sb, "- `%s`\n", name)
		}
		sb.WriteString("\n")
	}

	return conclusion, summary, truncate(sb.String(), maxCheckRunTextLen)
}

func chartNeedsAttention(results []domain.CheckResult) bool {
	for _, r := range results {
		if r.NeedsAttention() {
			return true
		}
	}
	return false
}

func statusLabel(status domain.Status) string {
	switch status {
	case domain.StatusError:
		return "Error"
	case domain.StatusBreaking:
		return "Breaking"
	case domain.StatusChanges:
		return "Changed"
	case domain.StatusSuccess:
		return "No Changes"
	default:
		return "Unknown"
	}
}

func statusEmoji(status domain.Status) string {
	switch status {
	case domain.StatusError:
		return "❌ Error"
	case domain.StatusBreaking:
		return "🚨 Breaking"
	case domain.StatusChanges:
		return "📝 Changed"
	default:
		return "✅ No changes"
	}
}

// writeResultBody writes the summary, drift table, findings and diff of a
// single environment.
func writeResultBody(sb *strings.Builder, r domain.CheckResult, diff string) {
	if r.Summary != "" {
		fmt.Fprintf(sb, "%s\n\n", r.Summary)
	}
	if r.Status == domain.StatusError {
		return
	}

	if !r.Drift.Empty() {
		sb.WriteString("| Field | Base | Head |\n")
		sb.WriteString("|-------|------|------|\n")
		for _, c := range r.Drift.Changes {
			fmt.Fprintf(sb, "| `%s` | %s | %s |\n", c.Field, code(c.Base), code(c.Head))
		}
		sb.WriteString("\n")
	}

	if len(r.Findings) > 0 {
		sb.WriteString("**Findings:**\n\n")
		for _, f := range r.Findings {
			fmt.Fprintf(sb, "- ⚠️ %s\n", f.String())
		}
		sb.WriteString("\n")
	}

	if diff != "" {
		fmt.Fprintf(sb, "```diff\n%s\n```\n\n", strings.TrimRight(diff, "\n"))
	}
}

func code(s string) string {
	if s == "" {
		return "_(none)_"
	}
	return "`" + s + "`"
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit-len(truncatedSuffix)] + truncatedSuffix
}

// FormatPRComment formats a PR comment body for a single chart's results.
func (a *Adapter) FormatPRComment(results []domain.CheckResult) string {
	if len(results) == 0 {
		return ""
	}

	chartName := results[0].ChartName
	var sb strings.Builder

	// hidden marker, used to replace the comment on the next run
	sb.WriteString(a.commentMarker(chartName) + "\n")
	fmt.Fprintf(&sb, "## 🏷️ Chart Identity Report: `%s`\n\n", chartName)

	counts := domain.CountByStatus(results)
	switch {
	case counts.Errors > 0:
		sb.WriteString("❌ **Status:** Failed to resolve chart identity\n\n")
	case counts.Breaking > 0:
		fmt.Fprintf(&sb, "🚨 **Status:** %d environment(s) change selector labels; workloads must be recreated\n\n", counts.Breaking)
	case counts.Changes > 0:
		fmt.Fprintf(&sb, "✅ **Status:** %d environment(s) with identity changes\n\n", counts.Changes)
	default:
		sb.WriteString("✅ **Status:** No identity changes\n\n")
	}

	sb.WriteString("| Environment | Full name | Status |\n")
	sb.WriteString("|-------------|-----------|--------|\n")
	for _, r := range results {
		fullName := "-"
		if r.Head != nil {
			fullName = "`" + r.Head.FullName + "`"
		}
		fmt.Fprintf(&sb, "| `%s` | %s | %s |\n", r.Environment, fullName, statusEmoji(r.Status))
	}
	sb.WriteString("\n")

	for _, r := range results {
		if !r.NeedsAttention() {
			continue
		}
		fmt.Fprintf(&sb, "<details>\n<summary><b>%s</b>: %s</summary>\n\n", r.Environment, statusLabel(r.Status))
		writeResultBody(&sb, r, r.PreferredDiff())
		sb.WriteString("</details>\n\n")
	}

	sb.WriteString("---\n")
	if a.appURL != "" {
		fmt.Fprintf(&sb, "_Posted by [%s](%s)_\n", a.appName, a.appURL)
	} else {
		fmt.Fprintf(&sb, "_Posted by %s_\n", a.appName)
	}

	return truncate(sb.String(), maxCommentLen)
}
