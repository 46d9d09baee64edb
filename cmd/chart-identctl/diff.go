package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	dyffdiff "github.com/nathantilsley/chart-ident/internal/identity/adapters/dyff_diff"
	githubout "github.com/nathantilsley/chart-ident/internal/identity/adapters/github_out"
	helmchart "github.com/nathantilsley/chart-ident/internal/identity/adapters/helm_chart"
	helmengine "github.com/nathantilsley/chart-ident/internal/identity/adapters/helm_engine"
	linediff "github.com/nathantilsley/chart-ident/internal/identity/adapters/line_diff"
	localfs "github.com/nathantilsley/chart-ident/internal/identity/adapters/local_fs"
	identityapp "github.com/nathantilsley/chart-ident/internal/identity/app"
	"github.com/nathantilsley/chart-ident/internal/identity/domain"
	"github.com/nathantilsley/chart-ident/internal/identity/ports"
	"github.com/nathantilsley/chart-ident/internal/platform/telemetry"
)

const (
	baseRef = "base"
	headRef = "head"
)

func newDiffCmd(a *app) *cobra.Command {
	var (
		chartOpts     chartOptions
		outOpts       outputOptions
		noHelpers     bool
		allowBreaking bool
		markdown      bool
	)

	cmd := &cobra.Command{
		Use:   "diff <base-chart-dir> <head-chart-dir>",
		Short: "Compare the identities of two versions of a chart",
		Long: `Resolve two versions of a chart for every environment of the head
version and report what changes. An environment the base version does not
have is reported as new.

A change of selector labels cannot be applied to existing workloads, so it
exits with status 3 unless --allow-breaking is set.`,
		Example: `  git worktree add /tmp/main main
  chart-identctl diff /tmp/main/charts/api charts/api`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := outOpts.validate(); err != nil {
				return err
			}
			baseDir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			headDir, err := chartDirArg(args[1])
			if err != nil {
				return err
			}

			results, err := a.diffCharts(cmd.Context(), baseDir, headDir, &chartOpts, !noHelpers)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch {
			case markdown:
				fmt.Fprintln(w, githubout.New(nil, "chart-identctl", "", a.log).FormatCheckRunMarkdown(results))
			case outOpts.format == formatText:
				writeDiffText(w, results)
			default:
				reports := lo.Map(results, func(r domain.CheckResult, _ int) diffReport { return newDiffReport(r) })
				if err := writeStructured(w, outOpts.format, reports); err != nil {
					return err
				}
			}

			counts := domain.CountByStatus(results)
			switch {
			case counts.Errors > 0:
				return &exitError{Err: fmt.Errorf("%d environment(s) could not be resolved", counts.Errors), Code: exitGeneralError}
			case counts.Breaking > 0 && !allowBreaking:
				return &exitError{Code: exitBreaking}
			}
			return nil
		},
	}

	chartOpts.addFlags(cmd.Flags())
	outOpts.addFlags(cmd.Flags())
	cmd.Flags().BoolVar(&noHelpers, "no-helpers", false, "skip rendering the chart's own naming helpers")
	cmd.Flags().BoolVar(&allowBreaking, "allow-breaking", false, "exit 0 even when selector labels change")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "print the report as the pull request check renders it")
	return cmd
}

// diffCharts runs the pull request check workflow with the two local
// directories standing in for the base and head refs.
func (a *app) diffCharts(
	ctx context.Context,
	baseDir, headDir string,
	opts *chartOptions,
	helpers bool,
) ([]domain.CheckResult, error) {
	chrt, err := helmchart.LoadChartOnly(headDir)
	if err != nil {
		return nil, err
	}
	envs, err := opts.environments(ctx, headDir)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetry.Options{ServiceName: "chart-identctl"})
	if err != nil {
		return nil, err
	}

	var conformance ports.ConformancePort
	if helpers {
		conformance = helmengine.New(a.log)
	}

	collector := &resultCollector{}
	svc, err := identityapp.NewIdentityService(
		localfs.New(map[string]string{baseRef: baseDir, headRef: headDir}),
		staticCharts{{Name: chrt.Name(), Path: "."}},
		[]ports.ChartConfigPort{staticConfig{Path: ".", Environments: envs}},
		helmchart.New(a.log),
		conformance,
		collector,
		dyffdiff.New(a.log),
		linediff.New(-1),
		a.log,
		tel.Meter,
		tel.Tracer,
		"chart_identctl",
	)
	if err != nil {
		return nil, err
	}

	pr := domain.PRContext{Owner: "local", Repo: chrt.Name(), BaseRef: baseRef, HeadRef: headRef}
	if err := svc.Execute(ctx, pr); err != nil {
		return nil, err
	}
	return collector.results, nil
}

type staticCharts []domain.ChangedChart

func (s staticCharts) GetChangedCharts(context.Context, domain.PRContext) ([]domain.ChangedChart, error) {
	return s, nil
}

type staticConfig domain.ChartConfig

func (s staticConfig) GetChartConfig(context.Context, domain.PRContext, domain.ChangedChart) (domain.ChartConfig, error) {
	return domain.ChartConfig(s), nil
}

// resultCollector keeps the final results instead of posting them.
type resultCollector struct {
	results []domain.CheckResult
}

func (c *resultCollector) CreateInProgressCheck(context.Context, domain.PRContext) (int64, error) {
	return 0, nil
}

func (c *resultCollector) UpdateCheckWithResults(_ context.Context, _ domain.PRContext, _ int64, results []domain.CheckResult) error {
	c.results = results
	return nil
}

func (c *resultCollector) PostComment(context.Context, domain.PRContext, []domain.CheckResult) error {
	return nil
}

// diffReport is the structured output of diff.
type diffReport struct {
	Environment string               `json:"environment"`
	Status      string               `json:"status"`
	Summary     string               `json:"summary"`
	Breaking    bool                 `json:"breaking"`
	Changes     []domain.FieldChange `json:"changes,omitempty"`
	Findings    []string             `json:"findings,omitempty"`
	Head        *domain.Identity     `json:"head,omitempty"`
	Diff        string               `json:"diff,omitempty"`
}

func newDiffReport(r domain.CheckResult) diffReport {
	return diffReport{
		Environment: r.Environment,
		Status:      r.Status.String(),
		Summary:     r.Summary,
		Breaking:    r.Drift.Breaking(),
		Changes:     r.Drift.Changes,
		Findings:    lo.Map(r.Findings, func(f domain.Finding, _ int) string { return f.String() }),
		Head:        r.Head,
		Diff:        r.UnifiedDiff,
	}
}

func writeDiffText(w io.Writer, results []domain.CheckResult) {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s: %s\n", r.Environment, r.Status)
		fmt.Fprintf(w, "  %s\n", r.Summary)
		for _, c := range r.Drift.Changes {
			fmt.Fprintf(w, "  %s: %q -> %q\n", c.Field, c.Base, c.Head)
		}
		for _, f := range r.Findings {
			fmt.Fprintf(w, "  ! %s\n", f)
		}
		if diff := r.PreferredDiff(); diff != "" && r.Status != domain.StatusSuccess {
			fmt.Fprintf(w, "\n%s\n", diff)
		}
	}
}
