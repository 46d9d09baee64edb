package ports

import (
	"context"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

// SourceControlPort abstracts fetching chart files from a repository at a given ref.
// A chart missing at ref is reported with a domain.NotFoundError.
type SourceControlPort interface {
	FetchChartFiles(ctx context.Context, owner, repo, ref, chartPath string) (chartDir string, cleanup func(), err error)
}

// ChangedChartsPort lists the charts a pull request touches.
type ChangedChartsPort interface {
	GetChangedCharts(ctx context.Context, pr domain.PRContext) ([]domain.ChangedChart, error)
}

// ChartConfigPort provides the environments a chart is deployed to.
// An empty Environments slice means this source knows nothing about the chart.
type ChartConfigPort interface {
	GetChartConfig(ctx context.Context, pr domain.PRContext, chart domain.ChangedChart) (domain.ChartConfig, error)
}

// EnvironmentDiscoveryPort finds environments by convention in a local chart directory.
type EnvironmentDiscoveryPort interface {
	DiscoverEnvironments(ctx context.Context, chartDir string) ([]domain.EnvironmentConfig, error)
}

// ChartLoaderPort reads chart metadata and the values an environment
// installs the chart with, producing the resolver input for release.
// A values file missing from chartDir is reported with a domain.NotFoundError.
type ChartLoaderPort interface {
	Load(
		ctx context.Context,
		chartDir string,
		env domain.EnvironmentConfig,
		release domain.ReleaseMetadata,
	) (domain.Input, error)
}

// ConformancePort renders a chart's own naming helpers so their output can
// be compared with the resolver. Returns domain.ErrHelpersNotFound for
// charts without conventional helpers.
type ConformancePort interface {
	RenderHelpers(
		ctx context.Context,
		chartDir string,
		env domain.EnvironmentConfig,
		release domain.ReleaseMetadata,
	) (domain.HelperOutput, error)
}

// ReportingPort abstracts posting check results back to the pull request.
type ReportingPort interface {
	CreateInProgressCheck(ctx context.Context, pr domain.PRContext) (int64, error)
	UpdateCheckWithResults(ctx context.Context, pr domain.PRContext, checkRunID int64, results []domain.CheckResult) error
	PostComment(ctx context.Context, pr domain.PRContext, results []domain.CheckResult) error
}

// DiffPort computes a textual diff between two identity manifests.
// Returns "" when there is no difference.
type DiffPort interface {
	ComputeDiff(baseName, headName string, base, head []byte) string
}
