package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
	"github.com/nathantilsley/chart-ident/internal/identity/ports"
)

const (
	noChangesMessage       = "Identity unchanged."
	defaultEnvironmentName = "default"
)

// IdentityService implements ports.CheckUseCase by orchestrating the full
// check workflow: discover charts, fetch chart files, resolve identities at
// both refs, compare, and report.
type IdentityService struct {
	sourceControl ports.SourceControlPort
	changedCharts ports.ChangedChartsPort
	chartConfigs  []ports.ChartConfigPort // tried in order, first with environments wins
	loader        ports.ChartLoaderPort
	conformance   ports.ConformancePort // Optional: render the chart's own helpers
	reporter      ports.ReportingPort
	semanticDiff  ports.DiffPort // Semantic YAML diff (e.g., dyff)
	unifiedDiff   ports.DiffPort // Line-based diff (e.g., go-difflib)
	logger        *slog.Logger
	tracer        trace.Tracer

	resultCounter   metric.Int64Counter
	selectorCounter metric.Int64Counter
}

// NewIdentityService creates a new IdentityService wired with all driven ports.
// chartConfigs are consulted in order; nil entries are skipped. conformance
// may be nil to skip rendering chart helpers.
func NewIdentityService(
	sc ports.SourceControlPort,
	cc ports.ChangedChartsPort,
	chartConfigs []ports.ChartConfigPort,
	loader ports.ChartLoaderPort,
	conformance ports.ConformancePort,
	rp ports.ReportingPort,
	semanticDiff ports.DiffPort,
	unifiedDiff ports.DiffPort,
	logger *slog.Logger,
	meter metric.Meter,
	tracer trace.Tracer,
	metricPrefix string,
) (*IdentityService, error) {
	resultCounter, err := meter.Int64Counter(
		metricPrefix+".check.results",
		metric.WithDescription("Environment check results by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating result counter: %w", err)
	}
	selectorCounter, err := meter.Int64Counter(
		metricPrefix+".check.selector_changes",
		metric.WithDescription("Environments whose selector labels change between refs"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating selector counter: %w", err)
	}

	return &IdentityService{
		sourceControl: sc,
		changedCharts: cc,
		chartConfigs: lo.Filter(chartConfigs, func(p ports.ChartConfigPort, _ int) bool {
			return p != nil
		}),
		loader:          loader,
		conformance:     conformance,
		reporter:        rp,
		semanticDiff:    semanticDiff,
		unifiedDiff:     unifiedDiff,
		logger:          logger,
		tracer:          tracer,
		resultCounter:   resultCounter,
		selectorCounter: selectorCounter,
	}, nil
}

// Execute runs the check workflow for a pull request.
func (s *IdentityService) Execute(ctx context.Context, pr domain.PRContext) error {
	ctx, span := s.tracer.Start(ctx, "IdentityService.Execute", trace.WithAttributes(
		attribute.String("repo", pr.Owner+"/"+pr.Repo),
		attribute.Int("pr", pr.PRNumber),
	))
	defer span.End()

	changedCharts, err := s.changedCharts.GetChangedCharts(ctx, pr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing changed charts")
		return fmt.Errorf("getting changed charts: %w", err)
	}

	if len(changedCharts) == 0 {
		s.logger.Info("no charts to check")
		return nil
	}

	s.logger.Info("found charts to check", "count", len(changedCharts))

	checkRunID, err := s.reporter.CreateInProgressCheck(ctx, pr)
	if err != nil {
		return fmt.Errorf("creating in-progress check: %w", err)
	}

	var allResults []domain.CheckResult
	for _, chart := range changedCharts {
		s.logger.Info("processing chart", "chartName", chart.Name, "path", chart.Path)

		config, err := s.getChartConfig(ctx, pr, chart)
		if err != nil {
			s.logger.Error("failed to get chart config", "chart", chart.Name, "error", err)
			allResults = append(allResults, errorResult(pr, chart.Name, "all",
				fmt.Sprintf("❌ Error reading environments: %s", err)))
			continue
		}

		allResults = append(allResults, s.processChart(ctx, pr, chart, config)...)
	}

	for _, r := range allResults {
		s.resultCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", r.Status.String())))
	}

	if err := s.reporter.UpdateCheckWithResults(ctx, pr, checkRunID, allResults); err != nil {
		s.logger.Error("failed to update check run", "checkRunID", checkRunID, "error", err)
	}

	// One comment per chart, only when something needs attention
	for _, results := range domain.GroupByChart(allResults) {
		chartName := results[0].ChartName
		if !slices.ContainsFunc(results, domain.CheckResult.NeedsAttention) {
			s.logger.Info("identity unchanged for chart, skipping comment", "chart", chartName)
			continue
		}
		if err := s.reporter.PostComment(ctx, pr, results); err != nil {
			s.logger.Error("failed to post PR comment", "chart", chartName, "error", err)
		}
	}

	return nil
}

// getChartConfig resolves the chart's environments using the composite strategy:
// each configured source in order (repo manifest, Argo CD apps, env/ discovery),
// falling back to a single "default" environment with the chart's own values.
func (s *IdentityService) getChartConfig(
	ctx context.Context,
	pr domain.PRContext,
	chart domain.ChangedChart,
) (domain.ChartConfig, error) {
	var errs []error
	for i, source := range s.chartConfigs {
		config, err := source.GetChartConfig(ctx, pr, chart)
		if err != nil {
			s.logger.Warn("chart config source failed", "chart", chart.Name, "source", i, "error", err)
			errs = append(errs, err)
			continue
		}
		if len(config.Environments) > 0 {
			s.logger.Info("using chart config", "chart", chart.Name, "source", i, "envCount", len(config.Environments))
			if config.Path == "" {
				config.Path = chart.Path
			}
			return config, nil
		}
	}

	// Every source failed: nothing trustworthy to fall back to
	if len(errs) > 0 && len(errs) == len(s.chartConfigs) {
		return domain.ChartConfig{}, errors.Join(errs...)
	}

	s.logger.Info("no environments found, using chart defaults", "chart", chart.Name)
	return domain.ChartConfig{
		Path:         chart.Path,
		Environments: []domain.EnvironmentConfig{{Name: defaultEnvironmentName}},
	}, nil
}

// processChart fetches both refs of a chart and checks every environment.
// Failures are reported as StatusError results rather than returned.
func (s *IdentityService) processChart(
	ctx context.Context,
	pr domain.PRContext,
	chart domain.ChangedChart,
	config domain.ChartConfig,
) []domain.CheckResult {
	ctx, span := s.tracer.Start(ctx, "IdentityService.processChart", trace.WithAttributes(
		attribute.String("chart", chart.Name),
		attribute.Int("environments", len(config.Environments)),
	))
	defer span.End()

	baseDir, baseCleanup, err := s.sourceControl.FetchChartFiles(ctx, pr.Owner, pr.Repo, pr.BaseRef, config.Path)
	baseExists := true
	if err != nil {
		if !domain.IsNotFound(err) {
			s.logger.Error("failed to fetch base chart", "chart", chart.Name, "error", err)
			span.RecordError(err)
			return []domain.CheckResult{errorResult(pr, chart.Name, "all",
				fmt.Sprintf("❌ Error fetching base chart: %s", err))}
		}
		s.logger.Info("chart not found in base ref, treating as new chart", "chart", chart.Name, "baseRef", pr.BaseRef)
		baseExists = false
		baseCleanup = func() {}
	}
	defer baseCleanup()

	headDir, headCleanup, err := s.sourceControl.FetchChartFiles(ctx, pr.Owner, pr.Repo, pr.HeadRef, config.Path)
	if err != nil {
		s.logger.Error("failed to fetch head chart", "chart", chart.Name, "error", err)
		span.RecordError(err)
		return []domain.CheckResult{errorResult(pr, chart.Name, "all",
			fmt.Sprintf("❌ Error fetching head chart: %s", err))}
	}
	defer headCleanup()

	sides := chartSides{baseDir: baseDir, headDir: headDir, baseExists: baseExists}
	defaultRelease := filepath.Base(config.Path)

	results := make([]domain.CheckResult, 0, len(config.Environments))
	var heads []domain.EnvironmentIdentity
	for _, env := range config.Environments {
		release := env.ReleaseFor(defaultRelease)
		result := s.checkEnvironment(ctx, pr, chart.Name, sides, env, release)
		if result.Head != nil {
			heads = append(heads, domain.EnvironmentIdentity{Environment: env.Name, Identity: *result.Head})
		}
		results = append(results, result)
	}

	for _, c := range domain.DetectCollisions(heads) {
		s.logger.Warn("full name collision", "chart", chart.Name, "fullName", c.FullName, "environments", c.Environments)
		finding := c.Finding()
		for i := range results {
			if slices.Contains(c.Environments, results[i].Environment) {
				results[i].Findings = append(results[i].Findings, finding)
			}
		}
	}

	return results
}

type chartSides struct {
	baseDir    string
	headDir    string
	baseExists bool
}

func (s *IdentityService) checkEnvironment(
	ctx context.Context,
	pr domain.PRContext,
	chartName string,
	sides chartSides,
	env domain.EnvironmentConfig,
	release domain.ReleaseMetadata,
) domain.CheckResult {
	ctx, span := s.tracer.Start(ctx, "IdentityService.checkEnvironment", trace.WithAttributes(
		attribute.String("chart", chartName),
		attribute.String("environment", env.Name),
		attribute.String("release", release.Name),
	))
	defer span.End()

	s.logger.Info("checking identity",
		"chart", chartName,
		"env", env.Name,
		"release", release.Name,
		"base", pr.BaseRef,
		"head", pr.HeadRef,
	)

	result, err := s.compareEnvironment(ctx, pr, chartName, sides, env, release)
	if err != nil {
		s.logger.Error("identity check failed", "chart", chartName, "env", env.Name, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "identity check failed")
		return errorResult(pr, chartName, env.Name, err.Error())
	}

	span.SetAttributes(attribute.String("status", result.Status.String()))
	if result.Status == domain.StatusBreaking {
		s.selectorCounter.Add(ctx, 1)
	}
	return result
}

func (s *IdentityService) compareEnvironment(
	ctx context.Context,
	pr domain.PRContext,
	chartName string,
	sides chartSides,
	env domain.EnvironmentConfig,
	release domain.ReleaseMetadata,
) (domain.CheckResult, error) {
	headInput, err := s.loader.Load(ctx, sides.headDir, env, release)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("failed to load head chart: %w", err)
	}
	head := domain.Resolve(headInput)

	headManifest, err := head.Manifest()
	if err != nil {
		return domain.CheckResult{}, err
	}

	baseExists := sides.baseExists
	var base domain.Identity
	var baseManifest []byte
	if baseExists {
		baseInput, err := s.loader.Load(ctx, sides.baseDir, env, release)
		switch {
		case domain.IsNotFound(err):
			s.logger.Info("environment not found in base ref, treating as new", "chart", chartName, "env", env.Name)
			baseExists = false
		case err != nil:
			return domain.CheckResult{}, fmt.Errorf("failed to load base chart: %w", err)
		default:
			base = domain.Resolve(baseInput)
			if baseManifest, err = base.Manifest(); err != nil {
				return domain.CheckResult{}, err
			}
		}
	}

	findings := domain.Validate(head)
	findings = append(findings, s.checkConformance(ctx, chartName, sides.headDir, env, head)...)

	baseName := domain.CheckLabel(chartName, env.Name, pr.BaseRef)
	headName := domain.CheckLabel(chartName, env.Name, pr.HeadRef)

	semanticDiff := s.semanticDiff.ComputeDiff(baseName, headName, baseManifest, headManifest)
	unifiedDiff := s.unifiedDiff.ComputeDiff(baseName, headName, baseManifest, headManifest)

	result := domain.CheckResult{
		ChartName:    chartName,
		Environment:  env.Name,
		BaseRef:      pr.BaseRef,
		HeadRef:      pr.HeadRef,
		Head:         &head,
		Findings:     findings,
		UnifiedDiff:  unifiedDiff,
		SemanticDiff: semanticDiff,
	}

	switch {
	case !baseExists:
		result.Status = domain.StatusChanges
		result.Summary = fmt.Sprintf("New release %s resolves to %s.", release.Name, head.FullName)
	default:
		result.Drift = domain.Compare(base, head)
		switch {
		case result.Drift.Breaking():
			result.Status = domain.StatusBreaking
			result.Summary = fmt.Sprintf(
				"Selector labels of %s change in environment %s; existing workloads cannot be upgraded in place.",
				chartName, env.Name)
		case !result.Drift.Empty():
			result.Status = domain.StatusChanges
			result.Summary = fmt.Sprintf("%d identity field(s) change in %s for environment %s.",
				len(result.Drift.Changes), chartName, env.Name)
		default:
			result.Status = domain.StatusSuccess
			result.Summary = noChangesMessage
		}
	}

	return result, nil
}

// checkConformance renders the chart's own helpers when a ConformancePort
// is wired. Render failures are reported as findings, never as errors.
func (s *IdentityService) checkConformance(
	ctx context.Context,
	chartName, chartDir string,
	env domain.EnvironmentConfig,
	id domain.Identity,
) []domain.Finding {
	if s.conformance == nil {
		return nil
	}

	out, err := s.conformance.RenderHelpers(ctx, chartDir, env, id.Input.Release)
	switch {
	case errors.Is(err, domain.ErrHelpersNotFound):
		s.logger.Debug("chart has no naming helpers, skipping conformance", "chart", chartName)
		return nil
	case err != nil:
		s.logger.Warn("rendering chart helpers failed", "chart", chartName, "env", env.Name, "error", err)
		return []domain.Finding{{
			Kind:    domain.FindingNonConformant,
			Message: fmt.Sprintf("chart helpers could not be rendered: %s", err),
		}}
	}
	return domain.CheckConformance(id, out)
}

func errorResult(pr domain.PRContext, chartName, envName, summary string) domain.CheckResult {
	return domain.CheckResult{
		ChartName:   chartName,
		Environment: envName,
		BaseRef:     pr.BaseRef,
		HeadRef:     pr.HeadRef,
		Status:      domain.StatusError,
		Summary:     summary,
	}
}
