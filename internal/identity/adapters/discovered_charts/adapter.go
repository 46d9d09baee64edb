// Package discoveredcharts derives a chart's environments from the env/
// files it ships, for charts no manifest or Argo CD Application describes.
package discoveredcharts

import (
	"context"
	"fmt"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
	"github.com/nathantilsley/chart-ident/internal/identity/ports"
)

// Adapter implements ports.ChartConfigPort. It is the last source in the
// chain and always answers.
type Adapter struct {
	discovery ports.EnvironmentDiscoveryPort
	source    ports.SourceControlPort
}

// New returns an adapter that fetches charts through source and scans them
// with discovery.
func New(discovery ports.EnvironmentDiscoveryPort, source ports.SourceControlPort) *Adapter {
	return &Adapter{discovery: discovery, source: source}
}

// GetChartConfig scans the chart at the head ref. A chart missing from head
// is scanned at the base ref instead so its existing releases are still
// known.
func (a *Adapter) GetChartConfig(ctx context.Context, pr domain.PRContext, chart domain.ChangedChart) (domain.ChartConfig, error) {
	envs, err := a.discover(ctx, pr, pr.HeadRef, chart)
	if domain.IsNotFound(err) && pr.BaseRef != "" {
		envs, err = a.discover(ctx, pr, pr.BaseRef, chart)
	}
	if err != nil {
		return domain.ChartConfig{}, err
	}
	return domain.ChartConfig{Path: chart.Path, Environments: envs}, nil
}

func (a *Adapter) discover(ctx context.Context, pr domain.PRContext, ref string, chart domain.ChangedChart) ([]domain.EnvironmentConfig, error) {
	dir, cleanup, err := a.source.FetchChartFiles(ctx, pr.Owner, pr.Repo, ref, chart.Path)
	if err != nil {
		return nil, fmt.Errorf("fetching chart %s at %s: %w", chart.Name, ref, err)
	}
	defer cleanup()

	envs, err := a.discovery.DiscoverEnvironments(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("discovering environments for %s: %w", chart.Name, err)
	}
	return envs, nil
}
