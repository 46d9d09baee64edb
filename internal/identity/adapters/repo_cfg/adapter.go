package repocfg

import (
	"context"
	"fmt"
	"net/http"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/nathantilsley/chart-ident/api"
	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

// Adapter implements ports.ChartConfigPort by reading the
// .chart-ident.yaml manifest from the target repository.
type Adapter struct {
	client *gogithub.Client
}

// New creates a new repo config adapter.
func New(client *gogithub.Client) *Adapter {
	return &Adapter{client: client}
}

// GetChartConfig fetches .chart-ident.yaml at the PR head and returns the
// environments listed for chart. A repository without a manifest, or a
// manifest that does not list the chart, yields no environments.
func (a *Adapter) GetChartConfig(
	ctx context.Context,
	pr domain.PRContext,
	chart domain.ChangedChart,
) (domain.ChartConfig, error) {
	manifest, found, err := a.fetchManifest(ctx, pr.Owner, pr.Repo, pr.HeadRef)
	if err != nil || !found {
		return domain.ChartConfig{}, err
	}

	entry, ok := manifest.Chart(chart.Path)
	if !ok {
		return domain.ChartConfig{}, nil
	}
	return ToChartConfig(entry), nil
}

func (a *Adapter) fetchManifest(ctx context.Context, owner, repo, ref string) (api.Manifest, bool, error) {
	fileContent, _, resp, err := a.client.Repositories.GetContents(ctx, owner, repo, api.ManifestPath, &gogithub.RepositoryContentGetOptions{
		Ref: ref,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return api.Manifest{}, false, nil
		}
		return api.Manifest{}, false, fmt.Errorf("fetching manifest: %w", err)
	}
	if fileContent == nil {
		return api.Manifest{}, false, fmt.Errorf("%s is not a file", api.ManifestPath)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return api.Manifest{}, false, fmt.Errorf("decoding manifest content: %w", err)
	}

	manifest, err := api.ParseManifest([]byte(content))
	if err != nil {
		return api.Manifest{}, false, fmt.Errorf("%s at %s: %w", api.ManifestPath, ref, err)
	}
	return manifest, true, nil
}

// ToChartConfig converts a manifest entry into the domain representation.
func ToChartConfig(c api.ManifestChart) domain.ChartConfig {
	envs := make([]domain.EnvironmentConfig, 0, len(c.Environments))
	for _, e := range c.Environments {
		envs = append(envs, domain.EnvironmentConfig{
			Name:        e.Name,
			ReleaseName: e.ReleaseName,
			Namespace:   e.Namespace,
			ValueFiles:  e.ValueFiles,
			SetValues:   e.Set,
		})
	}
	return domain.ChartConfig{
		Path:         c.Path,
		Environments: envs,
	}
}
