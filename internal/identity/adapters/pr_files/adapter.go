// Package prfiles finds the charts a pull request touches.
package prfiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"

	"github.com/google/go-github/v68/github"
	"helm.sh/helm/v3/pkg/chart"
	"sigs.k8s.io/yaml"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

const filesPerPage = 100

// Adapter implements ports.ChangedChartsPort from the pull request's file
// list. Chart names come from Chart.yaml at the head ref.
type Adapter struct {
	client   *github.Client
	chartDir string
	logger   *slog.Logger
}

// New returns an adapter for charts kept one per directory under chartDir.
func New(client *github.Client, chartDir string, logger *slog.Logger) *Adapter {
	return &Adapter{client: client, chartDir: chartDir, logger: logger}
}

// GetChangedCharts returns the touched charts in the order their first file
// appears in the pull request. Charts the pull request deletes are left out.
func (a *Adapter) GetChangedCharts(ctx context.Context, pr domain.PRContext) ([]domain.ChangedChart, error) {
	files, removed, err := a.changedFiles(ctx, pr)
	if err != nil {
		return nil, err
	}

	dirs := domain.ExtractChartDirs(files, a.chartDir)
	a.logger.Debug("pull request touches charts", "files", len(files), "charts", dirs)

	charts := make([]domain.ChangedChart, 0, len(dirs))
	for _, dir := range dirs {
		chartfile := path.Join(dir, "Chart.yaml")
		if removed[chartfile] {
			a.logger.Debug("chart deleted by pull request", "path", dir)
			continue
		}

		name, err := a.chartName(ctx, pr, chartfile)
		if err != nil {
			a.logger.Warn("skipping chart directory", "path", dir, "ref", pr.HeadRef, "error", err)
			continue
		}
		charts = append(charts, domain.ChangedChart{Name: name, Path: dir})
	}
	return charts, nil
}

// changedFiles lists every path the pull request touches, including the old
// side of renames, plus the set of paths it removes.
func (a *Adapter) changedFiles(ctx context.Context, pr domain.PRContext) ([]string, map[string]bool, error) {
	var files []string
	removed := make(map[string]bool)

	opts := &github.ListOptions{PerPage: filesPerPage}
	for {
		page, resp, err := a.client.PullRequests.ListFiles(ctx, pr.Owner, pr.Repo, pr.PRNumber, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("listing files of pull request %d: %w", pr.PRNumber, err)
		}
		for _, f := range page {
			files = append(files, f.GetFilename())
			if prev := f.GetPreviousFilename(); prev != "" {
				files = append(files, prev)
			}
			if f.GetStatus() == "removed" {
				removed[f.GetFilename()] = true
			}
		}
		if resp.NextPage == 0 {
			return files, removed, nil
		}
		opts.Page = resp.NextPage
	}
}

func (a *Adapter) chartName(ctx context.Context, pr domain.PRContext, chartfile string) (string, error) {
	file, _, resp, err := a.client.Repositories.GetContents(ctx, pr.Owner, pr.Repo, chartfile,
		&github.RepositoryContentGetOptions{Ref: pr.HeadRef})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", domain.NewNotFoundError(chartfile, pr.HeadRef)
		}
		return "", fmt.Errorf("fetching %s: %w", chartfile, err)
	}
	if file == nil {
		return "", fmt.Errorf("%s is a directory", chartfile)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", chartfile, err)
	}
	return parseChartName([]byte(content))
}

// parseChartName reads the name from Chart.yaml the way Helm does.
func parseChartName(content []byte) (string, error) {
	var md chart.Metadata
	if err := yaml.Unmarshal(content, &md); err != nil {
		return "", fmt.Errorf("parsing Chart.yaml: %w", err)
	}
	if md.Name == "" {
		return "", errors.New("chart name is empty")
	}
	return md.Name, nil
}
