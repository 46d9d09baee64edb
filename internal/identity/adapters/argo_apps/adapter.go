// Package argoapps provides chart configuration by reading Argo CD
// Application manifests from a synced git checkout.
package argoapps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

// ErrNotAnApplication is returned when a manifest is not an Argo Application.
var ErrNotAnApplication = errors.New("not an Application")

// DefaultFolderPattern places Applications at <chart>/<env>/*.yaml.
const DefaultFolderPattern = "{chartName}/{envName}"

// Adapter implements ports.ChartConfigPort from an index of Argo CD
// Applications. The index is rebuilt by Rebuild, which is registered as a
// gitrepo sync callback so it follows the repository.
type Adapter struct {
	folderPattern string

	mu     sync.RWMutex
	index  map[string][]AppData // chartName -> apps, one per environment
	logger *slog.Logger
}

// AppData is what an Argo Application tells us about a chart deployment.
type AppData struct {
	ChartName   string   // from the folder structure
	ChartPath   string   // spec.source.path or spec.source.chart
	Environment string   // from the folder structure
	ReleaseName string   // spec.source.helm.releaseName, else metadata.name
	Namespace   string   // spec.destination.namespace
	ValueFiles  []string // spec.source.helm.valueFiles
	Parameters  []string // spec.source.helm.parameters as name=value
	RepoURL     string
}

// New creates an adapter with an empty index.
func New(folderPattern string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if folderPattern == "" {
		folderPattern = DefaultFolderPattern
	}
	return &Adapter{
		folderPattern: folderPattern,
		index:         make(map[string][]AppData),
		logger:        logger,
	}
}

// Rebuild scans root for Application manifests and swaps in a new index.
// Files that cannot be read or parsed are logged and skipped.
func (a *Adapter) Rebuild(root string) error {
	index := make(map[string][]AppData)
	appCount := 0

	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			a.logger.Warn("skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !isYAMLFile(p) {
			return nil
		}

		app, ok := a.processApplicationFile(root, p)
		if ok {
			index[app.ChartName] = append(index[app.ChartName], *app)
			appCount++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", root, err)
	}

	a.mu.Lock()
	a.index = index
	a.mu.Unlock()

	a.logger.Info("argo apps index rebuilt", "totalApps", appCount, "uniqueCharts", len(index))
	return nil
}

// GetChartConfig returns one environment per Application deploying the
// chart. The chart is looked up by its Chart.yaml name, then by its
// directory name. An unknown chart yields no environments.
func (a *Adapter) GetChartConfig(
	_ context.Context,
	_ domain.PRContext,
	chart domain.ChangedChart,
) (domain.ChartConfig, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	apps := a.index[chart.Name]
	if len(apps) == 0 {
		apps = a.index[path.Base(chart.Path)]
	}
	if len(apps) == 0 {
		a.logger.Debug("chart not found in argo apps", "chart", chart.Name)
		return domain.ChartConfig{Path: chart.Path}, nil
	}

	config := domain.ChartConfig{Path: chart.Path}
	seen := make(map[string]struct{}, len(apps))
	for _, app := range apps {
		if _, dup := seen[app.Environment]; dup {
			a.logger.Warn("duplicate argo application for environment, keeping first",
				"chart", chart.Name, "env", app.Environment)
			continue
		}
		seen[app.Environment] = struct{}{}
		config.Environments = append(config.Environments, domain.EnvironmentConfig{
			Name:        app.Environment,
			ReleaseName: app.ReleaseName,
			Namespace:   app.Namespace,
			ValueFiles:  app.ValueFiles,
			SetValues:   app.Parameters,
		})
	}

	a.logger.Info("found argo apps for chart", "chart", chart.Name, "envCount", len(config.Environments))
	return config, nil
}

func isYAMLFile(p string) bool {
	ext := filepath.Ext(p)
	return ext == ".yaml" || ext == ".yml"
}

func (a *Adapter) processApplicationFile(root, p string) (*AppData, bool) {
	app, err := parseArgoApp(p)
	if errors.Is(err, ErrNotAnApplication) {
		return nil, false
	}
	if err != nil {
		a.logger.Warn("failed to parse file as argo application", "path", p, "error", err)
		return nil, false
	}

	chartName, env, err := a.extractFromFolderStructure(root, p)
	if err != nil {
		a.logger.Warn("failed to extract chart/env from path", "path", p, "error", err)
		return nil, false
	}

	app.ChartName = chartName
	app.Environment = env
	return app, true
}

type helmSource struct {
	ReleaseName string   `yaml:"releaseName"`
	ValueFiles  []string `yaml:"valueFiles"`
	Parameters  []struct {
		Name  string `yaml:"name"`
		Value string `yaml:"value"`
	} `yaml:"parameters"`
}

type appSource struct {
	RepoURL string      `yaml:"repoURL"`
	Path    string      `yaml:"path"`
	Chart   string      `yaml:"chart"`
	Helm    *helmSource `yaml:"helm"`
}

type application struct {
	Kind     string `yaml:"kind"`
	Metadata struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
	Spec struct {
		Source      *appSource  `yaml:"source"`
		Sources     []appSource `yaml:"sources"`
		Destination struct {
			Namespace string `yaml:"namespace"`
		} `yaml:"destination"`
	} `yaml:"spec"`
}

// chartSource picks spec.source, or the first multi-source entry that
// names a chart.
func (m application) chartSource() (appSource, bool) {
	if m.Spec.Source != nil {
		return *m.Spec.Source, true
	}
	for _, s := range m.Spec.Sources {
		if s.Chart != "" || s.Path != "" {
			return s, true
		}
	}
	return appSource{}, false
}

// parseArgoApp reads an Application manifest. Both OCI/Helm repo charts
// (spec.source.chart) and git charts (spec.source.path) are supported.
func parseArgoApp(p string) (*AppData, error) {
	//nolint:gosec // G304: path comes from WalkDir over the synced clone
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	var manifest application
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if manifest.Kind != "Application" {
		return nil, ErrNotAnApplication
	}

	src, ok := manifest.chartSource()
	if !ok {
		return nil, errors.New("missing spec.source")
	}
	if src.RepoURL == "" {
		return nil, errors.New("missing required field: repoURL")
	}

	chartPath := src.Chart
	if chartPath == "" {
		chartPath = src.Path
	}
	if chartPath == "" {
		return nil, errors.New("missing both spec.source.chart and spec.source.path")
	}

	app := &AppData{
		ChartPath:   chartPath,
		ReleaseName: manifest.Metadata.Name,
		Namespace:   manifest.Spec.Destination.Namespace,
		RepoURL:     src.RepoURL,
	}
	if h := src.Helm; h != nil {
		if h.ReleaseName != "" {
			app.ReleaseName = h.ReleaseName
		}
		app.ValueFiles = h.ValueFiles
		for _, param := range h.Parameters {
			if param.Name == "" {
				continue
			}
			app.Parameters = append(app.Parameters, param.Name+"="+param.Value)
		}
	}
	return app, nil
}

// extractFromFolderStructure maps the trailing directories of file onto
// the folder pattern.
// E.g., pattern "{chartName}/{envName}", file "<root>/apps/my-app/prod/app.yaml"
// -> chartName "my-app", env "prod".
func (a *Adapter) extractFromFolderStructure(root, file string) (chartName, env string, err error) {
	relPath, err := filepath.Rel(root, file)
	if err != nil {
		return "", "", fmt.Errorf("getting relative path: %w", err)
	}

	dirPath := filepath.Dir(relPath)
	if dirPath == "." {
		return "", "", errors.New("path has fewer components than pattern")
	}
	parts := strings.Split(dirPath, string(filepath.Separator))
	patternParts := strings.Split(a.folderPattern, "/")

	if len(parts) < len(patternParts) {
		return "", "", errors.New("path has fewer components than pattern")
	}

	relevant := parts[len(parts)-len(patternParts):]
	for i, part := range patternParts {
		switch part {
		case "{chartName}":
			chartName = relevant[i]
		case "{envName}":
			env = relevant[i]
		}
	}

	if chartName == "" {
		return "", "", errors.New("could not extract chartName from path")
	}
	if env == "" {
		return "", "", errors.New("could not extract envName from path")
	}
	return chartName, env, nil
}
