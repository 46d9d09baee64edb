// Package helmchart reads chart metadata and environment values with the
// Helm SDK, the same way `helm template -f ... --set ...` would.
package helmchart

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"

	"github.com/spf13/cast"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/cli/values"
	"helm.sh/helm/v3/pkg/getter"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

// Adapter implements ports.ChartLoaderPort.
type Adapter struct {
	logger *slog.Logger
}

// New creates a new chart loader.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Adapter{logger: logger}
}

// Load reads Chart.yaml and the coalesced values for env and returns the
// resolver input for release.
func (a *Adapter) Load(
	_ context.Context,
	chartDir string,
	env domain.EnvironmentConfig,
	release domain.ReleaseMetadata,
) (domain.Input, error) {
	chrt, vals, err := LoadChart(chartDir, env)
	if err != nil {
		return domain.Input{}, err
	}

	a.logger.Debug("chart loaded",
		"chart", chrt.Metadata.Name,
		"version", chrt.Metadata.Version,
		"env", env.Name,
		"valueFiles", env.ValueFiles,
	)

	return domain.Input{
		Chart:   ChartMetadata(chrt),
		Release: release,
		Values:  UserValues(vals),
	}, nil
}

// LoadChart loads the chart in chartDir and merges its default values with
// the environment's values files and --set overrides. Relative values files
// are resolved against chartDir; a missing one yields a domain.NotFoundError.
func LoadChart(chartDir string, env domain.EnvironmentConfig) (*chart.Chart, chartutil.Values, error) {
	chrt, err := LoadChartOnly(chartDir)
	if err != nil {
		return nil, nil, err
	}

	overrides, err := MergeOverrides(chartDir, env)
	if err != nil {
		return nil, nil, err
	}

	vals, err := chartutil.CoalesceValues(chrt, overrides)
	if err != nil {
		return nil, nil, fmt.Errorf("coalescing values: %w", err)
	}
	return chrt, vals, nil
}

// LoadChartOnly loads the chart in chartDir without any values.
func LoadChartOnly(chartDir string) (*chart.Chart, error) {
	chrt, err := loader.Load(chartDir)
	if err != nil {
		return nil, fmt.Errorf("loading chart %s: %w", chartDir, err)
	}
	return chrt, nil
}

// MergeOverrides returns the user-supplied values for env, without the
// chart defaults.
func MergeOverrides(chartDir string, env domain.EnvironmentConfig) (map[string]interface{}, error) {
	files := make([]string, 0, len(env.ValueFiles))
	for _, vf := range env.ValueFiles {
		path := vf
		if !filepath.IsAbs(path) {
			path = filepath.Join(chartDir, vf)
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, domain.NewNotFoundError(vf, "")
			}
			return nil, fmt.Errorf("reading values file %s: %w", vf, err)
		}
		files = append(files, path)
	}

	opts := values.Options{
		ValueFiles: files,
		Values:     env.SetValues,
	}
	// No getters: values files are always local paths
	merged, err := opts.MergeValues(getter.Providers{})
	if err != nil {
		return nil, fmt.Errorf("merging values for environment %s: %w", env.Name, err)
	}
	return merged, nil
}

// ChartMetadata extracts the identity-relevant fields of Chart.yaml.
func ChartMetadata(chrt *chart.Chart) domain.ChartMetadata {
	return domain.ChartMetadata{
		Name:       chrt.Metadata.Name,
		Version:    chrt.Metadata.Version,
		AppVersion: chrt.Metadata.AppVersion,
	}
}

// UserValues extracts the naming overrides from coalesced values. Values
// are interpreted the way chart templates see them: nameOverride is
// printed as-is and serviceAccount.create follows template truthiness.
func UserValues(vals chartutil.Values) domain.UserValues {
	uv := domain.UserValues{
		NameOverride:     cast.ToString(vals["nameOverride"]),
		FullnameOverride: cast.ToString(vals["fullnameOverride"]),
	}
	sa, err := vals.Table("serviceAccount")
	if err != nil {
		return uv
	}
	if create, ok := template.IsTrue(sa["create"]); ok {
		uv.ServiceAccount.Create = create
	}
	uv.ServiceAccount.Name = cast.ToString(sa["name"])
	return uv
}
