package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/spf13/pflag"

	"github.com/nathantilsley/chart-ident/api"
	envdiscovery "github.com/nathantilsley/chart-ident/internal/identity/adapters/env_discovery"
	repocfg "github.com/nathantilsley/chart-ident/internal/identity/adapters/repo_cfg"
	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

const allEnvironments = "all"

// chartOptions selects the environments a local chart is resolved for.
type chartOptions struct {
	env        string
	manifest   string
	valueFiles []string
	setValues  []string
	release    string
	namespace  string
}

func (o *chartOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.env, "env", "e", allEnvironments, `environment to resolve, or "all"`)
	fs.StringVar(&o.manifest, "manifest", "", "read environments from a "+api.ManifestPath+" file instead of env/*-values.yaml")
	fs.StringArrayVarP(&o.valueFiles, "values", "f", nil, "extra values file applied after the environment's own (repeatable)")
	fs.StringArrayVar(&o.setValues, "set", nil, "extra key=value override applied last (repeatable)")
	fs.StringVar(&o.release, "release", "", "release name (default: the environment's, else the chart directory name)")
	fs.StringVarP(&o.namespace, "namespace", "n", "", "release namespace (default: the environment's)")
}

// environments returns the environments to resolve chartDir for, with the
// command line overrides applied. A chart without any configured
// environment is resolved once as "default".
func (o *chartOptions) environments(ctx context.Context, chartDir string) ([]domain.EnvironmentConfig, error) {
	var (
		envs []domain.EnvironmentConfig
		err  error
	)
	if o.manifest != "" {
		envs, err = o.manifestEnvironments(chartDir)
	} else {
		envs, err = envdiscovery.New().DiscoverEnvironments(ctx, chartDir)
	}
	if err != nil {
		return nil, err
	}

	if o.env != "" && o.env != allEnvironments {
		env, ok := lo.Find(envs, func(e domain.EnvironmentConfig) bool { return e.Name == o.env })
		if !ok {
			names := lo.Map(envs, func(e domain.EnvironmentConfig, _ int) string { return e.Name })
			return nil, fmt.Errorf("environment %q not found (available: %v)", o.env, names)
		}
		envs = []domain.EnvironmentConfig{env}
	}
	if len(envs) == 0 {
		envs = []domain.EnvironmentConfig{{Name: "default"}}
	}

	extraFiles, err := absPaths(o.valueFiles)
	if err != nil {
		return nil, err
	}

	defaultRelease := filepath.Base(chartDir)
	return lo.Map(envs, func(e domain.EnvironmentConfig, _ int) domain.EnvironmentConfig {
		e.ValueFiles = append(append([]string{}, e.ValueFiles...), extraFiles...)
		e.SetValues = append(append([]string{}, e.SetValues...), o.setValues...)
		switch {
		case o.release != "":
			e.ReleaseName = o.release
		case e.ReleaseName == "":
			e.ReleaseName = defaultRelease
		}
		if o.namespace != "" {
			e.Namespace = o.namespace
		}
		return e
	}), nil
}

// manifestEnvironments looks chartDir up in the manifest by its path
// relative to the manifest, falling back to a match on the last path
// element.
func (o *chartOptions) manifestEnvironments(chartDir string) ([]domain.EnvironmentConfig, error) {
	data, err := os.ReadFile(o.manifest)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := api.ParseManifest(data)
	if err != nil {
		return nil, err
	}

	if rel, err := filepath.Rel(filepath.Dir(o.manifest), chartDir); err == nil {
		if entry, ok := m.Chart(filepath.ToSlash(rel)); ok {
			return repocfg.ToChartConfig(entry).Environments, nil
		}
	}
	base := filepath.Base(chartDir)
	entry, ok := lo.Find(m.Charts, func(c api.ManifestChart) bool { return path.Base(c.Path) == base })
	if !ok {
		return nil, fmt.Errorf("chart %s is not listed in %s", base, o.manifest)
	}
	return repocfg.ToChartConfig(entry).Environments, nil
}

func absPaths(files []string) ([]string, error) {
	out := make([]string, 0, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", f, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

// chartDirArg validates a chart directory argument and returns it as an
// absolute path.
func chartDirArg(arg string) (string, error) {
	dir, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", arg, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Chart.yaml")); err != nil {
		return "", fmt.Errorf("%s is not a chart directory: %w", arg, err)
	}
	return dir, nil
}
