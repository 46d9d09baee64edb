// Package envdiscovery finds a chart's environments from the values files
// it keeps under env/.
package envdiscovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

const envDir = "env"

var valuesSuffixes = []string{"-values.yaml", "-values.yml"}

// Adapter implements ports.EnvironmentDiscoveryPort. Two layouts are
// recognised and may be mixed:
//
//	env/<name>-values.yaml
//	env/<name>/*.yaml       (lexical order, after <name>-values.yaml)
type Adapter struct{}

// New returns an environment discovery adapter.
func New() *Adapter {
	return &Adapter{}
}

// DiscoverEnvironments returns one environment per name found under
// chartDir/env, sorted by name. Value file paths are relative to chartDir.
// A chart without env/ has no environments; the release name is left to
// the caller's default.
func (a *Adapter) DiscoverEnvironments(_ context.Context, chartDir string) ([]domain.EnvironmentConfig, error) {
	envs, err := discover(os.DirFS(chartDir))
	if err != nil {
		return nil, fmt.Errorf("discovering environments in %s: %w", chartDir, err)
	}
	return envs, nil
}

func discover(fsys fs.FS) ([]domain.EnvironmentConfig, error) {
	entries, err := fs.ReadDir(fsys, envDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	files := make(map[string][]string)
	dirFiles := make(map[string][]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			if name, ok := envFromFilename(entry.Name()); ok {
				files[name] = append(files[name], path.Join(envDir, entry.Name()))
			}
			continue
		}

		dir := path.Join(envDir, entry.Name())
		yamls, err := fs.Glob(fsys, path.Join(dir, "*.y*ml"))
		if err != nil {
			return nil, err
		}
		yamls = lo.Filter(yamls, func(p string, _ int) bool {
			ext := path.Ext(p)
			return ext == ".yaml" || ext == ".yml"
		})
		if len(yamls) > 0 {
			slices.Sort(yamls)
			dirFiles[entry.Name()] = yamls
		}
	}
	for name, yamls := range dirFiles {
		files[name] = append(files[name], yamls...)
	}

	if len(files) == 0 {
		return nil, nil
	}
	names := lo.Keys(files)
	slices.Sort(names)
	return lo.Map(names, func(name string, _ int) domain.EnvironmentConfig {
		return domain.EnvironmentConfig{Name: name, ValueFiles: files[name]}
	}), nil
}

func envFromFilename(filename string) (string, bool) {
	for _, suffix := range valuesSuffixes {
		if name, ok := strings.CutSuffix(filename, suffix); ok && name != "" {
			return name, true
		}
	}
	return "", false
}
