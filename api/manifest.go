package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"

	"gopkg.in/yaml.v3"
)

// ManifestPath is where the manifest lives in target repositories.
const ManifestPath = ".chart-ident.yaml"

// Manifest is the top-level schema of the .chart-ident.yaml file
// stored in target repositories.
type Manifest struct {
	Charts []ManifestChart `yaml:"charts"`
}

// ManifestChart maps a chart path to its set of environment configurations.
type ManifestChart struct {
	Path         string                `yaml:"path"`
	Environments []ManifestEnvironment `yaml:"environments"`
}

// ManifestEnvironment defines how a chart is installed in one environment:
// the release name and namespace, an ordered list of values files (Helm
// applies them left-to-right) and --set style overrides applied last.
type ManifestEnvironment struct {
	Name        string   `yaml:"name"`
	ReleaseName string   `yaml:"releaseName,omitempty"`
	Namespace   string   `yaml:"namespace,omitempty"`
	ValueFiles  []string `yaml:"valueFiles,omitempty"`
	Set         []string `yaml:"set,omitempty"`
}

// ParseManifest decodes and validates a manifest. Unknown fields are rejected.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return Manifest{}, fmt.Errorf("parsing manifest YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks that every chart has a path and that environment names
// are present and unique within a chart.
func (m Manifest) Validate() error {
	var errs []error
	seenPaths := make(map[string]bool)
	for i, c := range m.Charts {
		if c.Path == "" {
			errs = append(errs, fmt.Errorf("charts[%d]: path is required", i))
			continue
		}
		p := path.Clean(c.Path)
		if seenPaths[p] {
			errs = append(errs, fmt.Errorf("charts[%d]: duplicate path %q", i, c.Path))
		}
		seenPaths[p] = true

		seenEnvs := make(map[string]bool)
		for j, e := range c.Environments {
			switch {
			case e.Name == "":
				errs = append(errs, fmt.Errorf("charts[%d].environments[%d]: name is required", i, j))
			case seenEnvs[e.Name]:
				errs = append(errs, fmt.Errorf("charts[%d].environments[%d]: duplicate name %q", i, j, e.Name))
			}
			seenEnvs[e.Name] = true
		}
	}
	return errors.Join(errs...)
}

// Chart returns the entry for chartPath, if any.
func (m Manifest) Chart(chartPath string) (ManifestChart, bool) {
	want := path.Clean(chartPath)
	for _, c := range m.Charts {
		if path.Clean(c.Path) == want {
			return c, true
		}
	}
	return ManifestChart{}, false
}
