package domain

// EnvironmentConfig describes one deployment of a chart: the release it
// is installed as and the ordered values files (Helm applies them
// left-to-right) plus --set style overrides.
type EnvironmentConfig struct {
	Name        string
	ReleaseName string   // empty means the chart directory name
	Namespace   string
	ValueFiles  []string // relative to the chart directory
	SetValues   []string // "key=value" overrides applied after the files
}

// ReleaseFor returns the release metadata for this environment, falling
// back to defaultName when the environment does not name its release.
func (e EnvironmentConfig) ReleaseFor(defaultName string) ReleaseMetadata {
	name := e.ReleaseName
	if name == "" {
		name = defaultName
	}
	return ReleaseMetadata{
		Name:      name,
		Namespace: e.Namespace,
		Service:   DefaultReleaseService,
	}
}

// ChartConfig groups a chart path with its environment configurations.
type ChartConfig struct {
	Path         string
	Environments []EnvironmentConfig
}
