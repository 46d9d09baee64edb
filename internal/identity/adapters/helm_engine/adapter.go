// Package helmengine renders a chart's own naming helpers with the Helm
// template engine so the result can be checked against the resolver.
package helmengine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/engine"

	"github.com/nathantilsley/chart-ident/internal/identity/adapters/helm_chart"
	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

// identityTemplate is injected next to the chart's helpers. Only helpers
// the chart defines are included. Its base name must not start with "_":
// the engine renders such files as partials and drops their output.
const identityTemplate = "templates/chart-ident-identity.yaml"

var fullnameDefine = regexp.MustCompile(`define\s+"([^"]+)\.fullname"`)

// Adapter implements ports.ConformancePort.
type Adapter struct {
	logger *slog.Logger
}

// New creates a new helper renderer.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Adapter{logger: logger}
}

// RenderHelpers renders the name, fullname, chart, serviceAccountName,
// selectorLabels and labels helpers of the chart in chartDir for release.
func (a *Adapter) RenderHelpers(
	_ context.Context,
	chartDir string,
	env domain.EnvironmentConfig,
	release domain.ReleaseMetadata,
) (domain.HelperOutput, error) {
	chrt, err := helmchart.LoadChartOnly(chartDir)
	if err != nil {
		return domain.HelperOutput{}, err
	}

	prefix, defined := findHelpers(chrt.Templates)
	if prefix == "" {
		return domain.HelperOutput{}, domain.ErrHelpersNotFound
	}

	overrides, err := helmchart.MergeOverrides(chartDir, env)
	if err != nil {
		return domain.HelperOutput{}, err
	}

	keepPartials(chrt)
	chrt.Templates = append(chrt.Templates, &chart.File{
		Name: identityTemplate,
		Data: []byte(buildTemplate(prefix, defined)),
	})

	vals, err := chartutil.ToRenderValues(chrt, overrides, chartutil.ReleaseOptions{
		Name:      release.Name,
		Namespace: release.Namespace,
		Revision:  1,
		IsInstall: true,
	}, chartutil.DefaultCapabilities)
	if err != nil {
		return domain.HelperOutput{}, fmt.Errorf("building render values: %w", err)
	}
	if release.Service != "" {
		if rel, ok := vals["Release"].(map[string]interface{}); ok {
			rel["Service"] = release.Service
		}
	}

	rendered, err := engine.Render(chrt, vals)
	if err != nil {
		return domain.HelperOutput{}, fmt.Errorf("rendering helpers: %w", err)
	}

	var out string
	for name, content := range rendered {
		if strings.HasSuffix(name, "/"+identityTemplate) {
			out = content
			break
		}
	}
	if strings.TrimSpace(out) == "" {
		return domain.HelperOutput{}, fmt.Errorf("rendering helpers: %s produced no output", identityTemplate)
	}

	a.logger.Debug("chart helpers rendered", "chart", chrt.Name(), "prefix", prefix, "env", env.Name)
	return parseOutput([]byte(out))
}

// findHelpers returns the helper prefix ("api" for "api.fullname") and the
// set of conventional helpers defined under it.
func findHelpers(templates []*chart.File) (string, map[string]bool) {
	var prefix string
	for _, f := range templates {
		if m := fullnameDefine.FindSubmatch(f.Data); m != nil {
			prefix = string(m[1])
			break
		}
	}
	if prefix == "" {
		return "", nil
	}

	defined := make(map[string]bool)
	for _, helper := range []string{"name", "fullname", "chart", "serviceAccountName", "selectorLabels", "labels"} {
		needle := regexp.MustCompile(`define\s+"` + regexp.QuoteMeta(prefix+"."+helper) + `"`)
		for _, f := range templates {
			if needle.Match(f.Data) {
				defined[helper] = true
				break
			}
		}
	}
	return prefix, defined
}

// keepPartials drops every template that produces output, in the chart and
// its dependencies, so only helper definitions remain.
func keepPartials(c *chart.Chart) {
	partials := c.Templates[:0]
	for _, f := range c.Templates {
		if strings.HasPrefix(path.Base(f.Name), "_") {
			partials = append(partials, f)
		}
	}
	c.Templates = partials
	for _, dep := range c.Dependencies() {
		keepPartials(dep)
	}
}

func buildTemplate(prefix string, defined map[string]bool) string {
	var sb strings.Builder
	scalar := func(key, helper string) {
		if defined[helper] {
			fmt.Fprintf(&sb, "%s: {{ include %q . | quote }}\n", key, prefix+"."+helper)
		}
	}
	block := func(key, helper string) {
		if defined[helper] {
			fmt.Fprintf(&sb, "%s:\n{{ include %q . | indent 2 }}\n", key, prefix+"."+helper)
		}
	}

	scalar("name", "name")
	scalar("fullName", "fullname")
	scalar("chart", "chart")
	scalar("serviceAccountName", "serviceAccountName")
	block("selectorLabels", "selectorLabels")
	block("labels", "labels")
	return sb.String()
}

type helperDoc struct {
	Name               string                 `yaml:"name"`
	FullName           string                 `yaml:"fullName"`
	Chart              string                 `yaml:"chart"`
	ServiceAccountName string                 `yaml:"serviceAccountName"`
	SelectorLabels     map[string]interface{} `yaml:"selectorLabels"`
	Labels             map[string]interface{} `yaml:"labels"`
}

func parseOutput(data []byte) (domain.HelperOutput, error) {
	var doc helperDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.HelperOutput{}, fmt.Errorf("parsing rendered helpers: %w", err)
	}
	return domain.HelperOutput{
		Name:               doc.Name,
		FullName:           doc.FullName,
		Chart:              doc.Chart,
		ServiceAccountName: doc.ServiceAccountName,
		SelectorLabels:     toLabels(doc.SelectorLabels),
		Labels:             toLabels(doc.Labels),
	}, nil
}

func toLabels(m map[string]interface{}) domain.Labels {
	if m == nil {
		return nil
	}
	labels := make(domain.Labels, len(m))
	for k, v := range m {
		labels[k] = cast.ToString(v)
	}
	return labels
}
