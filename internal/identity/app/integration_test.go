package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	noopmetric "go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	discoveredcharts "github.com/nathantilsley/chart-ident/internal/identity/adapters/discovered_charts"
	dyffdiff "github.com/nathantilsley/chart-ident/internal/identity/adapters/dyff_diff"
	envdiscovery "github.com/nathantilsley/chart-ident/internal/identity/adapters/env_discovery"
	githubout "github.com/nathantilsley/chart-ident/internal/identity/adapters/github_out"
	helmchart "github.com/nathantilsley/chart-ident/internal/identity/adapters/helm_chart"
	helmengine "github.com/nathantilsley/chart-ident/internal/identity/adapters/helm_engine"
	linediff "github.com/nathantilsley/chart-ident/internal/identity/adapters/line_diff"
	localfs "github.com/nathantilsley/chart-ident/internal/identity/adapters/local_fs"
	"github.com/nathantilsley/chart-ident/internal/identity/domain"
	"github.com/nathantilsley/chart-ident/internal/identity/ports"
	"github.com/nathantilsley/chart-ident/internal/platform/logger"
)

// TestIntegration_FullCheckFlow runs the check against the charts in
// ../testdata with the real Helm adapters.
func TestIntegration_FullCheckFlow(t *testing.T) {
	ctx := context.Background()
	testdataDir := filepath.Join("..", "testdata")
	log := logger.New("error")

	pr := domain.PRContext{Owner: "org", Repo: "charts", PRNumber: 7, BaseRef: "main", HeadRef: "feat/rename"}
	source := localfs.New(map[string]string{
		pr.BaseRef: filepath.Join(testdataDir, "base"),
		pr.HeadRef: filepath.Join(testdataDir, "head"),
	})
	reporter := &mockReporter{}

	svc, err := NewIdentityService(
		source,
		&mockChangedCharts{charts: []domain.ChangedChart{{Name: "api", Path: "api"}}},
		[]ports.ChartConfigPort{discoveredcharts.New(envdiscovery.New(), source)},
		helmchart.New(log),
		helmengine.New(log),
		reporter,
		dyffdiff.New(log),
		linediff.New(-1),
		log,
		noopmetric.NewMeterProvider().Meter("test"),
		nooptrace.NewTracerProvider().Tracer("test"),
		"chart_ident",
	)
	if err != nil {
		t.Fatalf("NewIdentityService failed: %v", err)
	}

	if err := svc.Execute(ctx, pr); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	byEnv := make(map[string]domain.CheckResult)
	for _, r := range reporter.results {
		byEnv[r.Environment] = r
	}
	if len(byEnv) != 3 {
		t.Fatalf("got results for %d environments, want 3: %+v", len(byEnv), reporter.results)
	}

	tests := []struct {
		env          string
		wantStatus   domain.Status
		wantFullName string
		wantDiff     string
	}{
		{env: "eu", wantStatus: domain.StatusChanges, wantFullName: "api"},
		{env: "prod", wantStatus: domain.StatusBreaking, wantFullName: "api-api-server", wantDiff: "api-server"},
		{env: "staging", wantStatus: domain.StatusChanges, wantFullName: "api", wantDiff: "api-1.1.0_build5"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			r := byEnv[tt.env]
			if r.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s (summary %q)", r.Status, tt.wantStatus, r.Summary)
			}
			if r.Head == nil || r.Head.FullName != tt.wantFullName {
				t.Errorf("head = %+v, want fullName %q", r.Head, tt.wantFullName)
			}
			for _, f := range r.Findings {
				if f.Kind == domain.FindingNonConformant {
					t.Errorf("chart helpers disagree with resolver: %s", f)
				}
			}
			if tt.wantDiff != "" && !strings.Contains(r.UnifiedDiff, tt.wantDiff) {
				t.Errorf("unified diff does not mention %q:\n%s", tt.wantDiff, r.UnifiedDiff)
			}
		})
	}

	if reporter.commentCount != 1 {
		t.Errorf("commentCount = %d, want 1", reporter.commentCount)
	}

	md := githubout.New(nil, "chart-ident", "", log).FormatCheckRunMarkdown(reporter.results)
	for _, want := range []string{"**Conclusion:** failure", "1 breaking", "api/prod"} {
		if !strings.Contains(md, want) {
			t.Errorf("check run markdown does not contain %q:\n%s", want, md)
		}
	}
}

// TestIntegration_NonConformantHelpers checks that a chart whose own
// fullname helper disagrees with the resolver gets a finding.
func TestIntegration_NonConformantHelpers(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"head/web/Chart.yaml":             "apiVersion: v2\nname: web\nversion: 2.0.0\n",
		"head/web/values.yaml":            "nameOverride: \"\"\n",
		"head/web/env/prod-values.yaml":   "replicaCount: 2\n",
		"head/web/templates/_helpers.tpl": `{{- define "web.name" -}}
{{- default .Chart.Name .Values.nameOverride | trunc 63 | trimSuffix "-" }}
{{- end }}
{{- define "web.fullname" -}}
{{- printf "%s-%s" (include "web.name" .) .Release.Name | trunc 63 | trimSuffix "-" }}
{{- end }}
`,
		"head/web/templates/service.yaml": "kind: Service\nmetadata:\n  name: {{ include \"web.fullname\" . }}\n",
	}
	for name, content := range files {
		file := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "base"), 0o755); err != nil {
		t.Fatal(err)
	}

	log := logger.New("error")
	pr := domain.PRContext{Owner: "org", Repo: "charts", PRNumber: 8, BaseRef: "main", HeadRef: "feat/web"}
	source := localfs.New(map[string]string{
		pr.BaseRef: filepath.Join(root, "base"),
		pr.HeadRef: filepath.Join(root, "head"),
	})
	reporter := &mockReporter{}

	svc, err := NewIdentityService(
		source,
		&mockChangedCharts{charts: []domain.ChangedChart{{Name: "web", Path: "web"}}},
		[]ports.ChartConfigPort{discoveredcharts.New(envdiscovery.New(), source)},
		helmchart.New(log),
		helmengine.New(log),
		reporter,
		dyffdiff.New(log),
		linediff.New(-1),
		log,
		noopmetric.NewMeterProvider().Meter("test"),
		nooptrace.NewTracerProvider().Tracer("test"),
		"chart_ident",
	)
	if err != nil {
		t.Fatalf("NewIdentityService failed: %v", err)
	}
	if err := svc.Execute(context.Background(), pr); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(reporter.results) != 1 {
		t.Fatalf("got %d results, want 1: %+v", len(reporter.results), reporter.results)
	}
	r := reporter.results[0]
	if r.Environment != "prod" || r.Status != domain.StatusChanges {
		t.Errorf("result = %s/%s, want prod/Changes (summary %q)", r.Environment, r.Status, r.Summary)
	}

	var found bool
	for _, f := range r.Findings {
		if f.Kind == domain.FindingNonConformant && f.Field == "fullName" {
			found = true
		}
	}
	if !found {
		t.Errorf("no fullName conformance finding in %+v", r.Findings)
	}
}
