package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

const (
	formatText = "text"
	formatYAML = "yaml"
	formatJSON = "json"
)

type outputOptions struct {
	format string
}

func (o *outputOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.format, "output", "o", formatText, "output format: text, yaml or json")
}

func (o *outputOptions) validate() error {
	switch o.format {
	case formatText, formatYAML, formatJSON:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", o.format)
	}
}

// writeStructured encodes v as YAML or JSON. Both use the json tags.
func writeStructured(w io.Writer, format string, v any) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// envReport is the per-environment output of resolve and verify.
type envReport struct {
	Environment string                 `json:"environment"`
	Identity    domain.Identity        `json:"identity"`
	Release     domain.ReleaseMetadata `json:"release"`
	Findings    []string               `json:"findings,omitempty"`
}

func newEnvReport(env string, id domain.Identity, findings []domain.Finding) envReport {
	r := envReport{Environment: env, Identity: id, Release: id.Input.Release}
	for _, f := range findings {
		r.Findings = append(r.Findings, f.String())
	}
	return r
}

func writeEnvReports(w io.Writer, reports []envReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		ns := r.Release.Namespace
		if ns == "" {
			ns = "(default)"
		}
		fmt.Fprintf(tw, "%s\trelease %s, namespace %s\n", r.Environment, r.Release.Name, ns)
		fmt.Fprintf(tw, "  name:\t%s\n", r.Identity.Name)
		fmt.Fprintf(tw, "  fullName:\t%s\n", r.Identity.FullName)
		fmt.Fprintf(tw, "  chartLabel:\t%s\n", r.Identity.ChartLabel)
		fmt.Fprintf(tw, "  serviceAccountName:\t%s\n", r.Identity.ServiceAccountName)
		fmt.Fprintf(tw, "  selectorLabels:\t%s\n", formatLabels(r.Identity.SelectorLabels))
		fmt.Fprintf(tw, "  labels:\t%s\n", formatLabels(r.Identity.CommonLabels))
		for _, f := range r.Findings {
			fmt.Fprintf(tw, "  ! %s\n", f)
		}
	}
	return tw.Flush()
}

func formatLabels(l domain.Labels) string {
	pairs := make([]string, 0, len(l))
	for _, k := range l.Keys() {
		pairs = append(pairs, k+"="+l[k])
	}
	return strings.Join(pairs, ",")
}
