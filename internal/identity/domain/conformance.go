package domain

import "fmt"

// HelperOutput is what a chart's own naming helpers rendered to. A field
// is left empty when the chart does not define the matching helper.
type HelperOutput struct {
	Name               string `json:"name,omitempty"`
	FullName           string `json:"fullName,omitempty"`
	Chart              string `json:"chart,omitempty"`
	ServiceAccountName string `json:"serviceAccountName,omitempty"`
	SelectorLabels     Labels `json:"selectorLabels,omitempty"`
	Labels             Labels `json:"labels,omitempty"`
}

// CheckConformance reports every helper output that differs from the
// resolved identity. Helpers the chart does not define are not compared.
func CheckConformance(id Identity, out HelperOutput) []Finding {
	var findings []Finding
	compare := func(field, rendered, resolved string) {
		if rendered != "" && rendered != resolved {
			findings = append(findings, Finding{
				Kind:    FindingNonConformant,
				Field:   field,
				Message: fmt.Sprintf("chart helper renders %q, resolver derives %q", rendered, resolved),
			})
		}
	}

	compare("name", out.Name, id.Name)
	compare("fullName", out.FullName, id.FullName)
	compare("chartLabel", out.Chart, id.ChartLabel)
	compare("serviceAccountName", out.ServiceAccountName, id.ServiceAccountName)

	compareLabels := func(prefix string, rendered, resolved Labels) {
		if rendered == nil {
			return
		}
		for _, key := range mergedKeys(rendered, resolved) {
			got, inRendered := rendered[key]
			want, inResolved := resolved[key]
			switch {
			case !inResolved:
				findings = append(findings, Finding{
					Kind:    FindingNonConformant,
					Field:   prefix + key,
					Message: fmt.Sprintf("chart helper adds label with value %q", got),
				})
			case !inRendered:
				findings = append(findings, Finding{
					Kind:    FindingNonConformant,
					Field:   prefix + key,
					Message: fmt.Sprintf("chart helper omits label, resolver derives %q", want),
				})
			case got != want:
				compare(prefix+key, got, want)
			}
		}
	}

	compareLabels("selectorLabels.", out.SelectorLabels, id.SelectorLabels)
	compareLabels("labels.", out.Labels, id.CommonLabels)
	return findings
}
