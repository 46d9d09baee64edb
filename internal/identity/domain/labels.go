package domain

import (
	"maps"
	"slices"
)

// Recommended labels.
// See: https://kubernetes.io/docs/concepts/overview/working-with-objects/common-labels/
// See: https://helm.sh/docs/chart_best_practices/labels/
const (
	LabelName      = "app.kubernetes.io/name"
	LabelInstance  = "app.kubernetes.io/instance"
	LabelVersion   = "app.kubernetes.io/version"
	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelHelmChart = "helm.sh/chart"
)

// Labels is a flat label set.
type Labels map[string]string

// Keys returns the label keys in sorted order.
func (l Labels) Keys() []string {
	return slices.Sorted(maps.Keys(l))
}

// Equal reports whether both sets hold the same keys and values.
func (l Labels) Equal(other Labels) bool {
	return maps.Equal(l, other)
}

// ResolveSelectorLabels returns the two identity labels workload
// controllers select on. These must never change for a release.
func ResolveSelectorLabels(chart ChartMetadata, release ReleaseMetadata, values UserValues) Labels {
	return Labels{
		LabelName:     ResolveName(chart, values),
		LabelInstance: release.Name,
	}
}

// ResolveCommonLabels returns the selector labels plus chart, version
// and managed-by labels. The version label is only set when the chart
// declares an appVersion.
func ResolveCommonLabels(chart ChartMetadata, release ReleaseMetadata, values UserValues) Labels {
	labels := ResolveSelectorLabels(chart, release, values)
	labels[LabelHelmChart] = ResolveChartLabel(chart)
	if chart.AppVersion != "" {
		labels[LabelVersion] = chart.AppVersion
	}
	labels[LabelManagedBy] = release.releaseService()
	return labels
}
