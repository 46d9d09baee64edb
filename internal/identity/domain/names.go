package domain

import "strings"

// MaxNameLength is the DNS-1123 label limit that Kubernetes applies to
// object names and label values.
const MaxNameLength = 63

// DefaultServiceAccountName is the account used when the chart neither
// creates one nor names one.
const DefaultServiceAccountName = "default"

// DefaultReleaseService is the managed-by value Helm injects into .Release.Service.
const DefaultReleaseService = "Helm"

// ChartMetadata is the subset of Chart.yaml that feeds naming.
type ChartMetadata struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	AppVersion string `json:"appVersion,omitempty"`
}

// ReleaseMetadata describes one installed instance of a chart.
type ReleaseMetadata struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
	Service   string `json:"service,omitempty"` // managing tool, "Helm" when empty
}

// ServiceAccountValues mirrors the conventional serviceAccount values block.
type ServiceAccountValues struct {
	Create bool   `json:"create"`
	Name   string `json:"name,omitempty"`
}

// UserValues holds the naming overrides read from merged chart values.
// Empty strings are treated as unset.
type UserValues struct {
	NameOverride     string               `json:"nameOverride,omitempty"`
	FullnameOverride string               `json:"fullnameOverride,omitempty"`
	ServiceAccount   ServiceAccountValues `json:"serviceAccount"`
}

// Input is everything a single resolution pass reads.
type Input struct {
	Chart   ChartMetadata   `json:"chart"`
	Release ReleaseMetadata `json:"release"`
	Values  UserValues      `json:"values"`
}

// ResolveName returns the chart display name: nameOverride, else the chart name.
func ResolveName(chart ChartMetadata, values UserValues) string {
	name := chart.Name
	if values.NameOverride != "" {
		name = values.NameOverride
	}
	return truncateName(name)
}

// ResolveFullName returns the fully qualified instance name. When the
// release name already contains the resolved name it is used alone so
// that "test-api" does not become "test-api-api".
func ResolveFullName(chart ChartMetadata, release ReleaseMetadata, values UserValues) string {
	if values.FullnameOverride != "" {
		return truncateName(values.FullnameOverride)
	}
	name := ResolveName(chart, values)
	if strings.Contains(release.Name, name) {
		return truncateName(release.Name)
	}
	return truncateName(release.Name + "-" + name)
}

// ResolveChartLabel returns the helm.sh/chart label value. Build metadata
// in the version ("+build5") is not label-safe, so "+" becomes "_".
func ResolveChartLabel(chart ChartMetadata) string {
	label := chart.Name + "-" + chart.Version
	return truncateName(strings.ReplaceAll(label, "+", "_"))
}

// ResolveServiceAccountName picks the service account for the release.
// fullName is only called when the chart creates its own account.
func ResolveServiceAccountName(values UserValues, fullName func() string) string {
	if values.ServiceAccount.Name != "" {
		return values.ServiceAccount.Name
	}
	if values.ServiceAccount.Create {
		return fullName()
	}
	return DefaultServiceAccountName
}

// releaseService returns the managing tool, defaulting to Helm.
func (r ReleaseMetadata) releaseService() string {
	if r.Service == "" {
		return DefaultReleaseService
	}
	return r.Service
}

// truncateName applies the `trunc 63 | trimSuffix "-"` convention. Every
// trailing hyphen is removed so the result never ends in "-".
func truncateName(s string) string {
	if len(s) > MaxNameLength {
		s = s[:MaxNameLength]
	}
	return strings.TrimRight(s, "-")
}

// wasTruncated reports whether s would be cut by truncateName.
func wasTruncated(s string) bool {
	return len(s) > MaxNameLength
}
