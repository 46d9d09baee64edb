package domain

import (
	"fmt"
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

// FindingKind classifies a finding raised against a resolved identity.
type FindingKind string

const (
	FindingTruncated          FindingKind = "truncated"
	FindingInvalidLabel       FindingKind = "invalid-label"
	FindingInvalidName        FindingKind = "invalid-name"
	FindingPartialContainment FindingKind = "partial-containment"
	FindingCollision          FindingKind = "collision"
	FindingNonConformant      FindingKind = "non-conformant-helpers"
)

// Finding is a warning about an identity. Findings never change the
// resolved values; they are reported alongside them.
type Finding struct {
	Kind    FindingKind
	Field   string
	Message string
}

// String formats the finding for reports.
func (f Finding) String() string {
	if f.Field == "" {
		return fmt.Sprintf("[%s] %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Kind, f.Field, f.Message)
}

// Validate checks a resolved identity against Kubernetes naming rules and
// flags surprising results of the resolution conventions.
func Validate(id Identity) []Finding {
	var findings []Finding
	in := id.Input

	if wasTruncated(nameSource(in)) {
		findings = append(findings, Finding{
			Kind:    FindingTruncated,
			Field:   "name",
			Message: fmt.Sprintf("cut to %d characters as %q", MaxNameLength, id.Name),
		})
	}
	if wasTruncated(fullNameSource(in)) {
		findings = append(findings, Finding{
			Kind:    FindingTruncated,
			Field:   "fullName",
			Message: fmt.Sprintf("cut to %d characters as %q; distinct releases may collide", MaxNameLength, id.FullName),
		})
	}
	if wasTruncated(in.Chart.Name + "-" + in.Chart.Version) {
		findings = append(findings, Finding{
			Kind:    FindingTruncated,
			Field:   LabelHelmChart,
			Message: fmt.Sprintf("cut to %d characters as %q", MaxNameLength, id.ChartLabel),
		})
	}

	for _, msg := range validation.IsDNS1123Label(id.FullName) {
		findings = append(findings, Finding{Kind: FindingInvalidName, Field: "fullName", Message: msg})
	}

	// An explicit account name is used verbatim; a derived one is the
	// full name, already checked above.
	if sa := in.Values.ServiceAccount.Name; sa != "" {
		if len(sa) > MaxNameLength || strings.HasSuffix(sa, "-") {
			findings = append(findings, Finding{
				Kind:    FindingInvalidName,
				Field:   "serviceAccountName",
				Message: fmt.Sprintf("explicit name %q is not cut to %d characters or trimmed of trailing '-'", sa, MaxNameLength),
			})
		}
		for _, msg := range validation.IsDNS1123Subdomain(sa) {
			findings = append(findings, Finding{Kind: FindingInvalidName, Field: "serviceAccountName", Message: msg})
		}
	}

	for _, key := range id.CommonLabels.Keys() {
		for _, msg := range validation.IsValidLabelValue(id.CommonLabels[key]) {
			findings = append(findings, Finding{Kind: FindingInvalidLabel, Field: key, Message: msg})
		}
	}

	if in.Values.FullnameOverride == "" {
		name := ResolveName(in.Chart, in.Values)
		if strings.Contains(in.Release.Name, name) && !containsSegment(in.Release.Name, name) {
			findings = append(findings, Finding{
				Kind:  FindingPartialContainment,
				Field: "fullName",
				Message: fmt.Sprintf("release %q contains %q only inside a word; full name collapsed to the release name",
					in.Release.Name, name),
			})
		}
	}

	return findings
}

// nameSource is the string ResolveName truncates.
func nameSource(in Input) string {
	if in.Values.NameOverride != "" {
		return in.Values.NameOverride
	}
	return in.Chart.Name
}

// fullNameSource is the string ResolveFullName truncates.
func fullNameSource(in Input) string {
	if in.Values.FullnameOverride != "" {
		return in.Values.FullnameOverride
	}
	name := ResolveName(in.Chart, in.Values)
	if strings.Contains(in.Release.Name, name) {
		return in.Release.Name
	}
	return in.Release.Name + "-" + name
}

// containsSegment reports whether name occurs in s as a run of whole
// hyphen-delimited segments ("api" in "test-api", not in "mapi-service").
func containsSegment(s, name string) bool {
	if name == "" {
		return true
	}
	sParts := strings.Split(s, "-")
	nParts := strings.Split(name, "-")
	for i := 0; i+len(nParts) <= len(sParts); i++ {
		if slices.Equal(sParts[i:i+len(nParts)], nParts) {
			return true
		}
	}
	return false
}
