package domain

import (
	"k8s.io/apimachinery/pkg/labels"
)

// FieldChange records one identity field that differs between refs.
type FieldChange struct {
	Field string `json:"field"`
	Base  string `json:"base"`
	Head  string `json:"head"`
}

// Drift is the difference between the identity of a release at the base
// ref and at the head ref.
type Drift struct {
	Changes []FieldChange

	// SelectorChanged is set when the selector labels differ. Workload
	// selectors are immutable, so such a change cannot be upgraded in place.
	SelectorChanged bool
}

// Breaking reports whether the drift would break an in-place upgrade.
func (d Drift) Breaking() bool {
	return d.SelectorChanged
}

// Empty reports whether base and head resolve identically.
func (d Drift) Empty() bool {
	return len(d.Changes) == 0
}

// Compare diffs two identities field by field.
func Compare(base, head Identity) Drift {
	var d Drift
	add := func(field, b, h string) {
		if b != h {
			d.Changes = append(d.Changes, FieldChange{Field: field, Base: b, Head: h})
		}
	}

	add("name", base.Name, head.Name)
	add("fullName", base.FullName, head.FullName)
	add("chartLabel", base.ChartLabel, head.ChartLabel)
	add("serviceAccountName", base.ServiceAccountName, head.ServiceAccountName)

	for _, key := range mergedKeys(base.CommonLabels, head.CommonLabels) {
		add("labels."+key, base.CommonLabels[key], head.CommonLabels[key])
	}

	d.SelectorChanged = !base.SelectorLabels.Equal(head.SelectorLabels)
	return d
}

// SelectsOwnLabels reports whether the selector labels match the common
// labels, i.e. a workload built from this identity selects its own pods.
func SelectsOwnLabels(id Identity) bool {
	selector := labels.SelectorFromSet(labels.Set(id.SelectorLabels))
	return selector.Matches(labels.Set(id.CommonLabels))
}

func mergedKeys(a, b Labels) []string {
	merged := make(Labels, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged.Keys()
}
