package domain

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// Identity is the full set of names and labels derived for one release.
// It is recomputed on every resolution and never persisted.
type Identity struct {
	Name               string `json:"name"`
	FullName           string `json:"fullName"`
	ChartLabel         string `json:"chartLabel"`
	ServiceAccountName string `json:"serviceAccountName"`
	SelectorLabels     Labels `json:"selectorLabels"`
	CommonLabels       Labels `json:"commonLabels"`

	Input Input `json:"-"`
}

// Resolve computes every derived value for in. It is a pure function.
func Resolve(in Input) Identity {
	fullName := ResolveFullName(in.Chart, in.Release, in.Values)
	return Identity{
		Name:       ResolveName(in.Chart, in.Values),
		FullName:   fullName,
		ChartLabel: ResolveChartLabel(in.Chart),
		ServiceAccountName: ResolveServiceAccountName(in.Values, func() string {
			return fullName
		}),
		SelectorLabels: ResolveSelectorLabels(in.Chart, in.Release, in.Values),
		CommonLabels:   ResolveCommonLabels(in.Chart, in.Release, in.Values),
		Input:          in,
	}
}

// Manifest renders the identity as YAML with sorted keys, the form that
// diff adapters compare between refs.
func (i Identity) Manifest() ([]byte, error) {
	out, err := yaml.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("marshaling identity: %w", err)
	}
	return out, nil
}

// EnvironmentIdentity ties a resolved identity to the environment it was
// resolved for.
type EnvironmentIdentity struct {
	Environment string
	Identity    Identity
}
