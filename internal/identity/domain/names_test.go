package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveName(t *testing.T) {
	tests := []struct {
		name   string
		chart  ChartMetadata
		values UserValues
		want   string
	}{
		{
			name:  "chart name by default",
			chart: ChartMetadata{Name: "api"},
			want:  "api",
		},
		{
			name:   "nameOverride wins",
			chart:  ChartMetadata{Name: "api"},
			values: UserValues{NameOverride: "ingest"},
			want:   "ingest",
		},
		{
			name:  "truncated to 63",
			chart: ChartMetadata{Name: strings.Repeat("a", 70)},
			want:  strings.Repeat("a", 63),
		},
		{
			name:  "trailing hyphen after truncation is stripped",
			chart: ChartMetadata{Name: strings.Repeat("a", 62) + "-bbb"},
			want:  strings.Repeat("a", 62),
		},
		{
			name:  "every trailing hyphen is stripped",
			chart: ChartMetadata{Name: strings.Repeat("a", 61) + "---bbb"},
			want:  strings.Repeat("a", 61),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveName(tt.chart, tt.values))
		})
	}
}

func TestResolveFullName(t *testing.T) {
	tests := []struct {
		name    string
		chart   ChartMetadata
		release ReleaseMetadata
		values  UserValues
		want    string
	}{
		{
			name:    "release already contains chart name",
			chart:   ChartMetadata{Name: "api"},
			release: ReleaseMetadata{Name: "test-api"},
			want:    "test-api",
		},
		{
			name:    "release and chart name are concatenated",
			chart:   ChartMetadata{Name: "api"},
			release: ReleaseMetadata{Name: "prod"},
			want:    "prod-api",
		},
		{
			name:    "release equal to chart name",
			chart:   ChartMetadata{Name: "api"},
			release: ReleaseMetadata{Name: "api"},
			want:    "api",
		},
		{
			name:    "containment is a plain substring match",
			chart:   ChartMetadata{Name: "api"},
			release: ReleaseMetadata{Name: "mapi-service"},
			want:    "mapi-service",
		},
		{
			name:    "nameOverride feeds containment",
			chart:   ChartMetadata{Name: "api"},
			release: ReleaseMetadata{Name: "prod"},
			values:  UserValues{NameOverride: "ingest"},
			want:    "prod-ingest",
		},
		{
			name:    "fullnameOverride wins",
			chart:   ChartMetadata{Name: "api"},
			release: ReleaseMetadata{Name: "prod"},
			values:  UserValues{FullnameOverride: "data-api"},
			want:    "data-api",
		},
		{
			name:    "fullnameOverride is truncated and trimmed",
			chart:   ChartMetadata{Name: "api"},
			release: ReleaseMetadata{Name: "prod"},
			values:  UserValues{FullnameOverride: strings.Repeat("x", 62) + "-yz"},
			want:    strings.Repeat("x", 62),
		},
		{
			name:    "long concatenation is truncated",
			chart:   ChartMetadata{Name: "api"},
			release: ReleaseMetadata{Name: strings.Repeat("r", 60)},
			want:    strings.Repeat("r", 60) + "-ap",
		},
		{
			name:    "truncation landing on the separator drops it",
			chart:   ChartMetadata{Name: "api"},
			release: ReleaseMetadata{Name: strings.Repeat("r", 62)},
			want:    strings.Repeat("r", 62),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFullName(tt.chart, tt.release, tt.values))
		})
	}
}

func TestResolveChartLabel(t *testing.T) {
	tests := []struct {
		name  string
		chart ChartMetadata
		want  string
	}{
		{"plain version", ChartMetadata{Name: "api", Version: "1.0.0"}, "api-1.0.0"},
		{"build metadata", ChartMetadata{Name: "api", Version: "1.0.0+build5"}, "api-1.0.0_build5"},
		{"every plus replaced", ChartMetadata{Name: "api", Version: "1.0.0+a+b"}, "api-1.0.0_a_b"},
		{
			"truncated",
			ChartMetadata{Name: strings.Repeat("c", 60), Version: "10.2.3"},
			strings.Repeat("c", 60) + "-10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveChartLabel(tt.chart))
		})
	}
}

func TestResolveServiceAccountName(t *testing.T) {
	fullName := func() string { return "prod-api" }

	tests := []struct {
		name   string
		values UserValues
		want   string
	}{
		{"create without name uses full name", UserValues{ServiceAccount: ServiceAccountValues{Create: true}}, "prod-api"},
		{"create with name", UserValues{ServiceAccount: ServiceAccountValues{Create: true, Name: "ingest"}}, "ingest"},
		{"no create without name is default", UserValues{}, "default"},
		{"no create with name", UserValues{ServiceAccount: ServiceAccountValues{Name: "shared"}}, "shared"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveServiceAccountName(tt.values, fullName))
		})
	}
}

func TestResolveServiceAccountName_FullNameOnlyWhenCreating(t *testing.T) {
	called := false
	got := ResolveServiceAccountName(UserValues{}, func() string {
		called = true
		return "unused"
	})

	assert.Equal(t, DefaultServiceAccountName, got)
	assert.False(t, called, "full name should not be resolved when the account is not created")
}

func TestResolve(t *testing.T) {
	in := Input{
		Chart:   ChartMetadata{Name: "api", Version: "1.0.0+build5", AppVersion: "2.3.1"},
		Release: ReleaseMetadata{Name: "prod", Namespace: "data"},
		Values:  UserValues{ServiceAccount: ServiceAccountValues{Create: true}},
	}

	id := Resolve(in)

	assert.Equal(t, "api", id.Name)
	assert.Equal(t, "prod-api", id.FullName)
	assert.Equal(t, "api-1.0.0_build5", id.ChartLabel)
	assert.Equal(t, "prod-api", id.ServiceAccountName)
	assert.Equal(t, Labels{
		LabelName:     "api",
		LabelInstance: "prod",
	}, id.SelectorLabels)
	assert.Equal(t, Labels{
		LabelName:      "api",
		LabelInstance:  "prod",
		LabelHelmChart: "api-1.0.0_build5",
		LabelVersion:   "2.3.1",
		LabelManagedBy: "Helm",
	}, id.CommonLabels)
	assert.Equal(t, in, id.Input)
}

func TestResolve_Idempotent(t *testing.T) {
	in := Input{
		Chart:   ChartMetadata{Name: "api", Version: "0.1.0"},
		Release: ReleaseMetadata{Name: "test-api", Service: "Tiller"},
		Values:  UserValues{NameOverride: "api"},
	}

	first := Resolve(in)
	second := Resolve(in)

	require.Equal(t, first, second)

	a, err := first.Manifest()
	require.NoError(t, err)
	b, err := second.Manifest()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestResolve_NamesNeverExceedLimitOrEndInHyphen(t *testing.T) {
	names := []string{
		"", "a", "api", "-", "api-", strings.Repeat("-", 80),
		strings.Repeat("ab-", 30), strings.Repeat("x", 63), strings.Repeat("y", 64),
		strings.Repeat("z", 62) + "-", strings.Repeat("q", 40) + "-" + strings.Repeat("w", 40),
	}

	for _, chartName := range names {
		for _, releaseName := range names {
			for _, override := range []string{"", chartName + "-override-"} {
				in := Input{
					Chart:   ChartMetadata{Name: chartName, Version: "1.0.0+meta-"},
					Release: ReleaseMetadata{Name: releaseName},
					Values:  UserValues{NameOverride: override, FullnameOverride: override},
				}
				id := Resolve(in)
				for field, v := range map[string]string{
					"name": id.Name, "fullName": id.FullName, "chartLabel": id.ChartLabel,
				} {
					assert.LessOrEqualf(t, len(v), MaxNameLength, "%s too long for %+v", field, in)
					assert.Falsef(t, strings.HasSuffix(v, "-"), "%s %q ends in '-'", field, v)
				}
			}
		}
	}
}
