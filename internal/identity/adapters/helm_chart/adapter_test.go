package helmchart

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

var headChart = filepath.Join("..", "..", "testdata", "head", "api")

func TestLoad(t *testing.T) {
	release := domain.ReleaseMetadata{Name: "prod", Namespace: "data", Service: "Helm"}

	tests := []struct {
		name string
		env  domain.EnvironmentConfig
		want domain.UserValues
	}{
		{
			name: "chart defaults only",
			env:  domain.EnvironmentConfig{Name: "default"},
			want: domain.UserValues{ServiceAccount: domain.ServiceAccountValues{Create: true}},
		},
		{
			name: "values file overrides name",
			env:  domain.EnvironmentConfig{Name: "prod", ValueFiles: []string{"env/prod-values.yaml"}},
			want: domain.UserValues{
				NameOverride:   "api-server",
				ServiceAccount: domain.ServiceAccountValues{Create: true},
			},
		},
		{
			name: "nested service account block",
			env:  domain.EnvironmentConfig{Name: "eu", ValueFiles: []string{"env/eu-values.yaml"}},
			want: domain.UserValues{ServiceAccount: domain.ServiceAccountValues{Name: "shared-reader"}},
		},
		{
			name: "set overrides win over files",
			env: domain.EnvironmentConfig{
				Name:       "prod",
				ValueFiles: []string{"env/prod-values.yaml"},
				SetValues:  []string{"nameOverride=gateway", "fullnameOverride=edge", "serviceAccount.create=false"},
			},
			want: domain.UserValues{NameOverride: "gateway", FullnameOverride: "edge"},
		},
	}

	a := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := a.Load(context.Background(), headChart, tt.env, release)
			require.NoError(t, err)

			assert.Equal(t, domain.ChartMetadata{Name: "api", Version: "1.1.0+build5", AppVersion: "1.1.0"}, in.Chart)
			assert.Equal(t, release, in.Release)
			assert.Equal(t, tt.want, in.Values)
		})
	}
}

func TestLoad_MissingValuesFile(t *testing.T) {
	env := domain.EnvironmentConfig{Name: "qa", ValueFiles: []string{"env/qa-values.yaml"}}

	_, err := New(nil).Load(context.Background(), headChart, env, domain.ReleaseMetadata{Name: "qa"})

	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err), "want NotFoundError, got %v", err)
}

func TestLoad_MissingChart(t *testing.T) {
	_, err := New(nil).Load(context.Background(), t.TempDir(), domain.EnvironmentConfig{}, domain.ReleaseMetadata{})

	require.Error(t, err)
	assert.False(t, domain.IsNotFound(err))
}

func TestUserValues(t *testing.T) {
	tests := []struct {
		name string
		vals map[string]interface{}
		want domain.UserValues
	}{
		{"empty", map[string]interface{}{}, domain.UserValues{}},
		{
			"non-string override is printed",
			map[string]interface{}{"nameOverride": 42},
			domain.UserValues{NameOverride: "42"},
		},
		{
			"service account not a table",
			map[string]interface{}{"serviceAccount": "yes"},
			domain.UserValues{},
		},
		{
			"non-empty string is truthy",
			map[string]interface{}{"serviceAccount": map[string]interface{}{"create": "false"}},
			domain.UserValues{ServiceAccount: domain.ServiceAccountValues{Create: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserValues(tt.vals))
		})
	}
}
