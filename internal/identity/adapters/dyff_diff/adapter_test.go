package dyffdiff

import (
	"strings"
	"testing"
)

const baseIdentity = `chartLabel: api-1.0.0
commonLabels:
  app.kubernetes.io/instance: prod
  app.kubernetes.io/name: api
fullName: prod-api
`

func TestAdapter_ComputeDiff_Identical(t *testing.T) {
	diff := New(nil).ComputeDiff("api/prod (main)", "api/prod (feature)", []byte(baseIdentity), []byte(baseIdentity))

	if diff != "" {
		t.Errorf("Expected empty diff for identical YAML, but got:\n%s", diff)
	}
}

func TestAdapter_ComputeDiff_KeyOrderIsIgnored(t *testing.T) {
	reordered := `fullName: prod-api
commonLabels:
  app.kubernetes.io/name: api
  app.kubernetes.io/instance: prod
chartLabel: api-1.0.0
`
	diff := New(nil).ComputeDiff("a", "b", []byte(baseIdentity), []byte(reordered))

	if diff != "" {
		t.Errorf("Expected no semantic changes for reordered keys, got:\n%s", diff)
	}
}

func TestAdapter_ComputeDiff_Different(t *testing.T) {
	head := strings.Replace(baseIdentity, "app.kubernetes.io/name: api", "app.kubernetes.io/name: ingest", 1)

	diff := New(nil).ComputeDiff("api/prod (main)", "api/prod (feature)", []byte(baseIdentity), []byte(head))

	if diff == "" {
		t.Fatal("Expected non-empty diff for different YAML")
	}
	for _, want := range []string{"--- api/prod (main)", "+++ api/prod (feature)", "ingest"} {
		if !strings.Contains(diff, want) {
			t.Errorf("Expected diff to contain %q, got:\n%s", want, diff)
		}
	}
	if strings.Contains(diff, "_        __  __") {
		t.Error("Expected no dyff banner")
	}
}

func TestAdapter_ComputeDiff_EmptyBase(t *testing.T) {
	// A chart new in head has no base document; the line diff covers
	// this case, so only make sure it does not fail.
	diff := New(nil).ComputeDiff("api/prod (main)", "api/prod (feature)", nil, []byte(baseIdentity))
	t.Logf("Diff output (len=%d): %q", len(diff), diff)
}

func TestAdapter_ComputeDiff_InvalidYAML(t *testing.T) {
	diff := New(nil).ComputeDiff("a", "b", []byte("key: [unclosed"), []byte(baseIdentity))

	if diff != "" {
		t.Errorf("Expected empty diff for unparsable input, got:\n%s", diff)
	}
}
