package githubout

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	gogithub "github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

var testPR = domain.PRContext{
	Owner:    "o",
	Repo:     "r",
	PRNumber: 7,
	BaseRef:  "main",
	HeadRef:  "feat/x",
	HeadSHA:  "abc123",
}

func newAdapter(t *testing.T, mux *http.ServeMux) *Adapter {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := gogithub.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return New(client, "chart-ident", "https://example.com/app", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Error(err)
	}
}

func identity(fullName string) *domain.Identity {
	return &domain.Identity{Name: "api", FullName: fullName}
}

func breakingResult() domain.CheckResult {
	return domain.CheckResult{
		ChartName:   "api",
		Environment: "prod",
		Status:      domain.StatusBreaking,
		Head:        identity("prod-api-server"),
		Drift: domain.Drift{
			Changes: []domain.FieldChange{
				{Field: "fullName", Base: "prod-api", Head: "prod-api-server"},
				{Field: "labels.app.kubernetes.io/name", Base: "api", Head: "api-server"},
			},
			SelectorChanged: true,
		},
		SemanticDiff: "semantic",
		UnifiedDiff:  "unified",
		Summary:      "Selector labels changed.",
	}
}

func TestFormatCheckRun(t *testing.T) {
	tests := []struct {
		name           string
		results        []domain.CheckResult
		wantConclusion string
		wantSummary    []string
		wantText       []string
		notText        []string
	}{
		{
			name: "all unchanged",
			results: []domain.CheckResult{
				{ChartName: "api", Environment: "prod", Status: domain.StatusSuccess},
				{ChartName: "web", Environment: "prod", Status: domain.StatusSuccess},
			},
			wantConclusion: "success",
			wantSummary:    []string{"Checked 2 chart(s) across 2 environment(s)", "2 unchanged"},
			wantText:       []string{"## Unchanged charts", "- `api`", "- `web`"},
		},
		{
			name: "changes pass",
			results: []domain.CheckResult{
				{
					ChartName: "api", Environment: "prod", Status: domain.StatusChanges,
					Drift:       domain.Drift{Changes: []domain.FieldChange{{Field: "chartLabel", Base: "api-1.0.0", Head: "api-1.1.0"}}},
					UnifiedDiff: "-chartLabel: api-1.0.0\n+chartLabel: api-1.1.0",
				},
			},
			wantConclusion: "success",
			wantSummary:    []string{"1 changed"},
			wantText:       []string{"## api", "prod: Changed", "| `chartLabel` | `api-1.0.0` | `api-1.1.0` |", "```diff"},
			notText:        []string{"Unchanged charts"},
		},
		{
			name:           "breaking fails",
			results:        []domain.CheckResult{breakingResult()},
			wantConclusion: "failure",
			wantSummary:    []string{"1 breaking", "cannot be upgraded in place"},
			wantText:       []string{"prod: Breaking", "unified"},
		},
		{
			name: "error fails",
			results: []domain.CheckResult{
				{ChartName: "api", Environment: "all", Status: domain.StatusError, Summary: "fetching base: boom"},
			},
			wantConclusion: "failure",
			wantSummary:    []string{"1 failed"},
			wantText:       []string{"all: Error", "fetching base: boom"},
		},
		{
			name: "findings surface an otherwise unchanged chart",
			results: []domain.CheckResult{
				{
					ChartName: "api", Environment: "prod", Status: domain.StatusSuccess,
					Findings: []domain.Finding{{Kind: domain.FindingTruncated, Field: "fullName", Message: "cut to 63"}},
				},
			},
			wantConclusion: "success",
			wantText:       []string{"## api", "[truncated] fullName: cut to 63"},
			notText:        []string{"Unchanged charts"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conclusion, summary, text := formatCheckRun(tt.results)

			assert.Equal(t, tt.wantConclusion, conclusion)
			for _, s := range tt.wantSummary {
				assert.Contains(t, summary, s)
			}
			for _, s := range tt.wantText {
				assert.Contains(t, text, s)
			}
			for _, s := range tt.notText {
				assert.NotContains(t, text, s)
			}
		})
	}
}

func TestFormatPRComment(t *testing.T) {
	a := New(nil, "chart-ident", "https://example.com/app", nil)

	results := []domain.CheckResult{
		breakingResult(),
		{ChartName: "api", Environment: "staging", Status: domain.StatusSuccess, Head: identity("staging-api")},
		{ChartName: "api", Environment: "eu", Status: domain.StatusError, Summary: "values file not found"},
	}

	body := a.FormatPRComment(results)

	assert.True(t, strings.HasPrefix(body, "<!-- chart-ident: api -->\n"))
	assert.Contains(t, body, "Failed to resolve chart identity")
	assert.Contains(t, body, "| `prod` | `prod-api-server` | 🚨 Breaking |")
	assert.Contains(t, body, "| `staging` | `staging-api` | ✅ No changes |")
	assert.Contains(t, body, "| `eu` | - | ❌ Error |")
	assert.Contains(t, body, "semantic", "comments prefer the semantic diff")
	assert.NotContains(t, body, "<b>staging</b>")
	assert.Contains(t, body, "_Posted by [chart-ident](https://example.com/app)_")
}

func TestFormatPRComment_BreakingStatus(t *testing.T) {
	a := New(nil, "chart-ident", "", nil)

	body := a.FormatPRComment([]domain.CheckResult{breakingResult()})

	assert.Contains(t, body, "1 environment(s) change selector labels")
	assert.Contains(t, body, "_Posted by chart-ident_")
}

func TestFormatCheckRunMarkdown(t *testing.T) {
	a := New(nil, "chart-ident", "", nil)

	assert.Empty(t, a.FormatCheckRunMarkdown(nil))

	md := a.FormatCheckRunMarkdown([]domain.CheckResult{breakingResult()})
	assert.Contains(t, md, "# chart-ident\n")
	assert.Contains(t, md, "**Conclusion:** failure")
	assert.Contains(t, md, "### Summary")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	long := strings.Repeat("x", 100)
	got := truncate(long, 50)
	assert.Len(t, got, 50)
	assert.True(t, strings.HasSuffix(got, truncatedSuffix))
}

func TestCheckRunLifecycle(t *testing.T) {
	var (
		mu      sync.Mutex
		created map[string]any
		updated map[string]any
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/check-runs", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		writeJSON(t, w, map[string]any{"id": 42})
	})
	mux.HandleFunc("/repos/o/r/check-runs/42", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
		writeJSON(t, w, map[string]any{"id": 42})
	})

	a := newAdapter(t, mux)
	ctx := context.Background()

	id, err := a.CreateInProgressCheck(ctx, testPR)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "in_progress", created["status"])
	assert.Equal(t, "abc123", created["head_sha"])

	err = a.UpdateCheckWithResults(ctx, testPR, id, []domain.CheckResult{breakingResult()})
	require.NoError(t, err)
	assert.Equal(t, "completed", updated["status"])
	assert.Equal(t, "failure", updated["conclusion"])

	err = a.UpdateCheckWithResults(ctx, testPR, id, nil)
	assert.Error(t, err)
}

func TestPostComment_ReplacesPrevious(t *testing.T) {
	var (
		mu      sync.Mutex
		deleted []string
		posted  string
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("page") == "2" {
				writeJSON(t, w, []map[string]any{
					{"id": 3, "body": "<!-- chart-ident: api -->\nolder"},
				})
				return
			}
			w.Header().Set("Link", `<http://`+r.Host+r.URL.Path+`?page=2>; rel="next"`)
			writeJSON(t, w, []map[string]any{
				{"id": 1, "body": "<!-- chart-ident: api -->\nold"},
				{"id": 2, "body": "<!-- chart-ident: web -->\nother chart"},
			})
		case http.MethodPost:
			var c map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
			mu.Lock()
			posted, _ = c["body"].(string)
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			writeJSON(t, w, map[string]any{"id": 4})
		}
	})
	mux.HandleFunc("/repos/o/r/issues/comments/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		mu.Lock()
		deleted = append(deleted, strings.TrimPrefix(r.URL.Path, "/repos/o/r/issues/comments/"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	a := newAdapter(t, mux)
	err := a.PostComment(context.Background(), testPR, []domain.CheckResult{breakingResult()})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"1", "3"}, deleted)
	assert.Contains(t, posted, "<!-- chart-ident: api -->")
}

func TestPostComment_NoResults(t *testing.T) {
	a := New(nil, "chart-ident", "", nil)
	assert.Error(t, a.PostComment(context.Background(), testPR, nil))
}
