package githubin

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

const testSecret = "test-webhook-secret"

// recorder captures every PR it is asked to check. When gate is set,
// Execute blocks until a value is sent on it.
type recorder struct {
	mu      sync.Mutex
	prs     []domain.PRContext
	gate    chan struct{}
	running atomic.Int32
	err     error
}

func (r *recorder) Execute(_ context.Context, pr domain.PRContext) error {
	r.running.Add(1)
	defer r.running.Add(-1)
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.prs = append(r.prs, pr)
	r.mu.Unlock()
	return r.err
}

func (r *recorder) checked() []domain.PRContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PRContext(nil), r.prs...)
}

func newHandler(uc *recorder) *WebhookHandler {
	return NewWebhookHandler(uc, testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func delivery(tb testing.TB, event string, body any) *http.Request {
	tb.Helper()
	raw, ok := body.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(tb, err)
	}
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(raw)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

var repository = map[string]any{
	"name":  "gitops",
	"owner": map[string]any{"login": "acme"},
}

func pullRequestEvent(action string, draft bool) map[string]any {
	return map[string]any{
		"action": action,
		"number": 42,
		"pull_request": map[string]any{
			"draft": draft,
			"head":  map[string]any{"ref": "rename-api", "sha": "abc123"},
			"base":  map[string]any{"ref": "main"},
		},
		"repository": repository,
	}
}

func checkRunEvent(action string) map[string]any {
	return map[string]any{
		"action": action,
		"check_run": map[string]any{
			"name": "chart-ident",
			"pull_requests": []any{
				map[string]any{
					"number": 42,
					"head":   map[string]any{"ref": "rename-api", "sha": "def456"},
					"base":   map[string]any{"ref": "main"},
				},
			},
		},
		"repository": repository,
	}
}

func serve(h *WebhookHandler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTP(t *testing.T) {
	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantPRs    []domain.PRContext
	}{
		{
			name: "bad signature",
			req: func(t *testing.T) *http.Request {
				r := delivery(t, "pull_request", pullRequestEvent("opened", false))
				r.Header.Set("X-Hub-Signature-256", "sha256=bad")
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "malformed payload",
			req: func(t *testing.T) *http.Request {
				return delivery(t, "pull_request", []byte(`{"action":`))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "ping",
			req: func(t *testing.T) *http.Request {
				return delivery(t, "ping", map[string]any{"zen": "Keep it logically awesome.", "hook_id": 7})
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "push is ignored",
			req: func(t *testing.T) *http.Request {
				return delivery(t, "push", map[string]any{"ref": "refs/heads/main"})
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "draft is skipped",
			req: func(t *testing.T) *http.Request {
				return delivery(t, "pull_request", pullRequestEvent("opened", true))
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "synchronize is checked",
			req: func(t *testing.T) *http.Request {
				return delivery(t, "pull_request", pullRequestEvent("synchronize", false))
			},
			wantStatus: http.StatusAccepted,
			wantPRs: []domain.PRContext{{
				Owner: "acme", Repo: "gitops", PRNumber: 42,
				BaseRef: "main", HeadRef: "rename-api", HeadSHA: "abc123",
			}},
		},
		{
			name: "check run re-run is checked",
			req: func(t *testing.T) *http.Request {
				return delivery(t, "check_run", checkRunEvent("rerequested"))
			},
			wantStatus: http.StatusAccepted,
			wantPRs: []domain.PRContext{{
				Owner: "acme", Repo: "gitops", PRNumber: 42,
				BaseRef: "main", HeadRef: "rename-api", HeadSHA: "def456",
			}},
		},
		{
			name: "completed check run is ignored",
			req: func(t *testing.T) *http.Request {
				return delivery(t, "check_run", checkRunEvent("completed"))
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &recorder{err: errors.New("logged, not returned")}
			h := newHandler(uc)

			rec := serve(h, tt.req(t))
			require.NoError(t, h.Drain(context.Background()))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantPRs, uc.checked())
		})
	}
}

func TestServeHTTP_PullRequestActions(t *testing.T) {
	for action, checked := range map[string]bool{
		"opened":           true,
		"synchronize":      true,
		"reopened":         true,
		"ready_for_review": true,
		"closed":           false,
		"edited":           false,
		"labeled":          false,
	} {
		t.Run(action, func(t *testing.T) {
			uc := &recorder{}
			h := newHandler(uc)

			rec := serve(h, delivery(t, "pull_request", pullRequestEvent(action, false)))
			require.NoError(t, h.Drain(context.Background()))

			if checked {
				assert.Equal(t, http.StatusAccepted, rec.Code)
				assert.Len(t, uc.checked(), 1)
			} else {
				assert.Equal(t, http.StatusOK, rec.Code)
				assert.Empty(t, uc.checked())
			}
		})
	}
}

func TestDrain_WaitsForRunningChecks(t *testing.T) {
	uc := &recorder{gate: make(chan struct{})}
	h := newHandler(uc)

	serve(h, delivery(t, "pull_request", pullRequestEvent("opened", false)))
	require.Eventually(t, func() bool { return uc.running.Load() == 1 }, 2*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Drain(ctx), context.DeadlineExceeded)

	close(uc.gate)
	require.NoError(t, h.Drain(context.Background()))
	assert.Len(t, uc.checked(), 1)
}

// blockingCheck runs until its context ends and records why it stopped.
type blockingCheck struct {
	started chan struct{}
	stopped chan error
}

func (b *blockingCheck) Execute(ctx context.Context, _ domain.PRContext) error {
	close(b.started)
	<-ctx.Done()
	b.stopped <- ctx.Err()
	return ctx.Err()
}

func TestDrain_CancelsChecksWhenDeadlinePasses(t *testing.T) {
	uc := &blockingCheck{started: make(chan struct{}), stopped: make(chan error, 1)}
	h := NewWebhookHandler(uc, testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))

	serve(h, delivery(t, "pull_request", pullRequestEvent("opened", false)))
	select {
	case <-uc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("check never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Drain(ctx), context.DeadlineExceeded)

	select {
	case err := <-uc.stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("check kept running after drain gave up")
	}
	require.NoError(t, h.Drain(context.Background()))
}

func TestServeHTTP_DoesNotWaitForFreeSlot(t *testing.T) {
	uc := &recorder{gate: make(chan struct{})}
	h := newHandler(uc)
	h.slots = make(chan struct{}, 1)

	serve(h, delivery(t, "pull_request", pullRequestEvent("opened", false)))
	require.Eventually(t, func() bool { return uc.running.Load() == 1 }, 2*time.Second, time.Millisecond)

	start := time.Now()
	rec := serve(h, delivery(t, "pull_request", pullRequestEvent("synchronize", false)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	close(uc.gate)
	require.NoError(t, h.Drain(context.Background()))
	assert.Len(t, uc.checked(), 2)
}

func BenchmarkServeHTTP(b *testing.B) {
	h := newHandler(&recorder{})
	body, err := json.Marshal(pullRequestEvent("opened", false))
	require.NoError(b, err)

	b.ReportAllocs()
	for range b.N {
		serve(h, delivery(b, "pull_request", body))
	}
	require.NoError(b, h.Drain(context.Background()))
}
