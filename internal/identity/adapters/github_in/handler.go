// Package githubin receives GitHub webhook deliveries and turns them into
// identity checks.
package githubin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	gogithub "github.com/google/go-github/v68/github"
	"go.opentelemetry.io/otel/trace"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
	"github.com/nathantilsley/chart-ident/internal/identity/ports"
)

// DefaultMaxConcurrentChecks bounds how many checks run at once.
const DefaultMaxConcurrentChecks = 5

// pull_request actions that change what a check would report
var checkedActions = map[string]bool{
	"opened":           true,
	"synchronize":      true,
	"reopened":         true,
	"ready_for_review": true,
}

// WebhookHandler verifies deliveries and dispatches checks in the background.
type WebhookHandler struct {
	useCase  ports.CheckUseCase
	secret   []byte
	logger   *slog.Logger
	slots    chan struct{}
	inflight sync.WaitGroup

	// checks run under base; Drain cancels it when it gives up waiting
	base   context.Context
	cancel context.CancelFunc
}

// NewWebhookHandler returns a handler that verifies deliveries with secret.
func NewWebhookHandler(uc ports.CheckUseCase, secret string, logger *slog.Logger) *WebhookHandler {
	base, cancel := context.WithCancel(context.Background())
	return &WebhookHandler{
		useCase: uc,
		secret:  []byte(secret),
		logger:  logger,
		slots:   make(chan struct{}, DefaultMaxConcurrentChecks),
		base:    base,
		cancel:  cancel,
	}
}

// ServeHTTP answers 202 once a check has been queued and 200 for deliveries
// that need no check.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := gogithub.ValidatePayload(r, h.secret)
	if err != nil {
		h.logger.Warn("rejected webhook delivery", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := gogithub.WebHookType(r)
	event, err := gogithub.ParseWebHook(eventType, payload)
	if err != nil {
		h.logger.Error("unparseable webhook delivery", "event", eventType, "error", err)
		http.Error(w, "failed to parse webhook", http.StatusBadRequest)
		return
	}

	var prs []domain.PRContext
	switch e := event.(type) {
	case *gogithub.PingEvent:
		h.logger.Info("webhook ping", "hookID", e.GetHookID(), "zen", e.GetZen())
	case *gogithub.PullRequestEvent:
		prs = pullRequestTargets(e, h.logger)
	case *gogithub.CheckRunEvent:
		prs = rerequestedTargets(e)
	}

	if len(prs) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}

	// GitHub gives up on a delivery after 10s; checks outlive the request
	// but keep its span as their remote parent.
	ctx := trace.ContextWithRemoteSpanContext(h.base,
		trace.SpanContextFromContext(r.Context()))
	for _, pr := range prs {
		h.dispatch(ctx, eventType, pr)
	}
	w.WriteHeader(http.StatusAccepted)
}

func pullRequestTargets(e *gogithub.PullRequestEvent, log *slog.Logger) []domain.PRContext {
	if !checkedActions[e.GetAction()] {
		return nil
	}
	pr := e.GetPullRequest()
	if pr.GetDraft() {
		log.Debug("skipping draft pull request", "pr", e.GetNumber())
		return nil
	}
	return []domain.PRContext{{
		Owner:    e.GetRepo().GetOwner().GetLogin(),
		Repo:     e.GetRepo().GetName(),
		PRNumber: e.GetNumber(),
		BaseRef:  pr.GetBase().GetRef(),
		HeadRef:  pr.GetHead().GetRef(),
		HeadSHA:  pr.GetHead().GetSHA(),
	}}
}

// rerequestedTargets handles the "Re-run" button on a check run, which
// GitHub only delivers to the app that created the run.
func rerequestedTargets(e *gogithub.CheckRunEvent) []domain.PRContext {
	if e.GetAction() != "rerequested" {
		return nil
	}
	prs := make([]domain.PRContext, 0, len(e.GetCheckRun().PullRequests))
	for _, pr := range e.GetCheckRun().PullRequests {
		prs = append(prs, domain.PRContext{
			Owner:    e.GetRepo().GetOwner().GetLogin(),
			Repo:     e.GetRepo().GetName(),
			PRNumber: pr.GetNumber(),
			BaseRef:  pr.GetBase().GetRef(),
			HeadRef:  pr.GetHead().GetRef(),
			HeadSHA:  pr.GetHead().GetSHA(),
		})
	}
	return prs
}

func (h *WebhookHandler) dispatch(ctx context.Context, trigger string, pr domain.PRContext) {
	log := h.logger.With(
		slog.String("pr", fmt.Sprintf("%s/%s#%d", pr.Owner, pr.Repo, pr.PRNumber)),
		slog.String("sha", pr.HeadSHA),
	)
	log.Info("queueing identity check", "trigger", trigger)

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		select {
		case h.slots <- struct{}{}:
		case <-ctx.Done():
			log.Warn("identity check dropped before start", "error", ctx.Err())
			return
		}
		defer func() { <-h.slots }()

		if err := h.useCase.Execute(ctx, pr); err != nil {
			log.Error("identity check failed", "error", err)
		}
	}()
}

// Drain blocks until every dispatched check has finished or ctx is done.
// When ctx ends first, the remaining checks are cancelled.
func (h *WebhookHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.cancel()
		return ctx.Err()
	}
}
