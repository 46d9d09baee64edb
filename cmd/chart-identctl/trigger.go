package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	gogithub "github.com/google/go-github/v68/github"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nathantilsley/chart-ident/internal/platform/config"
	ghclient "github.com/nathantilsley/chart-ident/internal/platform/github"
)

var prURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)(?:/.*)?$`)

type triggerOptions struct {
	webhookURL string
	apiURL     string
}

func newTriggerCmd(a *app) *cobra.Command {
	var opts triggerOptions

	cmd := &cobra.Command{
		Use:   "trigger <pr-url>",
		Short: "Send a signed pull_request webhook for an existing pull request",
		Long: `Fetch a pull request from GitHub and send a signed "synchronize" webhook
for it to a chart-ident server, so the check runs without pushing a commit.

The GitHub token, webhook secret and installation ID are read from flags or
from GITHUB_TOKEN, WEBHOOK_SECRET and GITHUB_INSTALLATION_ID.`,
		Example: `  GITHUB_TOKEN=ghp_xxx chart-identctl trigger https://github.com/owner/repo/pull/123`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTrigger(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.webhookURL, "url", "http://localhost:8080/webhook", "webhook URL")
	flags.StringVar(&opts.apiURL, "github-api-url", "", "GitHub API base URL (default: api.github.com)")
	_ = flags.MarkHidden("github-api-url")

	flags.String("token", "", "GitHub personal access token (env: GITHUB_TOKEN)")
	flags.String("secret", "", "webhook secret used for signing (env: WEBHOOK_SECRET)")
	flags.Int64("installation-id", 0, "GitHub App installation ID (env: GITHUB_INSTALLATION_ID)")
	_ = a.v.BindPFlag(config.KeyGitHubToken, flags.Lookup("token"))
	_ = a.v.BindPFlag(config.KeyWebhookSecret, flags.Lookup("secret"))
	_ = a.v.BindPFlag(config.KeyGitHubInstallationID, flags.Lookup("installation-id"))
	return cmd
}

func (a *app) runTrigger(ctx context.Context, w io.Writer, prURL string, opts triggerOptions) error {
	token := a.v.GetString(config.KeyGitHubToken)
	if token == "" {
		return errors.New("github token required: provide --token or GITHUB_TOKEN")
	}
	secret := a.v.GetString(config.KeyWebhookSecret)
	if secret == "" {
		return errors.New("webhook secret required: provide --secret or WEBHOOK_SECRET")
	}
	installID, err := cast.ToInt64E(a.v.Get(config.KeyGitHubInstallationID))
	if err != nil {
		return fmt.Errorf("invalid installation ID: %w", err)
	}
	if installID == 0 {
		return errors.New("installation ID required: provide --installation-id or GITHUB_INSTALLATION_ID")
	}

	owner, repo, prNum, err := parsePRURL(prURL)
	if err != nil {
		return fmt.Errorf("parsing PR URL: %w", err)
	}

	client, err := ghclient.NewTokenClient(token)
	if err != nil {
		return err
	}
	if opts.apiURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.apiURL, "/") + "/")
		if err != nil {
			return fmt.Errorf("invalid GitHub API URL: %w", err)
		}
		client.BaseURL = base
	}

	fmt.Fprintln(w, "Fetching PR details from GitHub...")
	pr, _, err := client.PullRequests.Get(ctx, owner, repo, prNum)
	if err != nil {
		return fmt.Errorf("fetching PR: %w", err)
	}
	if pr.GetDraft() {
		fmt.Fprintln(w, "Note: the pull request is a draft; the server will skip it.")
	}

	event := &gogithub.PullRequestEvent{
		Action:      gogithub.Ptr("synchronize"),
		Number:      gogithub.Ptr(prNum),
		PullRequest: pr,
		Repo: &gogithub.Repository{
			Name:  gogithub.Ptr(repo),
			Owner: &gogithub.User{Login: gogithub.Ptr(owner)},
		},
		Installation: &gogithub.Installation{ID: gogithub.Ptr(installID)},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	fmt.Fprintf(w, "\nSending webhook to %s...\n", opts.webhookURL)
	fmt.Fprintf(w, "  Repo: %s/%s\n", owner, repo)
	fmt.Fprintf(w, "  PR: #%d\n", prNum)
	fmt.Fprintf(w, "  Base: %s\n", pr.GetBase().GetRef())
	fmt.Fprintf(w, "  Head: %s (%s)\n", pr.GetHead().GetRef(), pr.GetHead().GetSHA())
	fmt.Fprintf(w, "  Installation ID: %d\n\n", installID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-Hub-Signature-256", "sha256="+signPayload(payload, secret))
	req.Header.Set("X-GitHub-Delivery", "chart-identctl-"+strconv.Itoa(prNum))

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted {
		fmt.Fprintf(w, "✓ Webhook accepted (status %d)\n", resp.StatusCode)
		fmt.Fprintf(w, "\nCheck your GitHub PR for the results!\n%s\n", prURL)
		return nil
	}

	fmt.Fprintf(w, "✗ Webhook failed (status %d)\n", resp.StatusCode)
	if len(body) > 0 {
		fmt.Fprintf(w, "Response: %s\n", body)
	}
	return fmt.Errorf("webhook returned status %d", resp.StatusCode)
}

// parsePRURL extracts owner, repo, and PR number from a GitHub PR URL.
// Trailing paths such as /files are accepted.
func parsePRURL(u string) (string, string, int, error) {
	matches := prURLPattern.FindStringSubmatch(u)
	if len(matches) != 4 {
		return "", "", 0, fmt.Errorf("invalid PR URL format, expected: https://github.com/owner/repo/pull/123, got: %s", u)
	}
	prNum, err := strconv.Atoi(matches[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid PR number: %w", err)
	}
	return matches[1], matches[2], prNum, nil
}

// signPayload creates the HMAC SHA256 signature GitHub sends with webhooks.
func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
