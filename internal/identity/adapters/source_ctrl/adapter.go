// Package sourcectrl fetches chart directories from GitHub at a given ref.
package sourcectrl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	gogithub "github.com/google/go-github/v68/github"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

const maxArchiveRedirects = 10

// Adapter implements ports.SourceControlPort on top of repository tarballs.
type Adapter struct {
	client   *gogithub.Client
	download *http.Client
}

// New returns an adapter using client for the API and an otelhttp-traced
// client for the (unauthenticated, pre-signed) archive download.
func New(client *gogithub.Client) *Adapter {
	return &Adapter{
		client:   client,
		download: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// FetchChartFiles extracts chartPath at ref into a temporary directory and
// returns it. A chart or ref that does not exist yields a NotFoundError.
// cleanup removes the directory.
func (a *Adapter) FetchChartFiles(ctx context.Context, owner, repo, ref, chartPath string) (string, func(), error) {
	link, _, err := a.client.Repositories.GetArchiveLink(ctx, owner, repo, gogithub.Tarball,
		&gogithub.RepositoryContentGetOptions{Ref: ref}, maxArchiveRedirects)
	if err != nil {
		var apiErr *gogithub.ErrorResponse
		if errors.As(err, &apiErr) && apiErr.Response != nil && apiErr.Response.StatusCode == http.StatusNotFound {
			return "", nil, domain.NewNotFoundError(chartPath, ref)
		}
		return "", nil, fmt.Errorf("getting archive link for %s: %w", ref, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.String(), nil)
	if err != nil {
		return "", nil, fmt.Errorf("creating archive request: %w", err)
	}
	resp, err := a.download.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("downloading archive: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("downloading archive: unexpected status %d", resp.StatusCode)
	}

	dir, err := os.MkdirTemp("", "chart-ident-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	n, err := extractChart(resp.Body, chartPath, dir)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("extracting %s@%s: %w", chartPath, ref, err)
	}
	if n == 0 {
		cleanup()
		return "", nil, domain.NewNotFoundError(chartPath, ref)
	}
	return dir, cleanup, nil
}
