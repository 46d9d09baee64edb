// Package github provides authenticated GitHub API clients.
package github

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v68/github"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewClient creates a GitHub API client authenticated as a GitHub App installation.
// The ghinstallation transport renews installation tokens; outbound calls
// are traced through otelhttp.
func NewClient(appID, installationID int64, privateKeyPEM string) (*gogithub.Client, error) {
	transport, err := ghinstallation.New(tracedTransport(), appID, installationID, []byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("creating github installation transport: %w", err)
	}
	return gogithub.NewClient(&http.Client{Transport: transport}), nil
}

// NewTokenClient creates a client authenticated with a personal access token.
func NewTokenClient(token string) (*gogithub.Client, error) {
	if token == "" {
		return nil, errors.New("github token is required")
	}
	httpClient := &http.Client{Transport: tracedTransport()}
	return gogithub.NewClient(httpClient).WithAuthToken(token), nil
}

func tracedTransport() http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport)
}
