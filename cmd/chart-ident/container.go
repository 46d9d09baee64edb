// Package main provides the chart-ident webhook server, which checks the
// release names and labels of Helm charts changed in pull requests.
package main

import (
	"context"
	"fmt"
	"log/slog"

	gogithub "github.com/google/go-github/v68/github"

	argoapps "github.com/nathantilsley/chart-ident/internal/identity/adapters/argo_apps"
	discoveredcharts "github.com/nathantilsley/chart-ident/internal/identity/adapters/discovered_charts"
	dyffdiff "github.com/nathantilsley/chart-ident/internal/identity/adapters/dyff_diff"
	envdiscovery "github.com/nathantilsley/chart-ident/internal/identity/adapters/env_discovery"
	githubin "github.com/nathantilsley/chart-ident/internal/identity/adapters/github_in"
	githubout "github.com/nathantilsley/chart-ident/internal/identity/adapters/github_out"
	helmchart "github.com/nathantilsley/chart-ident/internal/identity/adapters/helm_chart"
	helmengine "github.com/nathantilsley/chart-ident/internal/identity/adapters/helm_engine"
	linediff "github.com/nathantilsley/chart-ident/internal/identity/adapters/line_diff"
	prfiles "github.com/nathantilsley/chart-ident/internal/identity/adapters/pr_files"
	repocfg "github.com/nathantilsley/chart-ident/internal/identity/adapters/repo_cfg"
	sourcectrl "github.com/nathantilsley/chart-ident/internal/identity/adapters/source_ctrl"
	"github.com/nathantilsley/chart-ident/internal/identity/app"
	"github.com/nathantilsley/chart-ident/internal/identity/ports"
	"github.com/nathantilsley/chart-ident/internal/platform/config"
	ghclient "github.com/nathantilsley/chart-ident/internal/platform/github"
	"github.com/nathantilsley/chart-ident/internal/platform/gitrepo"
	"github.com/nathantilsley/chart-ident/internal/platform/telemetry"
)

const unifiedDiffContext = 3

// Container holds all application dependencies.
type Container struct {
	Config          config.Config
	Logger          *slog.Logger
	Telemetry       *telemetry.Telemetry
	GitHubClient    *gogithub.Client
	IdentityService ports.CheckUseCase
	WebhookHandler  *githubin.WebhookHandler
	ArgoRepo        *gitrepo.GitRepo // nil when Argo CD integration is off
}

// NewContainer builds and wires all dependencies. The Argo CD clone, when
// configured, is created but not started; see Start.
func NewContainer(ctx context.Context, cfg config.Config, log *slog.Logger) (*Container, error) {
	tel, err := telemetry.New(ctx, telemetry.Options{Enabled: cfg.OTelEnabled})
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	githubClient, err := ghclient.NewClient(cfg.GitHubAppID, cfg.GitHubInstallationID, cfg.GitHubPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("creating github client: %w", err)
	}

	// Adapters
	sourceCtrl := sourcectrl.New(githubClient)
	changedCharts := prfiles.New(githubClient, cfg.ChartDir, log)
	reporter := githubout.New(githubClient, cfg.AppName, cfg.AppURL, log)
	loader := helmchart.New(log)
	semanticDiff := dyffdiff.New(log)
	unifiedDiff := linediff.New(unifiedDiffContext)

	var conformance ports.ConformancePort
	if cfg.HelpersConformance {
		conformance = helmengine.New(log)
	}

	// Chart config sources, highest precedence first:
	// repo manifest → Argo CD Applications → env/ discovery.
	var (
		argoConfig ports.ChartConfigPort
		argoRepo   *gitrepo.GitRepo
	)
	if cfg.ArgoAppsRepo != "" {
		log.Info("argo apps integration enabled",
			"repo", cfg.ArgoAppsRepo,
			"syncInterval", cfg.ArgoAppsSyncInterval,
			"folderPattern", cfg.ArgoAppsFolderPattern,
		)
		argo := argoapps.New(cfg.ArgoAppsFolderPattern, log)
		argoRepo = gitrepo.New(cfg.ArgoAppsRepo, cfg.ArgoAppsLocalPath, cfg.ArgoAppsSyncInterval, log,
			gitrepo.WithBranch(cfg.ArgoAppsBranch))
		argoRepo.OnSync(argo.Rebuild)
		argoConfig = argo
	} else {
		log.Info("argo apps not configured, using repo manifest and env discovery")
	}

	configSources := []ports.ChartConfigPort{
		repocfg.New(githubClient),
		argoConfig, // nil if not configured
		discoveredcharts.New(envdiscovery.New(), sourceCtrl),
	}

	identityService, err := app.NewIdentityService(
		sourceCtrl,
		changedCharts,
		configSources,
		loader,
		conformance, // nil if disabled
		reporter,
		semanticDiff,
		unifiedDiff,
		log,
		tel.Meter,
		tel.Tracer,
		cfg.MetricPrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("creating identity service: %w", err)
	}

	webhookHandler := githubin.NewWebhookHandler(identityService, cfg.WebhookSecret, log)

	return &Container{
		Config:          cfg,
		Logger:          log,
		Telemetry:       tel,
		GitHubClient:    githubClient,
		IdentityService: identityService,
		WebhookHandler:  webhookHandler,
		ArgoRepo:        argoRepo,
	}, nil
}

// Start performs the initial Argo CD clone and starts its sync loop.
func (c *Container) Start(ctx context.Context) error {
	if c.ArgoRepo == nil {
		return nil
	}
	if err := c.ArgoRepo.Start(ctx); err != nil {
		return fmt.Errorf("starting argo apps repository: %w", err)
	}
	return nil
}

// Ready reports whether every background dependency finished its first sync.
func (c *Container) Ready() bool {
	return c.ArgoRepo == nil || c.ArgoRepo.Ready()
}

// Close stops background work and flushes telemetry.
func (c *Container) Close(ctx context.Context) error {
	if c.ArgoRepo != nil {
		c.ArgoRepo.Stop()
	}
	return c.Telemetry.Shutdown(ctx)
}
