package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	helmchart "github.com/nathantilsley/chart-ident/internal/identity/adapters/helm_chart"
	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

func newResolveCmd(a *app) *cobra.Command {
	var (
		chartOpts chartOptions
		outOpts   outputOptions
	)

	cmd := &cobra.Command{
		Use:   "resolve <chart-dir>",
		Short: "Print the names and labels a chart resolves to",
		Long: `Resolve the name, full name, chart label, service account name and labels
of a local chart for each of its environments.

Environments come from env/<name>-values.yaml files in the chart directory,
or from a manifest with --manifest.`,
		Example: `  chart-identctl resolve charts/api
  chart-identctl resolve charts/api --env prod -o yaml
  chart-identctl resolve charts/api --release payments --set nameOverride=pay`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := outOpts.validate(); err != nil {
				return err
			}
			chartDir, err := chartDirArg(args[0])
			if err != nil {
				return err
			}

			_, ids, err := a.resolveAll(cmd.Context(), chartDir, &chartOpts)
			if err != nil {
				return err
			}

			reports := make([]envReport, 0, len(ids))
			for _, e := range ids {
				reports = append(reports, newEnvReport(e.Environment, e.Identity, nil))
			}
			if outOpts.format == formatText {
				return writeEnvReports(cmd.OutOrStdout(), reports)
			}
			return writeStructured(cmd.OutOrStdout(), outOpts.format, reports)
		},
	}

	chartOpts.addFlags(cmd.Flags())
	outOpts.addFlags(cmd.Flags())
	return cmd
}

// resolveAll resolves chartDir for every selected environment. The
// returned slices are parallel.
func (a *app) resolveAll(
	ctx context.Context,
	chartDir string,
	opts *chartOptions,
) ([]domain.EnvironmentConfig, []domain.EnvironmentIdentity, error) {
	envs, err := opts.environments(ctx, chartDir)
	if err != nil {
		return nil, nil, err
	}

	loader := helmchart.New(a.log)
	ids := make([]domain.EnvironmentIdentity, 0, len(envs))
	for _, env := range envs {
		in, err := loader.Load(ctx, chartDir, env, env.ReleaseFor(env.ReleaseName))
		if err != nil {
			return nil, nil, fmt.Errorf("environment %s: %w", env.Name, err)
		}
		id := domain.Resolve(in)
		a.log.Debug("identity resolved", "env", env.Name, "release", in.Release.Name, "fullName", id.FullName)
		ids = append(ids, domain.EnvironmentIdentity{Environment: env.Name, Identity: id})
	}
	return envs, ids, nil
}
