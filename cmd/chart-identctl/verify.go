package main

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	helmengine "github.com/nathantilsley/chart-ident/internal/identity/adapters/helm_engine"
	"github.com/nathantilsley/chart-ident/internal/identity/domain"
)

func newVerifyCmd(a *app) *cobra.Command {
	var (
		chartOpts chartOptions
		outOpts   outputOptions
		noHelpers bool
	)

	cmd := &cobra.Command{
		Use:   "verify <chart-dir>",
		Short: "Check resolved identities for naming problems",
		Long: `Resolve a local chart and report findings: names cut to 63 characters,
values Kubernetes rejects, release names that contain the chart name only
inside a word, releases colliding on one full name, and chart helpers that
render something other than the resolved identity.

Exits with status 2 when there are findings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := outOpts.validate(); err != nil {
				return err
			}
			chartDir, err := chartDirArg(args[0])
			if err != nil {
				return err
			}

			envs, ids, err := a.resolveAll(cmd.Context(), chartDir, &chartOpts)
			if err != nil {
				return err
			}

			renderer := helmengine.New(a.log)
			findings := make(map[string][]domain.Finding, len(ids))
			for i, e := range ids {
				findings[e.Environment] = domain.Validate(e.Identity)
				if noHelpers {
					continue
				}
				out, err := renderer.RenderHelpers(cmd.Context(), chartDir, envs[i], e.Identity.Input.Release)
				switch {
				case errors.Is(err, domain.ErrHelpersNotFound):
					a.log.Info("chart has no naming helpers, skipping conformance")
					noHelpers = true
				case err != nil:
					return fmt.Errorf("environment %s: %w", e.Environment, err)
				default:
					findings[e.Environment] = append(findings[e.Environment], domain.CheckConformance(e.Identity, out)...)
				}
			}
			for _, c := range domain.DetectCollisions(ids) {
				for _, env := range c.Environments {
					findings[env] = append(findings[env], c.Finding())
				}
			}

			reports := make([]envReport, 0, len(ids))
			total := 0
			for _, e := range ids {
				reports = append(reports, newEnvReport(e.Environment, e.Identity, findings[e.Environment]))
				total += len(findings[e.Environment])
			}

			w := cmd.OutOrStdout()
			if outOpts.format == formatText {
				err = writeEnvReports(w, reports)
			} else {
				err = writeStructured(w, outOpts.format, reports)
			}
			if err != nil {
				return err
			}

			if total > 0 {
				if outOpts.format == formatText {
					withFindings := lo.CountBy(reports, func(r envReport) bool { return len(r.Findings) > 0 })
					fmt.Fprintf(w, "\n%d finding(s) in %d environment(s)\n", total, withFindings)
				}
				return &exitError{Code: exitFindings}
			}
			if outOpts.format == formatText {
				fmt.Fprintln(w, "\nno findings")
			}
			return nil
		},
	}

	chartOpts.addFlags(cmd.Flags())
	outOpts.addFlags(cmd.Flags())
	cmd.Flags().BoolVar(&noHelpers, "no-helpers", false, "skip rendering the chart's own naming helpers")
	return cmd
}
