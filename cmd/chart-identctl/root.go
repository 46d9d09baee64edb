package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nathantilsley/chart-ident/internal/platform/config"
	"github.com/nathantilsley/chart-ident/internal/platform/logger"
)

// app holds state shared by every subcommand.
type app struct {
	v         *viper.Viper
	logFormat string
	log       *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}
	// The CLI reports on stdout; only warnings reach stderr by default.
	a.v.SetDefault(config.KeyLogLevel, "warn")

	cmd := &cobra.Command{
		Use:   "chart-identctl",
		Short: "Resolve and check Helm chart release names and labels",
		Long: `chart-identctl derives the names and labels a Helm chart's conventional
helpers produce for a release, without rendering templates or talking to
a cluster.

It provides commands to:
  - resolve the identity of a chart for one or more environments
  - verify identities against Kubernetes naming rules and the chart's helpers
  - diff identities between two versions of a chart
  - trigger a pull request check on a running chart-ident server`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.log = logger.NewWithOptions(logger.Options{
				Level:  a.v.GetString(config.KeyLogLevel),
				Format: a.logFormat,
				Writer: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("log-level", "warn", "log level: debug, info, warn or error (env: LOG_LEVEL)")
	_ = a.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	flags.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")

	cmd.AddCommand(
		newResolveCmd(a),
		newVerifyCmd(a),
		newDiffCmd(a),
		newTriggerCmd(a),
		newVersionCmd(),
	)
	return cmd
}
