// Package commands implements the researchtown CLI.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/observability"
)

var versionInfo = "dev"

// SetVersionInfo sets the version string shown by --version.
func SetVersionInfo(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// Execute runs the root command against os.Args.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		newPrinter(os.Stderr).Error("%v", err)
		return err
	}
	return nil
}

// app carries state shared by every subcommand.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger observability.Logger
}

// NewRootCmd builds the command tree. Each call gets its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "researchtown",
		Short: "Stage-orchestration engine for simulated research communities",
		Long: `researchtown drives a research pipeline: a graph of stages connected by
pass/fail transitions, with participants allocated to roles as the run
progresses. Runs can be checkpointed, inspected and resumed.

Configuration comes from --config, then RESEARCHTOWN_* environment
variables (RESEARCHTOWN_STORE_BACKEND for store.backend), then defaults.`,
		Version:       versionInfo,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			return nil
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (YAML)")
	root.PersistentFlags().String("log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	_ = a.v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = a.v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newValidateCmd(a),
		newRunCmd(a),
		newInspectCmd(a),
		newResetRolesCmd(a),
		newEvaluateCmd(a),
	)
	return root
}
