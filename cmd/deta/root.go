package main

import (
	"encoding/json"
	"fmt"

	"github.com/bitrise-io/go-deta/config"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/cobra"
)

type app struct {
	envRepo env.Repository

	cfgFile string
	debug   bool

	cfg    *config.Config
	logger log.Logger
}

func newRootCmd(envRepo env.Repository) *cobra.Command {
	a := &app{envRepo: envRepo}

	rootCmd := &cobra.Command{
		Use:           "deta",
		Short:         "Deta Base and Drive client",
		Long:          `Stores files in Deta Drive and items in Deta Base.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ~/.deta/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newDriveCmd(a), newBaseCmd(a))

	return rootCmd
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return a.fail(err)
	}
	cfg.Merge(&config.Config{Debug: a.debug})

	if err := cfg.Finalize(a.envRepo); err != nil {
		return a.fail(fmt.Errorf("config: %w", err))
	}

	a.cfg = cfg
	a.logger = cfg.Logger()
	return nil
}

// fail logs err and returns it so cobra exits with a non-zero status.
func (a *app) fail(err error) error {
	logger := a.logger
	if logger == nil {
		logger = log.NewLogger()
	}
	logger.Errorf("%s", err)
	return err
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return a.fail(err)
		}
		return nil
	}
}
