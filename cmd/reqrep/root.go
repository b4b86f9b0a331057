package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mini-reqrep/config"
	"mini-reqrep/logging"
)

type commandContext struct {
	configFlag *string

	once   sync.Once
	config *config.Config
	logger *zap.Logger
	err    error
}

// ensure loads the configuration and builds the logger once per process.
func (c *commandContext) ensure() (*config.Config, *zap.Logger, error) {
	c.once.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		logger, err := logging.New(logging.Options{
			Level:       cfg.Log.Level,
			Format:      cfg.Log.Format,
			Development: cfg.Log.Development,
		})
		if err != nil {
			c.err = err
			return
		}
		c.config, c.logger = cfg, logger
	})
	return c.config, c.logger, c.err
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "reqrep",
		Short:         "Request/reply messaging demo over ZeroMQ",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (YAML)")

	rootCmd.AddCommand(newServerCommand(ctx))
	rootCmd.AddCommand(newClientCommand(ctx))
	return rootCmd
}
