package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eringen/spacetraveling"
	"github.com/eringen/spacetraveling/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "spacetraveling",
		Short:         "A blog front end over a headless content API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file (optional)")

	root.AddCommand(
		serveCommand(),
		pathsCommand(),
		buildCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the spacetraveling version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "spacetraveling %s\n", version)
			},
		},
	)
	return root
}

// setup loads configuration and builds the logger every command shares.
func setup() (spacetraveling.SiteConfig, logger.Logger, error) {
	cfg, err := spacetraveling.LoadConfig(cfgFile)
	if err != nil {
		return spacetraveling.SiteConfig{}, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return spacetraveling.SiteConfig{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
