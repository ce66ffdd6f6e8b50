package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eringen/spacetraveling"
	"github.com/eringen/spacetraveling/logger"
)

func serveCommand() *cobra.Command {
	var addr string
	var skipPrerender bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the site with on-demand regeneration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			if addr != "" {
				cfg.Addr = addr
			}
			if skipPrerender {
				cfg.SkipPrerender = true
			}
			app := spacetraveling.New(cfg, spacetraveling.WithLogger(log))
			return app.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&skipPrerender, "skip-prerender", false, "do not warm the cache at startup")
	return cmd
}

func pathsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "List every article path known to the content API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			app := spacetraveling.New(cfg, spacetraveling.WithLogger(log))
			if err := app.Init(); err != nil {
				return err
			}
			defer app.Close()

			uids, err := app.Source.ListAllUIDs(cmd.Context(), cfg.Prismic.DocumentType)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "/")
			for _, uid := range uids {
				fmt.Fprintln(out, spacetraveling.PostPath(uid))
			}
			return nil
		},
	}
}

func buildCommand() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Render every page to static files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			app := spacetraveling.New(cfg, spacetraveling.WithLogger(log))
			defer app.Close()

			res, err := app.Build(cmd.Context(), outDir)
			if err != nil {
				log.Error("build finished with errors", logger.Error(err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d pages and %d assets to %s\n", res.Pages, res.Assets, outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "dist", "output directory")
	return cmd
}
