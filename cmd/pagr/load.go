package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/pagr/internal/app"
)

func newLoadCmd(opts *options) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "load <file.csv>",
		Short: "Load a portfolio file into the graph",
		Long: `Parses the file, resolves and enriches every security, and merges the
portfolio into the graph. Loading the same file again changes nothing.
The portfolio name defaults to the file name without extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			return runWithApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				summary, err := a.PipelineService.LoadFile(ctx, name, path)
				if summary != nil {
					if werr := writeSummary(cmd.OutOrStdout(), summary, opts.jsonOutput); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Portfolio name")
	return cmd
}
