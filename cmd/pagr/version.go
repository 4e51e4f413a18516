package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/pagr/internal/common"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pagr %s %s/%s %s\n",
				common.GetFullVersion(), runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}
