package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"m3u8conv/routes"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := routes.BuildInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "m3u8conv %s\n", info.Version)
			fmt.Fprintf(out, "  commit: %s\n", info.GitCommit)
			fmt.Fprintf(out, "  built:  %s\n", info.BuildTime)
			fmt.Fprintf(out, "  go:     %s\n", info.GoVersion)
			return nil
		},
	}
}
