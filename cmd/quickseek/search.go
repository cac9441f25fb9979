package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search <prefix>",
		Short: "Find files and directories whose name starts with prefix",
		Long: `Find files and directories whose name starts with prefix, across all
indexed volumes. Matching is case-sensitive.

Examples:
  quickseek search report
  quickseek search main.go --json
  quickseek search IMG_ --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.cfg)
			if err != nil {
				return err
			}
			results := a.engine().SearchLimit(args[0], limit)

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			for _, r := range results {
				fmt.Fprintln(out, r.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (0 = unlimited)")
	return cmd
}
