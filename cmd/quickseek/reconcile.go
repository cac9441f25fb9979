package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quickseek/internal/compare"
)

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "reconcile [volume-id-or-root...]",
		Short: "Compare indexes against the filesystem",
		Long: `Walk the given volumes (all when none are given) and report entries the
index is missing, stale entries it still holds and duplicated entries. With
--apply the index is corrected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.cfg)
			if err != nil {
				return err
			}
			reg, _, err := a.registry(nil)
			if err != nil {
				return err
			}
			targets, err := selectVolumes(reg, args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, v := range targets {
				result, err := reg.Reconcile(cmd.Context(), v, apply)
				if err != nil && result == nil {
					return fmt.Errorf("failed to reconcile %s: %w", v.Root, err)
				}
				fmt.Fprintf(out, "Volume: %s (%s)\n", v.Root, v.ID)
				fmt.Fprintln(out, compare.FormatReport(result))
				if err != nil {
					fmt.Fprintf(out, "⚠ Some corrections failed: %v\n", err)
				}
				if apply && result.HasChanges() {
					fmt.Fprintln(out, "✓ Index corrected")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Correct the index")
	return cmd
}
