package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"quickseek/internal/builder"
	"quickseek/internal/progress"
	"quickseek/internal/volume"
)

func newBuildCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the index of every volume that has none",
		Long: `Walk every configured volume without an index and write its shards.
Volumes that already have an index are left untouched; use 'rebuild' to
start one over.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts.cfg)
			if err != nil {
				return err
			}
			bar := progress.NewTerminal()
			reg, _, err := a.registry(bar)
			if err != nil {
				return err
			}

			results, err := reg.Ensure(cmd.Context())
			bar.Finish()
			printResults(cmd.OutOrStdout(), reg.Volumes(), results)
			return err
		},
	}
}

func newRebuildCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild [volume-id-or-root...]",
		Short: "Discard and rebuild volume indexes",
		Long:  `Discard the index of the given volumes (all when none are given) and build it again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.cfg)
			if err != nil {
				return err
			}
			bar := progress.NewTerminal()
			reg, _, err := a.registry(bar)
			if err != nil {
				return err
			}
			targets, err := selectVolumes(reg, args)
			if err != nil {
				return err
			}

			results := make([]*builder.Result, len(targets))
			for i, v := range targets {
				res, err := reg.Rebuild(cmd.Context(), v)
				if err != nil {
					bar.Finish()
					return fmt.Errorf("failed to rebuild %s: %w", v.Root, err)
				}
				results[i] = res
			}
			bar.Finish()
			printResults(cmd.OutOrStdout(), targets, results)
			return nil
		},
	}
}

// selectVolumes resolves args to registered volumes; no args selects all.
func selectVolumes(reg *volume.Registry, args []string) ([]volume.Volume, error) {
	if len(args) == 0 {
		return reg.Volumes(), nil
	}
	var out []volume.Volume
	for _, arg := range args {
		v, err := reg.Find(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func printResults(w io.Writer, volumes []volume.Volume, results []*builder.Result) {
	for i, v := range volumes {
		if i >= len(results) {
			break
		}
		res := results[i]
		switch {
		case res == nil:
			fmt.Fprintf(w, "✗ %s failed to index\n", v.Root)
		case res.Busy:
			fmt.Fprintf(w, "• %s is being indexed by another process\n", v.Root)
		case res.Skipped:
			fmt.Fprintf(w, "• %s already indexed\n", v.Root)
		default:
			fmt.Fprintf(w, "✓ Indexed %s\n", v.Root)
			fmt.Fprintf(w, "  Volume: %s\n", v.ID)
			fmt.Fprintf(w, "  Entries: %d\n", res.Entries)
			fmt.Fprintf(w, "  Shards: %d\n", res.Shards)
			fmt.Fprintf(w, "  Took: %s\n", res.Duration.Round(time.Millisecond))
			if n := res.Errors - res.Unencodable; n > 0 {
				fmt.Fprintf(w, "  ⚠ Skipped %d unreadable entries\n", n)
			}
			if res.Unencodable > 0 {
				fmt.Fprintf(w, "  ⚠ Skipped %d entries with non UTF-8 paths\n", res.Unencodable)
			}
		}
	}
}
