package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quickseek/internal/reveal"
)

func newVolumesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "volumes",
		Short: "List volumes and their index state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts.cfg)
			if err != nil {
				return err
			}
			reg, _, err := a.registry(nil)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROOT\tID\tINDEXED\tENTRIES\tBUILT")
			for _, s := range reg.Status() {
				entries, built := "-", "-"
				if m, err := a.store.ReadManifest(s.ID); err == nil {
					entries = fmt.Sprint(m.Entries)
					built = m.Built.Local().Format("2006-01-02 15:04")
				}
				indexed := "no"
				if s.Indexed {
					indexed = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Root, s.ID, indexed, entries, built)
			}
			return tw.Flush()
		},
	}
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Reveal a path in the file manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("failed to get absolute path: %w", err)
			}
			reveal.Open(abs)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "quickseek version %s\n", version)
			return err
		},
	}
}
