// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear the record of converted inputs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List converted inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			store, err := e.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			recs, err := store.Records()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COMPLETED\tPROFILE\tOUTPUTS\tINPUT")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.CompletedAt.Local().Format(time.DateTime), r.Profile, len(r.Outputs), r.Key)
			}
			return tw.Flush()
		},
	})

	var withCache bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget converted inputs so they are converted again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			store, err := e.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.ClearHistory(); err != nil {
				return err
			}
			if withCache {
				if err := store.ClearCache(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&withCache, "cache", false, "also drop cached remote metadata")
	cmd.AddCommand(clearCmd)
	return cmd
}
