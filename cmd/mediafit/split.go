// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/ManuGH/mediafit/internal/media"
	"github.com/ManuGH/mediafit/internal/splitter"
	"github.com/spf13/cobra"
)

func newSplitCmd(opts *rootOptions) *cobra.Command {
	var maxGB float64
	cmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Split an already encoded file into parts under the size limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := opts.load(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			profile := e.profile.OutputProfile()
			if maxGB > 0 {
				profile.MaxFileSize = int64(maxGB * float64(media.GiB))
			}
			eng, err := e.newEngine(ctx, opts, false)
			if err != nil {
				return err
			}
			parts, err := splitter.New(eng.fs, eng.analyzer, eng.executor, eng.choice).Split(ctx, args[0], profile)
			if err != nil {
				return err
			}
			for _, p := range parts {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&maxGB, "max-size-gb", 0, "override the profile size limit (GiB)")
	return cmd
}
