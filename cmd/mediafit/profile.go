// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ManuGH/mediafit/internal/config"
	"github.com/spf13/cobra"
)

const defaultProfileFile = "profile.yaml"

func newProfileCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Create or check profile files",
	}
	cmd.AddCommand(newProfileInitCmd(), newProfileValidateCmd(opts))
	return cmd
}

func newProfileInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultProfileFile
			if len(args) == 1 {
				path = args[0]
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return usagef("%s already exists (use --force to replace it)", path)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			if err := config.WriteProfile(path, config.Defaults()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing file")
	return cmd
}

func newProfileValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a profile file without converting anything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.profilePath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return usagef("no profile given (pass a path or --profile)")
			}
			p, err := config.LoadFile(path, version)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			out := p.OutputProfile()
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %q %dx%d@%d %s/%s in %s, limit %d bytes (%s)\n",
				path, out.Name, out.MaxWidth, out.MaxHeight, out.MaxFPS,
				out.VideoCodec, out.AudioCodec, out.Container, out.MaxFileSize, out.OnSizeExceed)
			return nil
		},
	}
}
