// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	profilePath string
	logLevel    string
	logFormat   string
	encoder     string
	outputDir   string
	overwrite   bool
	stall       time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cobra.MousetrapHelpText = ""

	root := &cobra.Command{
		Use:   "mediafit",
		Short: "Fit videos to a player's limits",
		Long: `mediafit probes the local hardware encoders, analyzes each input and
re-encodes it so resolution, frame rate, codec and bitrate match the active
profile. Outputs above the profile's file size limit are split, compressed,
dropped or kept according to on_size_exceed.

Remote URLs are downloaded with yt-dlp, choosing a source format that needs
as little work as possible.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("mediafit {{.Version}}\n")
	addRootFlags(root.PersistentFlags(), opts)

	root.AddCommand(
		newConvertCmd(opts),
		newBatchCmd(opts),
		newPlaylistCmd(opts),
		newWatchCmd(opts),
		newServeCmd(opts),
		newSplitCmd(opts),
		newEncodersCmd(opts),
		newFormatCmd(opts),
		newProfileCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)
	return root
}

func addRootFlags(flags *pflag.FlagSet, opts *rootOptions) {
	flags.StringVarP(&opts.profilePath, "profile", "p", "", "profile file (YAML); defaults are used when empty")
	flags.StringVar(&opts.logLevel, "log-level", "", "override the profile log level")
	flags.StringVar(&opts.logFormat, "log-format", "", "override the profile log format (json|console)")
	flags.StringVar(&opts.encoder, "encoder", "auto", "encoder vendor: auto, nvidia, amd, intel or software")
	flags.DurationVar(&opts.stall, "stall-timeout", 0, "terminate encodes that make no progress for this long (0 disables)")
}

// addOutputFlags registers flags for commands that write conversions.
func addOutputFlags(flags *pflag.FlagSet, opts *rootOptions) {
	flags.StringVarP(&opts.outputDir, "output-dir", "o", "", "override the profile output directory")
	flags.BoolVar(&opts.overwrite, "overwrite", false, "re-encode even if outputs already exist")
}
