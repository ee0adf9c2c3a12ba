// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ManuGH/mediafit/internal/acquire"
	"github.com/ManuGH/mediafit/internal/batch"
	"github.com/ManuGH/mediafit/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newConvertCmd(opts *rootOptions) *cobra.Command {
	var ro runnerOptions
	cmd := &cobra.Command{
		Use:   "convert <file|url>",
		Short: "Convert a single file or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ro.downloads = 1
			return runBatch(cmd, opts, ro, args)
		},
	}
	addOutputFlags(cmd.Flags(), opts)
	addRunnerFlags(cmd, &ro)
	return cmd
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var ro runnerOptions
	cmd := &cobra.Command{
		Use:   "batch <file|dir|list.txt|url>...",
		Short: "Convert many inputs concurrently",
		Long: `batch converts every input concurrently, bounded by the encoder's session
limit. Directories contribute their media files in natural order and .txt
files are read as lists with one input per line. One failing input does not
stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := batch.ExpandInputs(afero.NewOsFs(), args)
			if err != nil {
				return err
			}
			if len(inputs) == 0 {
				return usagef("no media inputs found")
			}
			return runBatch(cmd, opts, ro, inputs)
		},
	}
	addOutputFlags(cmd.Flags(), opts)
	addRunnerFlags(cmd, &ro)
	addPlaylistFlags(cmd.Flags(), &ro)
	cmd.Flags().BoolVar(&ro.playlist, "playlist", false, "treat URL inputs as playlists and convert their entries")
	cmd.Flags().IntVar(&ro.downloads, "downloads", 2, "concurrent downloads")
	return cmd
}

func newPlaylistCmd(opts *rootOptions) *cobra.Command {
	var ro runnerOptions
	cmd := &cobra.Command{
		Use:   "playlist <url>...",
		Short: "Convert every entry of one or more playlists",
		Long: `playlist lists the entries of each playlist URL and converts them like
batch does. --start, --end and --reverse override the download.playlist_*
settings of the profile.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				if !acquire.IsURL(a) {
					return usagef("playlist: %q is not a URL", a)
				}
			}
			ro.playlist = true
			return runBatch(cmd, opts, ro, args)
		},
	}
	addOutputFlags(cmd.Flags(), opts)
	addRunnerFlags(cmd, &ro)
	addPlaylistFlags(cmd.Flags(), &ro)
	cmd.Flags().IntVar(&ro.downloads, "downloads", 2, "concurrent downloads")
	return cmd
}

func addPlaylistFlags(flags *pflag.FlagSet, ro *runnerOptions) {
	flags.IntVar(&ro.start, "start", 1, "first playlist entry (1-based)")
	flags.IntVar(&ro.end, "end", 0, "last playlist entry, 0 for the last one")
	flags.BoolVar(&ro.reverse, "reverse", false, "process playlist entries in reverse order")
}

// playlistRange starts from the profile and applies the flags that were set.
func playlistRange(flags *pflag.FlagSet, d config.DownloadConfig, ro runnerOptions) (acquire.PlaylistRange, error) {
	rng := acquire.PlaylistRange{Start: d.PlaylistStart, End: d.PlaylistEnd, Reverse: d.PlaylistReverse}
	if flags.Changed("start") {
		rng.Start = ro.start
	}
	if flags.Changed("end") {
		rng.End = ro.end
	}
	if flags.Changed("reverse") {
		rng.Reverse = ro.reverse
	}
	if err := rng.Validate(); err != nil {
		return rng, usagef("%v", err)
	}
	return rng, nil
}

func addRunnerFlags(cmd *cobra.Command, ro *runnerOptions) {
	cmd.Flags().BoolVar(&ro.keepDownloads, "keep-downloads", false, "keep downloaded sources after conversion")
	cmd.Flags().BoolVar(&ro.noHistory, "no-history", false, "ignore and do not record conversion history")
}

func runBatch(cmd *cobra.Command, opts *rootOptions, ro runnerOptions, inputs []string) error {
	ctx := cmd.Context()
	e, err := opts.load(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	eng, err := e.newEngine(ctx, opts, hasURL(inputs))
	if err != nil {
		return err
	}
	runner, fetcher, closeRunner, err := e.newRunner(eng, ro)
	if err != nil {
		return err
	}
	defer closeRunner()

	if ro.playlist {
		rng, err := playlistRange(cmd.Flags(), e.profile.Download, ro)
		if err != nil {
			return err
		}
		if inputs, err = batch.ExpandPlaylists(ctx, fetcher, inputs, rng); err != nil {
			return err
		}
	}

	waitStatus := e.serveStatus(ctx, eng.health)
	defer waitStatus()

	sum, err := runner.Run(ctx, inputs, e.profile.OutputProfile())
	printSummary(cmd.OutOrStdout(), sum)
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d inputs failed: %w", sum.Failed, len(sum.Items), sum.Errors())
	}
	return nil
}

func hasURL(inputs []string) bool {
	for _, in := range inputs {
		if acquire.IsURL(in) {
			return true
		}
	}
	return false
}

func printSummary(w io.Writer, sum batch.Summary) {
	for _, it := range sum.Items {
		switch {
		case it.Err != nil:
			fmt.Fprintf(w, "%-10s %s: %v\n", "FAILED", it.Input, it.Err)
		case it.Done:
			fmt.Fprintf(w, "%-10s %s\n", "DONE", it.Input)
		default:
			fmt.Fprintf(w, "%-10s %s\n", strings.ToUpper(string(it.Result.Action)), it.Input)
			for _, out := range it.Result.Outputs {
				fmt.Fprintf(w, "%-10s -> %s\n", "", out)
			}
		}
	}
	if len(sum.Items) > 1 {
		fmt.Fprintf(w, "%d succeeded, %d skipped, %d failed in %s\n",
			sum.Succeeded, sum.Skipped, sum.Failed, sum.Elapsed.Round(time.Second))
	}
}
