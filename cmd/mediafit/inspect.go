// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ManuGH/mediafit/internal/acquire"
	"github.com/ManuGH/mediafit/internal/hardware"
	"github.com/spf13/cobra"
)

func newEncodersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "encoders",
		Short: "Probe hardware encoders and show which one would be used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := opts.load(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			priority, err := e.priority()
			if err != nil {
				return err
			}
			caps := e.prober(priority).ProbeEncoders(ctx)
			choice := hardware.Select(caps, priorityOrDefault(priority))
			if !isAuto(opts.encoder) {
				sel, err := e.selector(opts.encoder)
				if err != nil {
					return err
				}
				choice = sel.SelectEncoder(ctx)
			}
			printEncoders(cmd.OutOrStdout(), caps, choice)
			return nil
		},
	}
}

func priorityOrDefault(p []hardware.Vendor) []hardware.Vendor {
	if p == nil {
		return hardware.DefaultPriority
	}
	return p
}

func printEncoders(w io.Writer, caps hardware.Capabilities, choice hardware.EncoderChoice) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VENDOR\tENCODER\tSESSIONS\tUSABLE")
	vendors := append(append([]hardware.Vendor(nil), hardware.DefaultPriority...), hardware.VendorSoftware)
	for _, v := range vendors {
		d := hardware.Dialects[v]
		usable := "no"
		if caps.Has(v) {
			usable = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", v, d.H264, d.MaxSessions, usable)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\nselected: %s\n", choice)
}

func newFormatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "format",
		Short: "Print the yt-dlp format selection for the active profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			sel := acquire.PlanSourceFormat(e.profile.OutputProfile())
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, sel.String())
			fmt.Fprintf(w, "merge: %s, preferred ext: %s\n", sel.MergeFormat, sel.Ext)
			return nil
		},
	}
}
