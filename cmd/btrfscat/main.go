// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command btrfscat is a minimal offline catalog dumper: given a
// btrfs image, it prints one record per inode it can reconstruct.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/btrfscat/btrfscat/internal/parser"
	"github.com/btrfscat/btrfscat/lib/btrfs"
	"github.com/btrfscat/btrfscat/lib/btrfsutil"
	"github.com/btrfscat/btrfscat/lib/textui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "btrfscat: error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logLevelFlag := textui.LogLevelFlag{Level: dlog.LogLevelWarn}
	var partitionOffset int64
	var infoOnly bool
	var jsonOutput bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "btrfscat IMAGE",
		Short: "Catalog every inode in an offline btrfs image",
		Args:  cobra.ExactArgs(1),

		SilenceErrors: true,
		SilenceUsage:  true,

		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose && logLevelFlag.Level < dlog.LogLevelInfo {
				logLevelFlag.Level = dlog.LogLevelInfo
			}
			logger := textui.NewLogger(os.Stderr, logLevelFlag.Level)
			ctx := dlog.WithLogger(cmd.Context(), logger)
			ctx = dlog.WithField(ctx, "mem", new(textui.LiveMemUse))

			var sb btrfs.Superblock
			var entries []btrfsutil.FileEntry

			grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
				EnableSignalHandling: true,
			})
			grp.Go("main", func(ctx context.Context) (err error) {
				sb, entries, err = parser.Parse(ctx, args[0], partitionOffset, parser.Options{
					InfoOnly: infoOnly,
					Verbose:  verbose,
				})
				return err
			})
			if err := grp.Wait(); err != nil {
				return err
			}

			if infoOnly {
				fmt.Printf("label=%q root_tree=%v chunk_tree=%v node_size=%d\n",
					sb.Label, sb.RootTree, sb.ChunkTree, sb.NodeSize)
				return nil
			}
			if jsonOutput {
				return printJSON(entries)
			}
			printTable(entries)
			return nil
		},
	}

	cmd.PersistentFlags().Var(&logLevelFlag, "verbosity", "set the verbosity")
	cmd.PersistentFlags().Int64Var(&partitionOffset, "partition-offset", 0, "byte offset of the btrfs partition within the image")
	cmd.PersistentFlags().BoolVar(&infoOnly, "info-only", false, "print only the superblock summary and stop")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit a JSON array of file entries instead of a table")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "raise the log level to info")

	return cmd.ExecuteContext(context.Background())
}

func printJSON(entries []btrfsutil.FileEntry) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func printTable(entries []btrfsutil.FileEntry) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Subvol", "Inode", "Type", "Size", "Path", "MD5"})
	for _, e := range entries {
		md5 := ""
		if len(e.MD5) > 0 {
			md5 = fmt.Sprintf("%x", e.MD5)
		}
		t.AppendRow(table.Row{e.SubvolumeID, e.InodeNumber, e.Type, e.Size, e.Path, md5})
	}
	t.Render()
}
