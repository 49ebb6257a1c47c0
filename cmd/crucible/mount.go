// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/store/fuse"
)

func (p *program) mountCommand() *cli.Command {
	var connection storeConnection
	var allowOther bool
	return &cli.Command{
		Name:    "mount",
		Summary: "Mount the store as a read-only filesystem",
		Description: `Mount the store at a directory.

Records appear as pretty-printed JSON files under tasks/, methods/,
and runs/, so shell tools (grep, jq, diff) work on stored payloads
without any export step. The filesystem is read-only; writes fail
with EROFS.

The command blocks until interrupted (ctrl-c) or the filesystem is
unmounted externally with fusermount -u.`,
		Usage: "crucible mount <dir> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("mount", pflag.ContinueOnError)
			connection.AddFlags(flags)
			flags.BoolVar(&allowOther, "allow-other", false, "let other users read the mount (needs user_allow_other in /etc/fuse.conf)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("mountpoint directory required")
			}
			if len(args) > 1 {
				return fmt.Errorf("unexpected argument: %s", args[1])
			}
			mountpoint := args[0]

			records, err := connection.open(p)
			if err != nil {
				return err
			}
			defer records.Close()

			server, err := fuse.Mount(fuse.Options{
				Mountpoint: mountpoint,
				Store:      records,
				AllowOther: allowOther,
				Logger:     p.logger,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(p.stderr, "mounted %s at %s (ctrl-c to unmount)\n", connection.Path, mountpoint)

			go func() {
				<-p.ctx.Done()
				if err := server.Unmount(); err != nil {
					p.logger.Warn("unmount failed, try fusermount -u", "mountpoint", mountpoint, "error", err)
				}
			}()

			server.Wait()
			return nil
		},
	}
}
