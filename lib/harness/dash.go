// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"fmt"

	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/dashui"
)

func (h *harness) dashCommand() *cli.Command {
	return &cli.Command{
		Name:    "dash",
		Summary: "Open the terminal dashboard",
		Description: `Browse runs in a live terminal dashboard.

The run table refreshes on a timer and whenever another process
writes to the store. Type to filter by task or method kind, enter to
open a run's detail pane, q to quit.`,
		Usage: h.binary + " dash",
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			records, err := h.openStore()
			if err != nil {
				return err
			}
			defer records.Close()
			return dashui.Show(h.ctx, h.suite, records, dashui.Options{
				Refresh:   h.config.DashboardRefresh(),
				StorePath: h.databasePath(),
			})
		},
	}
}
