// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/store"
)

// runRow is one line of the run table: the raw run joined with the
// kind labels of its task and method. Payloads stay in the store
// until the detail page asks for them.
type runRow struct {
	ID         string
	TaskID     string
	MethodID   string
	TaskKind   string
	MethodKind string
	Status     bench.Status
	Outcome    string // outcome label; empty while no outcome is recorded
	Created    time.Time
	Updated    time.Time
}

// labelText is the string the fuzzy filter scores: the two kind
// columns joined the way the table displays them.
func (row runRow) labelText() string {
	return row.TaskKind + " " + row.MethodKind
}

// loadRows reads the full run table and resolves each run's task and
// method fingerprints to kind labels. Rows come back most recently
// updated first, so fresh activity is at the top of the table.
func loadRows(ctx context.Context, records *store.Store) ([]runRow, error) {
	tasks, err := records.ListRawTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	methods, err := records.ListRawMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	runs, err := records.ListRawRuns(ctx, store.RunFilter{})
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	taskKinds := make(map[string]string, len(tasks))
	for _, task := range tasks {
		taskKinds[task.ID] = task.Label
	}
	methodKinds := make(map[string]string, len(methods))
	for _, method := range methods {
		methodKinds[method.ID] = method.Label
	}

	rows := make([]runRow, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, runRow{
			ID:         run.ID,
			TaskID:     run.Task,
			MethodID:   run.Method,
			TaskKind:   kindOrPlaceholder(taskKinds, run.Task),
			MethodKind: kindOrPlaceholder(methodKinds, run.Method),
			Status:     bench.Status(run.Status),
			Outcome:    run.Label,
			Created:    run.Created,
			Updated:    run.Updated,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Updated.After(rows[j].Updated)
	})
	return rows, nil
}

// kindOrPlaceholder guards against a run whose instance row is gone
// (deleted out from under it with a raw tool). The table still shows
// the run; the kind column just cannot name it.
func kindOrPlaceholder(kinds map[string]string, id string) string {
	if kind, known := kinds[id]; known {
		return kind
	}
	return "?"
}
