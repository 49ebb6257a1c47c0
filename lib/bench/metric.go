// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package bench

import (
	"time"

	"github.com/crucible-foundation/crucible/lib/plain"
)

// Metric is one display block a task derives from a result. The set
// of metric kinds is closed; renderers switch over them.
type Metric interface {
	isMetric()
}

// MetricProvider is implemented by tasks that know how to present
// their results. Tasks without it still run; their results just show
// raw.
type MetricProvider interface {
	Metrics(result Result) ([]Metric, error)
}

// Table presents named scalar cells.
type Table struct {
	Name  string
	Cells map[string]plain.Value
}

// TimeMetric presents named durations extracted from a result.
type TimeMetric struct {
	Name      string
	Durations map[string]time.Duration
}

// Graph describes an xy-series plot over two result keys. Rendering
// is up to the consumer; the descriptor only names the series.
type Graph struct {
	Name    string
	KeyXs   string
	KeyYs   string
	Title   string
	XLabel  string
	YLabel  string
	MeanStd bool
}

func (Table) isMetric()      {}
func (TimeMetric) isMetric() {}
func (Graph) isMetric()      {}

// MetricsOf returns the display metrics a task derives from a result,
// or nil when the task provides none.
func MetricsOf(task Task, result Result) ([]Metric, error) {
	provider, provides := task.(MetricProvider)
	if !provides {
		return nil, nil
	}
	return provider.Metrics(result)
}
