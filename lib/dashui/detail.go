// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/store"
)

// detailPage is a rendered run detail: pre-styled lines the model
// scrolls over. Lines longer than the terminal are truncated at draw
// time, never wrapped, so JSON stays line-aligned.
type detailPage struct {
	runID  string
	lines  []string
	scroll int
}

// buildDetail loads one run with its task and method payloads and
// renders the detail page. Decode failures of individual records
// degrade that section to its raw payload; only a missing run row is
// an error.
func buildDetail(ctx context.Context, records *store.Store, suite *bench.Suite, theme Theme, runID string, width int) (detailPage, error) {
	run, err := records.GetRawRun(ctx, runID)
	if err != nil {
		return detailPage{}, err
	}

	renderer := detailRenderer{
		suite:   suite,
		theme:   theme,
		width:   width,
		styles:  newANSIRenderer(),
		timeFmt: "2006-01-02 15:04:05",
	}

	var body strings.Builder
	renderer.writeHeader(&body, run)

	task, taskErr := records.GetRawTask(ctx, run.Task)
	if taskErr != nil {
		renderer.writeProblem(&body, "task", run.Task, taskErr)
	} else {
		renderer.writeInstance(&body, "task", task, func(payload plain.Value) (any, error) {
			return suite.Tasks().Decode(task.Label, payload)
		})
	}

	method, methodErr := records.GetRawMethod(ctx, run.Method)
	if methodErr != nil {
		renderer.writeProblem(&body, "method", run.Method, methodErr)
	} else {
		renderer.writeInstance(&body, "method", method, func(payload plain.Value) (any, error) {
			return suite.Methods().Decode(method.Label, payload)
		})
	}

	renderer.writeOutcome(&body, run, task, taskErr == nil)

	return detailPage{
		runID: runID,
		lines: strings.Split(strings.TrimRight(body.String(), "\n"), "\n"),
	}, nil
}

type detailRenderer struct {
	suite   *bench.Suite
	theme   Theme
	width   int
	styles  *lipgloss.Renderer
	timeFmt string
}

func (renderer detailRenderer) style() lipgloss.Style {
	return renderer.styles.NewStyle()
}

// sectionRule draws "── title ────" padded to the page width.
func (renderer detailRenderer) sectionRule(title string) string {
	label := renderer.style().
		Bold(true).
		Foreground(renderer.theme.HeaderForeground).
		Render(title)
	used := lipgloss.Width(label) + 4
	trail := renderer.width - used
	if trail < 2 {
		trail = 2
	}
	rule := renderer.style().Foreground(renderer.theme.BorderColor)
	return rule.Render("── ") + label + rule.Render(" "+strings.Repeat("─", trail))
}

func (renderer detailRenderer) writeHeader(body *strings.Builder, run store.RawRun) {
	status := bench.Status(run.Status)
	statusText := renderer.style().
		Foreground(renderer.theme.StatusColor(status)).
		Bold(true).
		Render(StatusGlyph(status) + " " + string(status))

	title := renderer.style().
		Bold(true).
		Foreground(renderer.theme.HeaderForeground).
		Render("run " + run.ID)

	faint := renderer.style().Foreground(renderer.theme.FaintText)
	body.WriteString(title + "  " + statusText + "\n")
	body.WriteString(faint.Render(fmt.Sprintf("created %s   updated %s",
		run.Created.Format(renderer.timeFmt), run.Updated.Format(renderer.timeFmt))) + "\n")
}

// writeInstance renders a task or method section: the section rule
// with kind and fingerprint, the description when the decoded value
// explains itself, and the payload JSON.
func (renderer detailRenderer) writeInstance(body *strings.Builder, noun string, record store.RawRecord, decode func(plain.Value) (any, error)) {
	body.WriteString("\n" + renderer.sectionRule(noun+" "+record.Label+" · "+record.ID) + "\n")

	decoded, err := renderer.decodeRecord(record, decode)
	if err != nil {
		notice := renderer.style().Foreground(renderer.theme.NoticeWarn)
		body.WriteString(notice.Render(fmt.Sprintf("row does not decode as %q: %v", record.Label, err)) + "\n")
	} else if described, hasDescription := decoded.(bench.Described); hasDescription {
		if rendered := renderMarkdown(described.Description(), renderer.theme, renderer.width); rendered != "" {
			body.WriteString(rendered + "\n\n")
		}
	}

	body.WriteString(highlightJSON(record.Payload, renderer.theme) + "\n")
}

func (renderer detailRenderer) decodeRecord(record store.RawRecord, decode func(plain.Value) (any, error)) (any, error) {
	payload, err := plain.FromJSON(record.Payload)
	if err != nil {
		return nil, err
	}
	return decode(payload)
}

func (renderer detailRenderer) writeProblem(body *strings.Builder, noun, id string, err error) {
	notice := renderer.style().Foreground(renderer.theme.NoticeError)
	body.WriteString("\n" + renderer.sectionRule(noun+" "+id) + "\n")
	body.WriteString(notice.Render(err.Error()) + "\n")
}

// writeOutcome renders the outcome section. Failures show the message
// prominently; results additionally show the metric blocks the task
// derives, when the task decoded and provides them.
func (renderer detailRenderer) writeOutcome(body *strings.Builder, run store.RawRun, task store.RawRecord, haveTask bool) {
	if run.Label == "" {
		body.WriteString("\n" + renderer.sectionRule("outcome") + "\n")
		body.WriteString(renderer.style().Foreground(renderer.theme.FaintText).Render("none recorded yet") + "\n")
		return
	}

	body.WriteString("\n" + renderer.sectionRule("outcome "+run.Label) + "\n")

	payload, err := plain.FromJSON(run.Result)
	if err != nil {
		body.WriteString(renderer.style().Foreground(renderer.theme.NoticeError).Render(err.Error()) + "\n")
		return
	}
	outcome, err := renderer.suite.Outcomes().Decode(run.Label, payload)
	if err != nil {
		notice := renderer.style().Foreground(renderer.theme.NoticeWarn)
		body.WriteString(notice.Render(fmt.Sprintf("row does not decode as %q: %v", run.Label, err)) + "\n")
		body.WriteString(highlightJSON(run.Result, renderer.theme) + "\n")
		return
	}

	switch outcome := outcome.(type) {
	case bench.Failure:
		failed := renderer.style().Foreground(renderer.theme.StatusFailed)
		body.WriteString(failed.Render(outcome.Message) + "\n")

	case bench.Result:
		body.WriteString(highlightJSON(run.Result, renderer.theme) + "\n")
		if haveTask {
			renderer.writeMetrics(body, task, outcome)
		}

	default:
		body.WriteString(highlightJSON(run.Result, renderer.theme) + "\n")
	}
}

// writeMetrics renders the display blocks a task derives from a
// result. A task without a metrics provider, or one whose derivation
// fails, contributes nothing; the raw result is already on screen.
func (renderer detailRenderer) writeMetrics(body *strings.Builder, record store.RawRecord, result bench.Result) {
	task, err := renderer.decodeTask(record)
	if err != nil {
		return
	}
	metrics, err := bench.MetricsOf(task, result)
	if err != nil || len(metrics) == 0 {
		return
	}

	for _, metric := range metrics {
		switch metric := metric.(type) {
		case bench.Table:
			renderer.writeTable(body, metric)
		case bench.TimeMetric:
			renderer.writeDurations(body, metric)
		case bench.Graph:
			renderer.writeGraph(body, metric)
		}
	}
}

func (renderer detailRenderer) decodeTask(record store.RawRecord) (bench.Task, error) {
	payload, err := plain.FromJSON(record.Payload)
	if err != nil {
		return nil, err
	}
	return renderer.suite.Tasks().Decode(record.Label, payload)
}

func (renderer detailRenderer) writeTable(body *strings.Builder, table bench.Table) {
	body.WriteString("\n" + renderer.sectionRule(table.Name) + "\n")

	keys := make([]string, 0, len(table.Cells))
	keyWidth := 0
	for key := range table.Cells {
		keys = append(keys, key)
		if len(key) > keyWidth {
			keyWidth = len(key)
		}
	}
	sort.Strings(keys)

	faint := renderer.style().Foreground(renderer.theme.FaintText)
	normal := renderer.style().Foreground(renderer.theme.NormalText)
	for _, key := range keys {
		padding := strings.Repeat(" ", keyWidth-len(key))
		body.WriteString(faint.Render(key) + padding + "  " + normal.Render(renderScalar(table.Cells[key])) + "\n")
	}
}

func (renderer detailRenderer) writeDurations(body *strings.Builder, metric bench.TimeMetric) {
	body.WriteString("\n" + renderer.sectionRule(metric.Name) + "\n")

	keys := make([]string, 0, len(metric.Durations))
	keyWidth := 0
	for key := range metric.Durations {
		keys = append(keys, key)
		if len(key) > keyWidth {
			keyWidth = len(key)
		}
	}
	sort.Strings(keys)

	faint := renderer.style().Foreground(renderer.theme.FaintText)
	normal := renderer.style().Foreground(renderer.theme.NormalText)
	for _, key := range keys {
		padding := strings.Repeat(" ", keyWidth-len(key))
		body.WriteString(faint.Render(key) + padding + "  " + normal.Render(metric.Durations[key].String()) + "\n")
	}
}

// writeGraph names the series; the terminal does not plot. Exporting
// the run and plotting elsewhere is the expected path for graphs.
func (renderer detailRenderer) writeGraph(body *strings.Builder, graph bench.Graph) {
	title := graph.Title
	if title == "" {
		title = graph.Name
	}
	line := fmt.Sprintf("graph %s: %s over %s", title, graph.KeyYs, graph.KeyXs)
	if graph.MeanStd {
		line += " (mean ± std)"
	}
	body.WriteString("\n" + renderer.style().Foreground(renderer.theme.FaintText).Render(line) + "\n")
}

// renderScalar formats a plain value for a table cell: scalars bare,
// composites as compact JSON.
func renderScalar(value plain.Value) string {
	switch value := value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case string:
		return value
	default:
		encoded, err := plain.ToJSON(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(encoded)
	}
}
