// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/junegunn/fzf/src/util"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/store"
)

// Fixed column widths. The two kind columns share whatever width
// remains after these and the separators.
const (
	idColumnWidth      = 16
	statusColumnWidth  = 9
	outcomeColumnWidth = 10
	updatedColumnWidth = 19
	columnGap          = 2
	minKindColumnWidth = 6
)

const updatedTimeFormat = "2006-01-02 15:04:05"

// tickMsg fires at the refresh interval.
type tickMsg struct{}

// nudgeMsg arrives when the store watcher sees another process write
// the database.
type nudgeMsg struct{}

// rowsMsg delivers a completed table reload.
type rowsMsg struct {
	rows []runRow
	err  error
}

// detailMsg delivers a built detail page.
type detailMsg struct {
	page detailPage
	err  error
}

// Model is the bubbletea model for the dashboard. The zero value is
// not usable; construct it with newModel.
type Model struct {
	ctx     context.Context
	records *store.Store
	suite   *bench.Suite
	theme   Theme
	keys    KeyMap

	storePath string
	refresh   time.Duration

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
	ready  bool

	// Table state. rows is the full loaded set, newest first;
	// matches is the filtered view the cursor moves over.
	rows         []runRow
	matches      []runMatch
	cursor       int
	scrollOffset int
	selectedID   string // stable focus: reloads re-find this run

	filter filterModel
	slab   *util.Slab

	// Detail page; nil while the table has focus.
	detail *detailPage

	// Status bar state.
	loadError   string
	notice      string
	noticeLevel slog.Level

	// Store watcher nudges; nil when the watcher is unavailable.
	nudges <-chan struct{}
}

func newModel(ctx context.Context, suite *bench.Suite, records *store.Store, storePath string, refresh time.Duration, nudges <-chan struct{}) Model {
	return Model{
		ctx:       ctx,
		records:   records,
		suite:     suite,
		theme:     DefaultTheme,
		keys:      DefaultKeyMap,
		storePath: storePath,
		refresh:   refresh,
		slab:      newSlab(),
		nudges:    nudges,
	}
}

// Init implements tea.Model: load the table, start the refresh timer,
// and listen for watcher nudges.
func (model Model) Init() tea.Cmd {
	return tea.Batch(model.loadCmd(), model.tickCmd(), model.listenCmd())
}

func (model Model) loadCmd() tea.Cmd {
	ctx, records := model.ctx, model.records
	return func() tea.Msg {
		rows, err := loadRows(ctx, records)
		return rowsMsg{rows: rows, err: err}
	}
}

func (model Model) tickCmd() tea.Cmd {
	return tea.Tick(model.refresh, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// listenCmd blocks on the watcher channel and converts one nudge into
// a message. Re-issued after each delivery.
func (model Model) listenCmd() tea.Cmd {
	nudges := model.nudges
	if nudges == nil {
		return nil
	}
	return func() tea.Msg {
		if _, open := <-nudges; !open {
			return nil
		}
		return nudgeMsg{}
	}
}

func (model Model) openDetailCmd(runID string) tea.Cmd {
	ctx, records, suite := model.ctx, model.records, model.suite
	theme, width := model.theme, model.contentWidth()
	return func() tea.Msg {
		page, err := buildDetail(ctx, records, suite, theme, runID, width)
		return detailMsg{page: page, err: err}
	}
}

// contentWidth is the usable render width.
func (model Model) contentWidth() int {
	if model.width < 20 {
		return 20
	}
	return model.width
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.clampScroll()
		if model.detail != nil {
			// Rebuild at the new width; detailMsg keeps the scroll.
			return model, model.openDetailCmd(model.detail.runID)
		}
		return model, nil

	case tickMsg:
		return model, tea.Batch(model.loadCmd(), model.tickCmd())

	case nudgeMsg:
		return model, tea.Batch(model.loadCmd(), model.listenCmd())

	case rowsMsg:
		if message.err != nil {
			model.loadError = message.err.Error()
			return model, nil
		}
		model.loadError = ""
		model.rows = message.rows
		model.rerank()
		if model.detail != nil {
			// The open run may have progressed; refresh the page.
			return model, model.openDetailCmd(model.detail.runID)
		}
		return model, nil

	case detailMsg:
		if message.err != nil {
			// The run vanished mid-view (removed by another process).
			model.detail = nil
			model.notice = message.err.Error()
			model.noticeLevel = slog.LevelWarn
			return model, model.noticeFadeCmd()
		}
		page := message.page
		if model.detail != nil && model.detail.runID == page.runID {
			page.scroll = model.detail.scroll
		}
		model.detail = &page
		model.clampDetailScroll()
		return model, nil

	case logNoticeMsg:
		model.notice = message.Summary
		model.noticeLevel = message.Level
		return model, model.noticeFadeCmd()

	case logNoticeFadeMsg:
		model.notice = ""
		return model, nil

	case tea.KeyMsg:
		return model.handleKey(message)
	}

	return model, nil
}

func (model Model) noticeFadeCmd() tea.Cmd {
	return tea.Tick(logNoticeFadeDelay, func(time.Time) tea.Msg {
		return logNoticeFadeMsg{}
	})
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Typing into the filter captures everything except control keys.
	if model.filter.Active && model.detail == nil {
		return model.handleFilterKey(message)
	}

	if model.detail != nil {
		return model.handleDetailKey(message)
	}

	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.FilterActivate):
		model.filter.Active = true
		return model, nil

	case key.Matches(message, model.keys.FilterClear):
		if model.filter.Input != "" {
			model.filter.Clear()
			model.rerank()
		}
		return model, nil

	case key.Matches(message, model.keys.Up):
		model.moveCursor(-1)
	case key.Matches(message, model.keys.Down):
		model.moveCursor(1)
	case key.Matches(message, model.keys.PageUp):
		model.moveCursor(-model.tableHeight())
	case key.Matches(message, model.keys.PageDown):
		model.moveCursor(model.tableHeight())
	case key.Matches(message, model.keys.Home):
		model.moveCursor(-len(model.matches))
	case key.Matches(message, model.keys.End):
		model.moveCursor(len(model.matches))

	case key.Matches(message, model.keys.Open):
		if model.cursor < len(model.matches) {
			return model, model.openDetailCmd(model.matches[model.cursor].Row.ID)
		}
	}

	return model, nil
}

// handleFilterKey routes keystrokes while the filter input has focus.
// Arrows still move the table cursor so the best match is pickable
// without leaving the input.
func (model Model) handleFilterKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyCtrlC:
		return model, tea.Quit

	case tea.KeyEsc:
		model.filter.Clear()
		model.rerank()
		return model, nil

	case tea.KeyEnter:
		model.filter.Active = false
		return model, nil

	case tea.KeyBackspace:
		if model.filter.HandleBackspace() {
			model.rerankToTop()
		}
		return model, nil

	case tea.KeyUp:
		model.moveCursor(-1)
		return model, nil

	case tea.KeyDown:
		model.moveCursor(1)
		return model, nil

	case tea.KeySpace:
		model.filter.HandleRune(' ')
		model.rerankToTop()
		return model, nil

	case tea.KeyRunes:
		for _, character := range message.Runes {
			model.filter.HandleRune(character)
		}
		model.rerankToTop()
		return model, nil
	}

	return model, nil
}

func (model Model) handleDetailKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Back):
		model.detail = nil
		return model, nil

	case key.Matches(message, model.keys.Up):
		model.scrollDetail(-1)
	case key.Matches(message, model.keys.Down):
		model.scrollDetail(1)
	case key.Matches(message, model.keys.PageUp):
		model.scrollDetail(-model.detailHeight())
	case key.Matches(message, model.keys.PageDown):
		model.scrollDetail(model.detailHeight())
	case key.Matches(message, model.keys.Home):
		model.detail.scroll = 0
	case key.Matches(message, model.keys.End):
		model.detail.scroll = len(model.detail.lines)
		model.clampDetailScroll()
	}

	return model, nil
}

// rerank refilters the loaded rows and re-finds the selected run, so
// background reloads do not yank the cursor around.
func (model *Model) rerank() {
	model.matches = model.filter.rank(model.rows, model.slab)
	model.restoreSelection()
	model.clampScroll()
}

// rerankToTop refilters and snaps to the best match, so the top of
// the list tracks the query as the user types.
func (model *Model) rerankToTop() {
	model.matches = model.filter.rank(model.rows, model.slab)
	model.cursor = 0
	model.scrollOffset = 0
	model.rememberSelection()
}

func (model *Model) restoreSelection() {
	if model.selectedID != "" {
		for index, match := range model.matches {
			if match.Row.ID == model.selectedID {
				model.cursor = index
				return
			}
		}
	}
	if model.cursor >= len(model.matches) {
		model.cursor = len(model.matches) - 1
	}
	if model.cursor < 0 {
		model.cursor = 0
	}
	model.rememberSelection()
}

func (model *Model) rememberSelection() {
	if model.cursor < len(model.matches) {
		model.selectedID = model.matches[model.cursor].Row.ID
	} else {
		model.selectedID = ""
	}
}

func (model *Model) moveCursor(delta int) {
	model.cursor += delta
	if model.cursor < 0 {
		model.cursor = 0
	}
	if model.cursor >= len(model.matches) {
		model.cursor = len(model.matches) - 1
	}
	if model.cursor < 0 {
		model.cursor = 0
	}
	model.rememberSelection()
	model.clampScroll()
}

// clampScroll keeps the cursor inside the visible window.
func (model *Model) clampScroll() {
	visible := model.tableHeight()
	if model.cursor < model.scrollOffset {
		model.scrollOffset = model.cursor
	}
	if model.cursor >= model.scrollOffset+visible {
		model.scrollOffset = model.cursor - visible + 1
	}
	if model.scrollOffset < 0 {
		model.scrollOffset = 0
	}
}

func (model *Model) scrollDetail(delta int) {
	model.detail.scroll += delta
	model.clampDetailScroll()
}

func (model *Model) clampDetailScroll() {
	if model.detail == nil {
		return
	}
	maximum := len(model.detail.lines) - model.detailHeight()
	if maximum < 0 {
		maximum = 0
	}
	if model.detail.scroll > maximum {
		model.detail.scroll = maximum
	}
	if model.detail.scroll < 0 {
		model.detail.scroll = 0
	}
}

// tableHeight is the number of run rows that fit: total height minus
// the title, the column header, the status bar, and the filter bar
// when visible.
func (model Model) tableHeight() int {
	height := model.height - 3
	if model.filter.Active || model.filter.Input != "" {
		height--
	}
	if height < 1 {
		return 1
	}
	return height
}

// detailHeight is the line count of the detail viewport: total height
// minus the title and the status bar.
func (model Model) detailHeight() int {
	height := model.height - 2
	if height < 1 {
		return 1
	}
	return height
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "loading..."
	}
	if model.detail != nil {
		return model.viewDetail()
	}
	return model.viewTable()
}

func (model Model) viewTable() string {
	var screen strings.Builder
	screen.WriteString(model.titleLine() + "\n")

	if bar := model.filter.View(model.theme, model.contentWidth()); bar != "" {
		screen.WriteString(bar + "\n")
	}

	screen.WriteString(model.columnHeader() + "\n")

	visible := model.tableHeight()
	end := model.scrollOffset + visible
	if end > len(model.matches) {
		end = len(model.matches)
	}

	drawn := 0
	if len(model.matches) == 0 {
		empty := "no runs recorded yet"
		if model.filter.Input != "" {
			empty = "no runs match the filter"
		}
		screen.WriteString(lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(" "+empty) + "\n")
		drawn = 1
	} else {
		for index := model.scrollOffset; index < end; index++ {
			screen.WriteString(model.renderRow(model.matches[index], index == model.cursor) + "\n")
			drawn++
		}
	}
	for ; drawn < visible; drawn++ {
		screen.WriteString("\n")
	}

	screen.WriteString(model.statusBar())
	return screen.String()
}

func (model Model) viewDetail() string {
	var screen strings.Builder
	screen.WriteString(model.titleLine() + "\n")

	height := model.detailHeight()
	lines := model.detail.lines
	start := model.detail.scroll
	for offset := 0; offset < height; offset++ {
		if index := start + offset; index < len(lines) {
			screen.WriteString(ansi.Truncate(lines[index], model.contentWidth(), "…"))
		}
		screen.WriteString("\n")
	}

	screen.WriteString(model.statusBar())
	return screen.String()
}

// titleLine summarizes the suite and the run counts.
func (model Model) titleLine() string {
	counts := map[bench.Status]int{}
	for _, row := range model.rows {
		counts[row.Status]++
	}

	summary := fmt.Sprintf("%d runs", len(model.rows))
	for _, status := range []bench.Status{bench.StatusDone, bench.StatusFailed, bench.StatusRunning, bench.StatusPending} {
		if counts[status] > 0 {
			summary += fmt.Sprintf(" · %d %s", counts[status], status)
		}
	}

	name := lipgloss.NewStyle().
		Bold(true).
		Foreground(model.theme.HeaderForeground).
		Render(model.suite.Name())
	rest := lipgloss.NewStyle().
		Foreground(model.theme.FaintText).
		Render("  " + summary + " · " + model.storePath)

	return ansi.Truncate(" "+name+rest, model.contentWidth(), "…")
}

func (model Model) columnHeader() string {
	taskWidth, methodWidth := model.kindColumnWidths()
	header := " " + padCell("ID", idColumnWidth) +
		gap() + padCell("TASK", taskWidth) +
		gap() + padCell("METHOD", methodWidth) +
		gap() + padCell("STATUS", statusColumnWidth) +
		gap() + padCell("OUTCOME", outcomeColumnWidth) +
		gap() + padCell("UPDATED", updatedColumnWidth)
	return lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(ansi.Truncate(header, model.contentWidth(), ""))
}

// kindColumnWidths splits the leftover width between the task and
// method columns.
func (model Model) kindColumnWidths() (int, int) {
	fixed := 1 + idColumnWidth + statusColumnWidth + outcomeColumnWidth + updatedColumnWidth + 5*columnGap
	leftover := model.contentWidth() - fixed
	taskWidth := leftover / 2
	methodWidth := leftover - taskWidth
	if taskWidth < minKindColumnWidth {
		taskWidth = minKindColumnWidth
	}
	if methodWidth < minKindColumnWidth {
		methodWidth = minKindColumnWidth
	}
	return taskWidth, methodWidth
}

func (model Model) renderRow(match runMatch, selected bool) string {
	taskWidth, methodWidth := model.kindColumnWidths()
	row := match.Row

	base := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	statusStyle := lipgloss.NewStyle().Foreground(model.theme.StatusColor(row.Status))
	highlight := lipgloss.NewStyle().
		Foreground(model.theme.NormalText).
		Background(model.theme.MatchBackground)

	if selected {
		selectedStyle := lipgloss.NewStyle().
			Foreground(model.theme.SelectedForeground).
			Background(model.theme.SelectedBackground)
		base = selectedStyle
		faint = selectedStyle
		statusStyle = lipgloss.NewStyle().
			Foreground(model.theme.StatusColor(row.Status)).
			Background(model.theme.SelectedBackground)
		highlight = selectedStyle
	}

	outcome := row.Outcome
	if outcome == "" {
		outcome = "-"
	}

	// The fuzzy positions index into labelText: the task kind, one
	// space, the method kind.
	taskCell := highlightCell(padCell(row.TaskKind, taskWidth), match.Positions, 0, base, highlight)
	methodCell := highlightCell(padCell(row.MethodKind, methodWidth), match.Positions, len([]rune(row.TaskKind))+1, base, highlight)

	line := base.Render(" "+padCell(row.ID, idColumnWidth)+gap()) +
		taskCell +
		base.Render(gap()) +
		methodCell +
		base.Render(gap()) +
		statusStyle.Render(padCell(StatusGlyph(row.Status)+" "+string(row.Status), statusColumnWidth)) +
		base.Render(gap()) +
		faint.Render(padCell(outcome, outcomeColumnWidth)+gap()) +
		faint.Render(padCell(row.Updated.Format(updatedTimeFormat), updatedColumnWidth))

	return ansi.Truncate(line, model.contentWidth(), "…")
}

func (model Model) statusBar() string {
	if model.notice != "" {
		color := model.theme.NoticeWarn
		if model.noticeLevel >= slog.LevelError {
			color = model.theme.NoticeError
		}
		return lipgloss.NewStyle().
			Foreground(color).
			Render(ansi.Truncate(" "+model.notice, model.contentWidth(), "…"))
	}

	if model.loadError != "" {
		return lipgloss.NewStyle().
			Foreground(model.theme.NoticeError).
			Render(ansi.Truncate(" cannot read store: "+model.loadError, model.contentWidth(), "…"))
	}

	help := " q quit · / filter · ↑/↓ move · enter detail"
	if model.detail != nil {
		position := ""
		if total := len(model.detail.lines); total > model.detailHeight() {
			position = fmt.Sprintf(" · %d/%d", model.detail.scroll+1, total)
		}
		help = " esc back · ↑/↓ scroll · q quit" + position
	} else if model.filter.Active {
		help = " enter confirm · esc clear · ↑/↓ move"
	}
	return lipgloss.NewStyle().
		Foreground(model.theme.HelpText).
		Render(ansi.Truncate(help, model.contentWidth(), "…"))
}

// highlightCell renders a padded cell with the matched rune positions
// tinted. Positions index into the filter's labelText; offset is
// where this cell's text begins there. Runs of same-styled characters
// batch into single Render calls.
func highlightCell(cell string, positions []int, offset int, base, highlight lipgloss.Style) string {
	if len(positions) == 0 {
		return base.Render(cell)
	}

	matched := make(map[int]bool, len(positions))
	for _, position := range positions {
		if position >= offset {
			matched[position-offset] = true
		}
	}
	if len(matched) == 0 {
		return base.Render(cell)
	}

	runes := []rune(cell)
	var rendered strings.Builder
	runStart := 0
	inMatch := matched[0]
	for index := 1; index <= len(runes); index++ {
		current := index < len(runes) && matched[index]
		if index == len(runes) || current != inMatch {
			chunk := string(runes[runStart:index])
			if inMatch {
				rendered.WriteString(highlight.Render(chunk))
			} else {
				rendered.WriteString(base.Render(chunk))
			}
			runStart = index
			inMatch = current
		}
	}
	return rendered.String()
}

// padCell pads or truncates text to an exact rune width.
func padCell(text string, width int) string {
	runes := []rune(text)
	if len(runes) > width {
		if width <= 1 {
			return string(runes[:width])
		}
		return string(runes[:width-1]) + "…"
	}
	return text + strings.Repeat(" ", width-len(runes))
}

func gap() string {
	return strings.Repeat(" ", columnGap)
}
