// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"
)

// filterModel holds the run table's filter state. Matching is fuzzy
// over the task and method kind columns; the filter narrows the
// loaded rows client-side, it never re-queries the store.
type filterModel struct {
	// Input is the current filter query text.
	Input string

	// Active is true when the filter input has keyboard focus (the
	// user pressed / to start typing).
	Active bool
}

// runMatch is one filtered table row: the row, its fzf score, and the
// matched rune positions within the row's labelText. Positions drive
// character-level highlighting in the kind columns.
type runMatch struct {
	Row       runRow
	Score     int
	Positions []int
}

// rank scores every row against the filter input and returns the
// matches best first, ties keeping the incoming row order. An empty
// filter returns all rows unscored, in order. The slab may be nil.
func (filter filterModel) rank(rows []runRow, slab *util.Slab) []runMatch {
	if filter.Input == "" {
		matches := make([]runMatch, len(rows))
		for index, row := range rows {
			matches[index] = runMatch{Row: row}
		}
		return matches
	}

	pattern := []rune(filter.Input)
	var matches []runMatch
	for _, row := range rows {
		result := fuzzyMatch(row.labelText(), pattern, slab)
		if result.Score <= 0 {
			continue
		}
		matches = append(matches, runMatch{
			Row:       row,
			Score:     result.Score,
			Positions: result.Positions,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// HandleRune appends a typed character to the filter input.
func (filter *filterModel) HandleRune(character rune) {
	filter.Input += string(character)
}

// HandleBackspace removes the last character from the filter input.
// Returns true if the input changed.
func (filter *filterModel) HandleBackspace() bool {
	if len(filter.Input) == 0 {
		return false
	}
	runes := []rune(filter.Input)
	filter.Input = string(runes[:len(runes)-1])
	return true
}

// Clear resets the filter input and deactivates it.
func (filter *filterModel) Clear() {
	filter.Input = ""
	filter.Active = false
}

// View renders the filter bar. When active, shows the input with a
// cursor. When inactive with text, shows the filter as a subtle
// indicator. When inactive with no text, returns empty (hidden).
func (filter filterModel) View(theme Theme, width int) string {
	if !filter.Active && filter.Input == "" {
		return ""
	}

	if filter.Active {
		cursor := lipgloss.NewStyle().
			Foreground(theme.HeaderForeground).
			Bold(true).
			Render("▎")
		return lipgloss.NewStyle().
			Foreground(theme.NormalText).
			Width(width).
			Render(" / " + filter.Input + cursor)
	}

	return lipgloss.NewStyle().
		Foreground(theme.FaintText).
		Width(width).
		Render(" filter: " + filter.Input)
}
