// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/crucible-foundation/crucible/lib/bench"
)

// Theme defines the dashboard color palette. Every color is an
// adaptive pair: lipgloss picks the light or dark variant from the
// detected terminal background, so the same theme reads well on both.
// Values are ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.AdaptiveColor
	FaintText  lipgloss.AdaptiveColor

	// Selected row.
	SelectedBackground lipgloss.AdaptiveColor
	SelectedForeground lipgloss.AdaptiveColor

	// Run status colors.
	StatusRunning lipgloss.AdaptiveColor
	StatusPending lipgloss.AdaptiveColor
	StatusDone    lipgloss.AdaptiveColor
	StatusFailed  lipgloss.AdaptiveColor

	// UI chrome.
	HeaderForeground lipgloss.AdaptiveColor
	BorderColor      lipgloss.AdaptiveColor
	HelpText         lipgloss.AdaptiveColor

	// Filter match highlighting: background tint for matched
	// characters in the kind columns.
	MatchBackground lipgloss.AdaptiveColor

	// Status bar log notices.
	NoticeWarn  lipgloss.AdaptiveColor
	NoticeError lipgloss.AdaptiveColor
}

// StatusColor returns the color for a run status. Unknown values get
// FaintText.
func (theme Theme) StatusColor(status bench.Status) lipgloss.AdaptiveColor {
	switch status {
	case bench.StatusRunning:
		return theme.StatusRunning
	case bench.StatusPending:
		return theme.StatusPending
	case bench.StatusDone:
		return theme.StatusDone
	case bench.StatusFailed:
		return theme.StatusFailed
	default:
		return theme.FaintText
	}
}

// StatusGlyph returns the one-cell marker shown before a run status.
func StatusGlyph(status bench.Status) string {
	switch status {
	case bench.StatusRunning:
		return "◐"
	case bench.StatusPending:
		return "◌"
	case bench.StatusDone:
		return "✓"
	case bench.StatusFailed:
		return "✗"
	default:
		return "·"
	}
}

// DefaultTheme is the built-in color scheme. The dark variants follow
// the usual dim-terminal palette; the light variants swap the grays
// and darken the accents so they survive a white background.
var DefaultTheme = Theme{
	NormalText: lipgloss.AdaptiveColor{Light: "235", Dark: "252"},
	FaintText:  lipgloss.AdaptiveColor{Light: "243", Dark: "245"},

	SelectedBackground: lipgloss.AdaptiveColor{Light: "253", Dark: "236"},
	SelectedForeground: lipgloss.AdaptiveColor{Light: "232", Dark: "255"},

	StatusRunning: lipgloss.AdaptiveColor{Light: "130", Dark: "220"}, // amber
	StatusPending: lipgloss.AdaptiveColor{Light: "244", Dark: "245"}, // gray
	StatusDone:    lipgloss.AdaptiveColor{Light: "28", Dark: "114"},  // green
	StatusFailed:  lipgloss.AdaptiveColor{Light: "160", Dark: "196"}, // red

	HeaderForeground: lipgloss.AdaptiveColor{Light: "232", Dark: "255"},
	BorderColor:      lipgloss.AdaptiveColor{Light: "250", Dark: "240"},
	HelpText:         lipgloss.AdaptiveColor{Light: "245", Dark: "241"},

	MatchBackground: lipgloss.AdaptiveColor{Light: "222", Dark: "58"}, // amber tint

	NoticeWarn:  lipgloss.AdaptiveColor{Light: "130", Dark: "220"},
	NoticeError: lipgloss.AdaptiveColor{Light: "160", Dark: "196"},
}

// chromaStyle names the syntax highlighting style for the detected
// terminal background. Chroma styles are not adaptive, so the
// decision happens once here.
func chromaStyle() string {
	if termenv.HasDarkBackground() {
		return "monokai"
	}
	return "monokailight"
}
