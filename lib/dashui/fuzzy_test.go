// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"testing"
)

func TestFuzzyMatchBasic(t *testing.T) {
	result := fuzzyMatch("cubic newton", []rune("newton"), nil)
	if result.Score <= 0 {
		t.Fatal("expected positive score for substring match")
	}
	if len(result.Positions) == 0 {
		t.Fatal("expected non-empty match positions")
	}
}

func TestFuzzyMatchNonContiguous(t *testing.T) {
	// "cnw" should match "cubic newton" — c from cubic, n and w from
	// newton.
	result := fuzzyMatch("cubic newton", []rune("cnw"), nil)
	if result.Score <= 0 {
		t.Fatal("expected positive score for non-contiguous fuzzy match")
	}
}

func TestFuzzyMatchNoMatch(t *testing.T) {
	result := fuzzyMatch("cubic newton", []rune("xyz"), nil)
	if result.Score != 0 {
		t.Errorf("expected zero score for no match, got %d", result.Score)
	}
	if len(result.Positions) != 0 {
		t.Errorf("expected empty positions for no match, got %v", result.Positions)
	}
}

func TestFuzzyMatchCaseInsensitive(t *testing.T) {
	// Both sides are lowercased before scoring, so an all-caps kind
	// label still matches a lowercase query.
	result := fuzzyMatch("CUBIC NEWTON", []rune("newton"), nil)
	if result.Score <= 0 {
		t.Fatalf("expected case-insensitive match, got score=%d", result.Score)
	}
}

func TestFuzzyMatchEmptyPattern(t *testing.T) {
	result := fuzzyMatch("anything", []rune{}, nil)
	if result.Score != 0 {
		t.Errorf("expected zero score for empty pattern, got %d", result.Score)
	}
}

func TestFuzzyMatchPositionsSorted(t *testing.T) {
	result := fuzzyMatch("random-search newton", []rune("rsn"), nil)
	if result.Score <= 0 {
		t.Fatal("expected match")
	}
	for index := 1; index < len(result.Positions); index++ {
		if result.Positions[index-1] > result.Positions[index] {
			t.Fatalf("positions not ascending: %v", result.Positions)
		}
	}
}

func TestFuzzyMatchWithSlab(t *testing.T) {
	slab := newSlab()
	first := fuzzyMatch("cubic newton", []rune("newton"), slab)
	second := fuzzyMatch("cubic newton", []rune("newton"), nil)
	if first.Score != second.Score {
		t.Errorf("slab changed score: with=%d without=%d", first.Score, second.Score)
	}
}

func TestRankEmptyFilterReturnsAllInOrder(t *testing.T) {
	rows := testRows()
	filter := filterModel{Input: ""}

	matches := filter.rank(rows, nil)

	if len(matches) != len(rows) {
		t.Fatalf("empty filter should return all %d rows, got %d", len(rows), len(matches))
	}
	for index, match := range matches {
		if match.Row.ID != rows[index].ID {
			t.Errorf("row %d: got %s, want %s (order must be preserved)", index, match.Row.ID, rows[index].ID)
		}
		if match.Score != 0 {
			t.Errorf("row %s should be unscored with an empty filter, got %d", match.Row.ID, match.Score)
		}
		if len(match.Positions) != 0 {
			t.Errorf("row %s should have no positions with an empty filter", match.Row.ID)
		}
	}
}

func TestRankNarrowsToMatchingRows(t *testing.T) {
	rows := testRows()
	filter := filterModel{Input: "newton"}

	matches := filter.rank(rows, newSlab())

	// Two of the three test rows use the newton method.
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches for 'newton', got %d", len(matches))
	}
	for _, match := range matches {
		if match.Row.MethodKind != "newton" {
			t.Errorf("unexpected match %s (method %s)", match.Row.ID, match.Row.MethodKind)
		}
		if match.Score <= 0 {
			t.Errorf("match %s has non-positive score %d", match.Row.ID, match.Score)
		}
		if len(match.Positions) == 0 {
			t.Errorf("match %s has no highlight positions", match.Row.ID)
		}
	}
}

func TestRankBestScoreFirst(t *testing.T) {
	rows := []runRow{
		{ID: "run-weak", TaskKind: "quartic", MethodKind: "nelder-mead"},
		{ID: "run-exact", TaskKind: "cubic", MethodKind: "newton"},
	}
	filter := filterModel{Input: "newton"}

	matches := filter.rank(rows, nil)

	if len(matches) == 0 {
		t.Fatal("expected at least the exact match")
	}
	if matches[0].Row.ID != "run-exact" {
		t.Errorf("best match should rank first, got %s", matches[0].Row.ID)
	}
}

func TestFilterHandleBackspace(t *testing.T) {
	filter := filterModel{Input: "newton"}

	if !filter.HandleBackspace() {
		t.Error("backspace on non-empty input should report a change")
	}
	if filter.Input != "newto" {
		t.Errorf("input after backspace = %q, want %q", filter.Input, "newto")
	}

	filter.Input = ""
	if filter.HandleBackspace() {
		t.Error("backspace on empty input should report no change")
	}
}

func TestFilterClear(t *testing.T) {
	filter := filterModel{Input: "newton", Active: true}
	filter.Clear()
	if filter.Input != "" || filter.Active {
		t.Errorf("Clear left state Input=%q Active=%v", filter.Input, filter.Active)
	}
}
