// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"slices"
	"strings"
	"unicode"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// Slab sizes for the fzf matcher's scratch memory, matching the sizes
// fzf itself allocates per worker.
const (
	slab16Size = 100 * 1024
	slab32Size = 2048
)

// newSlab allocates scratch memory for repeated fuzzy match calls.
// One slab serves any number of sequential matches; it must not be
// shared across goroutines.
func newSlab() *util.Slab {
	return util.MakeSlab(slab16Size, slab32Size)
}

// FuzzyResult is one fuzzy match: the fzf score and the matched rune
// positions within the text, ascending. A zero Score means no match.
type FuzzyResult struct {
	Score     int
	Positions []int
}

// fuzzyMatch runs fzf's FuzzyMatchV2 over the text. Matching is
// case-insensitive: both the text and the pattern are lowercased
// before scoring. An empty pattern matches nothing (callers treat an
// empty filter as "show everything" before scoring). The slab may be
// nil; passing one avoids per-call allocation.
func fuzzyMatch(text string, pattern []rune, slab *util.Slab) FuzzyResult {
	if len(pattern) == 0 {
		return FuzzyResult{}
	}

	lowered := make([]rune, len(pattern))
	for index, character := range pattern {
		lowered[index] = unicode.ToLower(character)
	}
	chars := util.ToChars([]byte(strings.ToLower(text)))

	result, positions := algo.FuzzyMatchV2(true, false, true, &chars, lowered, true, slab)
	if result.Score <= 0 {
		return FuzzyResult{}
	}

	match := FuzzyResult{Score: result.Score}
	if positions != nil {
		match.Positions = slices.Clone(*positions)
		slices.Sort(match.Positions)
	}
	return match
}
