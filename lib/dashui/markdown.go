// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/crucible-foundation/crucible/lib/plain"
)

// markdownParser is initialized once and shared. The parser
// configuration never changes and goldmark parsers are safe to share;
// per-call state lives in the reader passed to Parse.
var (
	markdownParser     goldmark.Markdown
	markdownParserOnce sync.Once
)

func getMarkdownParser() goldmark.Markdown {
	markdownParserOnce.Do(func() {
		markdownParser = goldmark.New()
	})
	return markdownParser
}

// renderMarkdown renders a task or method description as styled
// terminal text. Soft line breaks inside paragraphs become spaces, so
// hard-wrapped source reflows to the given width. Fenced code blocks
// keep their line structure and get syntax highlighting.
func renderMarkdown(input string, theme Theme, width int) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	document := getMarkdownParser().Parser().Parse(text.NewReader(source))

	walker := &markdownWalker{
		source:      source,
		theme:       theme,
		width:       width,
		lipRenderer: newANSIRenderer(),
	}
	ast.Walk(document, walker.walk)
	return strings.TrimRight(walker.output.String(), "\n")
}

// newANSIRenderer builds a lipgloss renderer pinned to the ANSI256
// profile. The output always targets the bubbletea display, so
// auto-detection (which sees no TTY under tests) must not strip the
// colors.
func newANSIRenderer() *lipgloss.Renderer {
	renderer := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	renderer.SetColorProfile(termenv.ANSI256)
	return renderer
}

// markdownWalker walks a goldmark AST and accumulates styled terminal
// text. Inline content collects in a buffer and is word-wrapped as a
// unit when its block closes; goldmark's streaming renderer interface
// cannot express that without an intermediate buffer anyway, so the
// walk is direct.
type markdownWalker struct {
	source []byte
	theme  Theme
	width  int

	output strings.Builder
	inline strings.Builder

	// Prefix stack for nested containers: blockquote bars and list
	// item continuations.
	prefixes    []string
	prefixWidth int

	// pendingBullet replaces the prefix for the next emitted line
	// only, carrying a list item's bullet or number.
	pendingBullet string

	// Inline style depth. Counters rather than booleans so nested
	// emphasis unwinds correctly.
	boldDepth   int
	italicDepth int

	lists []listLevel

	lipRenderer *lipgloss.Renderer

	// Trailing newline count in output, for blank line management.
	trailing int
}

type listLevel struct {
	ordered bool
	number  int
	tight   bool
}

func (walker *markdownWalker) style() lipgloss.Style {
	return walker.lipRenderer.NewStyle()
}

// contentWidth is the wrap width after the active prefixes, floored
// so degenerate terminal sizes cannot wrap to nothing.
func (walker *markdownWalker) contentWidth() int {
	width := walker.width - walker.prefixWidth
	if width < 10 {
		width = 10
	}
	return width
}

func (walker *markdownWalker) pushPrefix(prefix string) {
	walker.prefixes = append(walker.prefixes, prefix)
	walker.prefixWidth += len([]rune(prefix))
}

func (walker *markdownWalker) popPrefix() {
	if len(walker.prefixes) == 0 {
		return
	}
	last := walker.prefixes[len(walker.prefixes)-1]
	walker.prefixes = walker.prefixes[:len(walker.prefixes)-1]
	walker.prefixWidth -= len([]rune(last))
}

func (walker *markdownWalker) linePrefix() string {
	return strings.Join(walker.prefixes, "")
}

// nextLinePrefix returns the prefix for the line about to be emitted:
// the pending bullet once, then the regular prefix.
func (walker *markdownWalker) nextLinePrefix() string {
	if walker.pendingBullet != "" {
		bullet := walker.pendingBullet
		walker.pendingBullet = ""
		return bullet
	}
	return walker.linePrefix()
}

// emit appends text to the output, tracking trailing newlines.
func (walker *markdownWalker) emit(content string) {
	if content == "" {
		return
	}
	walker.output.WriteString(content)

	count := 0
	allNewlines := true
	for index := len(content) - 1; index >= 0; index-- {
		if content[index] != '\n' {
			allNewlines = false
			break
		}
		count++
	}
	if allNewlines {
		walker.trailing += count
	} else {
		walker.trailing = count
	}
}

func (walker *markdownWalker) endLine() {
	if walker.trailing < 1 {
		walker.emit("\n")
	}
}

func (walker *markdownWalker) blankLine() {
	for walker.trailing < 2 {
		walker.emit("\n")
	}
}

// emitLines writes pre-wrapped content line by line, prefixing each.
func (walker *markdownWalker) emitLines(content string) {
	for index, line := range strings.Split(content, "\n") {
		if index > 0 {
			walker.endLine()
		}
		walker.emit(walker.nextLinePrefix() + line)
	}
	walker.endLine()
}

// flushInline wraps the collected inline content to the current width
// and emits it. No-op when the buffer is empty.
func (walker *markdownWalker) flushInline() bool {
	content := walker.inline.String()
	walker.inline.Reset()
	if content == "" {
		return false
	}
	walker.emitLines(ansi.Wrap(content, walker.contentWidth(), " ,.;-+|"))
	return true
}

// styledText renders text in the current inline style.
func (walker *markdownWalker) styledText(content string) string {
	style := walker.style().Foreground(walker.theme.NormalText)
	if walker.boldDepth > 0 {
		style = style.Bold(true)
	}
	if walker.italicDepth > 0 {
		style = style.Italic(true)
	}
	return style.Render(content)
}

func (walker *markdownWalker) inTightList() bool {
	if len(walker.lists) == 0 {
		return false
	}
	return walker.lists[len(walker.lists)-1].tight
}

func (walker *markdownWalker) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {

	case ast.KindDocument:

	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			walker.inline.Reset()
		} else if walker.flushInline() {
			if !walker.inTightList() {
				walker.blankLine()
			}
		}

	case ast.KindHeading:
		if entering {
			walker.inline.Reset()
		} else {
			walker.leaveHeading(node.(*ast.Heading))
		}

	case ast.KindFencedCodeBlock:
		if entering {
			block := node.(*ast.FencedCodeBlock)
			walker.renderCodeLines(blockText(block, walker.source), string(block.Language(walker.source)))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock:
		if entering {
			walker.renderCodeLines(blockText(node, walker.source), "")
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			walker.pushPrefix("│ ")
		} else {
			walker.popPrefix()
			walker.blankLine()
		}

	case ast.KindList:
		if entering {
			list := node.(*ast.List)
			level := listLevel{ordered: list.IsOrdered(), tight: list.IsTight}
			if list.IsOrdered() {
				level.number = list.Start
			}
			walker.lists = append(walker.lists, level)
		} else {
			walker.lists = walker.lists[:len(walker.lists)-1]
			if !walker.inTightList() {
				walker.blankLine()
			}
		}

	case ast.KindListItem:
		if entering {
			walker.enterListItem()
		} else {
			walker.popPrefix()
			if walker.inTightList() {
				walker.endLine()
			} else {
				walker.blankLine()
			}
		}

	case ast.KindThematicBreak:
		if entering {
			rule := walker.style().
				Foreground(walker.theme.BorderColor).
				Render(strings.Repeat("─", walker.contentWidth()))
			walker.blankLine()
			walker.emitLines(rule)
			walker.blankLine()
		}

	case ast.KindText:
		if entering {
			textNode := node.(*ast.Text)
			walker.inline.WriteString(walker.styledText(string(textNode.Segment.Value(walker.source))))
			if textNode.SoftLineBreak() {
				// Soft breaks become spaces so the paragraph reflows
				// at the terminal's width, not the author's editor.
				walker.inline.WriteString(" ")
			}
			if textNode.HardLineBreak() {
				walker.inline.WriteString("\n")
			}
		}

	case ast.KindString:
		if entering {
			walker.inline.WriteString(walker.styledText(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		emphasis := node.(*ast.Emphasis)
		delta := 1
		if !entering {
			delta = -1
		}
		if emphasis.Level >= 2 {
			walker.boldDepth += delta
		} else {
			walker.italicDepth += delta
		}

	case ast.KindCodeSpan:
		if entering {
			walker.renderCodeSpan(node)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if entering {
			walker.renderLink(node.(*ast.Link))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(walker.source))
			walker.inline.WriteString(walker.style().Foreground(walker.theme.FaintText).Render(url))
		}
	}

	return ast.WalkContinue, nil
}

func (walker *markdownWalker) leaveHeading(heading *ast.Heading) {
	// Headings restyle their whole text, so drop the per-fragment
	// styling collected during the walk.
	content := ansi.Strip(walker.inline.String())
	walker.inline.Reset()
	if content == "" {
		return
	}

	style := walker.style().Bold(true)
	if heading.Level <= 2 {
		style = style.Foreground(walker.theme.HeaderForeground)
	} else {
		style = style.Foreground(walker.theme.NormalText)
	}

	walker.blankLine()
	walker.emitLines(ansi.Wrap(style.Render(content), walker.contentWidth(), " ,.;-+|"))
	walker.blankLine()
}

func (walker *markdownWalker) enterListItem() {
	if len(walker.lists) == 0 {
		return
	}
	level := &walker.lists[len(walker.lists)-1]

	bullet := "- "
	if level.ordered {
		bullet = strconv.Itoa(level.number) + ". "
		level.number++
	}

	// The bullet replaces the whole prefix on the item's first line;
	// continuation lines indent by the bullet's width.
	walker.pendingBullet = walker.linePrefix() + bullet
	walker.pushPrefix(strings.Repeat(" ", len(bullet)))
}

func (walker *markdownWalker) renderCodeSpan(node ast.Node) {
	var code strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch fragment := child.(type) {
		case *ast.Text:
			code.Write(fragment.Segment.Value(walker.source))
		case *ast.String:
			code.Write(fragment.Value)
		}
	}
	walker.inline.WriteString(walker.style().Foreground(walker.theme.FaintText).Render(code.String()))
}

func (walker *markdownWalker) renderLink(node *ast.Link) {
	// Collect the link text through a nested walk so nested emphasis
	// still applies, then restore the surrounding inline buffer.
	saved := walker.inline.String()
	walker.inline.Reset()
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, walker.walk)
	}
	display := walker.inline.String()
	walker.inline.Reset()
	walker.inline.WriteString(saved)

	walker.inline.WriteString(display)
	if url := string(node.Destination); url != "" {
		walker.inline.WriteString(" " + walker.style().Foreground(walker.theme.FaintText).Render("("+url+")"))
	}
}

// renderCodeLines emits a code block line by line, highlighted when a
// language is named. Code lines are never wrapped.
func (walker *markdownWalker) renderCodeLines(code, language string) {
	rendered := highlightCode(code, language, walker.style().Foreground(walker.theme.FaintText))
	walker.blankLine()
	walker.emitLines(strings.TrimRight(rendered, "\n"))
	walker.blankLine()
}

// blockText collects the raw text of a code block node.
func blockText(node ast.Node, source []byte) string {
	var buffer strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		buffer.Write(segment.Value(source))
	}
	return buffer.String()
}

// highlightCode runs chroma over the code. An unknown language or a
// chroma failure falls back to the plain style.
func highlightCode(code, language string, fallback lipgloss.Style) string {
	if language == "" {
		return fallback.Render(code)
	}
	var buffer strings.Builder
	if err := quick.Highlight(&buffer, code, language, "terminal256", chromaStyle()); err != nil {
		return fallback.Render(code)
	}
	return buffer.String()
}

// highlightJSON pretty-prints and syntax-highlights a stored JSON
// payload. Undecodable payloads render raw in the faint style, so a
// corrupt row is still inspectable.
func highlightJSON(payload []byte, theme Theme) string {
	pretty := payload
	if value, err := plain.FromJSON(payload); err == nil {
		if indented, err := plain.ToJSONIndent(value); err == nil {
			pretty = indented
		}
	}

	fallback := newANSIRenderer().NewStyle().Foreground(theme.FaintText)
	return highlightCode(string(pretty), "json", fallback)
}
