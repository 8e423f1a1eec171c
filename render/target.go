package render

import (
	"strings"
	"unicode/utf8"
)

const (
	targetDelim = "::"
	targetSep   = ":"
)

type abbreviation struct {
	name  string
	glyph string
}

// abbreviations collapse this library's own namespace. Entry i only applies
// to segment i, and only when every earlier entry matched.
var abbreviations = [...]abbreviation{
	{name: "difflog", glyph: "D"},
	{name: "log", glyph: "L"},
}

// writeTarget renders a "::" separated source path and returns its width in
// runes. With padding on, the path is followed by spaces up to the widest
// path seen so far.
func (r *Renderer) writeTarget(w spanWriter, target string) (int, error) {
	width, err := writeTargetSpans(w, target)
	if err != nil {
		return width, err
	}
	if maxWidth := r.state.MaxTargetWidth(); r.padTarget && maxWidth > width {
		return width, w.raw(strings.Repeat(" ", maxWidth-width))
	}
	return width, nil
}

func writeTargetSpans(w spanWriter, target string) (int, error) {
	first, rest, _ := strings.Cut(target, targetDelim)
	if first != abbreviations[0].name {
		width := utf8.RuneCountInString(first)
		if rest == "" {
			return width, w.span(PathTerminal, first)
		}
		if err := w.span(InfoStyle, first); err != nil {
			return width, err
		}
		return writeTail(w, rest, width)
	}

	if err := w.span(Abbreviation, abbreviations[0].glyph); err != nil {
		return 0, err
	}
	width := 1
	for depth := 1; rest != "" && depth < len(abbreviations); depth++ {
		seg, next, _ := strings.Cut(rest, targetDelim)
		rest = next
		if seg != abbreviations[depth].name {
			// The first unabbreviated segment is never the leaf.
			width += len(targetSep) + utf8.RuneCountInString(seg)
			if err := writeSegment(w, seg, InfoStyle); err != nil {
				return width, err
			}
			break
		}
		if err := w.span(Abbreviation, abbreviations[depth].glyph); err != nil {
			return width, err
		}
		width++
	}
	if rest == "" {
		return width, nil
	}
	return writeTail(w, rest, width)
}

// writeTail renders the remaining segments, highlighting the last one.
func writeTail(w spanWriter, rest string, width int) (int, error) {
	head, leaf := "", rest
	if i := strings.LastIndex(rest, targetDelim); i >= 0 {
		head, leaf = rest[:i], rest[i+len(targetDelim):]
	}
	if head != "" {
		for _, seg := range strings.Split(head, targetDelim) {
			width += len(targetSep) + utf8.RuneCountInString(seg)
			if err := writeSegment(w, seg, InfoStyle); err != nil {
				return width, err
			}
		}
	}
	width += len(targetSep) + utf8.RuneCountInString(leaf)
	return width, writeSegment(w, leaf, PathTerminal)
}

func writeSegment(w spanWriter, seg string, style Style) error {
	if err := w.span(Deemphasized, targetSep); err != nil {
		return err
	}
	return w.span(style, seg)
}
