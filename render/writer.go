package render

import (
	"io"

	"github.com/fatih/color"
	"gitlab.com/tozd/go/errors"
)

// spanWriter receives a rendered line one styled span at a time.
type spanWriter interface {
	span(s Style, text string) error
	raw(text string) error
}

// ansiWriter paints spans with fatih/color and writes them to w as soon as
// they are produced.
type ansiWriter struct {
	w        io.Writer
	painters map[Style]*color.Color
	color    bool
}

func (a *ansiWriter) span(s Style, text string) error {
	if text == "" {
		return nil
	}
	p, ok := a.painters[s]
	if !ok {
		p = s.Painter(a.color)
	}
	return a.raw(p.Sprint(text))
}

func (a *ansiWriter) raw(text string) error {
	if _, err := io.WriteString(a.w, text); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// knownStyles are painted once per renderer.
var knownStyles = []Style{
	Deemphasized, Normal, Abbreviation, PathTerminal, Invisible,
	TraceStyle, DebugStyle, InfoStyle, WarnStyle, ErrorStyle,
}

func newPainters(enabled bool) map[Style]*color.Color {
	painters := make(map[Style]*color.Color, len(knownStyles))
	for _, s := range knownStyles {
		painters[s] = s.Painter(enabled)
	}
	return painters
}
