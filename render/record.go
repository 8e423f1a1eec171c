// Package render turns log records into single terminal lines that are easy
// to scan in dense output.
//
// A rendered line looks like
//
//	2026-10-15T09:41:07.123_456_789+02:00[INFO  DL:init] Logger initialized
//
// The timestamp is diffed against the previous record's: the unchanged prefix
// is dimmed, the first changed digit and everything after it is bright, and a
// clock that moved backwards (or a zone offset that changed) is painted in the
// error color. Source paths are written with ":" separators, this library's
// own namespace is collapsed to single letters and the last segment is
// highlighted.
package render

import (
	"bytes"
	"io"
	"time"

	"github.com/fatih/color"
)

// Record is one log event handed to the renderer.
type Record struct {
	Time    time.Time
	Level   Level
	Target  string
	Message string
}

// Renderer writes records. It is safe for concurrent use; renderers that
// write to the same stream should share a State.
type Renderer struct {
	state     *State
	color     bool
	padTarget bool
	painters  map[Style]*color.Color
	onAnomaly func(Anomaly)
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithState makes the renderer diff against a shared state.
func WithState(s *State) Option {
	return func(r *Renderer) {
		if s != nil {
			r.state = s
		}
	}
}

// WithColor enables or disables ANSI colors. Colors are on by default.
func WithColor(enabled bool) Option {
	return func(r *Renderer) {
		r.color = enabled
	}
}

// WithPadTarget pads every source path with spaces up to the widest path
// rendered before it.
func WithPadTarget(enabled bool) Option {
	return func(r *Renderer) {
		r.padTarget = enabled
	}
}

// WithAnomalyHook calls fn after every line whose timestamp went backwards
// or changed zone. fn runs on the rendering goroutine and must not block.
func WithAnomalyHook(fn func(Anomaly)) Option {
	return func(r *Renderer) {
		r.onAnomaly = fn
	}
}

// New creates a Renderer with its own State unless WithState is given.
func New(opts ...Option) *Renderer {
	r := &Renderer{color: true}
	for _, opt := range opts {
		opt(r)
	}
	if r.state == nil {
		r.state = NewState()
	}
	r.painters = newPainters(r.color)
	return r
}

// State returns the state the renderer diffs against.
func (r *Renderer) State() *State {
	return r.state
}

// ColorEnabled reports whether the renderer emits ANSI colors.
func (r *Renderer) ColorEnabled() bool {
	return r.color
}

// Render writes rec to w as one newline terminated line. A write error
// aborts the line and is returned; whatever was already written stays.
func (r *Renderer) Render(w io.Writer, rec Record) error {
	return r.render(&ansiWriter{w: w, painters: r.painters, color: r.color}, rec)
}

// AppendRecord appends the rendered line of rec to buf.
func (r *Renderer) AppendRecord(buf []byte, rec Record) []byte {
	b := bytes.NewBuffer(buf)
	// Writes to a bytes.Buffer never fail.
	_ = r.Render(b, rec)
	return b.Bytes()
}

func (r *Renderer) render(w spanWriter, rec Record) error {
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	st, err := r.writeTimestamp(w, ts)
	if err != nil {
		return err
	}
	if err := w.span(Deemphasized, "["); err != nil {
		return err
	}
	if err := w.span(StyleFor(rec.Level), rec.Level.Tag()); err != nil {
		return err
	}
	if err := w.span(Deemphasized, " "); err != nil {
		return err
	}
	width, err := r.writeTarget(w, rec.Target)
	if err != nil {
		return err
	}
	if err := w.span(Deemphasized, "] "); err != nil {
		return err
	}
	if err := w.span(MessageStyleFor(rec.Level), rec.Message); err != nil {
		return err
	}
	if err := w.raw("\n"); err != nil {
		return err
	}

	r.state.commit(ts, st.offset, width)
	if st.anomaly != nil && r.onAnomaly != nil {
		r.onAnomaly(*st.anomaly)
	}
	return nil
}
