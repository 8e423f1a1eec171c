package difflog

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/dianlight/difflog/render"
	"gitlab.com/tozd/go/errors"
)

// TargetKey is the attribute that sets the source path of a record, e.g.
// logger.With(difflog.TargetKey, "app::db::pool").
const TargetKey = "target"

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Level is the minimum level rendered; nil means LevelInfo.
	Level slog.Leveler
	// NoColor writes plain text.
	NoColor bool
	// PadTarget pads source paths to the widest one seen so far.
	PadTarget bool
	// State is shared by handlers writing to the same stream; nil gives the
	// handler its own.
	State *render.State
	// OnAnomaly is called for every line whose clock went backwards or
	// whose zone changed.
	OnAnomaly func(render.Anomaly)
}

// Handler is a slog.Handler that writes one diffed line per record.
type Handler struct {
	w        io.Writer
	mu       *sync.Mutex
	renderer *render.Renderer
	level    slog.Leveler

	target string
	attrs  string // preformatted attributes, each with a leading space
	groups []string
}

// NewHandler returns a Handler writing to w.
func NewHandler(w io.Writer, opts *HandlerOptions) *Handler {
	if opts == nil {
		opts = &HandlerOptions{}
	}
	level := opts.Level
	if level == nil {
		level = LevelInfo
	}
	return &Handler{
		w:  w,
		mu: &sync.Mutex{},
		renderer: render.New(
			render.WithState(opts.State),
			render.WithColor(!opts.NoColor),
			render.WithPadTarget(opts.PadTarget),
			render.WithAnomalyHook(opts.OnAnomaly),
		),
		level: level,
	}
}

// State returns the render state of the handler.
func (h *Handler) State() *render.State {
	return h.renderer.State()
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	target := h.target
	if target == "" {
		target = recordTarget(r, len(h.groups))
	}

	var msg strings.Builder
	msg.WriteString(r.Message)
	msg.WriteString(h.attrs)
	prefix := groupPrefix(h.groups)
	r.Attrs(func(a slog.Attr) bool {
		if len(h.groups) == 0 && a.Key == TargetKey {
			return true
		}
		appendAttr(&msg, prefix, a)
		return true
	})

	bufp := bufPool.Get().(*[]byte)
	defer func() {
		*bufp = (*bufp)[:0]
		bufPool.Put(bufp)
	}()

	h.mu.Lock()
	defer h.mu.Unlock()
	*bufp = h.renderer.AppendRecord(*bufp, render.Record{
		Time:    r.Time,
		Level:   renderLevel(r.Level),
		Target:  target,
		Message: msg.String(),
	})
	if _, err := h.w.Write(*bufp); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	var b strings.Builder
	b.WriteString(h.attrs)
	prefix := groupPrefix(h.groups)
	for _, a := range attrs {
		if len(h.groups) == 0 && a.Key == TargetKey {
			if t, ok := targetAttr([]slog.Attr{a}, 0); ok {
				h2.target = t
				continue
			}
		}
		appendAttr(&b, prefix, a)
	}
	h2.attrs = b.String()
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(append([]string(nil), h.groups...), name)
	return &h2
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 256)
		return &b
	},
}

// renderLevel folds slog levels onto the five rendered severities.
func renderLevel(level slog.Level) render.Level {
	switch {
	case level < LevelDebug:
		return render.LevelTrace
	case level < LevelInfo:
		return render.LevelDebug
	case level < LevelWarn:
		return render.LevelInfo
	case level < LevelError:
		return render.LevelWarn
	default:
		return render.LevelError
	}
}

func groupPrefix(groups []string) string {
	if len(groups) == 0 {
		return ""
	}
	return strings.Join(groups, ".") + "."
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) || a.Key == "org_error" {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return
		}
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range attrs {
			appendAttr(b, prefix, ga)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	switch a.Value.Kind() {
	case slog.KindString:
		b.WriteString(quoteIfNeeded(a.Value.String()))
	case slog.KindTime:
		b.WriteString(a.Value.Time().Format(time.RFC3339Nano))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			b.WriteString(quoteIfNeeded(err.Error()))
			return
		}
		b.WriteString(quoteIfNeeded(a.Value.String()))
	default:
		b.WriteString(a.Value.String())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	for _, r := range s {
		if r == '=' || r == '"' || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return strconv.Quote(s)
		}
	}
	return s
}

// targetAttr returns the value of a top level TargetKey string attribute.
func targetAttr(attrs []slog.Attr, groups int) (string, bool) {
	if groups > 0 {
		return "", false
	}
	for _, a := range attrs {
		if a.Key == TargetKey && a.Value.Kind() == slog.KindString && a.Value.String() != "" {
			return a.Value.String(), true
		}
	}
	return "", false
}

// recordTarget finds the source path of r: its TargetKey attribute, else the
// package of the calling function.
func recordTarget(r slog.Record, groups int) string {
	target := ""
	if groups == 0 {
		r.Attrs(func(a slog.Attr) bool {
			if t, ok := targetAttr([]slog.Attr{a}, 0); ok {
				target = t
				return false
			}
			return true
		})
	}
	if target != "" {
		return target
	}
	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.Function != "" {
			return packageTarget(frame.Function)
		}
	}
	return "main"
}

// codeHosts are import path hosts followed by an owner element that is
// dropped from targets.
var codeHosts = map[string]struct{}{
	"github.com":    {},
	"gitlab.com":    {},
	"bitbucket.org": {},
	"codeberg.org":  {},
}

// packageTarget turns a qualified function name such as
// "github.com/dianlight/difflog/render.(*Renderer).Render" into the source
// path "difflog::render".
func packageTarget(function string) string {
	pkg := function
	slash := strings.LastIndex(pkg, "/")
	if dot := strings.Index(pkg[slash+1:], "."); dot >= 0 {
		pkg = pkg[:slash+1+dot]
	}

	elems := strings.Split(pkg, "/")
	if len(elems) > 1 && strings.Contains(elems[0], ".") {
		_, hosted := codeHosts[elems[0]]
		elems = elems[1:]
		if hosted && len(elems) > 1 {
			elems = elems[1:]
		}
	}
	return strings.Join(elems, "::")
}
