package difflog

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gitlab.com/tozd/go/errors"
)

// FilterEnv is the environment variable read by Init for the target filter,
// e.g. DIFFLOG_LOG="info,app::db=trace,app::db::pool=off".
const FilterEnv = "DIFFLOG_LOG"

// LevelOff disables every record of a target.
const LevelOff slog.Level = 1 << 30

type directive struct {
	target string
	level  slog.Level
}

// Filter selects the minimum level per source path. A directive applies to
// its target and every path below it; the longest matching target wins.
type Filter struct {
	defaultLevel slog.Level
	hasDefault   bool
	directives   []directive // longest target first
}

// ParseFilter parses a comma separated list of directives. Each directive is
// a level ("warn"), a target ("app::db", everything enabled) or both
// ("app::db=debug").
func ParseFilter(spec string) (*Filter, error) {
	f := &Filter{}
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		target, levelStr, hasLevel := strings.Cut(tok, "=")
		target = strings.TrimSpace(target)
		if !hasLevel {
			if level, err := parseFilterLevel(target); err == nil {
				f.defaultLevel, f.hasDefault = level, true
				continue
			}
			f.directives = append(f.directives, directive{target: target, level: LevelTrace})
			continue
		}

		if target == "" {
			return nil, errors.WithDetails(errors.Errorf("filter directive '%s' has no target", tok), "filter", spec)
		}
		level, err := parseFilterLevel(levelStr)
		if err != nil {
			return nil, errors.WithDetails(err, "filter", spec)
		}
		f.directives = append(f.directives, directive{target: target, level: level})
	}

	sort.SliceStable(f.directives, func(i, j int) bool {
		return len(f.directives[i].target) > len(f.directives[j].target)
	})
	return f, nil
}

func parseFilterLevel(s string) (slog.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "off" {
		return LevelOff, nil
	}
	level, ok := levelNames[normalized]
	if !ok {
		return 0, errors.Errorf("invalid log level '%s': supported levels are %s, off", s, getSupportedLevelsString())
	}
	return level, nil
}

// DefaultLevel returns the level given without a target, if any.
func (f *Filter) DefaultLevel() (slog.Level, bool) {
	if f == nil {
		return 0, false
	}
	return f.defaultLevel, f.hasDefault
}

// LevelFor returns the level of the most specific directive matching target.
func (f *Filter) LevelFor(target string) (slog.Level, bool) {
	if f == nil {
		return 0, false
	}
	for _, d := range f.directives {
		if target == d.target || strings.HasPrefix(target, d.target+"::") {
			return d.level, true
		}
	}
	return 0, false
}

// MinLevel returns the lowest level any directive lets through.
func (f *Filter) MinLevel() (slog.Level, bool) {
	if f == nil || len(f.directives) == 0 {
		return 0, false
	}
	lowest := f.directives[0].level
	for _, d := range f.directives[1:] {
		lowest = min(lowest, d.level)
	}
	return lowest, true
}

// String returns the filter in directive syntax.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	var parts []string
	if f.hasDefault {
		parts = append(parts, levelName(f.defaultLevel))
	}
	for _, d := range f.directives {
		parts = append(parts, d.target+"="+levelName(d.level))
	}
	return strings.Join(parts, ",")
}

func levelName(level slog.Level) string {
	if level == LevelOff {
		return "off"
	}
	if name, ok := reverseLevelNames[level]; ok {
		return strings.ToLower(name)
	}
	return strings.ToLower(level.String())
}

// filterHandler drops records below the level of their target.
type filterHandler struct {
	next   slog.Handler
	level  slog.Leveler
	filter *Filter
	target string
	groups int
}

// newFilterMiddleware returns a middleware applying filter on top of the
// base level.
func newFilterMiddleware(level slog.Leveler, filter *Filter) slogmulti.Middleware {
	return func(next slog.Handler) slog.Handler {
		return &filterHandler{next: next, level: level, filter: filter}
	}
}

func (h *filterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	lowest := h.level.Level()
	if h.target == "" {
		if l, ok := h.filter.MinLevel(); ok {
			lowest = min(lowest, l)
		}
	} else if l, ok := h.filter.LevelFor(h.target); ok {
		lowest = l
	}
	return level >= lowest && h.next.Enabled(ctx, level)
}

func (h *filterHandler) Handle(ctx context.Context, r slog.Record) error {
	target := h.target
	if target == "" {
		target = recordTarget(r, h.groups)
	}
	threshold := h.level.Level()
	if l, ok := h.filter.LevelFor(target); ok {
		threshold = l
	}
	if r.Level < threshold {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *filterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	if t, ok := targetAttr(attrs, h.groups); ok {
		h2.target = t
	}
	h2.next = h.next.WithAttrs(attrs)
	return &h2
}

func (h *filterHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups++
	h2.next = h.next.WithGroup(name)
	return &h2
}
