package difflog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dianlight/difflog/render"
	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	slogformatter "github.com/samber/slog-formatter"
	slogmulti "github.com/samber/slog-multi"
	"gitlab.com/tozd/go/errors"
)

// Log levels. Anything below LevelDebug renders as TRACE.
const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
)

// Logger wraps slog.Logger with trace level helpers.
type Logger struct {
	*slog.Logger
	commonKeys []string
	state      *render.State
}

// levelNames maps level strings to slog.Level values
var levelNames = map[string]slog.Level{
	"trace":   LevelTrace,
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn, // alias for warn
	"error":   LevelError,
}

// reverseLevelNames maps slog.Level values to canonical string names
var reverseLevelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelOff:   "OFF",
}

// levelColorNumbers are the ANSI colors of the level palette, used by the
// classic layout.
var levelColorNumbers = map[string]uint8{
	"TRACE": 5,
	"DEBUG": 4,
	"INFO":  7,
	"WARN":  11,
	"ERROR": 9,
}

// defaultCommonKeys is the default list of context keys to extract
var defaultCommonKeys = []string{"X-Trace-Id", "X-Span-Id", "request_id", "user_id", "session_id", "trace_id", "span_id"}

// Layout selects how records are written.
type Layout int

const (
	// LayoutDiff writes diffed timestamps and abbreviated source paths.
	LayoutDiff Layout = iota
	// LayoutClassic writes standard tint lines.
	LayoutClassic
)

// FormatterConfig holds configuration for log formatting
type FormatterConfig struct {
	EnableColors        bool
	EnableFormatting    bool
	Layout              Layout
	PadTarget           bool
	TimeFormat          string // attribute times and the classic layout
	MultilineStacktrace bool
}

var defaultFormatterConfig = FormatterConfig{
	EnableColors:        true, // Will be disabled automatically if terminal doesn't support colors
	EnableFormatting:    true,
	Layout:              LayoutDiff,
	PadTarget:           false,
	TimeFormat:          time.RFC3339,
	MultilineStacktrace: false,
}

var (
	programLevel      = new(slog.LevelVar) // Info by default
	mu                sync.RWMutex         // protects logger configuration changes
	formatterConfig   FormatterConfig      // current formatter configuration
	formatterConfigMu sync.RWMutex         // protects formatter configuration changes
)

var (
	currentFilter atomic.Pointer[Filter]

	// filterErr is the DIFFLOG_LOG parse failure, reported by Init.
	filterErr error

	// output is where the package logger writes; nil means stderr.
	output io.Writer

	// defaultState is shared by every logger writing to the package output.
	defaultState = render.NewState()
)

func init() {
	formatterConfig = defaultFormatterConfig
	formatterConfig.EnableColors = defaultFormatterConfig.EnableColors && isTerminalSupported()

	if spec, ok := os.LookupEnv(FilterEnv); ok {
		if f, err := ParseFilter(spec); err != nil {
			filterErr = err
		} else {
			applyFilter(f)
		}
	}

	initializeProcessor()
	initializeLogger()
}

// isTerminalSupported checks if the terminal supports colors
func isTerminalSupported() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) || strings.Contains(os.Getenv("TERM"), "color")
}

// extractContextToArgs extracts context values and converts them to args format
func extractContextToArgs(ctx context.Context, commonKeys []string) []any {
	if ctx == nil {
		return nil
	}

	var args []any
	if commonKeys == nil {
		commonKeys = defaultCommonKeys
	}
	for _, key := range commonKeys {
		if val := ctx.Value(key); val != nil {
			args = append(args, key, val)
		}
	}
	return args
}

// handlerSettings describes one logger's handler chain.
type handlerSettings struct {
	w       io.Writer
	level   slog.Leveler
	state   *render.State
	target  string
	mirrors []io.Writer
}

func defaultOutput(colors bool) io.Writer {
	if output != nil {
		return output
	}
	if colors {
		return colorable.NewColorableStderr()
	}
	return os.Stderr
}

// createBaseHandler builds filter -> formatters -> fanout(sink, mirrors, callbacks).
func createBaseHandler(s handlerSettings) slog.Handler {
	config := GetFormatterConfig()

	color.NoColor = !config.EnableColors

	w := s.w
	if w == nil {
		w = defaultOutput(config.EnableColors)
	}
	state := s.state
	if state == nil {
		state = defaultState
	}

	var sink slog.Handler
	switch config.Layout {
	case LayoutClassic:
		sink = tint.NewHandler(w, &tint.Options{
			Level:       LevelTrace,
			TimeFormat:  config.TimeFormat,
			NoColor:     !config.EnableColors,
			AddSource:   true,
			ReplaceAttr: replaceAttr,
		})
	default:
		sink = NewHandler(w, &HandlerOptions{
			Level:     LevelTrace,
			NoColor:   !config.EnableColors,
			PadTarget: config.PadTarget,
			State:     state,
			OnAnomaly: publishAnomaly,
		})
	}

	handlers := []slog.Handler{sink}
	for _, m := range s.mirrors {
		handlers = append(handlers, NewHandler(m, &HandlerOptions{
			Level:     LevelTrace,
			NoColor:   true,
			PadTarget: config.PadTarget,
		}))
	}
	handlers = append(handlers, NewEventHandler())

	middlewares := []slogmulti.Middleware{newFilterMiddleware(s.level, currentFilter.Load())}
	if config.EnableFormatting {
		middlewares = append(middlewares, slogformatter.NewFormatterHandler(
			TozdErrorFormatter(),
			ErrorFormatter("error"),
			ErrorFormatter("err"),
			UnixTimestampFormatter("timestamp"),
			slogformatter.TimeFormatter(config.TimeFormat, time.Local),
		))
	}

	handler := slogmulti.Pipe(middlewares...).Handler(slogmulti.Fanout(handlers...))
	if s.target != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String(TargetKey, s.target)})
	}
	return handler
}

var defaultLogger *Logger

// initializeLogger rebuilds the package level logger.
func initializeLogger() {
	handler := createBaseHandler(handlerSettings{level: programLevel, state: defaultState})
	defaultLogger = &Logger{
		Logger:     slog.New(handler),
		commonKeys: defaultCommonKeys,
		state:      defaultState,
	}
}

// Init installs the package logger as slog's default and announces it. A
// DIFFLOG_LOG value that failed to parse is reported as a warning.
func Init() {
	mu.Lock()
	slog.SetDefault(defaultLogger.Logger)
	logger := defaultLogger.With(TargetKey, "difflog::log")
	mu.Unlock()

	if filterErr != nil {
		logger.Warn("Ignoring "+FilterEnv, "error", filterErr)
	}
	logger.Info("Logger initialized")
}

// Default returns the package level logger.
func Default() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// replaceAttr names levels and paints them with the level palette in the
// classic layout.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == "org_error" {
		return slog.Attr{}
	}
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	name := renderLevel(level).String()
	a.Value = slog.StringValue(name)
	return tint.Attr(levelColorNumbers[name], a)
}

// Trace logs a message at trace level
func Trace(msg string, args ...any) {
	Default().log(context.Background(), LevelTrace, msg, args...)
}

// TraceContext logs a message at trace level with context
func TraceContext(ctx context.Context, msg string, args ...any) {
	l := Default()
	l.log(ctx, LevelTrace, msg, append(args, extractContextToArgs(ctx, l.commonKeys)...)...)
}

// Debug logs a message at debug level
func Debug(msg string, args ...any) {
	Default().log(context.Background(), LevelDebug, msg, args...)
}

// DebugContext logs a message at debug level with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	l := Default()
	l.log(ctx, LevelDebug, msg, append(args, extractContextToArgs(ctx, l.commonKeys)...)...)
}

// Info logs a message at info level
func Info(msg string, args ...any) {
	Default().log(context.Background(), LevelInfo, msg, args...)
}

// InfoContext logs a message at info level with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	l := Default()
	l.log(ctx, LevelInfo, msg, append(args, extractContextToArgs(ctx, l.commonKeys)...)...)
}

// Warn logs a message at warning level
func Warn(msg string, args ...any) {
	Default().log(context.Background(), LevelWarn, msg, args...)
}

// WarnContext logs a message at warning level with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	l := Default()
	l.log(ctx, LevelWarn, msg, append(args, extractContextToArgs(ctx, l.commonKeys)...)...)
}

// Error logs a message at error level
func Error(msg string, args ...any) {
	Default().log(context.Background(), LevelError, msg, args...)
}

// ErrorContext logs a message at error level with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	l := Default()
	l.log(ctx, LevelError, msg, append(args, extractContextToArgs(ctx, l.commonKeys)...)...)
}

// log is the low-level logging method for methods that take ...any.
// It must always be called directly by an exported logging method
// or function, because it uses a fixed call depth to obtain the pc.
func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip [runtime.Callers, this function, this function's caller]
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.Handler().Handle(ctx, r)
}

// SetLevel sets the minimum log level
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	mu.RLock()
	defer mu.RUnlock()
	return programLevel.Level()
}

// SetLevelFromString sets the log level from a string representation
// Supported levels: trace, debug, info, warn/warning, error
// The comparison is case-insensitive
func SetLevelFromString(levelStr string) error {
	if levelStr == "" {
		return errors.New("log level cannot be empty")
	}

	level, exists := levelNames[strings.ToLower(strings.TrimSpace(levelStr))]
	if !exists {
		return errors.Errorf("invalid log level '%s': supported levels are %s",
			levelStr, getSupportedLevelsString())
	}

	SetLevel(level)
	return nil
}

// GetLevelString returns the current log level as a string
func GetLevelString() string {
	level := GetLevel()
	if name, exists := reverseLevelNames[level]; exists {
		return name
	}
	return level.String()
}

// IsLevelEnabled checks if logging is enabled for the given level
func IsLevelEnabled(level slog.Level) bool {
	return GetLevel() <= level
}

// getSupportedLevelsString returns a comma-separated, sorted list of level names
func getSupportedLevelsString() string {
	levels := make([]string, 0, len(levelNames))
	for name := range levelNames {
		levels = append(levels, name)
	}
	sort.Slice(levels, func(i, j int) bool {
		if levelNames[levels[i]] != levelNames[levels[j]] {
			return levelNames[levels[i]] < levelNames[levels[j]]
		}
		return levels[i] < levels[j]
	})
	return strings.Join(levels, ", ")
}

// applyFilter installs f. Its default level, "off" included, becomes the
// package level; replacing a filter that had one with a filter that has none
// restores LevelInfo.
func applyFilter(f *Filter) {
	previous := currentFilter.Swap(f)
	if level, ok := f.DefaultLevel(); ok {
		programLevel.Set(level)
	} else if _, had := previous.DefaultLevel(); had {
		programLevel.Set(LevelInfo)
	}
}

// SetFilter replaces the target filter with one parsed from spec (same
// syntax as DIFFLOG_LOG). An empty spec removes the filter; if the removed
// filter set the default level, the level goes back to LevelInfo.
func SetFilter(spec string) error {
	var f *Filter
	if strings.TrimSpace(spec) != "" {
		var err error
		if f, err = ParseFilter(spec); err != nil {
			return err
		}
	}

	mu.Lock()
	defer mu.Unlock()
	applyFilter(f)
	initializeLogger()
	return nil
}

// GetFilter returns the current target filter in directive syntax.
func GetFilter() string {
	return currentFilter.Load().String()
}

// SetOutput redirects the package logger; nil restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	initializeLogger()
}

// SetFormatterConfig updates the formatter configuration and reinitializes the logger
func SetFormatterConfig(config FormatterConfig) {
	formatterConfigMu.Lock()
	formatterConfig = config
	formatterConfig.EnableColors = config.EnableColors && isTerminalSupported()
	formatterConfigMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	initializeLogger()
}

// GetFormatterConfig returns the current formatter configuration
func GetFormatterConfig() FormatterConfig {
	formatterConfigMu.RLock()
	defer formatterConfigMu.RUnlock()
	return formatterConfig
}

// EnableColors enables or disables colored output
func EnableColors(enabled bool) {
	formatterConfigMu.Lock()
	formatterConfig.EnableColors = enabled && isTerminalSupported()
	formatterConfigMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	initializeLogger()
}

// IsColorsEnabled returns true if colors are enabled and terminal supports them
func IsColorsEnabled() bool {
	formatterConfigMu.RLock()
	defer formatterConfigMu.RUnlock()
	return formatterConfig.EnableColors && isTerminalSupported()
}

// EnableMultilineStacktrace toggles multi-line stack trace formatting.
func EnableMultilineStacktrace(enabled bool) {
	formatterConfigMu.Lock()
	formatterConfig.MultilineStacktrace = enabled
	formatterConfigMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	initializeLogger()
}

// EnablePadTarget toggles padding of source paths to a common width.
func EnablePadTarget(enabled bool) {
	formatterConfigMu.Lock()
	formatterConfig.PadTarget = enabled
	formatterConfigMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	initializeLogger()
}

// ResetState forgets the last rendered timestamp and the widest source path
// of the package logger.
func ResetState() {
	defaultState.Reset()
}

// LoggerOption is a functional option for configuring a Logger
type LoggerOption func(*loggerOptions)

type loggerOptions struct {
	handlerSettings
	commonKeys []string
}

// WithCommonKeys sets custom context keys to extract from context.Context
func WithCommonKeys(keys []string) LoggerOption {
	return func(o *loggerOptions) {
		o.commonKeys = keys
	}
}

// WithAddCommonKeys adds custom context keys to the default set of common keys
func WithAddCommonKeys(keys []string) LoggerOption {
	return func(o *loggerOptions) {
		o.commonKeys = append(append([]string(nil), defaultCommonKeys...), keys...)
	}
}

// WithLevel sets the minimum log level of the logger instance.
func WithLevel(level slog.Level) LoggerOption {
	return func(o *loggerOptions) {
		o.level = level
	}
}

// WithWriter sends the logger's lines to w. Unless WithState is also given,
// the logger diffs against its own state.
func WithWriter(w io.Writer) LoggerOption {
	return func(o *loggerOptions) {
		o.w = w
		if o.state == nil || o.state == defaultState {
			o.state = render.NewState()
		}
	}
}

// WithState makes the logger diff against s.
func WithState(s *render.State) LoggerOption {
	return func(o *loggerOptions) {
		o.state = s
	}
}

// WithTarget sets the source path of every record of the logger.
func WithTarget(target string) LoggerOption {
	return func(o *loggerOptions) {
		o.target = target
	}
}

// WithMirror also writes every record, uncolored, to w.
func WithMirror(w io.Writer) LoggerOption {
	return func(o *loggerOptions) {
		o.mirrors = append(o.mirrors, w)
	}
}

// NewLogger creates a new Logger. Without options it writes to the package
// output at the package level and shares the package render state.
func NewLogger(opts ...LoggerOption) *Logger {
	o := &loggerOptions{
		handlerSettings: handlerSettings{level: programLevel, state: defaultState},
		commonKeys:      defaultCommonKeys,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Logger{
		Logger:     slog.New(createBaseHandler(o.handlerSettings)),
		commonKeys: o.commonKeys,
		state:      o.state,
	}
}

// NewLoggerWithLevel creates a new Logger instance with a specific minimum level
func NewLoggerWithLevel(level slog.Level, opts ...LoggerOption) *Logger {
	return NewLogger(append([]LoggerOption{WithLevel(level)}, opts...)...)
}

// State returns the render state the logger diffs against.
func (l *Logger) State() *render.State {
	return l.state
}

// With returns a Logger that includes the given attributes in each output
// operation.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), commonKeys: l.commonKeys, state: l.state}
}

// Named returns a Logger whose records carry the given source path.
func (l *Logger) Named(target string) *Logger {
	return l.With(TargetKey, target)
}

// Trace logs a message at trace level
func (l *Logger) Trace(msg string, args ...any) {
	l.log(context.Background(), LevelTrace, msg, args...)
}

// TraceContext logs a message at trace level with context
func (l *Logger) TraceContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelTrace, msg, append(args, extractContextToArgs(ctx, l.commonKeys)...)...)
}

// Printf logs a formatted message at info level.
func (l *Logger) Printf(format string, args ...any) {
	l.log(context.Background(), LevelInfo, fmt.Sprintf(format, args...))
}
